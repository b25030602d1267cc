package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/nikolayk812/fulfillment/internal/metrics"
	"github.com/nikolayk812/fulfillment/internal/port"
	"go.uber.org/zap"
)

// Relay drains the transactional outbox: it polls unsent records and
// publishes them best-effort. A publish failure is logged and the record
// stays pending for the next tick, the operation that produced the event has
// already been reported successful to its caller and is never rolled back.
type Relay struct {
	outbox   port.OutboxRepository
	pub      port.Publisher
	logger   *zap.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	batch    int
}

func NewRelay(outbox port.OutboxRepository, pub port.Publisher, logger *zap.Logger, m *metrics.Metrics, interval time.Duration, batch int) (*Relay, error) {
	if outbox == nil {
		return nil, fmt.Errorf("outbox is nil")
	}
	if pub == nil {
		return nil, fmt.Errorf("publisher is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}

	return &Relay{
		outbox:   outbox,
		pub:      pub,
		logger:   logger,
		metrics:  m,
		interval: interval,
		batch:    batch,
	}, nil
}

// Run blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// Drain publishes one batch of pending records, exported for tests and for
// callers that want an immediate flush.
func (r *Relay) Drain(ctx context.Context) {
	r.drain(ctx)
}

func (r *Relay) drain(ctx context.Context) {
	records, err := r.outbox.FetchPending(ctx, r.batch)
	if err != nil {
		r.logger.Warn("fetch pending outbox records", zap.Error(err))
		return
	}

	for _, rec := range records {
		if err := r.pub.Publish(ctx, rec.Topic, rec.Key, rec.Payload); err != nil {
			// Swallowed on purpose, the record stays pending and the
			// next tick retries it.
			if r.metrics != nil {
				r.metrics.PublishFailures.WithLabelValues(rec.Topic).Inc()
			}
			r.logger.Warn("publish outbox record",
				zap.Int64("record_id", rec.ID),
				zap.String("event_id", rec.EventID),
				zap.String("topic", rec.Topic),
				zap.Error(err))
			continue
		}

		if r.metrics != nil {
			r.metrics.EventsPublished.WithLabelValues(rec.Topic).Inc()
		}

		if err := r.outbox.MarkSent(ctx, rec.ID); err != nil {
			// The event may be published twice after this, consumers
			// deduplicate by event_id.
			r.logger.Warn("mark outbox record sent",
				zap.Int64("record_id", rec.ID),
				zap.Error(err))
		}
	}
}
