package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/fulfillment/internal/domain"
	"github.com/nikolayk812/fulfillment/internal/port"
)

type outboxRepository struct {
	db DBTX
}

func NewOutbox(pool *pgxpool.Pool) port.OutboxRepository {
	return &outboxRepository{db: pool}
}

func NewOutboxWithTx(tx pgx.Tx) port.OutboxRepository {
	return &outboxRepository{db: tx}
}

func (r *outboxRepository) InsertEvent(ctx context.Context, topic, key string, payload any) error {
	if topic == "" {
		return fmt.Errorf("topic is empty")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	// The envelope already carries its own eventId, keep it queryable.
	var envelope struct {
		EventID string `json:"eventId"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO outbox (event_id, topic, key, payload) VALUES ($1, $2, $3, $4)`,
		envelope.EventID, topic, key, data)
	if err != nil {
		return fmt.Errorf("db.Exec: %w", err)
	}

	return nil
}

func (r *outboxRepository) FetchPending(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, topic, key, payload, created_at, sent_at
		 FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("db.Query: %w", err)
	}
	defer rows.Close()

	var records []domain.OutboxRecord
	for rows.Next() {
		var rec domain.OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func (r *outboxRepository) MarkSent(ctx context.Context, recordID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE outbox SET sent_at = now() WHERE id = $1`, recordID)
	if err != nil {
		return fmt.Errorf("db.Exec: %w", err)
	}

	return nil
}
