package port

import (
	"context"

	"github.com/nikolayk812/fulfillment/internal/domain"
)

type OutboxRepository interface {
	// InsertEvent stores an event envelope. Called inside the same
	// transaction as the state change the event describes.
	InsertEvent(ctx context.Context, topic, key string, payload any) error

	FetchPending(ctx context.Context, limit int) ([]domain.OutboxRecord, error)
	MarkSent(ctx context.Context, recordID int64) error
}
