package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikolayk812/fulfillment/internal/domain"
)

type OrderRepository interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error)

	// InsertOrder persists the order and its lines. The order is never
	// deleted afterwards, cancellation is a status change.
	InsertOrder(ctx context.Context, order domain.Order) error

	// UpdateOrderStatus persists a status already validated by the domain
	// transition table. The write is conditional on the expected current
	// status: losing a concurrent status race yields
	// domain.ErrConcurrencyConflict and no rows change, so two racing
	// cancellations can never both run their side effects.
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error
}
