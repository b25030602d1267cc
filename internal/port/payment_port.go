package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikolayk812/fulfillment/internal/domain"
)

type PaymentRepository interface {
	GetPayment(ctx context.Context, paymentID uuid.UUID) (domain.Payment, error)
	GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (domain.Payment, error)

	// GetPaymentForUpdate takes an exclusive row lock. Only meaningful on a
	// transaction-bound repository; refunds use it to serialize against each
	// other so the refunded amount stays monotonic.
	GetPaymentForUpdate(ctx context.Context, paymentID uuid.UUID) (domain.Payment, error)

	InsertPayment(ctx context.Context, payment domain.Payment) error

	// UpdatePayment persists the full mutable state of the payment after a
	// lifecycle operation (process, fail, cancel, refund). The write carries
	// an optimistic revision check, stale writes fail with
	// domain.ErrConcurrencyConflict instead of overwriting a concurrent
	// booking.
	UpdatePayment(ctx context.Context, payment domain.Payment) error
}
