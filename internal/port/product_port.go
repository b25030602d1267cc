package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikolayk812/fulfillment/internal/domain"
)

type ProductRepository interface {
	GetProduct(ctx context.Context, productID uuid.UUID) (domain.Product, error)

	InsertProduct(ctx context.Context, product domain.Product) error

	// Reserve atomically decrements available quantity only if enough stock
	// remains. ok=false with a nil error is the normal "insufficient stock"
	// business outcome of losing a concurrent race, not a system error.
	Reserve(ctx context.Context, productID uuid.UUID, quantity int32) (ok bool, err error)

	// Restore unconditionally increments available quantity, used for
	// cancellations and compensations.
	Restore(ctx context.Context, productID uuid.UUID, quantity int32) error

	// GetProductForUpdate takes an exclusive row lock. Only meaningful on a
	// transaction-bound repository, the lock is held until the transaction
	// ends so the scope must be kept as narrow as possible.
	GetProductForUpdate(ctx context.Context, productID uuid.UUID) (domain.Product, error)

	// UpdateProduct writes general fields with an optimistic revision check,
	// rejecting stale writes with domain.ErrConcurrencyConflict.
	UpdateProduct(ctx context.Context, product domain.Product) error
}
