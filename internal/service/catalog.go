package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikolayk812/fulfillment/internal/domain"
	"github.com/nikolayk812/fulfillment/internal/port"
	"go.uber.org/zap"
)

// Catalog covers the administrative product paths: creation, optimistic
// field updates with bounded retry, and the rare pessimistic multi-field
// update. The hot reservation path lives in Fulfillment.
type Catalog struct {
	txm    port.TxManager
	logger *zap.Logger
}

func NewCatalog(txm port.TxManager, logger *zap.Logger) (*Catalog, error) {
	if txm == nil {
		return nil, fmt.Errorf("txm is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Catalog{txm: txm, logger: logger}, nil
}

func (s *Catalog) CreateProduct(ctx context.Context, name string, price domain.Money, quantity int32) (domain.Product, error) {
	var p domain.Product

	if name == "" {
		return p, fmt.Errorf("name is empty")
	}
	if !price.IsPositive() {
		return p, fmt.Errorf("price must be positive")
	}
	if quantity < 0 {
		return p, fmt.Errorf("quantity must not be negative")
	}

	p = domain.Product{
		ID:       uuid.New(),
		Name:     name,
		Price:    price,
		Quantity: quantity,
		Active:   true,
	}

	if err := s.txm.Store().Products().InsertProduct(ctx, p); err != nil {
		return p, fmt.Errorf("products.InsertProduct: %w", err)
	}

	return p, nil
}

func (s *Catalog) GetProduct(ctx context.Context, productID uuid.UUID) (domain.Product, error) {
	return s.txm.Store().Products().GetProduct(ctx, productID)
}

// UpdateProductPrice is the optimistic path: reload and retry on a revision
// mismatch, a bounded number of times.
func (s *Catalog) UpdateProductPrice(ctx context.Context, productID uuid.UUID, price domain.Money) (domain.Product, error) {
	var p domain.Product

	if !price.IsPositive() {
		return p, fmt.Errorf("price must be positive")
	}

	products := s.txm.Store().Products()

	err := withConflictRetry(ctx, func() error {
		current, err := products.GetProduct(ctx, productID)
		if err != nil {
			return fmt.Errorf("products.GetProduct: %w", err)
		}

		current.Price = price
		if err := products.UpdateProduct(ctx, current); err != nil {
			return err
		}

		p = current
		return nil
	})
	if err != nil {
		return p, err
	}

	return p, nil
}

// DeactivateProduct uses the pessimistic path: the row lock serializes this
// rare administrative update against concurrent writers. The lock spans only
// the read and the write, never any network call.
func (s *Catalog) DeactivateProduct(ctx context.Context, productID uuid.UUID) (domain.Product, error) {
	var p domain.Product

	err := s.txm.InTx(ctx, func(st port.Store) error {
		current, err := st.Products().GetProductForUpdate(ctx, productID)
		if err != nil {
			return fmt.Errorf("products.GetProductForUpdate: %w", err)
		}

		current.Active = false
		if err := st.Products().UpdateProduct(ctx, current); err != nil {
			return fmt.Errorf("products.UpdateProduct: %w", err)
		}

		p = current
		return nil
	})
	if err != nil {
		return p, fmt.Errorf("txm.InTx: %w", err)
	}

	return p, nil
}
