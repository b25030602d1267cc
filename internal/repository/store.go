package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/fulfillment/internal/port"
)

type store struct {
	products port.ProductRepository
	orders   port.OrderRepository
	payments port.PaymentRepository
	outbox   port.OutboxRepository
}

func (s store) Products() port.ProductRepository { return s.products }
func (s store) Orders() port.OrderRepository     { return s.orders }
func (s store) Payments() port.PaymentRepository { return s.payments }
func (s store) Outbox() port.OutboxRepository    { return s.outbox }

type txManager struct {
	pool      *pgxpool.Pool
	poolStore store
}

// NewTxManager bundles all repositories over one pool. Store() hands out
// pool-bound repositories for single-statement operations, InTx binds the
// whole set to one transaction.
func NewTxManager(pool *pgxpool.Pool) (port.TxManager, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	return &txManager{
		pool: pool,
		poolStore: store{
			products: NewProduct(pool),
			orders:   NewOrder(pool),
			payments: NewPayment(pool),
			outbox:   NewOutbox(pool),
		},
	}, nil
}

func (m *txManager) Store() port.Store {
	return m.poolStore
}

func (m *txManager) InTx(ctx context.Context, fn func(s port.Store) error) error {
	_, err := withTx(ctx, m.pool, func(tx pgx.Tx) (struct{}, error) {
		txStore := store{
			products: NewProductWithTx(tx),
			orders:   NewOrderWithTx(tx),
			payments: NewPaymentWithTx(tx),
			outbox:   NewOutboxWithTx(tx),
		}

		return struct{}{}, fn(txStore)
	})
	if err != nil {
		return fmt.Errorf("withTx: %w", err)
	}

	return nil
}
