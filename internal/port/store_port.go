package port

import "context"

// Store groups the repositories bound to one unit of work, either the shared
// pool (auto-commit statements) or a single database transaction.
type Store interface {
	Products() ProductRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Outbox() OutboxRepository
}

// TxManager hands out stores. InTx runs fn against repositories bound to one
// transaction, committing on nil and rolling back on error, so a state change
// and its outbox events land atomically or not at all.
type TxManager interface {
	Store() Store
	InTx(ctx context.Context, fn func(s Store) error) error
}
