package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/fulfillment/internal/domain"
	"github.com/nikolayk812/fulfillment/internal/port"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const productColumns = `id, name, price_amount::text, price_currency, quantity, revision, active, created_at, updated_at`

type productRepository struct {
	db DBTX
}

func NewProduct(pool *pgxpool.Pool) port.ProductRepository {
	return &productRepository{db: pool}
}

func NewProductWithTx(tx pgx.Tx) port.ProductRepository {
	return &productRepository{db: tx}
}

func (r *productRepository) GetProduct(ctx context.Context, productID uuid.UUID) (domain.Product, error) {
	var p domain.Product

	row := r.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, productID)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, fmt.Errorf("scanProduct: %w", domain.ErrProductNotFound)
		}
		return p, fmt.Errorf("scanProduct: %w", err)
	}

	return p, nil
}

func (r *productRepository) InsertProduct(ctx context.Context, product domain.Product) error {
	if product.ID == uuid.Nil {
		return fmt.Errorf("productID is empty")
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO products (id, name, price_amount, price_currency, quantity, revision, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		product.ID, product.Name, product.Price.Amount, product.Price.Currency.String(),
		product.Quantity, product.Revision, product.Active)
	if err != nil {
		return fmt.Errorf("db.Exec: %w", err)
	}

	return nil
}

// Reserve is the hot path: a single conditional update, no lock hold time.
// Zero rows affected on an existing product means another concurrent
// reservation already consumed the stock.
func (r *productRepository) Reserve(ctx context.Context, productID uuid.UUID, quantity int32) (bool, error) {
	if quantity <= 0 {
		return false, fmt.Errorf("quantity must be positive")
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE products
		 SET quantity = quantity - $2, revision = revision + 1, updated_at = now()
		 WHERE id = $1 AND active AND quantity >= $2`,
		productID, quantity)
	if err != nil {
		return false, fmt.Errorf("db.Exec: %w", err)
	}

	if cmdTag.RowsAffected() > 0 {
		return true, nil
	}

	// Distinguish a lost race from a missing product.
	if _, err := r.GetProduct(ctx, productID); err != nil {
		return false, fmt.Errorf("r.GetProduct: %w", err)
	}

	return false, nil
}

func (r *productRepository) Restore(ctx context.Context, productID uuid.UUID, quantity int32) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE products
		 SET quantity = quantity + $2, revision = revision + 1, updated_at = now()
		 WHERE id = $1`,
		productID, quantity)
	if err != nil {
		return fmt.Errorf("db.Exec: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("db.Exec: %w", domain.ErrProductNotFound)
	}

	return nil
}

// GetProductForUpdate blocks other writers on the same row until the
// surrounding transaction ends. Callers must keep that span short and never
// hold it across a network call.
func (r *productRepository) GetProductForUpdate(ctx context.Context, productID uuid.UUID) (domain.Product, error) {
	var p domain.Product

	if _, ok := r.db.(pgx.Tx); !ok {
		return p, fmt.Errorf("row lock requires a transaction-bound repository")
	}

	row := r.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, fmt.Errorf("scanProduct: %w", domain.ErrProductNotFound)
		}
		return p, fmt.Errorf("scanProduct: %w", err)
	}

	return p, nil
}

// UpdateProduct writes general fields guarded by the revision read at load
// time. A mismatch means somebody else won the write.
func (r *productRepository) UpdateProduct(ctx context.Context, product domain.Product) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE products
		 SET name = $3, price_amount = $4, price_currency = $5, quantity = $6, active = $7,
		     revision = revision + 1, updated_at = now()
		 WHERE id = $1 AND revision = $2`,
		product.ID, product.Revision,
		product.Name, product.Price.Amount, product.Price.Currency.String(),
		product.Quantity, product.Active)
	if err != nil {
		return fmt.Errorf("db.Exec: %w", err)
	}

	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetProduct(ctx, product.ID); err != nil {
		return fmt.Errorf("r.GetProduct: %w", err)
	}

	return domain.ErrConcurrencyConflict
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p           domain.Product
		amount      string
		currencyISO string
	)

	err := row.Scan(&p.ID, &p.Name, &amount, &currencyISO, &p.Quantity, &p.Revision, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}

	price, err := parseMoney(amount, currencyISO)
	if err != nil {
		return p, fmt.Errorf("parseMoney: %w", err)
	}
	p.Price = price

	return p, nil
}

func parseMoney(amount, currencyISO string) (domain.Money, error) {
	parsedCurrency, err := currency.ParseISO(currencyISO)
	if err != nil {
		return domain.Money{}, fmt.Errorf("currency[%s] is not valid: %w", currencyISO, err)
	}

	parsedAmount, err := parseDecimal(amount)
	if err != nil {
		return domain.Money{}, fmt.Errorf("amount[%s] is not valid: %w", amount, err)
	}

	return domain.Money{Amount: parsedAmount, Currency: parsedCurrency}, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
