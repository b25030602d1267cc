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
)

type orderRepository struct {
	db DBTX
}

func NewOrder(pool *pgxpool.Pool) port.OrderRepository {
	return &orderRepository{db: pool}
}

func NewOrderWithTx(tx pgx.Tx) port.OrderRepository {
	return &orderRepository{db: tx}
}

func (r *orderRepository) GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	var o domain.Order

	order, err := withTx(ctx, r.db, func(tx pgx.Tx) (domain.Order, error) {
		row := tx.QueryRow(ctx,
			`SELECT id, order_number, customer_id, status, total_amount::text, total_currency, shipping_address, created_at, updated_at
			 FROM orders WHERE id = $1`, orderID)

		dbOrder, err := scanOrder(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return o, fmt.Errorf("scanOrder: %w", domain.ErrOrderNotFound)
			}
			return o, fmt.Errorf("scanOrder: %w", err)
		}

		lines, err := getOrderLines(ctx, tx, orderID)
		if err != nil {
			return o, fmt.Errorf("getOrderLines: %w", err)
		}
		dbOrder.Lines = lines

		return dbOrder, nil
	})
	if err != nil {
		return o, fmt.Errorf("withTx: %w", err)
	}

	return order, nil
}

func (r *orderRepository) InsertOrder(ctx context.Context, order domain.Order) error {
	if order.ID == uuid.Nil {
		return fmt.Errorf("orderID is empty")
	}

	if len(order.Lines) == 0 {
		return fmt.Errorf("no lines in order")
	}

	_, err := withTx(ctx, r.db, func(tx pgx.Tx) (struct{}, error) {
		var zero struct{}

		_, err := tx.Exec(ctx,
			`INSERT INTO orders (id, order_number, customer_id, status, total_amount, total_currency, shipping_address)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			order.ID, order.OrderNumber, order.CustomerID, string(order.Status),
			order.Total.Amount, order.Total.Currency.String(), order.ShippingAddress)
		if err != nil {
			return zero, fmt.Errorf("insert order: %w", err)
		}

		for _, line := range order.Lines {
			_, err := tx.Exec(ctx,
				`INSERT INTO order_lines (order_id, product_id, quantity, unit_price_amount, unit_price_currency, subtotal_amount)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				order.ID, line.ProductID, line.Quantity,
				line.UnitPrice.Amount, line.UnitPrice.Currency.String(), line.Subtotal.Amount)
			if err != nil {
				return zero, fmt.Errorf("insert order line: %w", err)
			}
		}

		return zero, nil
	})
	if err != nil {
		return fmt.Errorf("withTx: %w", err)
	}

	return nil
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("orderID is empty")
	}

	if from == "" || to == "" {
		return fmt.Errorf("status is empty")
	}

	// Conditional on the current status: of two racing writers only one
	// matches, the other gets 0 rows and must not run its side effects.
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`,
		orderID, string(to), string(from))
	if err != nil {
		return fmt.Errorf("db.Exec: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return fmt.Errorf("row.Scan: %w", err)
		}

		if !exists {
			return fmt.Errorf("db.Exec: %w", domain.ErrOrderNotFound)
		}
		return fmt.Errorf("status changed since read: %w", domain.ErrConcurrencyConflict)
	}

	return nil
}

func getOrderLines(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) ([]domain.OrderLine, error) {
	rows, err := tx.Query(ctx,
		`SELECT product_id, quantity, unit_price_amount::text, unit_price_currency, subtotal_amount::text
		 FROM order_lines WHERE order_id = $1 ORDER BY line_no`, orderID)
	if err != nil {
		return nil, fmt.Errorf("tx.Query: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var (
			line           domain.OrderLine
			unitAmount     string
			unitCurrency   string
			subtotalAmount string
		)

		if err := rows.Scan(&line.ProductID, &line.Quantity, &unitAmount, &unitCurrency, &subtotalAmount); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}

		line.UnitPrice, err = parseMoney(unitAmount, unitCurrency)
		if err != nil {
			return nil, fmt.Errorf("parseMoney: %w", err)
		}

		line.Subtotal, err = parseMoney(subtotalAmount, unitCurrency)
		if err != nil {
			return nil, fmt.Errorf("parseMoney: %w", err)
		}

		lines = append(lines, line)
	}

	return lines, rows.Err()
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o           domain.Order
		status      string
		amount      string
		currencyISO string
	)

	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &status, &amount, &currencyISO, &o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}

	o.Status, err = domain.ToOrderStatus(status)
	if err != nil {
		return o, fmt.Errorf("domain.ToOrderStatus[%s]: %w", status, err)
	}

	o.Total, err = parseMoney(amount, currencyISO)
	if err != nil {
		return o, fmt.Errorf("parseMoney: %w", err)
	}

	return o, nil
}
