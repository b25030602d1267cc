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

const paymentColumns = `id, payment_ref, order_id, customer_id, amount::text, currency, refunded_amount::text,
	status, method, gateway_txn_id, gateway_response, failure_reason, revision, processed_at, created_at, updated_at`

type paymentRepository struct {
	db DBTX
}

func NewPayment(pool *pgxpool.Pool) port.PaymentRepository {
	return &paymentRepository{db: pool}
}

func NewPaymentWithTx(tx pgx.Tx) port.PaymentRepository {
	return &paymentRepository{db: tx}
}

func (r *paymentRepository) GetPayment(ctx context.Context, paymentID uuid.UUID) (domain.Payment, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID)

	return scanPaymentRow(row)
}

func (r *paymentRepository) GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (domain.Payment, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)

	return scanPaymentRow(row)
}

// GetPaymentForUpdate locks the payment row until the surrounding
// transaction ends, serializing concurrent lifecycle operations on it.
func (r *paymentRepository) GetPaymentForUpdate(ctx context.Context, paymentID uuid.UUID) (domain.Payment, error) {
	var p domain.Payment

	if _, ok := r.db.(pgx.Tx); !ok {
		return p, fmt.Errorf("row lock requires a transaction-bound repository")
	}

	row := r.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, paymentID)

	return scanPaymentRow(row)
}

func (r *paymentRepository) InsertPayment(ctx context.Context, payment domain.Payment) error {
	if payment.ID == uuid.Nil {
		return fmt.Errorf("paymentID is empty")
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO payments (id, payment_ref, order_id, customer_id, amount, currency, refunded_amount,
		                       status, method, gateway_txn_id, gateway_response, failure_reason, revision, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		payment.ID, payment.PaymentRef, payment.OrderID, payment.CustomerID,
		payment.Amount.Amount, payment.Amount.Currency.String(), payment.RefundedAmount,
		string(payment.Status), string(payment.Method),
		payment.GatewayTxnID, payment.GatewayResponse, payment.FailureReason,
		payment.Revision, payment.ProcessedAt)
	if err != nil {
		return fmt.Errorf("db.Exec: %w", err)
	}

	return nil
}

func (r *paymentRepository) UpdatePayment(ctx context.Context, payment domain.Payment) error {
	if payment.ID == uuid.Nil {
		return fmt.Errorf("paymentID is empty")
	}

	// Optimistic revision check: a stale writer gets 0 rows instead of
	// silently overwriting a concurrent booking.
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE payments
		 SET refunded_amount = $2, status = $3, gateway_txn_id = $4, gateway_response = $5,
		     failure_reason = $6, processed_at = $7, revision = revision + 1, updated_at = now()
		 WHERE id = $1 AND revision = $8`,
		payment.ID, payment.RefundedAmount, string(payment.Status),
		payment.GatewayTxnID, payment.GatewayResponse, payment.FailureReason, payment.ProcessedAt,
		payment.Revision)
	if err != nil {
		return fmt.Errorf("db.Exec: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		if _, err := r.GetPayment(ctx, payment.ID); err != nil {
			return fmt.Errorf("GetPayment: %w", err)
		}
		return fmt.Errorf("payment changed since read: %w", domain.ErrConcurrencyConflict)
	}

	return nil
}

func scanPaymentRow(row pgx.Row) (domain.Payment, error) {
	var (
		p              domain.Payment
		amount         string
		currencyISO    string
		refundedAmount string
		status         string
		method         string
	)

	err := row.Scan(&p.ID, &p.PaymentRef, &p.OrderID, &p.CustomerID, &amount, &currencyISO, &refundedAmount,
		&status, &method, &p.GatewayTxnID, &p.GatewayResponse, &p.FailureReason,
		&p.Revision, &p.ProcessedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, fmt.Errorf("row.Scan: %w", domain.ErrPaymentNotFound)
		}
		return p, fmt.Errorf("row.Scan: %w", err)
	}

	p.Amount, err = parseMoney(amount, currencyISO)
	if err != nil {
		return p, fmt.Errorf("parseMoney: %w", err)
	}

	p.RefundedAmount, err = parseDecimal(refundedAmount)
	if err != nil {
		return p, fmt.Errorf("parseDecimal: %w", err)
	}

	p.Status, err = domain.ToPaymentStatus(status)
	if err != nil {
		return p, fmt.Errorf("domain.ToPaymentStatus[%s]: %w", status, err)
	}
	p.Method = domain.PaymentMethod(method)

	return p, nil
}
