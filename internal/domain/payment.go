package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// Payment tracks the money side of a single order, 1:1 by order id.
// RefundedAmount only ever grows and never exceeds the authorized amount,
// the status is fully determined by the refund progression plus the explicit
// terminal transitions.
type Payment struct {
	ID              uuid.UUID
	PaymentRef      string
	OrderID         uuid.UUID
	CustomerID      int64
	Amount          Money
	RefundedAmount  decimal.Decimal
	Status          PaymentStatus
	Method          PaymentMethod
	GatewayTxnID    string
	GatewayResponse string
	FailureReason   string
	Revision        int64

	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewPayment(orderID uuid.UUID, customerID int64, amount Money, method PaymentMethod) Payment {
	return Payment{
		ID:             uuid.New(),
		PaymentRef:     "PAY-" + ulid.Make().String(),
		OrderID:        orderID,
		CustomerID:     customerID,
		Amount:         amount,
		RefundedAmount: decimal.Zero,
		Status:         PaymentStatusPending,
		Method:         method,
	}
}

// Process records a successful gateway authorization. Legal only from Pending.
func (p *Payment) Process(transactionID, gatewayResponse string) error {
	if err := p.transition(PaymentStatusCompleted); err != nil {
		return err
	}

	now := time.Now().UTC()
	p.GatewayTxnID = transactionID
	p.GatewayResponse = gatewayResponse
	p.RefundedAmount = decimal.Zero
	p.ProcessedAt = &now
	return nil
}

// Fail records a gateway rejection. Legal only from Pending.
func (p *Payment) Fail(reason string) error {
	if err := p.transition(PaymentStatusFailed); err != nil {
		return err
	}

	p.FailureReason = reason
	return nil
}

// Cancel abandons a payment that never reached the gateway. Legal only from Pending.
func (p *Payment) Cancel() error {
	if p.Status != PaymentStatusPending {
		return &TransitionError{Entity: "payment", From: string(p.Status), To: string(PaymentStatusCancelled)}
	}

	p.Status = PaymentStatusCancelled
	return nil
}

// Refund books a partial or full refund. The refunded amount grows
// monotonically and the status follows it: Refunded once the full authorized
// amount is returned, PartiallyRefunded otherwise.
func (p *Payment) Refund(amount decimal.Decimal) error {
	if p.Status != PaymentStatusCompleted && p.Status != PaymentStatusPartiallyRefunded {
		return &TransitionError{Entity: "payment", From: string(p.Status), To: string(PaymentStatusRefunded)}
	}

	if !amount.IsPositive() {
		return &RuleError{Entity: "payment", State: string(p.Status), Reason: "refund amount must be positive"}
	}

	remaining := p.RemainingRefundable()
	if !remaining.IsPositive() {
		return &RuleError{Entity: "payment", State: string(p.Status), Reason: "already fully refunded"}
	}

	if amount.GreaterThan(remaining) {
		return &RuleError{
			Entity: "payment",
			State:  string(p.Status),
			Reason: "refund amount " + amount.StringFixed(2) + " exceeds remaining refundable " + remaining.StringFixed(2),
		}
	}

	p.RefundedAmount = p.RefundedAmount.Add(amount)
	if p.RefundedAmount.Equal(p.Amount.Amount) {
		p.Status = PaymentStatusRefunded
	} else {
		p.Status = PaymentStatusPartiallyRefunded
	}

	return nil
}

func (p *Payment) RemainingRefundable() decimal.Decimal {
	return p.Amount.Amount.Sub(p.RefundedAmount)
}

func (p *Payment) transition(next PaymentStatus) error {
	if !p.Status.canTransitionTo(next) {
		return &TransitionError{Entity: "payment", From: string(p.Status), To: string(next)}
	}

	p.Status = next
	return nil
}
