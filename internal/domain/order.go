package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

const (
	minLineQuantity = 1
	maxLineQuantity = 100
)

// Order is the aggregate root. It exclusively owns its lines, lines hold an
// immutable unit price snapshot captured at reservation time, never a live
// reference into Product. Cancellation is a status, orders are never deleted.
type Order struct {
	ID              uuid.UUID
	OrderNumber     string
	CustomerID      int64
	Status          OrderStatus
	Total           Money
	ShippingAddress string
	Lines           []OrderLine

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderLine struct {
	ProductID uuid.UUID
	Quantity  int32
	UnitPrice Money
	Subtotal  Money
}

func (l OrderLine) validate() error {
	if l.ProductID == uuid.Nil {
		return fmt.Errorf("productID is empty")
	}

	if l.Quantity < minLineQuantity || l.Quantity > maxLineQuantity {
		return fmt.Errorf("quantity %d is out of range [%d,%d]", l.Quantity, minLineQuantity, maxLineQuantity)
	}

	return nil
}

// NewOrder builds a pending order with a freshly generated order number.
// Unit prices are snapshot later, at reservation time, via RecomputeTotal.
func NewOrder(customerID int64, shippingAddress string, lines []OrderLine) (Order, error) {
	var o Order

	if customerID <= 0 {
		return o, fmt.Errorf("customerID must be positive")
	}

	if len(lines) == 0 {
		return o, fmt.Errorf("no lines in order")
	}

	for i, line := range lines {
		if err := line.validate(); err != nil {
			return o, fmt.Errorf("line %d: %w", i, err)
		}
	}

	return Order{
		ID:              uuid.New(),
		OrderNumber:     NewOrderNumber(),
		CustomerID:      customerID,
		Status:          OrderStatusPending,
		ShippingAddress: shippingAddress,
		Lines:           lines,
	}, nil
}

// NewOrderNumber generates a globally unique, lexicographically sortable
// order number. It is assigned once at creation and immutable thereafter.
func NewOrderNumber() string {
	return "ORD-" + ulid.Make().String()
}

// Transition moves the order along one edge of the lifecycle table,
// any other edge fails and leaves the status unchanged.
func (o *Order) Transition(next OrderStatus) error {
	if !o.Status.canTransitionTo(next) {
		return &TransitionError{Entity: "order", From: string(o.Status), To: string(next)}
	}

	o.Status = next
	return nil
}

// CanCancel is true only before fulfillment work has started.
func (o *Order) CanCancel() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}

func (o *Order) Cancel() error {
	if !o.CanCancel() {
		return &TransitionError{Entity: "order", From: string(o.Status), To: string(OrderStatusCancelled)}
	}

	o.Status = OrderStatusCancelled
	return nil
}

// RecomputeTotal derives each line subtotal from its price snapshot and sets
// the order total to their sum. A client-supplied total is never trusted.
func (o *Order) RecomputeTotal() error {
	if len(o.Lines) == 0 {
		return fmt.Errorf("no lines in order")
	}

	total := Money{
		Amount:   decimal.Zero,
		Currency: o.Lines[0].UnitPrice.Currency,
	}

	for i := range o.Lines {
		line := &o.Lines[i]
		line.Subtotal = line.UnitPrice.Mul(line.Quantity)

		sum, err := total.Add(line.Subtotal)
		if err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
		total = sum
	}

	o.Total = total
	return nil
}
