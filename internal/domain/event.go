package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type tags double as default topic names, one single-purpose topic
// per event type so consumers subscribe only to what they need.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusUpdated = "order.status.updated"
	EventOrderCancelled     = "order.cancelled"
	EventOrderCompleted     = "order.completed"
	EventPaymentProcessed   = "payment.processed"
	EventPaymentFailed      = "payment.failed"
	EventPaymentRefunded    = "payment.refunded"
	EventPaymentCancelled   = "payment.cancelled"
	EventProductStockUpdate = "product.stock.updated"
)

// OrderEvent is a flat copy of the externally relevant order fields,
// never a live reference into the aggregate.
type OrderEvent struct {
	EventType   string    `json:"eventType"`
	EventID     string    `json:"eventId"`
	Timestamp   time.Time `json:"timestamp"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	CustomerID  int64     `json:"customerId"`
	Status      string    `json:"status"`
	TotalAmount string    `json:"totalAmount"`
	Currency    string    `json:"currency"`
}

func NewOrderEvent(eventType string, o Order) OrderEvent {
	return OrderEvent{
		EventType:   eventType,
		EventID:     uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		OrderID:     o.ID.String(),
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		Status:      string(o.Status),
		TotalAmount: o.Total.Amount.StringFixed(2),
		Currency:    o.Total.Currency.String(),
	}
}

type PaymentEvent struct {
	EventType      string    `json:"eventType"`
	EventID        string    `json:"eventId"`
	Timestamp      time.Time `json:"timestamp"`
	PaymentID      string    `json:"paymentId"`
	PaymentRef     string    `json:"paymentRef"`
	OrderID        string    `json:"orderId"`
	CustomerID     int64     `json:"customerId"`
	Amount         string    `json:"amount"`
	RefundedAmount string    `json:"refundedAmount"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	PaymentMethod  string    `json:"paymentMethod"`
}

func NewPaymentEvent(eventType string, p Payment) PaymentEvent {
	return PaymentEvent{
		EventType:      eventType,
		EventID:        uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		PaymentID:      p.ID.String(),
		PaymentRef:     p.PaymentRef,
		OrderID:        p.OrderID.String(),
		CustomerID:     p.CustomerID,
		Amount:         p.Amount.Amount.StringFixed(2),
		RefundedAmount: p.RefundedAmount.StringFixed(2),
		Currency:       p.Amount.Currency.String(),
		Status:         string(p.Status),
		PaymentMethod:  string(p.Method),
	}
}

type StockEvent struct {
	EventType     string    `json:"eventType"`
	EventID       string    `json:"eventId"`
	Timestamp     time.Time `json:"timestamp"`
	ProductID     string    `json:"productId"`
	StockQuantity int32     `json:"stockQuantity"`
}

func NewStockEvent(productID uuid.UUID, quantity int32) StockEvent {
	return StockEvent{
		EventType:     EventProductStockUpdate,
		EventID:       uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		ProductID:     productID.String(),
		StockQuantity: quantity,
	}
}

// OutboxRecord is an event envelope persisted in the same transaction as the
// state change it describes, published asynchronously by the relay.
type OutboxRecord struct {
	ID      int64
	EventID string
	Topic   string
	Key     string
	Payload json.RawMessage

	CreatedAt time.Time
	SentAt    *time.Time
}
