package notifier

import "github.com/nikolayk812/fulfillment/internal/domain"

// Topics maps each event type to its broker topic. Passed explicitly at
// construction instead of package-level constants so deployments can rename
// topics without touching publishers.
type Topics struct {
	OrderCreated       string
	OrderStatusUpdated string
	OrderCancelled     string
	OrderCompleted     string
	PaymentProcessed   string
	PaymentFailed      string
	PaymentRefunded    string
	PaymentCancelled   string
	ProductStock       string
}

func DefaultTopics() Topics {
	return Topics{
		OrderCreated:       domain.EventOrderCreated,
		OrderStatusUpdated: domain.EventOrderStatusUpdated,
		OrderCancelled:     domain.EventOrderCancelled,
		OrderCompleted:     domain.EventOrderCompleted,
		PaymentProcessed:   domain.EventPaymentProcessed,
		PaymentFailed:      domain.EventPaymentFailed,
		PaymentRefunded:    domain.EventPaymentRefunded,
		PaymentCancelled:   domain.EventPaymentCancelled,
		ProductStock:       domain.EventProductStockUpdate,
	}
}

// ForOrderStatus picks the topic for an order status change, completion and
// cancellation have their own single-purpose topics.
func (t Topics) ForOrderStatus(status domain.OrderStatus) string {
	switch status {
	case domain.OrderStatusCompleted:
		return t.OrderCompleted
	case domain.OrderStatusCancelled:
		return t.OrderCancelled
	default:
		return t.OrderStatusUpdated
	}
}
