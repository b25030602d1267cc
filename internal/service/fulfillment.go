package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikolayk812/fulfillment/internal/domain"
	"github.com/nikolayk812/fulfillment/internal/metrics"
	"github.com/nikolayk812/fulfillment/internal/notifier"
	"github.com/nikolayk812/fulfillment/internal/port"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Fulfillment orchestrates stock reservation, order persistence and event
// emission for the create/cancel use cases. Reservations run as independent
// atomic statements so concurrent buyers contend on single conditional
// updates, the database is the only arbiter of who wins a unit of stock.
type Fulfillment struct {
	txm     port.TxManager
	topics  notifier.Topics
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type CreateOrderLine struct {
	ProductID uuid.UUID
	Quantity  int32
}

type CreateOrderRequest struct {
	CustomerID      int64
	ShippingAddress string
	Lines           []CreateOrderLine
}

func NewFulfillment(txm port.TxManager, topics notifier.Topics, logger *zap.Logger, m *metrics.Metrics) (*Fulfillment, error) {
	if txm == nil {
		return nil, fmt.Errorf("txm is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fulfillment{
		txm:     txm,
		topics:  topics,
		logger:  logger,
		metrics: m,
	}, nil
}

// CreateOrder reserves every line in submitted order, snapshots unit prices
// at reservation time and persists the pending order together with its
// outbox events in one transaction. A failed reservation compensates the
// already-reserved prefix, an order never silently consumes stock for items
// that are not billed.
func (s *Fulfillment) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	var o domain.Order

	lines := lo.Map(req.Lines, func(l CreateOrderLine, _ int) domain.OrderLine {
		return domain.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity}
	})

	o, err := domain.NewOrder(req.CustomerID, req.ShippingAddress, lines)
	if err != nil {
		return o, fmt.Errorf("domain.NewOrder: %w", err)
	}

	products := s.txm.Store().Products()

	var (
		reserved    []domain.OrderLine
		stockEvents []domain.StockEvent
	)

	for i := range o.Lines {
		line := &o.Lines[i]

		ok, err := products.Reserve(ctx, line.ProductID, line.Quantity)
		if err != nil {
			s.compensate(ctx, reserved)
			return o, fmt.Errorf("products.Reserve: %w", err)
		}

		if !ok {
			s.compensate(ctx, reserved)
			if s.metrics != nil {
				s.metrics.ReservationFailed.Inc()
			}
			return o, &domain.InsufficientStockError{ProductID: line.ProductID, Quantity: line.Quantity}
		}

		reserved = append(reserved, *line)

		product, err := products.GetProduct(ctx, line.ProductID)
		if err != nil {
			s.compensate(ctx, reserved)
			return o, fmt.Errorf("products.GetProduct: %w", err)
		}

		line.UnitPrice = product.Price
		stockEvents = append(stockEvents, domain.NewStockEvent(product.ID, product.Quantity))
	}

	if err := o.RecomputeTotal(); err != nil {
		s.compensate(ctx, reserved)
		return o, fmt.Errorf("o.RecomputeTotal: %w", err)
	}

	err = s.txm.InTx(ctx, func(st port.Store) error {
		if err := st.Orders().InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("orders.InsertOrder: %w", err)
		}

		event := domain.NewOrderEvent(domain.EventOrderCreated, o)
		if err := st.Outbox().InsertEvent(ctx, s.topics.OrderCreated, o.ID.String(), event); err != nil {
			return fmt.Errorf("outbox.InsertEvent: %w", err)
		}

		for _, se := range stockEvents {
			if err := st.Outbox().InsertEvent(ctx, s.topics.ProductStock, se.ProductID, se); err != nil {
				return fmt.Errorf("outbox.InsertEvent: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		s.compensate(ctx, reserved)
		return o, fmt.Errorf("txm.InTx: %w", err)
	}

	if s.metrics != nil {
		s.metrics.OrdersCreated.Inc()
	}
	s.logger.Info("order created",
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.OrderNumber),
		zap.Int64("customer_id", o.CustomerID))

	return o, nil
}

// CancelOrder reverses stock for every line and transitions the order, all
// within one transaction. Legal only while CanCancel holds. The status write
// is conditional on the status read above, so of two racing cancellations
// exactly one restores stock and the other aborts with a conflict.
func (s *Fulfillment) CancelOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	var o domain.Order

	o, err := s.txm.Store().Orders().GetOrder(ctx, orderID)
	if err != nil {
		return o, fmt.Errorf("orders.GetOrder: %w", err)
	}

	from := o.Status
	if err := o.Cancel(); err != nil {
		return o, err
	}

	err = s.txm.InTx(ctx, func(st port.Store) error {
		// Must come before the restores: a lost status race aborts the
		// transaction before any stock moves.
		if err := st.Orders().UpdateOrderStatus(ctx, o.ID, from, o.Status); err != nil {
			return fmt.Errorf("orders.UpdateOrderStatus: %w", err)
		}

		event := domain.NewOrderEvent(domain.EventOrderCancelled, o)
		if err := st.Outbox().InsertEvent(ctx, s.topics.OrderCancelled, o.ID.String(), event); err != nil {
			return fmt.Errorf("outbox.InsertEvent: %w", err)
		}

		for _, line := range o.Lines {
			if err := st.Products().Restore(ctx, line.ProductID, line.Quantity); err != nil {
				return fmt.Errorf("products.Restore: %w", err)
			}

			product, err := st.Products().GetProduct(ctx, line.ProductID)
			if err != nil {
				return fmt.Errorf("products.GetProduct: %w", err)
			}

			se := domain.NewStockEvent(product.ID, product.Quantity)
			if err := st.Outbox().InsertEvent(ctx, s.topics.ProductStock, se.ProductID, se); err != nil {
				return fmt.Errorf("outbox.InsertEvent: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return o, fmt.Errorf("txm.InTx: %w", err)
	}

	if s.metrics != nil {
		s.metrics.OrdersCancelled.Inc()
	}
	s.logger.Info("order cancelled", zap.String("order_id", o.ID.String()))

	return o, nil
}

// AdvanceOrder moves an order along the fulfillment edges
// (confirmed/processing/shipped/delivered/completed). Cancellation must go
// through CancelOrder so stock is restored.
func (s *Fulfillment) AdvanceOrder(ctx context.Context, orderID uuid.UUID, next domain.OrderStatus) (domain.Order, error) {
	var o domain.Order

	if next == domain.OrderStatusCancelled {
		return o, &domain.RuleError{Entity: "order", State: string(next), Reason: "cancellation goes through the cancel operation"}
	}

	o, err := s.txm.Store().Orders().GetOrder(ctx, orderID)
	if err != nil {
		return o, fmt.Errorf("orders.GetOrder: %w", err)
	}

	from := o.Status
	if err := o.Transition(next); err != nil {
		return o, err
	}

	err = s.txm.InTx(ctx, func(st port.Store) error {
		if err := st.Orders().UpdateOrderStatus(ctx, o.ID, from, o.Status); err != nil {
			return fmt.Errorf("orders.UpdateOrderStatus: %w", err)
		}

		eventType := domain.EventOrderStatusUpdated
		if o.Status == domain.OrderStatusCompleted {
			eventType = domain.EventOrderCompleted
		}

		event := domain.NewOrderEvent(eventType, o)
		topic := s.topics.ForOrderStatus(o.Status)
		if err := st.Outbox().InsertEvent(ctx, topic, o.ID.String(), event); err != nil {
			return fmt.Errorf("outbox.InsertEvent: %w", err)
		}

		return nil
	})
	if err != nil {
		return o, fmt.Errorf("txm.InTx: %w", err)
	}

	return o, nil
}

func (s *Fulfillment) GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	return s.txm.Store().Orders().GetOrder(ctx, orderID)
}

// compensate restores exactly the reserved subset, in reverse order. Failures
// are logged and swallowed, there is nothing better to do mid-compensation.
func (s *Fulfillment) compensate(ctx context.Context, reserved []domain.OrderLine) {
	products := s.txm.Store().Products()

	for i := len(reserved) - 1; i >= 0; i-- {
		line := reserved[i]
		if err := products.Restore(ctx, line.ProductID, line.Quantity); err != nil {
			s.logger.Error("compensating restore failed",
				zap.String("product_id", line.ProductID.String()),
				zap.Int32("quantity", line.Quantity),
				zap.Error(err))
		}
	}
}
