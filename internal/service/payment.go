package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nikolayk812/fulfillment/internal/domain"
	"github.com/nikolayk812/fulfillment/internal/metrics"
	"github.com/nikolayk812/fulfillment/internal/notifier"
	"github.com/nikolayk812/fulfillment/internal/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Payments drives the payment lifecycle against the external gateway.
// A gateway failure is absorbed into a failed payment, never surfaced as a
// transport error: the caller gets the payment back and reads its status.
type Payments struct {
	txm     port.TxManager
	gateway port.PaymentGateway
	topics  notifier.Topics
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type ProcessPaymentRequest struct {
	OrderID    uuid.UUID
	CustomerID int64
	Method     domain.PaymentMethod
	CardToken  string
}

func NewPayments(txm port.TxManager, gw port.PaymentGateway, topics notifier.Topics, logger *zap.Logger, m *metrics.Metrics) (*Payments, error) {
	if txm == nil {
		return nil, fmt.Errorf("txm is nil")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Payments{
		txm:     txm,
		gateway: gw,
		topics:  topics,
		logger:  logger,
		metrics: m,
	}, nil
}

// ProcessPayment settles an order through the gateway. The pending payment
// row is persisted before the gateway call so a crash mid-call leaves an
// auditable trace. On success the order advances Pending -> Confirmed in the
// same transaction as the payment update. A failed payment does NOT cancel
// the order automatically.
func (s *Payments) ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (domain.Payment, error) {
	var p domain.Payment

	order, err := s.txm.Store().Orders().GetOrder(ctx, req.OrderID)
	if err != nil {
		return p, fmt.Errorf("orders.GetOrder: %w", err)
	}

	// Only a pending order can be charged, a cancelled or fulfilled order
	// must never reach the gateway.
	if order.Status != domain.OrderStatusPending {
		return p, &domain.RuleError{Entity: "order", State: string(order.Status), Reason: "only a pending order can be charged"}
	}

	// One payment per order.
	_, err = s.txm.Store().Payments().GetPaymentByOrderID(ctx, req.OrderID)
	if err == nil {
		return p, &domain.RuleError{Entity: "payment", State: "", Reason: "payment already exists for order " + req.OrderID.String()}
	}
	if !errors.Is(err, domain.ErrPaymentNotFound) {
		return p, fmt.Errorf("payments.GetPaymentByOrderID: %w", err)
	}

	p = domain.NewPayment(order.ID, req.CustomerID, order.Total, req.Method)
	if err := s.txm.Store().Payments().InsertPayment(ctx, p); err != nil {
		return p, fmt.Errorf("payments.InsertPayment: %w", err)
	}

	result, chargeErr := s.gateway.Charge(ctx, port.ChargeRequest{
		Amount:    order.Total,
		Method:    req.Method,
		CardToken: req.CardToken,
	})
	if chargeErr != nil {
		return s.failPayment(ctx, p, chargeErr)
	}

	if err := p.Process(result.TransactionID, result.Response); err != nil {
		return p, err
	}

	err = s.txm.InTx(ctx, func(st port.Store) error {
		if err := st.Payments().UpdatePayment(ctx, p); err != nil {
			return fmt.Errorf("payments.UpdatePayment: %w", err)
		}

		event := domain.NewPaymentEvent(domain.EventPaymentProcessed, p)
		if err := st.Outbox().InsertEvent(ctx, s.topics.PaymentProcessed, p.ID.String(), event); err != nil {
			return fmt.Errorf("outbox.InsertEvent: %w", err)
		}

		// A confirmed payment advances the order. Conditional on the status
		// read before the gateway call, a concurrent cancellation wins.
		if err := order.Transition(domain.OrderStatusConfirmed); err != nil {
			return err
		}

		if err := st.Orders().UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, order.Status); err != nil {
			return fmt.Errorf("orders.UpdateOrderStatus: %w", err)
		}

		orderEvent := domain.NewOrderEvent(domain.EventOrderStatusUpdated, order)
		if err := st.Outbox().InsertEvent(ctx, s.topics.OrderStatusUpdated, order.ID.String(), orderEvent); err != nil {
			return fmt.Errorf("outbox.InsertEvent: %w", err)
		}

		return nil
	})
	if err != nil {
		return p, fmt.Errorf("txm.InTx: %w", err)
	}

	if s.metrics != nil {
		s.metrics.PaymentsProcessed.Inc()
	}
	s.logger.Info("payment processed",
		zap.String("payment_id", p.ID.String()),
		zap.String("order_id", order.ID.String()),
		zap.String("gateway_txn_id", p.GatewayTxnID))

	return p, nil
}

// RefundPayment books a partial or full refund. The whole load-guard-persist
// sequence runs inside one transaction holding a row lock on the payment, so
// concurrent refunds serialize and the guard always sees the booked total.
// The gateway is never called for an illegal refund.
func (s *Payments) RefundPayment(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal) (domain.Payment, error) {
	var p domain.Payment

	err := s.txm.InTx(ctx, func(st port.Store) error {
		var err error
		p, err = st.Payments().GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("payments.GetPaymentForUpdate: %w", err)
		}

		if err := p.Refund(amount); err != nil {
			return err
		}

		refundMoney := domain.Money{Amount: amount, Currency: p.Amount.Currency}
		if err := s.gateway.RefundCharge(ctx, p.GatewayTxnID, refundMoney); err != nil {
			return fmt.Errorf("gateway.RefundCharge: %w", err)
		}

		if err := st.Payments().UpdatePayment(ctx, p); err != nil {
			return fmt.Errorf("payments.UpdatePayment: %w", err)
		}

		event := domain.NewPaymentEvent(domain.EventPaymentRefunded, p)
		if err := st.Outbox().InsertEvent(ctx, s.topics.PaymentRefunded, p.ID.String(), event); err != nil {
			return fmt.Errorf("outbox.InsertEvent: %w", err)
		}

		return nil
	})
	if err != nil {
		return p, fmt.Errorf("txm.InTx: %w", err)
	}

	if s.metrics != nil {
		s.metrics.Refunds.Inc()
	}
	s.logger.Info("payment refunded",
		zap.String("payment_id", p.ID.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("status", string(p.Status)))

	return p, nil
}

// CancelPayment abandons a payment that never reached the gateway.
func (s *Payments) CancelPayment(ctx context.Context, paymentID uuid.UUID) (domain.Payment, error) {
	var p domain.Payment

	p, err := s.txm.Store().Payments().GetPayment(ctx, paymentID)
	if err != nil {
		return p, fmt.Errorf("payments.GetPayment: %w", err)
	}

	if err := p.Cancel(); err != nil {
		return p, err
	}

	err = s.txm.InTx(ctx, func(st port.Store) error {
		if err := st.Payments().UpdatePayment(ctx, p); err != nil {
			return fmt.Errorf("payments.UpdatePayment: %w", err)
		}

		event := domain.NewPaymentEvent(domain.EventPaymentCancelled, p)
		if err := st.Outbox().InsertEvent(ctx, s.topics.PaymentCancelled, p.ID.String(), event); err != nil {
			return fmt.Errorf("outbox.InsertEvent: %w", err)
		}

		return nil
	})
	if err != nil {
		return p, fmt.Errorf("txm.InTx: %w", err)
	}

	return p, nil
}

// GetPayment is part of the synchronous payment contract but not served yet.
func (s *Payments) GetPayment(_ context.Context, _ uuid.UUID) (domain.Payment, error) {
	return domain.Payment{}, fmt.Errorf("GetPayment: %w", domain.ErrNotImplemented)
}

// GetPaymentByOrderID is part of the synchronous payment contract but not served yet.
func (s *Payments) GetPaymentByOrderID(_ context.Context, _ uuid.UUID) (domain.Payment, error) {
	return domain.Payment{}, fmt.Errorf("GetPaymentByOrderID: %w", domain.ErrNotImplemented)
}

func (s *Payments) failPayment(ctx context.Context, p domain.Payment, cause error) (domain.Payment, error) {
	if err := p.Fail(cause.Error()); err != nil {
		return p, err
	}

	err := s.txm.InTx(ctx, func(st port.Store) error {
		if err := st.Payments().UpdatePayment(ctx, p); err != nil {
			return fmt.Errorf("payments.UpdatePayment: %w", err)
		}

		event := domain.NewPaymentEvent(domain.EventPaymentFailed, p)
		if err := st.Outbox().InsertEvent(ctx, s.topics.PaymentFailed, p.ID.String(), event); err != nil {
			return fmt.Errorf("outbox.InsertEvent: %w", err)
		}

		return nil
	})
	if err != nil {
		return p, fmt.Errorf("txm.InTx: %w", err)
	}

	if s.metrics != nil {
		s.metrics.PaymentsFailed.Inc()
	}
	s.logger.Warn("payment failed",
		zap.String("payment_id", p.ID.String()),
		zap.String("order_id", p.OrderID.String()),
		zap.String("reason", p.FailureReason))

	// The gateway error is recorded on the payment, not propagated.
	return p, nil
}
