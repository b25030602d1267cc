package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nikolayk812/fulfillment/internal/domain"
	"github.com/nikolayk812/fulfillment/internal/port"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const defaultTimeout = 10 * time.Second

type stripeGateway struct {
	api     *client.API
	timeout time.Duration
}

// NewStripe wraps the Stripe API behind the gateway port. Every call is
// bounded by the configured timeout, a hung gateway fails fast into
// domain.GatewayError instead of blocking the worker.
func NewStripe(apiKey string, timeout time.Duration) (port.PaymentGateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("apiKey is empty")
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	api := &client.API{}
	api.Init(apiKey, nil)

	return &stripeGateway{api: api, timeout: timeout}, nil
}

func (g *stripeGateway) Charge(ctx context.Context, req port.ChargeRequest) (port.ChargeResult, error) {
	var res port.ChargeResult

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Params:        stripe.Params{Context: ctx},
		Amount:        stripe.Int64(minorUnits(req.Amount)),
		Currency:      stripe.String(strings.ToLower(req.Amount.Currency.String())),
		PaymentMethod: stripe.String(req.CardToken),
		Confirm:       stripe.Bool(true),
	}

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return res, &domain.GatewayError{Op: "charge", Err: err}
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return res, &domain.GatewayError{Op: "charge", Err: fmt.Errorf("payment intent status %s", intent.Status)}
	}

	return port.ChargeResult{
		TransactionID: intent.ID,
		Response:      string(intent.Status),
	}, nil
}

func (g *stripeGateway) RefundCharge(ctx context.Context, transactionID string, amount domain.Money) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(transactionID),
		Amount:        stripe.Int64(minorUnits(amount)),
	}

	if _, err := g.api.Refunds.New(params); err != nil {
		return &domain.GatewayError{Op: "refund", Err: err}
	}

	return nil
}

// minorUnits converts a 2-decimal monetary amount to gateway minor units.
func minorUnits(m domain.Money) int64 {
	return m.Amount.Shift(2).IntPart()
}
