package port

import (
	"context"

	"github.com/nikolayk812/fulfillment/internal/domain"
)

type ChargeRequest struct {
	Amount    domain.Money
	Method    domain.PaymentMethod
	CardToken string
}

type ChargeResult struct {
	TransactionID string
	Response      string
}

// PaymentGateway is the external settlement provider. Calls are blocking
// external I/O, implementations must bound them with their own timeout so a
// hung gateway fails fast into domain.GatewayError.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	RefundCharge(ctx context.Context, transactionID string, amount domain.Money) error
}
