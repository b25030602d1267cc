package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrBusinessRule is the common ancestor of every legal-but-rejected
	// operation: illegal state transitions, insufficient stock, refunds
	// exceeding the remaining refundable amount.
	ErrBusinessRule = errors.New("business rule violation")

	// ErrConcurrencyConflict signals an optimistic revision mismatch,
	// the caller should reload and retry.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	ErrNotImplemented = errors.New("not implemented")
)

// TransitionError reports an attempt to move a state machine along an edge
// that is not in its transition table.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: illegal transition from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrBusinessRule }

// RuleError reports a guard violation on an operation that is not a plain
// status transition, e.g. refunding more than the remaining amount.
type RuleError struct {
	Entity string
	State  string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s in state %s: %s", e.Entity, e.State, e.Reason)
}

func (e *RuleError) Unwrap() error { return ErrBusinessRule }

// InsufficientStockError is the normal business outcome of losing a stock
// race, not a system error.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Quantity  int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s, requested %d", e.ProductID, e.Quantity)
}

func (e *InsufficientStockError) Unwrap() error { return ErrBusinessRule }

// GatewayError wraps a failure of the external payment gateway. It is
// absorbed into a failed payment by the caller, never propagated as a crash.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
