package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikolayk812/fulfillment/internal/domain"
)

const conflictRetries = 3

// withConflictRetry re-runs an idempotent read-then-write a bounded number of
// times when it loses an optimistic revision race, then surfaces the conflict.
func withConflictRetry(ctx context.Context, fn func() error) error {
	var err error

	for attempt := 0; attempt < conflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}

		err = fn()
		if err == nil || !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
	}

	return fmt.Errorf("after %d attempts: %w", conflictRetries, err)
}
