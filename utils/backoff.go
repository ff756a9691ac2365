package utils

import (
	"context"
	"time"
)

// RetryWithBackoff runs fn up to attempts times, sleeping base*2^n between
// tries. The last error is returned when the budget is spent. The context
// cancels waiting between attempts but never interrupts a running fn.
func RetryWithBackoff(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error

	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}

		if i == attempts-1 {
			break
		}

		wait := base << uint(i)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return err
}
