package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTicketCode(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		code, err := GenerateTicketCode()
		require.NoError(t, err)
		assert.Len(t, code, TicketCodeLength)

		for _, c := range code {
			assert.Contains(t, ticketCharset, string(c))
		}

		seen[code] = true
	}

	// 100 draws from a 36^6 space should never collide in practice.
	assert.Greater(t, len(seen), 95)
}

func TestGenerateTicketID(t *testing.T) {
	id, err := GenerateTicketID()
	require.NoError(t, err)
	assert.Len(t, id, 10)
	assert.Equal(t, "TKT-", id[:4])
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(4)
	require.NoError(t, err)
	assert.Len(t, code, 8) // hex doubles the byte count
}

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), 5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_ExhaustsBudget(t *testing.T) {
	calls := 0
	wantErr := errors.New("still failing")

	err := RetryWithBackoff(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, 3, time.Minute, func() error {
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_TripsOpenAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 10; i++ {
		cb.Execute(ctx, func() error { return boom })
	}

	err := cb.Execute(ctx, func() error { return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker("test")

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.NoError(t, err)
}
