package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kislikjeka/coopledger/internal/shared/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestDo_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperrors.DatabaseError("deadlock detected", nil, true)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		return apperrors.DatabaseError("serialization failure", nil, true)
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_DoesNotRetryValidationErrors(t *testing.T) {
	calls := 0
	want := apperrors.Validation("amount must be positive", nil)

	err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		return want
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, want))
}

func TestDo_SingleAttemptPolicy(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 1}, func(ctx context.Context) error {
		calls++
		return apperrors.DatabaseError("conn reset", nil, true)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_HonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Do(ctx, Policy{MaxAttempts: 10, InitialInterval: 50 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		cancel()
		return apperrors.DatabaseError("deadlock detected", nil, true)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
