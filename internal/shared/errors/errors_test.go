package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSentinel = errors.New("account not found")

func TestAppError_WrapsSentinel(t *testing.T) {
	err := fmt.Errorf("resolve cash account: %w", NotFound("account", errSentinel))

	assert.True(t, errors.Is(err, errSentinel))
	assert.True(t, IsAppError(err))
	assert.Equal(t, ErrCodeNotFound, GetAppError(err).Code)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "validation", err: Validation("amount must be positive", nil), want: KindValidation},
		{name: "unbalanced journal", err: LedgerUnbalanced("debits 10 != credits 9", nil), want: KindValidation},
		{name: "minimum balance", err: MinimumBalanceViolation("below minimum", nil), want: KindState},
		{name: "invalid transition", err: InvalidTransition("pending -> closed", nil), want: KindState},
		{name: "database", err: DatabaseError("insert failed", nil, true), want: KindInfrastructure},
		{name: "plain error", err: errors.New("boom"), want: KindInfrastructure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := DatabaseError("serialization failure", errors.New("40001"), true)
	assert.True(t, IsRetryable(retryable))
	assert.True(t, IsRetryable(fmt.Errorf("deposit: %w", retryable)))

	// A retryable cause wrapped by a non-retryable AppError is still found.
	assert.True(t, IsRetryable(Internal("post journal entry", retryable)))

	assert.False(t, IsRetryable(DatabaseError("unique violation", nil, false)))
	assert.False(t, IsRetryable(Validation("bad amount", nil)))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestHasCode(t *testing.T) {
	err := Internal("withdraw", InsufficientBalance("balance 10, requested 20", nil))
	assert.True(t, HasCode(err, ErrCodeInsufficientBalance))
	assert.True(t, HasCode(err, ErrCodeInternal))
	assert.False(t, HasCode(err, ErrCodeNotFound))
}

func TestWithDetail(t *testing.T) {
	err := MinimumBalanceViolation("resulting balance below minimum", nil).
		WithDetail("balance", "6000.00").
		WithDetail("requested", "4800.00")

	assert.Equal(t, "6000.00", err.Details["balance"])
	assert.Equal(t, "4800.00", err.Details["requested"])
	assert.Contains(t, err.Error(), ErrCodeMinimumBalanceViolation)
}
