package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/shared/txn/txntest"
	"github.com/kislikjeka/coopledger/pkg/logger"
)

func TestEmitter_PublishesAfterCommit(t *testing.T) {
	ctx := context.Background()
	tx := txntest.New()
	rec := &events.Recorder{}
	emitter := events.NewEmitter(tx, rec, "", logger.Nop(), nil)

	memberID := uuid.New()
	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		emitter.Emit(ctx, events.Event{
			Type:     events.TypeDeposit,
			MemberID: memberID,
			Amount:   decimal.NewFromInt(1000),
			IsCash:   true,
		})
		assert.Empty(t, rec.Events(), "nothing is published before commit")
		return nil
	})
	require.NoError(t, err)

	got := rec.Events()
	require.Len(t, got, 1)
	assert.Equal(t, events.TypeDeposit, got[0].Type)
	assert.Equal(t, "NPR", got[0].Currency)
	assert.Equal(t, "deposit", got[0].TransactionType)
	assert.NotEqual(t, uuid.Nil, got[0].ID)
	assert.False(t, got[0].OccurredOn.IsZero())
	assert.True(t, got[0].IsCash)
}

func TestEmitter_DroppedOnRollback(t *testing.T) {
	ctx := context.Background()
	tx := txntest.New()
	rec := &events.Recorder{}
	emitter := events.NewEmitter(tx, rec, "NPR", logger.Nop(), nil)

	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		emitter.Emit(ctx, events.Event{Type: events.TypeWithdrawal})
		return errors.New("posting failed")
	})
	require.Error(t, err)
	assert.Empty(t, rec.Events())
}

func TestEmitter_PublishFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	tx := txntest.New()
	failing := events.PublisherFunc(func(ctx context.Context, e events.Event) error {
		return errors.New("broker down")
	})
	emitter := events.NewEmitter(tx, failing, "NPR", logger.Nop(), nil)

	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		emitter.Emit(ctx, events.Event{Type: events.TypeSharePurchase})
		return nil
	})
	assert.NoError(t, err)
}

func TestEmitter_PublisherPanicIsContained(t *testing.T) {
	tx := txntest.New()
	panicking := events.PublisherFunc(func(ctx context.Context, e events.Event) error {
		panic("boom")
	})
	emitter := events.NewEmitter(tx, panicking, "NPR", logger.Nop(), nil)

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), events.Event{Type: events.TypeDeposit})
	})
}

func TestBus_Publish(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus()

	var deposits, all int
	bus.Subscribe(events.TypeDeposit, func(ctx context.Context, e events.Event) error {
		deposits++
		return nil
	})
	bus.SubscribeAll(func(ctx context.Context, e events.Event) error {
		all++
		return errors.New("audit sink unavailable")
	})

	err := bus.Publish(ctx, events.Event{Type: events.TypeDeposit})
	assert.Error(t, err)
	assert.Error(t, bus.Publish(ctx, events.Event{Type: events.TypeLoanRepayment}))

	assert.Equal(t, 1, deposits)
	assert.Equal(t, 2, all)
}

func TestFanout_Publish(t *testing.T) {
	ctx := context.Background()
	a := &events.Recorder{}
	b := &events.Recorder{}
	broken := events.PublisherFunc(func(ctx context.Context, e events.Event) error {
		return errors.New("down")
	})

	err := events.Fanout{a, broken, b}.Publish(ctx, events.Event{Type: events.TypeDeposit})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publisher 1")
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}
