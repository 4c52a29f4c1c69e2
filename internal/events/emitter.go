package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/shared/txn"
	"github.com/kislikjeka/coopledger/pkg/logger"
	"github.com/kislikjeka/coopledger/pkg/metrics"
	"github.com/kislikjeka/coopledger/pkg/money"
)

// DefaultPublishTimeout bounds a single publish after commit
const DefaultPublishTimeout = 2 * time.Second

// Emitter publishes events once the surrounding transaction has committed
type Emitter struct {
	tx        txn.Manager
	publisher Publisher
	currency  string
	timeout   time.Duration
	metrics   *metrics.LedgerMetrics
	logger    *logger.Logger
	now       func() time.Time
}

// NewEmitter creates an emitter. An empty currency falls back to money.DefaultCurrency.
func NewEmitter(tx txn.Manager, publisher Publisher, currency string, log *logger.Logger, m *metrics.LedgerMetrics) *Emitter {
	if currency == "" {
		currency = money.DefaultCurrency
	}
	return &Emitter{
		tx:        tx,
		publisher: publisher,
		currency:  currency,
		timeout:   DefaultPublishTimeout,
		metrics:   m,
		logger:    log.WithField("component", "events"),
		now:       time.Now,
	}
}

// Emit schedules event for publication after commit. It never returns an
// error; a rolled back transaction discards the event.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil || e.publisher == nil {
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Currency == "" {
		event.Currency = e.currency
	}
	if event.OccurredOn.IsZero() {
		event.OccurredOn = e.now().UTC()
	}
	if event.TransactionType == "" {
		event.TransactionType = string(event.Type)
	}

	e.tx.AfterCommit(ctx, func(ctx context.Context) {
		e.publish(ctx, event)
	})
}

func (e *Emitter) publish(ctx context.Context, event Event) {
	// The request may already be finished; keep its values, drop its deadline
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			e.metrics.IncEventFailure(string(event.Type))
			e.logger.WithContext(ctx).Error("event publisher panicked",
				"event_type", event.Type,
				"event_id", event.ID,
				"panic", p,
			)
		}
	}()

	if err := e.publisher.Publish(pubCtx, event); err != nil {
		e.metrics.IncEventFailure(string(event.Type))
		e.logger.WithContext(ctx).Warn("failed to publish event",
			"event_type", event.Type,
			"event_id", event.ID,
			"tenant_id", event.TenantID,
			"transaction_id", event.TransactionID,
			"error", err,
		)
		return
	}

	e.logger.WithContext(ctx).Debug("event published",
		"event_type", event.Type,
		"event_id", event.ID,
	)
}
