package txn

import (
	"context"

	"github.com/kislikjeka/coopledger/internal/shared/retry"
	"github.com/kislikjeka/coopledger/pkg/logger"
	"github.com/kislikjeka/coopledger/pkg/metrics"
)

// Runner is the service boundary every domain operation goes through: one
// transaction per attempt, retried under the policy when it is the outermost
// unit, logged and counted per operation name.
type Runner struct {
	tx      Manager
	policy  retry.Policy
	metrics *metrics.LedgerMetrics
	logger  *logger.Logger
}

// NewRunner creates a runner over tx
func NewRunner(tx Manager, policy retry.Policy, log *logger.Logger, m *metrics.LedgerMetrics) *Runner {
	return &Runner{
		tx:      tx,
		policy:  policy,
		metrics: m,
		logger:  log.WithField("component", "txn"),
	}
}

// Run executes fn as the named operation
func (r *Runner) Run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	p := r.policy
	p.OnRetry = func(attempt int, err error) {
		r.metrics.IncRetry(operation)
		r.logger.WithContext(ctx).Warn("retrying operation after transient error",
			"operation", operation,
			"attempt", attempt,
			"error", err,
		)
	}
	return RunWithRetry(ctx, r.tx, p, fn)
}

// Manager returns the underlying transaction manager
func (r *Runner) Manager() Manager {
	return r.tx
}
