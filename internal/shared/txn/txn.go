// Package txn carries a database transaction through context.Context so that
// ledger postings, sub-ledger mutations and workflow history share one atomic
// unit regardless of which service opened it.
package txn

import (
	"context"

	"github.com/kislikjeka/coopledger/internal/shared/retry"
)

// Manager opens and joins transactions stored in a context.
type Manager interface {
	// WithinTx runs fn inside a transaction. If ctx already carries one, fn
	// joins it and commit/rollback is left to the outermost caller.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	// WithinSavepoint runs fn under a savepoint of the current transaction so a
	// failure inside fn can be discarded without aborting the outer unit.
	// Without a transaction it behaves like WithinTx.
	WithinSavepoint(ctx context.Context, fn func(ctx context.Context) error) error

	// AfterCommit registers fn to run once the outermost transaction commits.
	// Callbacks are dropped on rollback. Without a transaction fn runs at once.
	AfterCommit(ctx context.Context, fn func(ctx context.Context))

	// InTx reports whether ctx carries a transaction.
	InTx(ctx context.Context) bool
}

// RunWithRetry runs fn in a transaction, retrying the whole unit on retryable
// infrastructure errors. Joined transactions are never retried here; the
// outermost boundary owns that decision.
func RunWithRetry(ctx context.Context, m Manager, p retry.Policy, fn func(ctx context.Context) error) error {
	if m.InTx(ctx) {
		return m.WithinTx(ctx, fn)
	}
	return retry.Do(ctx, p, func(ctx context.Context) error {
		return m.WithinTx(ctx, fn)
	})
}
