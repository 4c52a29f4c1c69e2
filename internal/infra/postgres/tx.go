package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kislikjeka/coopledger/pkg/logger"
)

// Transactions are stored in context so repositories join whatever unit the
// outermost service opened.

type txContextKey struct{}

type txState struct {
	tx          pgx.Tx
	afterCommit []func(ctx context.Context)
}

// TxManager implements txn.Manager on a pgx pool
type TxManager struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewTxManager creates a transaction manager
func NewTxManager(pool *pgxpool.Pool, log *logger.Logger) *TxManager {
	return &TxManager{
		pool:   pool,
		logger: log.WithField("component", "postgres_tx"),
	}
}

// WithinTx runs fn in a transaction, joining the one in ctx if present
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if stateFrom(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err, "failed to begin transaction")
	}

	st := &txState{tx: tx}
	txCtx := context.WithValue(ctx, txContextKey{}, st)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			m.logger.WithContext(ctx).Error("rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(err, "failed to commit transaction")
	}

	for _, cb := range st.afterCommit {
		cb(ctx)
	}
	return nil
}

// WithinSavepoint runs fn under a savepoint. A failure rolls back to the
// savepoint and drops any after-commit callbacks fn registered; the outer
// transaction stays usable.
func (m *TxManager) WithinSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	parent := stateFrom(ctx)
	if parent == nil {
		return m.WithinTx(ctx, fn)
	}

	// Begin on a pgx.Tx creates a savepoint
	sp, err := parent.tx.Begin(ctx)
	if err != nil {
		return classify(err, "failed to create savepoint")
	}

	st := &txState{tx: sp}
	spCtx := context.WithValue(ctx, txContextKey{}, st)

	if err := fn(spCtx); err != nil {
		if rbErr := sp.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			m.logger.WithContext(ctx).Error("rollback to savepoint failed", "error", rbErr)
		}
		return err
	}

	if err := sp.Commit(ctx); err != nil {
		return classify(err, "failed to release savepoint")
	}
	parent.afterCommit = append(parent.afterCommit, st.afterCommit...)
	return nil
}

// AfterCommit defers fn until the outermost transaction commits
func (m *TxManager) AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	st := stateFrom(ctx)
	if st == nil {
		fn(ctx)
		return
	}
	st.afterCommit = append(st.afterCommit, fn)
}

// InTx reports whether ctx carries a transaction
func (m *TxManager) InTx(ctx context.Context) bool {
	return stateFrom(ctx) != nil
}

func stateFrom(ctx context.Context) *txState {
	st, _ := ctx.Value(txContextKey{}).(*txState)
	return st
}

// querier is the subset of pgx shared by pools and transactions
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// getQueryer returns the transaction if one exists in context, otherwise the pool
func getQueryer(ctx context.Context, pool *pgxpool.Pool) querier {
	if st := stateFrom(ctx); st != nil {
		return st.tx
	}
	return pool
}

// lockClause appends FOR UPDATE only inside a transaction, where it has effect
func lockClause(ctx context.Context, forUpdate bool) string {
	if forUpdate && stateFrom(ctx) != nil {
		return " FOR UPDATE"
	}
	return ""
}
