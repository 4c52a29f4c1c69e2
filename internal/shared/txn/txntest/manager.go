// Package txntest provides an in-memory txn.Manager for unit tests.
package txntest

import (
	"context"
	"sync"
)

type ctxKey struct{}

type state struct {
	afterCommit []func(ctx context.Context)
}

// Manager mimics the postgres transaction manager: nested calls join the outer
// unit and after-commit callbacks fire only when the outermost fn succeeds.
// It cannot undo writes made by fakes, so tests assert on Commits/Rollbacks.
type Manager struct {
	mu        sync.Mutex
	Commits   int
	Rollbacks int
	Savepoint int
}

// New returns a ready Manager.
func New() *Manager {
	return &Manager{}
}

func (m *Manager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.InTx(ctx) {
		return fn(ctx)
	}

	st := &state{}
	txCtx := context.WithValue(ctx, ctxKey{}, st)
	if err := fn(txCtx); err != nil {
		m.mu.Lock()
		m.Rollbacks++
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.Commits++
	m.mu.Unlock()

	for _, cb := range st.afterCommit {
		cb(ctx)
	}
	return nil
}

func (m *Manager) WithinSavepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	if !m.InTx(ctx) {
		return m.WithinTx(ctx, fn)
	}
	m.mu.Lock()
	m.Savepoint++
	m.mu.Unlock()
	return fn(ctx)
}

func (m *Manager) AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	st, ok := ctx.Value(ctxKey{}).(*state)
	if !ok {
		fn(ctx)
		return
	}
	st.afterCommit = append(st.afterCommit, fn)
}

func (m *Manager) InTx(ctx context.Context) bool {
	_, ok := ctx.Value(ctxKey{}).(*state)
	return ok
}
