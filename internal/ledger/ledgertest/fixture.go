package ledgertest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/ledger"
	"github.com/kislikjeka/coopledger/internal/sequence"
	"github.com/kislikjeka/coopledger/internal/shared/retry"
	"github.com/kislikjeka/coopledger/internal/shared/txn"
	"github.com/kislikjeka/coopledger/internal/shared/txn/txntest"
	"github.com/kislikjeka/coopledger/pkg/logger"
)

// Fixture wires a real posting engine and chart over in-memory storage with
// the default chart bootstrapped for one tenant. Domain services built on it
// get real sequence numbers, a single-attempt runner and recorded events.
type Fixture struct {
	TenantID  uuid.UUID
	Repo      *Repository
	Tx        *txntest.Manager
	Numbers   *Numbers
	Chart     *ledger.Chart
	Ledger    *ledger.Service
	Accounts  map[string]*ledger.Account
	Sequences *sequence.Generator
	Runner    *txn.Runner
	Events    *events.Recorder
	Emitter   *events.Emitter
}

// NewFixture builds a Fixture and fails the test on setup errors
func NewFixture(t testing.TB) *Fixture {
	t.Helper()

	repo := NewRepository()
	tx := txntest.New()
	numbers := NewNumbers()
	log := logger.Nop()

	recorder := &events.Recorder{}

	f := &Fixture{
		TenantID:  uuid.New(),
		Repo:      repo,
		Tx:        tx,
		Numbers:   numbers,
		Chart:     ledger.NewChart(repo, nil, log),
		Ledger:    ledger.NewService(repo, tx, numbers, log, nil),
		Sequences: sequence.NewGenerator(sequence.NewMemoryAllocator(), log, nil),
		Runner:    txn.NewRunner(tx, retry.Policy{MaxAttempts: 1}, log, nil),
		Events:    recorder,
		Emitter:   events.NewEmitter(tx, recorder, "", log, nil),
	}

	accounts, err := f.Chart.Bootstrap(context.Background(), f.TenantID)
	require.NoError(t, err)
	f.Accounts = accounts
	return f
}

// Map wires a product-specific mapping
func (f *Fixture) Map(t testing.TB, productType ledger.ProductType, productID uuid.UUID, key ledger.MappingKey, code string) {
	t.Helper()
	require.NoError(t, f.Chart.SetProductMapping(context.Background(), ledger.ProductGLMap{
		TenantID:    f.TenantID,
		ProductType: productType,
		ProductID:   productID,
		Key:         key,
		AccountCode: code,
	}))
}

// Balance returns the running balance of an account by code
func (f *Fixture) Balance(t testing.TB, code string) decimal.Decimal {
	t.Helper()
	acc, ok := f.Accounts[code]
	require.True(t, ok, "account %s not in fixture", code)
	b, err := f.Repo.GetAccountBalance(context.Background(), f.TenantID, acc.ID)
	require.NoError(t, err)
	return b.Balance
}

// AccountID returns the id of an account by code
func (f *Fixture) AccountID(t testing.TB, code string) uuid.UUID {
	t.Helper()
	acc, ok := f.Accounts[code]
	require.True(t, ok, "account %s not in fixture", code)
	return acc.ID
}
