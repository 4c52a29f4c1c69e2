//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/ledger"
	"github.com/kislikjeka/coopledger/internal/module/member"
	"github.com/kislikjeka/coopledger/internal/module/savings"
	"github.com/kislikjeka/coopledger/internal/module/share"
	"github.com/kislikjeka/coopledger/internal/sequence"
	"github.com/kislikjeka/coopledger/internal/shared/retry"
	"github.com/kislikjeka/coopledger/internal/shared/txn"
	"github.com/kislikjeka/coopledger/pkg/logger"
	"github.com/kislikjeka/coopledger/pkg/money"
	"github.com/kislikjeka/coopledger/testutil/testdb"
)

var testDB *testdb.TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = testdb.NewTestDB(ctx)
	if err != nil {
		panic("failed to create test database: " + err.Error())
	}

	code := m.Run()

	testDB.Close(ctx)
	if code != 0 {
		panic("tests failed")
	}
}

// stack is the ledger and the services under test over the test database
type stack struct {
	tenantID uuid.UUID
	tx       *TxManager
	runner   *txn.Runner
	chart    *ledger.Chart
	ledger   *ledger.Service
	numbers  *sequence.Generator
	emitter  *events.Emitter
	events   *events.Recorder
	accounts map[string]*ledger.Account
}

func setupTest(t *testing.T) (*stack, context.Context) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, testDB.Reset(ctx))

	log := logger.Nop()
	tx := NewTxManager(testDB.Pool, log)
	ledgerRepo := NewLedgerRepository(testDB.Pool)
	recorder := &events.Recorder{}

	s := &stack{
		tenantID: uuid.New(),
		tx:       tx,
		runner:   txn.NewRunner(tx, retry.DefaultPolicy(), log, nil),
		chart:    ledger.NewChart(ledgerRepo, nil, log),
		numbers:  sequence.NewGenerator(NewSequenceRepository(testDB.Pool), log, nil),
		emitter:  events.NewEmitter(tx, recorder, "NPR", log, nil),
		events:   recorder,
	}
	s.ledger = ledger.NewService(ledgerRepo, tx, s.numbers, log, nil)

	accounts, err := s.chart.Bootstrap(ctx, s.tenantID)
	require.NoError(t, err)
	s.accounts = accounts
	return s, ctx
}

func (s *stack) mapProduct(t *testing.T, productType ledger.ProductType, productID uuid.UUID, key ledger.MappingKey, code string) {
	t.Helper()
	require.NoError(t, s.chart.SetProductMapping(context.Background(), ledger.ProductGLMap{
		TenantID:    s.tenantID,
		ProductType: productType,
		ProductID:   productID,
		Key:         key,
		AccountCode: code,
	}))
}

func (s *stack) members() *member.Service {
	return member.NewService(NewMemberRepository(testDB.Pool), s.ledger, s.chart, s.numbers, s.emitter, s.runner, logger.Nop())
}

func (s *stack) shares() *share.Service {
	return share.NewService(NewShareRepository(testDB.Pool), s.ledger, s.chart, s.numbers, s.emitter, s.runner, logger.Nop())
}

func (s *stack) savings() *savings.Service {
	return savings.NewService(NewSavingsRepository(testDB.Pool), s.ledger, s.chart, s.numbers, s.emitter, s.runner, logger.Nop())
}

func (s *stack) register(t *testing.T, name string) *member.Member {
	t.Helper()
	m, err := s.members().Register(context.Background(), member.RegisterParams{
		TenantID: s.tenantID,
		FullName: name,
		PaysCash: true,
	})
	require.NoError(t, err)
	return m
}

func countRows(t *testing.T, ctx context.Context, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, testDB.Pool.QueryRow(ctx, query, args...).Scan(&n))
	return n
}

func TestSavings_ConcurrentDepositsSerialize(t *testing.T) {
	s, ctx := setupTest(t)
	svc := s.savings()

	product, err := svc.CreateProduct(ctx, &savings.Product{
		TenantID:       s.tenantID,
		Name:           "Regular saving",
		InterestRate:   money.MustParse("0.07"),
		MinimumBalance: money.MustParse("0"),
	})
	require.NoError(t, err)
	s.mapProduct(t, ledger.ProductSaving, product.ID, ledger.MappingDepositLiability, ledger.CodeSavingDeposits)
	s.mapProduct(t, ledger.ProductSaving, product.ID, ledger.MappingInterestExpense, ledger.CodeInterestExpense)

	m := s.register(t, "Sita Sharma")
	account, err := svc.OpenAccount(ctx, savings.OpenParams{TenantID: s.tenantID, MemberID: m.ID, ProductID: product.ID})
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Deposit(ctx, savings.TransactionParams{
				TenantID:  s.tenantID,
				AccountID: account.ID,
				Amount:    money.MustParse("100.50"),
				IsCash:    true,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := svc.GetAccount(ctx, s.tenantID, account.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(money.MustParse("1005.00")), "balance %s", got.Balance)

	require.NoError(t, svc.ReconcileAccount(ctx, s.tenantID, account.ID))
	require.NoError(t, s.ledger.ReconcileAccount(ctx, s.tenantID, s.accounts[ledger.CodeSavingDeposits].ID))
	require.NoError(t, s.ledger.ReconcileAccount(ctx, s.tenantID, s.accounts[ledger.CodeCashInHand].ID))

	assert.Equal(t, workers, countRows(t, ctx, `SELECT COUNT(*) FROM saving_transactions WHERE account_id = $1`, account.ID))
	assert.Equal(t, workers, countRows(t, ctx, `SELECT COUNT(DISTINCT entry_no) FROM journal_entries WHERE tenant_id = $1`, s.tenantID))
}

func TestShares_ConcurrentIssuanceGetsDistinctCertificates(t *testing.T) {
	s, ctx := setupTest(t)
	svc := s.shares()

	class, err := svc.CreateClass(ctx, &share.Class{TenantID: s.tenantID, Name: "Ordinary", UnitPrice: money.MustParse("100")})
	require.NoError(t, err)
	s.mapProduct(t, ledger.ProductShare, class.ID, ledger.MappingShareCapital, ledger.CodeShareCapital)

	first := s.register(t, "Sita Sharma")
	second := s.register(t, "Hari Thapa")

	var wg sync.WaitGroup
	results := make([]*share.Transaction, 2)
	errs := make([]error, 2)
	for i, m := range []*member.Member{first, second} {
		wg.Add(1)
		go func(i int, memberID uuid.UUID) {
			defer wg.Done()
			results[i], errs[i] = svc.IssueShares(ctx, share.IssueParams{
				TenantID:     s.tenantID,
				MemberID:     memberID,
				ShareClassID: class.ID,
				Kitta:        10,
				IsCash:       true,
			})
		}(i, m.ID)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.NotNil(t, results[0].CertificateNo)
	require.NotNil(t, results[1].CertificateNo)

	certs := []string{*results[0].CertificateNo, *results[1].CertificateNo}
	assert.ElementsMatch(t, []string{"CERT-000001", "CERT-000002"}, certs)
	require.NoError(t, s.ledger.ReconcileAccount(ctx, s.tenantID, s.accounts[ledger.CodeShareCapital].ID))
}

func TestShares_MissingMappingRollsBackEverything(t *testing.T) {
	s, ctx := setupTest(t)
	svc := s.shares()

	class, err := svc.CreateClass(ctx, &share.Class{TenantID: s.tenantID, Name: "Unmapped", UnitPrice: money.MustParse("100")})
	require.NoError(t, err)
	m := s.register(t, "Sita Sharma")

	_, err = svc.IssueShares(ctx, share.IssueParams{
		TenantID:     s.tenantID,
		MemberID:     m.ID,
		ShareClassID: class.ID,
		Kitta:        10,
		IsCash:       true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrGLMappingNotConfigured)

	assert.Zero(t, countRows(t, ctx, `SELECT COUNT(*) FROM journal_entries WHERE tenant_id = $1`, s.tenantID))
	assert.Zero(t, countRows(t, ctx, `SELECT COUNT(*) FROM share_accounts WHERE tenant_id = $1`, s.tenantID))
	assert.Empty(t, s.events.Events())
}

func TestJournal_RejectsMutation(t *testing.T) {
	s, ctx := setupTest(t)

	entry, err := s.ledger.PostJournalEntry(ctx, ledger.PostingRequest{
		TenantID:    s.tenantID,
		Description: "Opening cash",
		Lines: []ledger.LineInput{
			ledger.Debit(s.accounts[ledger.CodeCashInHand].ID, money.MustParse("1000"), "cash"),
			ledger.Credit(s.accounts[ledger.CodeShareCapital].ID, money.MustParse("1000"), "capital"),
		},
	})
	require.NoError(t, err)

	tests := []struct {
		name  string
		query string
	}{
		{name: "update entry", query: `UPDATE journal_entries SET description = 'changed' WHERE id = $1`},
		{name: "delete entry", query: `DELETE FROM journal_entries WHERE id = $1`},
		{name: "update lines", query: `UPDATE journal_lines SET narration = 'changed' WHERE entry_id = $1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testDB.Pool.Exec(ctx, tt.query, entry.ID)
			assert.Error(t, err)
		})
	}

	got, err := s.ledger.GetJournalEntry(ctx, s.tenantID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "Opening cash", got.Description)
	assert.Len(t, got.Lines, 2)
}

func TestTxManager_NestedCallsJoinAndRollBack(t *testing.T) {
	s, ctx := setupTest(t)

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.ledger.PostJournalEntry(ctx, ledger.PostingRequest{
			TenantID:    s.tenantID,
			Description: "Joined",
			Lines: []ledger.LineInput{
				ledger.Debit(s.accounts[ledger.CodeCashInHand].ID, money.MustParse("50"), ""),
				ledger.Credit(s.accounts[ledger.CodeEntryFeeIncome].ID, money.MustParse("50"), ""),
			},
		}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	assert.Zero(t, countRows(t, ctx, `SELECT COUNT(*) FROM journal_entries WHERE tenant_id = $1`, s.tenantID))
	require.NoError(t, s.ledger.ReconcileAccount(ctx, s.tenantID, s.accounts[ledger.CodeCashInHand].ID))
}
