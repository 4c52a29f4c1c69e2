package loan_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/ledger"
	"github.com/kislikjeka/coopledger/internal/ledger/ledgertest"
	"github.com/kislikjeka/coopledger/internal/module/loan"
	apperrors "github.com/kislikjeka/coopledger/internal/shared/errors"
	"github.com/kislikjeka/coopledger/internal/workflow"
	"github.com/kislikjeka/coopledger/internal/workflow/workflowtest"
	"github.com/kislikjeka/coopledger/pkg/logger"
	"github.com/kislikjeka/coopledger/pkg/money"
)

type harness struct {
	f       *ledgertest.Fixture
	repo    *memRepo
	svc     *loan.Service
	product *loan.Product
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	f := ledgertest.NewFixture(t)
	repo := newMemRepo()
	svc := loan.NewService(repo, f.Ledger, f.Chart, f.Sequences, f.Emitter, f.Runner, logger.Nop())

	product, err := svc.CreateProduct(context.Background(), &loan.Product{
		TenantID:        f.TenantID,
		Name:            "Business loan",
		InterestRate:    decimal.RequireFromString("0.12"),
		MaxTenureMonths: 36,
	})
	require.NoError(t, err)
	f.Map(t, ledger.ProductLoan, product.ID, ledger.MappingLoanReceivable, ledger.CodeLoanReceivable)
	f.Map(t, ledger.ProductLoan, product.ID, ledger.MappingInterestIncome, ledger.CodeInterestIncome)

	return &harness{f: f, repo: repo, svc: svc, product: product}
}

func (h *harness) apply(t *testing.T, principal string, months int) *loan.Application {
	t.Helper()
	app, err := h.svc.CreateApplication(context.Background(), loan.CreateParams{
		TenantID:     h.f.TenantID,
		MemberID:     uuid.New(),
		ProductID:    h.product.ID,
		Principal:    money.MustParse(principal),
		TenureMonths: months,
		DisburseCash: true,
	})
	require.NoError(t, err)
	return app
}

func (h *harness) approved(t *testing.T, principal string, months int) *loan.Application {
	t.Helper()
	app := h.apply(t, principal, months)
	require.NoError(t, h.repo.UpdateStatus(context.Background(), h.f.TenantID, app.ID, loan.StatusApproved))
	return app
}

func TestCreateApplication(t *testing.T) {
	h := newHarness(t)

	first := h.apply(t, "50000", 12)
	second := h.apply(t, "20000", 6)

	assert.Equal(t, "LN-000001", first.LoanNo)
	assert.Equal(t, "LN-000002", second.LoanNo)
	assert.Equal(t, loan.StatusDraft, first.Status)
	assert.True(t, first.InterestRate.Equal(h.product.InterestRate), "rate copied from the product")
	assert.True(t, first.Outstanding.IsZero())
}

func TestCreateApplication_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		mutate func(p *loan.CreateParams)
		kind   apperrors.Kind
		want   error
	}{
		{name: "zero principal", mutate: func(p *loan.CreateParams) { p.Principal = decimal.Zero }, kind: apperrors.KindValidation, want: loan.ErrInvalidPrincipal},
		{name: "negative principal", mutate: func(p *loan.CreateParams) { p.Principal = money.MustParse("-10") }, kind: apperrors.KindValidation, want: loan.ErrInvalidPrincipal},
		{name: "missing member", mutate: func(p *loan.CreateParams) { p.MemberID = uuid.Nil }, kind: apperrors.KindValidation, want: loan.ErrMissingMember},
		{name: "tenure above product maximum", mutate: func(p *loan.CreateParams) { p.TenureMonths = 48 }, kind: apperrors.KindValidation, want: loan.ErrInvalidTenure},
		{name: "zero tenure", mutate: func(p *loan.CreateParams) { p.TenureMonths = 0 }, kind: apperrors.KindValidation, want: loan.ErrInvalidTenure},
		{name: "unknown product", mutate: func(p *loan.CreateParams) { p.ProductID = uuid.New() }, kind: apperrors.KindNotFound, want: loan.ErrProductNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := loan.CreateParams{
				TenantID:     h.f.TenantID,
				MemberID:     uuid.New(),
				ProductID:    h.product.ID,
				Principal:    money.MustParse("10000"),
				TenureMonths: 12,
			}
			tt.mutate(&p)

			_, err := h.svc.CreateApplication(context.Background(), p)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDisburse_PostsAndWritesSchedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := h.approved(t, "100000", 12)

	disbursed, err := h.svc.Disburse(ctx, h.f.TenantID, app.ID)
	require.NoError(t, err)

	assert.Equal(t, loan.StatusDisbursed, disbursed.Status)
	assert.True(t, disbursed.Outstanding.Equal(money.MustParse("100000")))
	require.NotNil(t, disbursed.DisbursementEntry)
	require.NotNil(t, disbursed.DisbursedOn)

	assert.True(t, h.f.Balance(t, ledger.CodeLoanReceivable).Equal(money.MustParse("100000")))
	assert.True(t, h.f.Balance(t, ledger.CodeCashInHand).Equal(money.MustParse("-100000")))

	schedule, err := h.svc.Schedule(ctx, h.f.TenantID, app.ID)
	require.NoError(t, err)
	require.Len(t, schedule, 12)
	assert.True(t, schedule[0].Total.Equal(money.MustParse("8884.88")))

	evs := h.f.Events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeLoanDisbursement, evs[0].Type)
	assert.Equal(t, app.LoanNo, evs[0].TransactionNo)
	assert.True(t, evs[0].IsCash)
}

func TestDisburse_RequiresApproval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := h.apply(t, "10000", 12)

	_, err := h.svc.Disburse(ctx, h.f.TenantID, app.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindState, apperrors.KindOf(err))
	assert.ErrorIs(t, err, loan.ErrNotApproved)
	assert.Empty(t, h.f.Repo.Entries())

	require.NoError(t, h.repo.UpdateStatus(ctx, h.f.TenantID, app.ID, loan.StatusApproved))
	_, err = h.svc.Disburse(ctx, h.f.TenantID, app.ID)
	require.NoError(t, err)

	_, err = h.svc.Disburse(ctx, h.f.TenantID, app.ID)
	assert.ErrorIs(t, err, loan.ErrNotApproved, "second payout is refused")
	assert.Len(t, h.f.Repo.Entries(), 1)
}

func TestDisburse_PostingFailureLeavesLoanApproved(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := h.approved(t, "10000", 12)
	h.f.Repo.FailCreateEntry = errors.New("disk full")

	_, err := h.svc.Disburse(ctx, h.f.TenantID, app.ID)
	require.Error(t, err)

	got, err := h.svc.GetApplication(ctx, h.f.TenantID, app.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusApproved, got.Status)
	assert.Nil(t, got.DisbursementEntry)

	schedule, err := h.repo.ListSchedule(ctx, h.f.TenantID, app.ID)
	require.NoError(t, err)
	assert.Empty(t, schedule)
}

func TestDisburse_MissingMapping(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	other, err := h.svc.CreateProduct(ctx, &loan.Product{
		TenantID:        h.f.TenantID,
		Name:            "Unmapped",
		InterestRate:    decimal.RequireFromString("0.1"),
		MaxTenureMonths: 12,
	})
	require.NoError(t, err)
	app, err := h.svc.CreateApplication(ctx, loan.CreateParams{
		TenantID:     h.f.TenantID,
		MemberID:     uuid.New(),
		ProductID:    other.ID,
		Principal:    money.MustParse("1000"),
		TenureMonths: 6,
	})
	require.NoError(t, err)
	require.NoError(t, h.repo.UpdateStatus(ctx, h.f.TenantID, app.ID, loan.StatusApproved))

	_, err = h.svc.Disburse(ctx, h.f.TenantID, app.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrGLMappingNotConfigured)
}

func TestRepayInstallment_SplitsPrincipalAndInterest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := h.approved(t, "100000", 12)
	_, err := h.svc.Disburse(ctx, h.f.TenantID, app.ID)
	require.NoError(t, err)

	inst, err := h.svc.RepayInstallment(ctx, loan.RepayParams{TenantID: h.f.TenantID, LoanID: app.ID, IsCash: false})
	require.NoError(t, err)

	assert.Equal(t, 1, inst.InstallmentNo)
	assert.True(t, inst.IsPaid())
	require.NotNil(t, inst.JournalEntryID)

	assert.True(t, h.f.Balance(t, ledger.CodeBank).Equal(money.MustParse("8884.88")))
	assert.True(t, h.f.Balance(t, ledger.CodeLoanReceivable).Equal(money.MustParse("92115.12")))
	assert.True(t, h.f.Balance(t, ledger.CodeInterestIncome).Equal(money.MustParse("1000.00")))

	got, err := h.svc.GetApplication(ctx, h.f.TenantID, app.ID)
	require.NoError(t, err)
	assert.True(t, got.Outstanding.Equal(money.MustParse("92115.12")))

	next, err := h.svc.RepayInstallment(ctx, loan.RepayParams{TenantID: h.f.TenantID, LoanID: app.ID, IsCash: true})
	require.NoError(t, err)
	assert.Equal(t, 2, next.InstallmentNo)

	evs := h.f.Events.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, events.TypeLoanRepayment, evs[2].Type)
}

func TestRepayInstallment_UntilFullyRepaid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	app := h.approved(t, "3000", 3)
	_, err := h.svc.Disburse(ctx, h.f.TenantID, app.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := h.svc.RepayInstallment(ctx, loan.RepayParams{TenantID: h.f.TenantID, LoanID: app.ID, IsCash: true})
		require.NoError(t, err)
	}

	got, err := h.svc.GetApplication(ctx, h.f.TenantID, app.ID)
	require.NoError(t, err)
	assert.True(t, got.Outstanding.IsZero())
	assert.True(t, h.f.Balance(t, ledger.CodeLoanReceivable).IsZero())

	_, err = h.svc.RepayInstallment(ctx, loan.RepayParams{TenantID: h.f.TenantID, LoanID: app.ID, IsCash: true})
	assert.ErrorIs(t, err, loan.ErrNoInstallmentDue)
	assert.Equal(t, apperrors.KindState, apperrors.KindOf(err))
}

func TestRepayInstallment_RequiresDisbursedLoan(t *testing.T) {
	h := newHarness(t)
	app := h.approved(t, "3000", 3)

	_, err := h.svc.RepayInstallment(context.Background(), loan.RepayParams{TenantID: h.f.TenantID, LoanID: app.ID})
	assert.ErrorIs(t, err, loan.ErrNotDisbursed)

	_, err = h.svc.RepayInstallment(context.Background(), loan.RepayParams{TenantID: h.f.TenantID, LoanID: uuid.New()})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestLoanWorkflow_DisbursesThroughHook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	hooks := workflow.NewHookRegistry()
	require.NoError(t, loan.RegisterHooks(hooks, h.svc))
	registry := workflow.NewRegistry(hooks)
	require.NoError(t, registry.Register(workflow.LoanApplication()))
	engine := workflow.NewEngine(registry, hooks, workflowtest.NewHistory(nil), h.f.Runner, logger.Nop(), nil)
	engine.RegisterStore(loan.NewWorkflowStore(h.repo))

	app := h.apply(t, "12000", 12)
	move := func(to string, roles ...string) error {
		_, err := engine.Transition(ctx, workflow.TransitionRequest{
			WorkflowName: workflow.WorkflowLoanApplication,
			EntityID:     app.ID,
			TenantID:     h.f.TenantID,
			ToState:      to,
			Actor:        workflow.Actor{ID: uuid.New(), Roles: roles},
		})
		return err
	}

	require.NoError(t, move("submitted"))
	assert.ErrorIs(t, move("approved"), workflow.ErrRoleRequired)
	require.NoError(t, move("approved", workflow.RoleCreditCommittee))
	require.NoError(t, move("disbursed"))

	got, err := h.svc.GetApplication(ctx, h.f.TenantID, app.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusDisbursed, got.Status)
	assert.NotNil(t, got.DisbursementEntry)
	assert.True(t, h.f.Balance(t, ledger.CodeLoanReceivable).Equal(money.MustParse("12000")))

	err = move("closed")
	assert.ErrorIs(t, err, workflow.ErrConditionNotMet, "outstanding must be repaid first")
}

func TestLoanWorkflow_FailedDisbursementAbortsTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	hooks := workflow.NewHookRegistry()
	require.NoError(t, loan.RegisterHooks(hooks, h.svc))
	registry := workflow.NewRegistry(hooks)
	require.NoError(t, registry.Register(workflow.LoanApplication()))
	history := workflowtest.NewHistory(h.f.Tx)
	engine := workflow.NewEngine(registry, hooks, history, h.f.Runner, logger.Nop(), nil)
	engine.RegisterStore(loan.NewWorkflowStore(h.repo))

	app := h.approved(t, "12000", 12)
	h.f.Repo.FailCreateEntry = errors.New("disk full")

	_, err := engine.Transition(ctx, workflow.TransitionRequest{
		WorkflowName: workflow.WorkflowLoanApplication,
		EntityID:     app.ID,
		TenantID:     h.f.TenantID,
		ToState:      "disbursed",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrHookFailed)
	assert.Equal(t, 0, history.Len())
	assert.Empty(t, h.f.Repo.Entries())
}

func TestLoanWorkflow_ClosesAfterDirectDisbursement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	hooks := workflow.NewHookRegistry()
	require.NoError(t, loan.RegisterHooks(hooks, h.svc))
	registry := workflow.NewRegistry(hooks)
	require.NoError(t, registry.Register(workflow.LoanApplication()))
	history := workflowtest.NewHistory(h.f.Tx)
	engine := workflow.NewEngine(registry, hooks, history, h.f.Runner, logger.Nop(), nil)
	engine.RegisterStore(loan.NewWorkflowStore(h.repo))

	app := h.apply(t, "3000", 3)
	move := func(to string, roles ...string) (*workflow.Result, error) {
		return engine.Transition(ctx, workflow.TransitionRequest{
			WorkflowName: workflow.WorkflowLoanApplication,
			EntityID:     app.ID,
			TenantID:     h.f.TenantID,
			ToState:      to,
			Actor:        workflow.Actor{ID: uuid.New(), Roles: roles},
		})
	}

	_, err := move("submitted")
	require.NoError(t, err)
	_, err = move("approved", workflow.RoleCreditCommittee)
	require.NoError(t, err)

	// Disbursed by the service, so the last history row still says approved
	_, err = h.svc.Disburse(ctx, h.f.TenantID, app.ID)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := h.svc.RepayInstallment(ctx, loan.RepayParams{TenantID: h.f.TenantID, LoanID: app.ID, IsCash: true})
		require.NoError(t, err)
	}

	_, err = move("disbursed")
	assert.Error(t, err, "already disbursed")

	result, err := move("closed")
	require.NoError(t, err)
	assert.Equal(t, "disbursed", result.FromState)
	assert.Equal(t, "closed", result.ToState)
	assert.Equal(t, 3, history.Len())

	got, err := h.svc.GetApplication(ctx, h.f.TenantID, app.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusClosed, got.Status)
	assert.Len(t, h.f.Repo.Entries(), 4, "hooks did not disburse a second time")
}

func TestLoanWorkflow_RequestDataCannotCloseOutstandingLoan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	hooks := workflow.NewHookRegistry()
	require.NoError(t, loan.RegisterHooks(hooks, h.svc))
	registry := workflow.NewRegistry(hooks)
	require.NoError(t, registry.Register(workflow.LoanApplication()))
	engine := workflow.NewEngine(registry, hooks, workflowtest.NewHistory(nil), h.f.Runner, logger.Nop(), nil)
	engine.RegisterStore(loan.NewWorkflowStore(h.repo))

	app := h.approved(t, "12000", 12)
	_, err := h.svc.Disburse(ctx, h.f.TenantID, app.ID)
	require.NoError(t, err)

	_, err = engine.Transition(ctx, workflow.TransitionRequest{
		WorkflowName: workflow.WorkflowLoanApplication,
		EntityID:     app.ID,
		TenantID:     h.f.TenantID,
		ToState:      "closed",
		Data:         map[string]any{"outstanding": 0},
	})
	assert.ErrorIs(t, err, workflow.ErrConditionNotMet)

	got, err := h.svc.GetApplication(ctx, h.f.TenantID, app.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusDisbursed, got.Status)
}
