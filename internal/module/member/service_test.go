package member_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/ledger"
	"github.com/kislikjeka/coopledger/internal/ledger/ledgertest"
	"github.com/kislikjeka/coopledger/internal/module/member"
	"github.com/kislikjeka/coopledger/internal/module/share"
	"github.com/kislikjeka/coopledger/internal/module/share/sharetest"
	apperrors "github.com/kislikjeka/coopledger/internal/shared/errors"
	"github.com/kislikjeka/coopledger/internal/workflow"
	"github.com/kislikjeka/coopledger/internal/workflow/workflowtest"
	"github.com/kislikjeka/coopledger/pkg/logger"
	"github.com/kislikjeka/coopledger/pkg/money"
)

type harness struct {
	f       *ledgertest.Fixture
	repo    *memRepo
	svc     *member.Service
	shares  *share.Service
	class   *share.Class
	history *workflowtest.History
	engine  *workflow.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	f := ledgertest.NewFixture(t)
	repo := newMemRepo()
	log := logger.Nop()

	svc := member.NewService(repo, f.Ledger, f.Chart, f.Sequences, f.Emitter, f.Runner, log)
	shares := share.NewService(sharetest.NewRepository(), f.Ledger, f.Chart, f.Sequences, f.Emitter, f.Runner, log)

	class, err := shares.CreateClass(ctx, &share.Class{TenantID: f.TenantID, Name: "Ordinary", UnitPrice: money.MustParse("100")})
	require.NoError(t, err)
	f.Map(t, ledger.ProductShare, class.ID, ledger.MappingShareCapital, ledger.CodeShareCapital)

	hooks := workflow.NewHookRegistry()
	require.NoError(t, member.RegisterHooks(hooks, svc, shares))
	registry := workflow.NewRegistry(hooks)
	require.NoError(t, registry.Register(workflow.MemberKYC()))

	history := workflowtest.NewHistory(f.Tx)
	engine := workflow.NewEngine(registry, hooks, history, f.Runner, log, nil)
	engine.RegisterStore(member.NewWorkflowStore(repo))

	return &harness{f: f, repo: repo, svc: svc, shares: shares, class: class, history: history, engine: engine}
}

func (h *harness) register(t *testing.T, fee string, kitta int64) *member.Member {
	t.Helper()
	p := member.RegisterParams{
		TenantID:     h.f.TenantID,
		FullName:     "Sita Sharma",
		EntryFee:     money.MustParse(fee),
		InitialKitta: kitta,
		PaysCash:     true,
	}
	if kitta > 0 {
		p.ShareClassID = &h.class.ID
	}
	m, err := h.svc.Register(context.Background(), p)
	require.NoError(t, err)
	return m
}

func (h *harness) approve(m *member.Member) (*workflow.Result, error) {
	return h.engine.Transition(context.Background(), workflow.TransitionRequest{
		WorkflowName: workflow.WorkflowMemberKYC,
		EntityID:     m.ID,
		TenantID:     h.f.TenantID,
		ToState:      string(member.StatusApproved),
		Actor:        workflow.Actor{ID: uuid.New(), Roles: []string{workflow.RoleManager}},
	})
}

func TestRegister(t *testing.T) {
	h := newHarness(t)

	first := h.register(t, "500", 10)
	second := h.register(t, "500", 0)

	assert.Equal(t, "MEM-000001", first.MemberNo)
	assert.Equal(t, "MEM-000002", second.MemberNo)
	assert.Equal(t, member.StatusPending, first.Status)
	assert.Nil(t, first.EntryFeeEntryID)
}

func TestRegister_Validation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		params member.RegisterParams
		want   error
	}{
		{name: "missing name", params: member.RegisterParams{TenantID: h.f.TenantID}, want: member.ErrMissingName},
		{name: "negative fee", params: member.RegisterParams{TenantID: h.f.TenantID, FullName: "A", EntryFee: decimal.NewFromInt(-1)}, want: member.ErrNegativeEntryFee},
		{name: "negative kitta", params: member.RegisterParams{TenantID: h.f.TenantID, FullName: "A", InitialKitta: -1}, want: member.ErrNegativeKitta},
		{name: "kitta without class", params: member.RegisterParams{TenantID: h.f.TenantID, FullName: "A", InitialKitta: 5}, want: member.ErrMissingShareClass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Register(context.Background(), tt.params)
			require.Error(t, err)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPostEntryFee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.register(t, "500", 0)

	_, err := h.svc.PostEntryFee(ctx, h.f.TenantID, m.ID, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, member.ErrNotApproved)
	assert.Equal(t, apperrors.KindState, apperrors.KindOf(err))

	require.NoError(t, h.repo.UpdateStatus(ctx, h.f.TenantID, m.ID, member.StatusApproved))

	posted, err := h.svc.PostEntryFee(ctx, h.f.TenantID, m.ID, false)
	require.NoError(t, err)
	require.NotNil(t, posted.EntryFeeEntryID)
	assert.True(t, h.f.Balance(t, ledger.CodeBank).Equal(money.MustParse("500")))
	assert.True(t, h.f.Balance(t, ledger.CodeEntryFeeIncome).Equal(money.MustParse("500")))

	_, err = h.svc.PostEntryFee(ctx, h.f.TenantID, m.ID, false)
	assert.ErrorIs(t, err, member.ErrEntryFeeCollected)
	assert.Len(t, h.f.Repo.Entries(), 1)
}

func TestKYCApproval_PostsFeeSharesAndAnnounces(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.register(t, "500", 10)
	commits := h.f.Tx.Commits

	result, err := h.approve(m)
	require.NoError(t, err)
	assert.Equal(t, "pending", result.FromState)

	got, err := h.svc.Get(ctx, h.f.TenantID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, member.StatusApproved, got.Status)
	require.NotNil(t, got.EntryFeeEntryID)

	assert.True(t, h.f.Balance(t, ledger.CodeCashInHand).Equal(money.MustParse("1500")), "fee 500 plus 10 kitta at 100")
	assert.True(t, h.f.Balance(t, ledger.CodeEntryFeeIncome).Equal(money.MustParse("500")))
	assert.True(t, h.f.Balance(t, ledger.CodeShareCapital).Equal(money.MustParse("1000")))
	assert.Equal(t, 1, h.history.Len())
	assert.Equal(t, commits+1, h.f.Tx.Commits, "one transaction for status, history, fee and shares")

	var types []events.Type
	for _, ev := range h.f.Events.Events() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []events.Type{events.TypeSharePurchase, events.TypeMemberApproved}, types)
}

func TestKYCApproval_RequiresManagerAndFee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m := h.register(t, "500", 0)
	_, err := h.engine.Transition(ctx, workflow.TransitionRequest{
		WorkflowName: workflow.WorkflowMemberKYC,
		EntityID:     m.ID,
		TenantID:     h.f.TenantID,
		ToState:      "approved",
		Actor:        workflow.Actor{Roles: []string{"clerk"}},
	})
	assert.ErrorIs(t, err, workflow.ErrRoleRequired)

	free := h.register(t, "0", 0)
	_, err = h.approve(free)
	assert.ErrorIs(t, err, workflow.ErrConditionNotMet, "entryFee greaterThan 0")

	assert.Empty(t, h.f.Repo.Entries())
}

func TestKYCApproval_ShareFailureAbortsApproval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	otherClass, err := h.shares.CreateClass(ctx, &share.Class{TenantID: h.f.TenantID, Name: "Unmapped", UnitPrice: money.MustParse("100")})
	require.NoError(t, err)
	m, err := h.svc.Register(ctx, member.RegisterParams{
		TenantID:     h.f.TenantID,
		FullName:     "Hari Thapa",
		EntryFee:     money.MustParse("500"),
		InitialKitta: 5,
		ShareClassID: &otherClass.ID,
		PaysCash:     true,
	})
	require.NoError(t, err)
	rollbacks := h.f.Tx.Rollbacks

	_, err = h.approve(m)
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrHookFailed)
	assert.ErrorIs(t, err, ledger.ErrGLMappingNotConfigured)
	assert.Equal(t, rollbacks+1, h.f.Tx.Rollbacks)
	assert.Equal(t, 0, h.history.Len(), "no history row for an aborted approval")

	for _, ev := range h.f.Events.Events() {
		assert.NotEqual(t, events.TypeMemberApproved, ev.Type, "announcement discarded with the transaction")
	}
}

func TestKYCRejection_IsTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.register(t, "500", 0)

	_, err := h.engine.Transition(ctx, workflow.TransitionRequest{
		WorkflowName: workflow.WorkflowMemberKYC,
		EntityID:     m.ID,
		TenantID:     h.f.TenantID,
		ToState:      "rejected",
	})
	require.NoError(t, err)

	_, err = h.approve(m)
	assert.ErrorIs(t, err, workflow.ErrTerminalState)
	assert.Empty(t, h.f.Events.Events(), "rejection is not announced")
}
