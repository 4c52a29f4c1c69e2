//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/coopledger/internal/ledger"
	"github.com/kislikjeka/coopledger/internal/module/meeting"
	"github.com/kislikjeka/coopledger/internal/module/member"
	"github.com/kislikjeka/coopledger/internal/module/payroll"
	"github.com/kislikjeka/coopledger/internal/module/share"
	apperrors "github.com/kislikjeka/coopledger/internal/shared/errors"
	"github.com/kislikjeka/coopledger/internal/workflow"
	"github.com/kislikjeka/coopledger/pkg/logger"
	"github.com/kislikjeka/coopledger/pkg/money"
)

func (s *stack) kycEngine(t *testing.T, members *member.Service, shares *share.Service) *workflow.Engine {
	t.Helper()
	hooks := workflow.NewHookRegistry()
	require.NoError(t, member.RegisterHooks(hooks, members, shares))
	registry := workflow.NewRegistry(hooks)
	require.NoError(t, registry.Register(workflow.MemberKYC()))

	engine := workflow.NewEngine(registry, hooks, NewWorkflowHistoryRepository(testDB.Pool), s.runner, logger.Nop(), nil)
	engine.RegisterStore(member.NewWorkflowStore(NewMemberRepository(testDB.Pool)))
	return engine
}

func approve(ctx context.Context, engine *workflow.Engine, m *member.Member) (*workflow.Result, error) {
	return engine.Transition(ctx, workflow.TransitionRequest{
		WorkflowName: workflow.WorkflowMemberKYC,
		EntityID:     m.ID,
		TenantID:     m.TenantID,
		ToState:      string(member.StatusApproved),
		Actor:        workflow.Actor{ID: uuid.New(), Roles: []string{workflow.RoleManager}},
	})
}

func TestMemberKYC_ApprovalCommitsTogether(t *testing.T) {
	s, ctx := setupTest(t)
	members, shares := s.members(), s.shares()
	engine := s.kycEngine(t, members, shares)

	class, err := shares.CreateClass(ctx, &share.Class{TenantID: s.tenantID, Name: "Ordinary", UnitPrice: money.MustParse("100")})
	require.NoError(t, err)
	s.mapProduct(t, ledger.ProductShare, class.ID, ledger.MappingShareCapital, ledger.CodeShareCapital)

	m, err := members.Register(ctx, member.RegisterParams{
		TenantID:     s.tenantID,
		FullName:     "Sita Sharma",
		EntryFee:     money.MustParse("500"),
		InitialKitta: 10,
		ShareClassID: &class.ID,
		PaysCash:     true,
	})
	require.NoError(t, err)

	_, err = approve(ctx, engine, m)
	require.NoError(t, err)

	got, err := members.Get(ctx, s.tenantID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, member.StatusApproved, got.Status)
	require.NotNil(t, got.EntryFeeEntryID)

	history, err := NewWorkflowHistoryRepository(testDB.Pool).List(ctx, workflow.DefaultHistoryTable, s.tenantID, workflow.EntityMember, m.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "pending", history[0].FromState)
	assert.Equal(t, "approved", history[0].ToState)

	assert.Equal(t, 2, countRows(t, ctx, `SELECT COUNT(*) FROM journal_entries WHERE tenant_id = $1`, s.tenantID))
	for _, code := range []string{ledger.CodeCashInHand, ledger.CodeEntryFeeIncome, ledger.CodeShareCapital} {
		require.NoError(t, s.ledger.ReconcileAccount(ctx, s.tenantID, s.accounts[code].ID), code)
	}
}

func TestMemberKYC_HookFailureRollsBackTransition(t *testing.T) {
	s, ctx := setupTest(t)
	members, shares := s.members(), s.shares()
	engine := s.kycEngine(t, members, shares)

	unmapped, err := shares.CreateClass(ctx, &share.Class{TenantID: s.tenantID, Name: "Unmapped", UnitPrice: money.MustParse("100")})
	require.NoError(t, err)

	m, err := members.Register(ctx, member.RegisterParams{
		TenantID:     s.tenantID,
		FullName:     "Hari Thapa",
		EntryFee:     money.MustParse("500"),
		InitialKitta: 5,
		ShareClassID: &unmapped.ID,
		PaysCash:     true,
	})
	require.NoError(t, err)

	_, err = approve(ctx, engine, m)
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrHookFailed)
	assert.ErrorIs(t, err, ledger.ErrGLMappingNotConfigured)

	got, err := members.Get(ctx, s.tenantID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, member.StatusPending, got.Status)
	assert.Nil(t, got.EntryFeeEntryID)

	assert.Zero(t, countRows(t, ctx, `SELECT COUNT(*) FROM workflow_history WHERE entity_id = $1`, m.ID))
	assert.Zero(t, countRows(t, ctx, `SELECT COUNT(*) FROM journal_entries WHERE tenant_id = $1`, s.tenantID), "entry fee posting rolled back")
	assert.Empty(t, s.events.Events())
}

func TestConstraintViolationsAreConflicts(t *testing.T) {
	s, ctx := setupTest(t)
	payrollSvc := payroll.NewService(NewPayrollRepository(testDB.Pool), s.ledger, s.chart, s.emitter, s.runner, logger.Nop())
	meetings := meeting.NewService(NewMeetingRepository(testDB.Pool), s.ledger, s.chart, s.numbers, s.emitter, s.runner, logger.Nop())

	t.Run("payroll period", func(t *testing.T) {
		params := payroll.CreateRunParams{
			TenantID: s.tenantID,
			Period:   "2081-04",
			Items: []payroll.ItemInput{
				{EmployeeID: uuid.New(), EmployeeName: "Ram", Gross: money.MustParse("30000"), TaxRate: money.MustParse("0.01")},
			},
		}
		_, err := payrollSvc.CreateRun(ctx, params)
		require.NoError(t, err)

		_, err = payrollSvc.CreateRun(ctx, params)
		require.Error(t, err)
		assert.ErrorIs(t, err, payroll.ErrDuplicatePeriod)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))
		assert.Equal(t, 1, countRows(t, ctx, `SELECT COUNT(*) FROM payroll_runs WHERE tenant_id = $1`, s.tenantID))
	})

	t.Run("meeting attendee", func(t *testing.T) {
		mtg, err := meetings.Schedule(ctx, meeting.ScheduleParams{
			TenantID:    s.tenantID,
			Title:       "Board meeting",
			ScheduledAt: time.Now().Add(24 * time.Hour),
		})
		require.NoError(t, err)

		params := meeting.AttendeeParams{
			TenantID:   s.tenantID,
			MeetingID:  mtg.ID,
			AttendeeID: uuid.New(),
			Name:       "Gita",
			Allowance:  money.MustParse("1500"),
		}
		_, err = meetings.AddAttendee(ctx, params)
		require.NoError(t, err)

		_, err = meetings.AddAttendee(ctx, params)
		require.Error(t, err)
		assert.ErrorIs(t, err, meeting.ErrDuplicateAttendee)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))
	})
}
