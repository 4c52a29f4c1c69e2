package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/ledger"
	apperrors "github.com/kislikjeka/coopledger/internal/shared/errors"
	"github.com/kislikjeka/coopledger/internal/shared/txn"
	"github.com/kislikjeka/coopledger/pkg/logger"
	"github.com/kislikjeka/coopledger/pkg/money"
)

// SourceType tags journal entries posted by this service
const SourceType = "payroll_run"

// Service prepares and finalizes salary runs
type Service struct {
	repo   Repository
	ledger Ledger
	chart  Chart
	events EventEmitter
	runner *txn.Runner
	logger *logger.Logger
	now    func() time.Time
}

// NewService creates a new payroll service
func NewService(repo Repository, l Ledger, chart Chart, emitter EventEmitter, runner *txn.Runner, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		ledger: l,
		chart:  chart,
		events: emitter,
		runner: runner,
		logger: log.WithField("component", "payroll"),
		now:    time.Now,
	}
}

// CreateRun records a draft run for a period
func (s *Service) CreateRun(ctx context.Context, p CreateRunParams) (*Run, error) {
	if p.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}
	if err := p.Validate(); err != nil {
		return nil, apperrors.Validation("invalid payroll run", err)
	}

	run := &Run{
		ID:        uuid.New(),
		TenantID:  p.TenantID,
		Period:    p.Period,
		Status:    StatusDraft,
		CreatedAt: s.now().UTC(),
	}
	for _, in := range p.Items {
		run.Items = append(run.Items, &Item{
			ID:           uuid.New(),
			TenantID:     p.TenantID,
			RunID:        run.ID,
			EmployeeID:   in.EmployeeID,
			EmployeeName: in.EmployeeName,
			Gross:        money.Round(in.Gross),
			TaxRate:      in.TaxRate,
		})
	}
	// Draft totals are a preview; Finalize recomputes them.
	run.computeTotals()

	err := s.runner.Run(ctx, "payroll.create", func(ctx context.Context) error {
		if err := s.repo.CreateRun(ctx, run); err != nil {
			if errors.Is(err, ErrDuplicatePeriod) {
				return apperrors.Conflict("payroll run for "+p.Period+" already exists", err)
			}
			return fmt.Errorf("failed to create payroll run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("payroll run created",
		"period", run.Period,
		"items", len(run.Items),
		"total_gross", money.Format(run.TotalGross),
	)
	return run, nil
}

// Finalize posts a draft run: Dr salary expense Σgross, Cr TDS payable ΣTDS,
// Cr salary payable Σnet, or Cr cash when the salaries are paid out now.
func (s *Service) Finalize(ctx context.Context, tenantID, runID uuid.UUID, isCash bool) (*Run, error) {
	if tenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}

	var run *Run
	err := s.runner.Run(ctx, "payroll.finalize", func(ctx context.Context) error {
		var err error
		run, err = s.repo.GetRunForUpdate(ctx, tenantID, runID)
		if err != nil {
			if errors.Is(err, ErrRunNotFound) {
				return apperrors.NotFound("payroll run", err)
			}
			return fmt.Errorf("failed to lock payroll run: %w", err)
		}
		if run.Status != StatusDraft {
			return apperrors.State(
				fmt.Sprintf("payroll run %s is %s", run.Period, run.Status),
				ErrNotDraft,
			).WithDetail("current_state", string(run.Status)).
				WithDetail("required_state", string(StatusDraft))
		}
		if len(run.Items) == 0 {
			return apperrors.Validation("payroll run "+run.Period+" has no items", ErrNoItems)
		}

		run.computeTotals()

		expense, err := s.chart.ResolveGeneralAccount(ctx, tenantID, ledger.MappingSalaryExpense, ledger.AccountTypeExpense)
		if err != nil {
			return err
		}
		creditKey, creditType := ledger.MappingSalaryPayable, ledger.AccountTypeLiability
		if isCash {
			creditKey, creditType = ledger.MappingCash, ledger.AccountTypeAsset
		}
		payout, err := s.chart.ResolveGeneralAccount(ctx, tenantID, creditKey, creditType)
		if err != nil {
			return err
		}

		lines := []ledger.LineInput{
			ledger.Debit(expense.ID, run.TotalGross, "Salaries "+run.Period),
		}
		if run.TotalTDS.IsPositive() {
			tds, err := s.chart.ResolveGeneralAccount(ctx, tenantID, ledger.MappingTDSPayable, ledger.AccountTypeLiability)
			if err != nil {
				return err
			}
			lines = append(lines, ledger.Credit(tds.ID, run.TotalTDS, "TDS on salaries "+run.Period))
		}
		lines = append(lines, ledger.Credit(payout.ID, run.TotalNet, "Net salaries "+run.Period))

		entry, err := s.ledger.PostJournalEntry(ctx, ledger.PostingRequest{
			TenantID:    tenantID,
			Description: "Payroll " + run.Period,
			SourceType:  SourceType,
			SourceID:    &run.ID,
			Lines:       lines,
		})
		if err != nil {
			return err
		}

		now := s.now().UTC()
		run.Status = StatusFinalized
		run.JournalEntryID = &entry.ID
		run.FinalizedAt = &now
		if err := s.repo.UpdateRun(ctx, run); err != nil {
			return fmt.Errorf("failed to update payroll run: %w", err)
		}

		s.events.Emit(ctx, events.Event{
			Type:             events.TypePayrollFinalized,
			TenantID:         tenantID,
			Amount:           run.TotalGross,
			IsCash:           isCash,
			TransactionID:    run.ID,
			TransactionNo:    run.Period,
			JournalEntryID:   entry.ID,
			CounterpartyType: events.CounterpartyStaff,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("payroll run finalized",
		"period", run.Period,
		"total_gross", money.Format(run.TotalGross),
		"total_tds", money.Format(run.TotalTDS),
		"total_net", money.Format(run.TotalNet),
		"is_cash", isCash,
	)
	return run, nil
}

// GetRun returns a payroll run with its items
func (s *Service) GetRun(ctx context.Context, tenantID, id uuid.UUID) (*Run, error) {
	run, err := s.repo.GetRun(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return nil, apperrors.NotFound("payroll run", err)
		}
		return nil, fmt.Errorf("failed to get payroll run: %w", err)
	}
	return run, nil
}
