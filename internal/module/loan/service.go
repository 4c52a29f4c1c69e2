package loan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/ledger"
	"github.com/kislikjeka/coopledger/internal/sequence"
	apperrors "github.com/kislikjeka/coopledger/internal/shared/errors"
	"github.com/kislikjeka/coopledger/internal/shared/txn"
	"github.com/kislikjeka/coopledger/pkg/logger"
	"github.com/kislikjeka/coopledger/pkg/money"
)

// SourceType tags journal entries posted by this service
const SourceType = "loan"

// Service manages loan applications, disbursement and repayment
type Service struct {
	repo    Repository
	ledger  Ledger
	chart   Chart
	numbers NumberGenerator
	events  EventEmitter
	runner  *txn.Runner
	logger  *logger.Logger
	now     func() time.Time
}

// NewService creates a new loan service
func NewService(repo Repository, l Ledger, chart Chart, numbers NumberGenerator, emitter EventEmitter, runner *txn.Runner, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		ledger:  l,
		chart:   chart,
		numbers: numbers,
		events:  emitter,
		runner:  runner,
		logger:  log.WithField("component", "loan"),
		now:     time.Now,
	}
}

// CreateProduct adds a loan product
func (s *Service) CreateProduct(ctx context.Context, product *Product) (*Product, error) {
	if product.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}
	if product.Name == "" {
		return nil, apperrors.Validation("product name is required", nil)
	}
	if product.InterestRate.IsNegative() {
		return nil, apperrors.Validation("invalid loan product", ErrInvalidRate)
	}
	if product.MaxTenureMonths <= 0 {
		return nil, apperrors.Validation("invalid loan product", ErrInvalidTenure)
	}
	product.ID = uuid.New()
	product.CreatedAt = s.now().UTC()

	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create loan product: %w", err)
	}
	return product, nil
}

// CreateApplication records a draft loan at the product's rate
func (s *Service) CreateApplication(ctx context.Context, p CreateParams) (*Application, error) {
	if p.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}
	if p.MemberID == uuid.Nil {
		return nil, apperrors.Validation("invalid loan application", ErrMissingMember)
	}
	if p.ProductID == uuid.Nil {
		return nil, apperrors.Validation("invalid loan application", ErrMissingProduct)
	}
	principal := money.Round(p.Principal)
	if !principal.IsPositive() {
		return nil, apperrors.Validation("invalid loan application", ErrInvalidPrincipal)
	}

	var app *Application
	err := s.runner.Run(ctx, "loan.create", func(ctx context.Context) error {
		product, err := s.repo.GetProduct(ctx, p.TenantID, p.ProductID)
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return apperrors.NotFound("loan product", err)
			}
			return fmt.Errorf("failed to get loan product: %w", err)
		}
		if p.TenureMonths <= 0 || p.TenureMonths > product.MaxTenureMonths {
			return apperrors.Validation(
				fmt.Sprintf("tenure %d months outside 1..%d", p.TenureMonths, product.MaxTenureMonths),
				ErrInvalidTenure,
			)
		}

		loanNo, err := s.numbers.NextNumber(ctx, p.TenantID, sequence.SeriesLoan)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		app = &Application{
			ID:           uuid.New(),
			TenantID:     p.TenantID,
			MemberID:     p.MemberID,
			ProductID:    p.ProductID,
			LoanNo:       loanNo,
			Principal:    principal,
			InterestRate: product.InterestRate,
			TenureMonths: p.TenureMonths,
			Outstanding:  decimal.Zero,
			Status:       StatusDraft,
			DisburseCash: p.DisburseCash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.CreateApplication(ctx, app); err != nil {
			return fmt.Errorf("failed to create loan application: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("loan application created",
		"loan_no", app.LoanNo,
		"member_id", app.MemberID,
		"principal", money.Format(app.Principal),
	)
	return app, nil
}

// Disburse pays out an approved loan: Dr loan receivable, Cr cash|bank.
// It writes the EMI schedule and sets the outstanding to the principal.
func (s *Service) Disburse(ctx context.Context, tenantID, loanID uuid.UUID) (*Application, error) {
	var app *Application
	err := s.runner.Run(ctx, "loan.disburse", func(ctx context.Context) error {
		var err error
		app, err = s.lock(ctx, tenantID, loanID)
		if err != nil {
			return err
		}
		if !app.AwaitingDisbursement() {
			return apperrors.State(
				fmt.Sprintf("loan %s is %s", app.LoanNo, app.Status),
				ErrNotApproved,
			).WithDetail("current_state", string(app.Status)).
				WithDetail("required_state", string(StatusApproved))
		}

		receivable, _, err := s.productAccounts(ctx, app)
		if err != nil {
			return err
		}
		settlement, err := s.chart.ResolveGeneralAccount(ctx, tenantID, ledger.SettlementKey(app.DisburseCash), ledger.AccountTypeAsset)
		if err != nil {
			return err
		}

		entry, err := s.ledger.PostJournalEntry(ctx, ledger.PostingRequest{
			TenantID:    tenantID,
			Description: "Loan disbursement " + app.LoanNo,
			SourceType:  SourceType,
			SourceID:    &app.ID,
			Lines: []ledger.LineInput{
				ledger.Debit(receivable.ID, app.Principal, "Loan "+app.LoanNo).
					For(ledger.SubledgerLoan, app.ID),
				ledger.Credit(settlement.ID, app.Principal, "Loan paid out"),
			},
		})
		if err != nil {
			return err
		}

		now := s.now().UTC()
		today := now.Truncate(24 * time.Hour)
		schedule := BuildSchedule(app.Principal, app.InterestRate, app.TenureMonths, today)
		for _, inst := range schedule {
			inst.TenantID = tenantID
			inst.LoanID = app.ID
		}
		if err := s.repo.CreateSchedule(ctx, schedule); err != nil {
			return fmt.Errorf("failed to write EMI schedule: %w", err)
		}

		app.Status = StatusDisbursed
		app.Outstanding = app.Principal
		app.DisbursedOn = &today
		app.DisbursementEntry = &entry.ID
		app.UpdatedAt = now
		if err := s.repo.UpdateApplication(ctx, app); err != nil {
			return fmt.Errorf("failed to update loan application: %w", err)
		}

		s.events.Emit(ctx, events.Event{
			Type:             events.TypeLoanDisbursement,
			TenantID:         tenantID,
			MemberID:         app.MemberID,
			Amount:           app.Principal,
			IsCash:           app.DisburseCash,
			TransactionID:    app.ID,
			TransactionNo:    app.LoanNo,
			JournalEntryID:   entry.ID,
			CounterpartyType: events.CounterpartyMember,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("loan disbursed",
		"loan_no", app.LoanNo,
		"principal", money.Format(app.Principal),
		"installments", app.TenureMonths,
	)
	return app, nil
}

// RepayInstallment pays the earliest unpaid installment:
// Dr cash|bank total, Cr loan receivable principal, Cr interest income interest.
func (s *Service) RepayInstallment(ctx context.Context, p RepayParams) (*Installment, error) {
	if p.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}

	var paid *Installment
	err := s.runner.Run(ctx, "loan.repay", func(ctx context.Context) error {
		app, err := s.lock(ctx, p.TenantID, p.LoanID)
		if err != nil {
			return err
		}
		if app.Status != StatusDisbursed || app.DisbursementEntry == nil {
			return apperrors.State(
				fmt.Sprintf("loan %s is %s", app.LoanNo, app.Status),
				ErrNotDisbursed,
			).WithDetail("current_state", string(app.Status))
		}

		schedule, err := s.repo.ListSchedule(ctx, p.TenantID, app.ID)
		if err != nil {
			return fmt.Errorf("failed to load EMI schedule: %w", err)
		}
		inst := nextDue(schedule)
		if inst == nil {
			return apperrors.State("loan "+app.LoanNo+" is fully repaid", ErrNoInstallmentDue)
		}

		receivable, income, err := s.productAccounts(ctx, app)
		if err != nil {
			return err
		}
		settlement, err := s.chart.ResolveGeneralAccount(ctx, p.TenantID, ledger.SettlementKey(p.IsCash), ledger.AccountTypeAsset)
		if err != nil {
			return err
		}

		narration := fmt.Sprintf("%s installment %d", app.LoanNo, inst.InstallmentNo)
		lines := []ledger.LineInput{
			ledger.Debit(settlement.ID, inst.Total, "Repayment "+narration),
		}
		if inst.Principal.IsPositive() {
			lines = append(lines, ledger.Credit(receivable.ID, inst.Principal, "Principal "+narration).
				For(ledger.SubledgerLoan, app.ID))
		}
		if inst.Interest.IsPositive() {
			lines = append(lines, ledger.Credit(income.ID, inst.Interest, "Interest "+narration).
				For(ledger.SubledgerLoan, app.ID))
		}

		entry, err := s.ledger.PostJournalEntry(ctx, ledger.PostingRequest{
			TenantID:    p.TenantID,
			Description: "Loan repayment " + narration,
			SourceType:  SourceType,
			SourceID:    &app.ID,
			Lines:       lines,
		})
		if err != nil {
			return err
		}

		now := s.now().UTC()
		paidOn := now.Truncate(24 * time.Hour)
		inst.PaidOn = &paidOn
		inst.JournalEntryID = &entry.ID
		if err := s.repo.UpdateInstallment(ctx, inst); err != nil {
			return fmt.Errorf("failed to update installment: %w", err)
		}

		app.Outstanding = money.Round(app.Outstanding.Sub(inst.Principal))
		app.UpdatedAt = now
		if err := s.repo.UpdateApplication(ctx, app); err != nil {
			return fmt.Errorf("failed to update loan application: %w", err)
		}

		s.events.Emit(ctx, events.Event{
			Type:             events.TypeLoanRepayment,
			TenantID:         p.TenantID,
			MemberID:         app.MemberID,
			Amount:           inst.Total,
			IsCash:           p.IsCash,
			TransactionID:    inst.ID,
			TransactionNo:    app.LoanNo,
			JournalEntryID:   entry.ID,
			CounterpartyType: events.CounterpartyMember,
		})
		paid = inst
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("loan installment repaid",
		"loan_id", p.LoanID,
		"installment_no", paid.InstallmentNo,
		"total", money.Format(paid.Total),
	)
	return paid, nil
}

// Schedule returns the EMI schedule of a loan in installment order
func (s *Service) Schedule(ctx context.Context, tenantID, loanID uuid.UUID) ([]*Installment, error) {
	if _, err := s.GetApplication(ctx, tenantID, loanID); err != nil {
		return nil, err
	}
	schedule, err := s.repo.ListSchedule(ctx, tenantID, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load EMI schedule: %w", err)
	}
	return schedule, nil
}

// GetApplication returns a loan application
func (s *Service) GetApplication(ctx context.Context, tenantID, id uuid.UUID) (*Application, error) {
	app, err := s.repo.GetApplication(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrApplicationNotFound) {
			return nil, apperrors.NotFound("loan application", err)
		}
		return nil, fmt.Errorf("failed to get loan application: %w", err)
	}
	return app, nil
}

func (s *Service) lock(ctx context.Context, tenantID, id uuid.UUID) (*Application, error) {
	app, err := s.repo.GetApplicationForUpdate(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrApplicationNotFound) {
			return nil, apperrors.NotFound("loan application", err)
		}
		return nil, fmt.Errorf("failed to lock loan application: %w", err)
	}
	return app, nil
}

func (s *Service) productAccounts(ctx context.Context, app *Application) (receivable, income *ledger.Account, err error) {
	receivable, err = s.chart.ResolveMappedAccount(ctx, app.TenantID, ledger.ProductLoan, app.ProductID, ledger.MappingLoanReceivable, ledger.AccountTypeAsset)
	if err != nil {
		return nil, nil, err
	}
	income, err = s.chart.ResolveMappedAccount(ctx, app.TenantID, ledger.ProductLoan, app.ProductID, ledger.MappingInterestIncome, ledger.AccountTypeIncome)
	if err != nil {
		return nil, nil, err
	}
	return receivable, income, nil
}

func nextDue(schedule []*Installment) *Installment {
	var next *Installment
	for _, inst := range schedule {
		if inst.IsPaid() {
			continue
		}
		if next == nil || inst.InstallmentNo < next.InstallmentNo {
			next = inst
		}
	}
	return next
}
