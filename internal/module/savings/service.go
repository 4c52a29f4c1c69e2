package savings

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
const SourceType = "saving_transaction"

// Service runs deposits, withdrawals and interest on saving accounts
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

// NewService creates a new savings service
func NewService(repo Repository, l Ledger, chart Chart, numbers NumberGenerator, emitter EventEmitter, runner *txn.Runner, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		ledger:  l,
		chart:   chart,
		numbers: numbers,
		events:  emitter,
		runner:  runner,
		logger:  log.WithField("component", "savings"),
		now:     time.Now,
	}
}

// CreateProduct adds a saving product
func (s *Service) CreateProduct(ctx context.Context, product *Product) (*Product, error) {
	if product.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}
	if product.Name == "" {
		return nil, apperrors.Validation("product name is required", nil)
	}
	if err := product.Validate(); err != nil {
		return nil, apperrors.Validation("invalid saving product", err)
	}
	product.ID = uuid.New()
	product.MinimumBalance = money.Round(product.MinimumBalance)
	product.CreatedAt = s.now().UTC()

	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create saving product: %w", err)
	}
	return product, nil
}

// OpenAccount opens an empty active account for a member
func (s *Service) OpenAccount(ctx context.Context, p OpenParams) (*Account, error) {
	if p.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}
	if p.MemberID == uuid.Nil {
		return nil, apperrors.Validation("invalid saving account", ErrMissingMember)
	}
	if p.ProductID == uuid.Nil {
		return nil, apperrors.Validation("invalid saving account", ErrMissingProduct)
	}

	var account *Account
	err := s.runner.Run(ctx, "savings.open", func(ctx context.Context) error {
		if _, err := s.loadProduct(ctx, p.TenantID, p.ProductID); err != nil {
			return err
		}

		accountNo, err := s.numbers.NextNumber(ctx, p.TenantID, sequence.SeriesSavingAccount)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		account = &Account{
			ID:              uuid.New(),
			TenantID:        p.TenantID,
			MemberID:        p.MemberID,
			ProductID:       p.ProductID,
			AccountNo:       accountNo,
			Balance:         decimal.Zero,
			InterestAccrued: decimal.Zero,
			Status:          AccountActive,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.repo.CreateAccount(ctx, account); err != nil {
			return fmt.Errorf("failed to create saving account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("saving account opened",
		"member_id", p.MemberID,
		"account_no", account.AccountNo,
	)
	return account, nil
}

// Deposit credits a saving account: Dr cash|bank, Cr deposit liability.
func (s *Service) Deposit(ctx context.Context, p TransactionParams) (*Transaction, error) {
	amount, err := validateAmount(p)
	if err != nil {
		return nil, err
	}

	var result *Transaction
	err = s.runner.Run(ctx, "savings.deposit", func(ctx context.Context) error {
		account, product, err := s.lockActive(ctx, p.TenantID, p.AccountID)
		if err != nil {
			return err
		}

		liability, err := s.depositLiability(ctx, account.TenantID, product.ID)
		if err != nil {
			return err
		}
		settlement, err := s.chart.ResolveGeneralAccount(ctx, p.TenantID, ledger.SettlementKey(p.IsCash), ledger.AccountTypeAsset)
		if err != nil {
			return err
		}

		newBalance := money.Sum(account.Balance, amount)
		result, err = s.record(ctx, account, TransactionDeposit, amount, decimal.Zero, newBalance, p.IsCash,
			describe("Deposit", account.AccountNo, p.Remarks),
			[]ledger.LineInput{
				ledger.Debit(settlement.ID, amount, "Deposit received"),
				ledger.Credit(liability.ID, amount, "Deposit to "+account.AccountNo).
					For(ledger.SubledgerSavingAccount, account.ID),
			})
		if err != nil {
			return err
		}

		s.emit(ctx, events.TypeDeposit, account, result)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("deposit posted",
		"account_id", p.AccountID,
		"transaction_no", result.TransactionNo,
		"amount", money.Format(amount),
		"balance", money.Format(result.BalanceAfter),
	)
	return result, nil
}

// Withdraw debits a saving account: Dr deposit liability, Cr cash|bank.
// The remaining balance may not fall below the product's minimum balance.
func (s *Service) Withdraw(ctx context.Context, p TransactionParams) (*Transaction, error) {
	amount, err := validateAmount(p)
	if err != nil {
		return nil, err
	}

	var result *Transaction
	err = s.runner.Run(ctx, "savings.withdraw", func(ctx context.Context) error {
		account, product, err := s.lockActive(ctx, p.TenantID, p.AccountID)
		if err != nil {
			return err
		}

		if amount.GreaterThan(account.Balance) {
			return apperrors.InsufficientBalance(
				fmt.Sprintf("cannot withdraw %s, balance is %s", money.Format(amount), money.Format(account.Balance)),
				ErrInsufficientBalance,
			).WithDetail("current_balance", money.Format(account.Balance)).
				WithDetail("requested_amount", money.Format(amount))
		}

		newBalance := money.Round(account.Balance.Sub(amount))
		if newBalance.LessThan(product.MinimumBalance) {
			return apperrors.MinimumBalanceViolation(
				fmt.Sprintf("withdrawal leaves %s, minimum balance is %s", money.Format(newBalance), money.Format(product.MinimumBalance)),
				ErrMinimumBalanceViolation,
			).WithDetail("current_balance", money.Format(account.Balance)).
				WithDetail("requested_amount", money.Format(amount)).
				WithDetail("minimum_balance", money.Format(product.MinimumBalance))
		}

		liability, err := s.depositLiability(ctx, account.TenantID, product.ID)
		if err != nil {
			return err
		}
		settlement, err := s.chart.ResolveGeneralAccount(ctx, p.TenantID, ledger.SettlementKey(p.IsCash), ledger.AccountTypeAsset)
		if err != nil {
			return err
		}

		result, err = s.record(ctx, account, TransactionWithdrawal, amount, decimal.Zero, newBalance, p.IsCash,
			describe("Withdrawal", account.AccountNo, p.Remarks),
			[]ledger.LineInput{
				ledger.Debit(liability.ID, amount, "Withdrawal from "+account.AccountNo).
					For(ledger.SubledgerSavingAccount, account.ID),
				ledger.Credit(settlement.ID, amount, "Withdrawal paid"),
			})
		if err != nil {
			return err
		}

		s.emit(ctx, events.TypeWithdrawal, account, result)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("withdrawal posted",
		"account_id", p.AccountID,
		"transaction_no", result.TransactionNo,
		"amount", money.Format(amount),
		"balance", money.Format(result.BalanceAfter),
	)
	return result, nil
}

// AccrueInterest adds balance × rate × days / 365 to the account's accrued
// interest. It is a memo figure only; nothing reaches the GL until PostInterest.
func (s *Service) AccrueInterest(ctx context.Context, tenantID, accountID uuid.UUID, asOf time.Time, days int) (decimal.Decimal, error) {
	if days <= 0 {
		return decimal.Zero, apperrors.Validation("invalid accrual", ErrInvalidDays)
	}
	if asOf.IsZero() {
		return decimal.Zero, apperrors.Validation("invalid accrual", ErrMissingAsOfDate)
	}
	asOf = asOf.UTC().Truncate(24 * time.Hour)

	var accrued decimal.Decimal
	err := s.runner.Run(ctx, "savings.accrue", func(ctx context.Context) error {
		account, product, err := s.lockActive(ctx, tenantID, accountID)
		if err != nil {
			return err
		}

		if account.LastAccruedOn != nil && !asOf.After(*account.LastAccruedOn) {
			return apperrors.State(
				fmt.Sprintf("interest already accrued up to %s", account.LastAccruedOn.Format(time.DateOnly)),
				ErrAlreadyAccrued,
			).WithDetail("last_accrued_on", account.LastAccruedOn.Format(time.DateOnly)).
				WithDetail("requested", asOf.Format(time.DateOnly))
		}

		accrued = AccrualFor(account.Balance, product.InterestRate, days)
		account.InterestAccrued = money.Sum(account.InterestAccrued, accrued)
		account.LastAccruedOn = &asOf
		account.UpdatedAt = s.now().UTC()
		if err := s.repo.UpdateAccount(ctx, account); err != nil {
			return fmt.Errorf("failed to update saving account: %w", err)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.logger.WithContext(ctx).Debug("interest accrued",
		"account_id", accountID,
		"as_of", asOf.Format(time.DateOnly),
		"days", days,
		"accrued", money.Format(accrued),
	)
	return accrued, nil
}

// PostInterest capitalises interest net of TDS:
// Dr interest expense gross, Cr TDS payable, Cr deposit liability net.
func (s *Service) PostInterest(ctx context.Context, p InterestParams) (*Transaction, error) {
	if p.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}
	if p.Gross != nil && !money.IsPositive(*p.Gross) {
		return nil, apperrors.Validation("invalid interest", ErrInvalidAmount)
	}

	var result *Transaction
	err := s.runner.Run(ctx, "savings.post_interest", func(ctx context.Context) error {
		account, product, err := s.lockActive(ctx, p.TenantID, p.AccountID)
		if err != nil {
			return err
		}

		gross := account.InterestAccrued
		if p.Gross != nil {
			gross = *p.Gross
		}
		gross = money.Round(gross)
		if !gross.IsPositive() {
			return apperrors.Validation("no accrued interest on "+account.AccountNo, ErrNothingToPost)
		}
		tds, net := money.SplitTax(gross, product.TaxRate)

		expense, err := s.chart.ResolveMappedAccount(ctx, p.TenantID, ledger.ProductSaving, product.ID, ledger.MappingInterestExpense, ledger.AccountTypeExpense)
		if err != nil {
			return err
		}
		liability, err := s.depositLiability(ctx, p.TenantID, product.ID)
		if err != nil {
			return err
		}

		lines := []ledger.LineInput{
			ledger.Debit(expense.ID, gross, "Interest on "+account.AccountNo),
		}
		if tds.IsPositive() {
			tdsPayable, err := s.chart.ResolveGeneralAccount(ctx, p.TenantID, ledger.MappingTDSPayable, ledger.AccountTypeLiability)
			if err != nil {
				return err
			}
			lines = append(lines, ledger.Credit(tdsPayable.ID, tds, "TDS on interest "+account.AccountNo).
				For(ledger.SubledgerMember, account.MemberID))
		}
		lines = append(lines, ledger.Credit(liability.ID, net, "Net interest to "+account.AccountNo).
			For(ledger.SubledgerSavingAccount, account.ID))

		account.InterestAccrued = decimal.Zero
		result, err = s.record(ctx, account, TransactionInterest, net, tds, money.Sum(account.Balance, net), false,
			describe("Interest", account.AccountNo, ""), lines)
		if err != nil {
			return err
		}

		s.emit(ctx, events.TypeInterestPosted, account, result)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("interest posted",
		"account_id", p.AccountID,
		"transaction_no", result.TransactionNo,
		"net", money.Format(result.Amount),
		"tds", money.Format(result.TDS),
	)
	return result, nil
}

// ReconcileAccount checks that the account balance equals the net of the
// deposit-liability lines tagged with this account.
func (s *Service) ReconcileAccount(ctx context.Context, tenantID, accountID uuid.UUID) error {
	account, err := s.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return err
	}

	liability, err := s.depositLiability(ctx, tenantID, account.ProductID)
	if err != nil {
		return err
	}

	net, err := s.ledger.SubledgerNet(ctx, tenantID, liability.ID, ledger.SubledgerRef{
		Type: ledger.SubledgerSavingAccount,
		ID:   account.ID,
	})
	if err != nil {
		return err
	}

	if !net.Equal(account.Balance) {
		return apperrors.State(
			fmt.Sprintf("account %s balance %s, ledger %s", account.AccountNo, money.Format(account.Balance), money.Format(net)),
			ErrSubledgerMismatch,
		).WithDetail("balance", money.Format(account.Balance)).
			WithDetail("ledger", money.Format(net))
	}
	return nil
}

// GetAccount returns a saving account
func (s *Service) GetAccount(ctx context.Context, tenantID, id uuid.UUID) (*Account, error) {
	account, err := s.repo.GetAccount(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, apperrors.NotFound("saving account", err)
		}
		return nil, fmt.Errorf("failed to get saving account: %w", err)
	}
	return account, nil
}

// ListTransactions returns the movements of an account, oldest first
func (s *Service) ListTransactions(ctx context.Context, tenantID, accountID uuid.UUID) ([]*Transaction, error) {
	txs, err := s.repo.ListTransactions(ctx, tenantID, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list saving transactions: %w", err)
	}
	return txs, nil
}

// record posts the entry, then persists the new account state and the
// transaction row. A posting failure leaves the sub-ledger untouched.
func (s *Service) record(ctx context.Context, account *Account, txType TransactionType, amount, tds, newBalance decimal.Decimal, isCash bool, description string, lines []ledger.LineInput) (*Transaction, error) {
	transactionNo, err := s.numbers.NextNumber(ctx, account.TenantID, sequence.SeriesSavingTransaction)
	if err != nil {
		return nil, err
	}

	txID := uuid.New()
	entry, err := s.ledger.PostJournalEntry(ctx, ledger.PostingRequest{
		TenantID:    account.TenantID,
		Description: fmt.Sprintf("%s %s", description, transactionNo),
		SourceType:  SourceType,
		SourceID:    &txID,
		Lines:       lines,
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	account.Balance = newBalance
	account.UpdatedAt = now
	if err := s.repo.UpdateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to update saving account: %w", err)
	}

	tx := &Transaction{
		ID:             txID,
		TenantID:       account.TenantID,
		AccountID:      account.ID,
		TransactionNo:  transactionNo,
		Type:           txType,
		Amount:         amount,
		TDS:            tds,
		BalanceAfter:   newBalance,
		IsCash:         isCash,
		JournalEntryID: entry.ID,
		CreatedAt:      now,
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record saving transaction: %w", err)
	}
	return tx, nil
}

func (s *Service) lockActive(ctx context.Context, tenantID, accountID uuid.UUID) (*Account, *Product, error) {
	account, err := s.repo.GetAccountForUpdate(ctx, tenantID, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, nil, apperrors.NotFound("saving account", err)
		}
		return nil, nil, fmt.Errorf("failed to lock saving account: %w", err)
	}
	if !account.IsActive() {
		return nil, nil, apperrors.State(
			fmt.Sprintf("account %s is %s", account.AccountNo, account.Status),
			ErrAccountNotActive,
		).WithDetail("status", string(account.Status))
	}

	product, err := s.loadProduct(ctx, tenantID, account.ProductID)
	if err != nil {
		return nil, nil, err
	}
	return account, product, nil
}

func (s *Service) loadProduct(ctx context.Context, tenantID, id uuid.UUID) (*Product, error) {
	product, err := s.repo.GetProduct(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, apperrors.NotFound("saving product", err)
		}
		return nil, fmt.Errorf("failed to get saving product: %w", err)
	}
	return product, nil
}

func (s *Service) depositLiability(ctx context.Context, tenantID, productID uuid.UUID) (*ledger.Account, error) {
	return s.chart.ResolveMappedAccount(ctx, tenantID, ledger.ProductSaving, productID, ledger.MappingDepositLiability, ledger.AccountTypeLiability)
}

func (s *Service) emit(ctx context.Context, eventType events.Type, account *Account, tx *Transaction) {
	s.events.Emit(ctx, events.Event{
		Type:             eventType,
		TenantID:         account.TenantID,
		MemberID:         account.MemberID,
		Amount:           tx.Amount,
		IsCash:           tx.IsCash,
		TransactionID:    tx.ID,
		TransactionNo:    tx.TransactionNo,
		JournalEntryID:   tx.JournalEntryID,
		CounterpartyType: events.CounterpartyMember,
	})
}

func validateAmount(p TransactionParams) (decimal.Decimal, error) {
	if p.TenantID == uuid.Nil {
		return decimal.Zero, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}
	amount := money.Round(p.Amount)
	if !amount.IsPositive() {
		return decimal.Zero, apperrors.Validation("invalid amount", ErrInvalidAmount).
			WithDetail("amount", p.Amount.String())
	}
	return amount, nil
}

func describe(kind, accountNo, remarks string) string {
	d := kind + " " + accountNo
	if remarks != "" {
		d += " (" + remarks + ")"
	}
	return d
}
