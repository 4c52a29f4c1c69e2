package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/ledger"
	"github.com/kislikjeka/coopledger/internal/sequence"
	apperrors "github.com/kislikjeka/coopledger/internal/shared/errors"
	"github.com/kislikjeka/coopledger/internal/shared/txn"
	"github.com/kislikjeka/coopledger/pkg/logger"
	"github.com/kislikjeka/coopledger/pkg/money"
)

// SourceType tags journal entries posted by this service
const SourceType = "share_transaction"

// Service issues and returns member shares
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

// NewService creates a new share service
func NewService(repo Repository, l Ledger, chart Chart, numbers NumberGenerator, emitter EventEmitter, runner *txn.Runner, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		ledger:  l,
		chart:   chart,
		numbers: numbers,
		events:  emitter,
		runner:  runner,
		logger:  log.WithField("component", "share"),
		now:     time.Now,
	}
}

// CreateClass adds a share class
func (s *Service) CreateClass(ctx context.Context, class *Class) (*Class, error) {
	if class.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}
	if class.Name == "" {
		return nil, apperrors.Validation("share class name is required", nil)
	}
	if !money.IsPositive(class.UnitPrice) {
		return nil, apperrors.Validation("unit price must be positive", nil)
	}
	class.ID = uuid.New()
	class.UnitPrice = money.Round(class.UnitPrice)
	class.CreatedAt = s.now().UTC()

	if err := s.repo.CreateClass(ctx, class); err != nil {
		return nil, fmt.Errorf("failed to create share class: %w", err)
	}
	return class, nil
}

// IssueShares sells kitta of a class to a member and posts
// Dr cash|bank, Cr share capital.
func (s *Service) IssueShares(ctx context.Context, p IssueParams) (*Transaction, error) {
	if p.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}
	if err := p.Validate(); err != nil {
		return nil, apperrors.Validation("invalid share issue", err)
	}

	var result *Transaction
	err := s.runner.Run(ctx, "share.issue", func(ctx context.Context) error {
		class, err := s.loadClass(ctx, p.TenantID, p.ShareClassID)
		if err != nil {
			return err
		}

		account, err := s.repo.GetOrCreateAccountForUpdate(ctx, &Account{
			ID:           uuid.New(),
			TenantID:     p.TenantID,
			MemberID:     p.MemberID,
			ShareClassID: p.ShareClassID,
			CreatedAt:    s.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to lock share account: %w", err)
		}

		amount := class.Value(p.Kitta)
		capital, settlement, err := s.resolveAccounts(ctx, p.TenantID, class.ID, p.IsCash)
		if err != nil {
			return err
		}

		certificateNo, err := s.numbers.NextNumber(ctx, p.TenantID, sequence.SeriesShareCertificate)
		if err != nil {
			return err
		}
		transactionNo, err := s.numbers.NextNumber(ctx, p.TenantID, sequence.SeriesShareTransaction)
		if err != nil {
			return err
		}

		txID := uuid.New()
		description := fmt.Sprintf("Share issue %s (%d kitta)", certificateNo, p.Kitta)
		if p.Remarks != "" {
			description += ": " + p.Remarks
		}
		entry, err := s.ledger.PostJournalEntry(ctx, ledger.PostingRequest{
			TenantID:    p.TenantID,
			Description: description,
			SourceType:  SourceType,
			SourceID:    &txID,
			Lines: []ledger.LineInput{
				ledger.Debit(settlement.ID, amount, "Share purchase received"),
				ledger.Credit(capital.ID, amount, "Share capital "+certificateNo).
					For(ledger.SubledgerShareAccount, account.ID),
			},
		})
		if err != nil {
			return err
		}

		account.TotalKitta += p.Kitta
		account.Amount = money.Sum(account.Amount, amount)
		account.UpdatedAt = s.now().UTC()
		if err := s.repo.UpdateAccount(ctx, account); err != nil {
			return fmt.Errorf("failed to update share account: %w", err)
		}

		tx := &Transaction{
			ID:             txID,
			TenantID:       p.TenantID,
			ShareAccountID: account.ID,
			MemberID:       p.MemberID,
			TransactionNo:  transactionNo,
			CertificateNo:  &certificateNo,
			Type:           TransactionPurchase,
			Kitta:          p.Kitta,
			UnitPrice:      class.UnitPrice,
			Amount:         amount,
			IsCash:         p.IsCash,
			JournalEntryID: entry.ID,
			CreatedAt:      s.now().UTC(),
		}
		if err := s.repo.CreateTransaction(ctx, tx); err != nil {
			return fmt.Errorf("failed to record share transaction: %w", err)
		}

		s.emit(ctx, events.TypeSharePurchase, tx)
		result = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("shares issued",
		"member_id", p.MemberID,
		"certificate_no", *result.CertificateNo,
		"kitta", p.Kitta,
		"amount", money.Format(result.Amount),
	)
	return result, nil
}

// ReturnShares buys kitta back from a member and posts
// Dr share capital, Cr cash|bank.
func (s *Service) ReturnShares(ctx context.Context, p ReturnParams) (*Transaction, error) {
	if p.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}
	if err := p.Validate(); err != nil {
		return nil, apperrors.Validation("invalid share return", err)
	}

	var result *Transaction
	err := s.runner.Run(ctx, "share.return", func(ctx context.Context) error {
		class, err := s.loadClass(ctx, p.TenantID, p.ShareClassID)
		if err != nil {
			return err
		}

		account, err := s.repo.GetAccountForUpdate(ctx, p.TenantID, p.MemberID, p.ShareClassID)
		if err != nil {
			if errors.Is(err, ErrShareAccountNotFound) {
				return apperrors.NotFound("share account", err)
			}
			return fmt.Errorf("failed to lock share account: %w", err)
		}

		if p.Kitta > account.TotalKitta {
			return apperrors.State(
				fmt.Sprintf("cannot return %d kitta, member holds %d", p.Kitta, account.TotalKitta),
				ErrInsufficientKitta,
			).WithDetail("current_kitta", account.TotalKitta).
				WithDetail("requested_kitta", p.Kitta)
		}

		amount := class.Value(p.Kitta)
		capital, settlement, err := s.resolveAccounts(ctx, p.TenantID, class.ID, p.IsCash)
		if err != nil {
			return err
		}

		transactionNo, err := s.numbers.NextNumber(ctx, p.TenantID, sequence.SeriesShareTransaction)
		if err != nil {
			return err
		}

		txID := uuid.New()
		description := fmt.Sprintf("Share return %s (%d kitta)", transactionNo, p.Kitta)
		if p.Remarks != "" {
			description += ": " + p.Remarks
		}
		entry, err := s.ledger.PostJournalEntry(ctx, ledger.PostingRequest{
			TenantID:    p.TenantID,
			Description: description,
			SourceType:  SourceType,
			SourceID:    &txID,
			Lines: []ledger.LineInput{
				ledger.Debit(capital.ID, amount, "Share capital returned").
					For(ledger.SubledgerShareAccount, account.ID),
				ledger.Credit(settlement.ID, amount, "Share return paid"),
			},
		})
		if err != nil {
			return err
		}

		account.TotalKitta -= p.Kitta
		account.Amount = money.Round(account.Amount.Sub(amount))
		account.UpdatedAt = s.now().UTC()
		if err := s.repo.UpdateAccount(ctx, account); err != nil {
			return fmt.Errorf("failed to update share account: %w", err)
		}

		tx := &Transaction{
			ID:             txID,
			TenantID:       p.TenantID,
			ShareAccountID: account.ID,
			MemberID:       p.MemberID,
			TransactionNo:  transactionNo,
			Type:           TransactionReturn,
			Kitta:          p.Kitta,
			UnitPrice:      class.UnitPrice,
			Amount:         amount,
			IsCash:         p.IsCash,
			JournalEntryID: entry.ID,
			CreatedAt:      s.now().UTC(),
		}
		if err := s.repo.CreateTransaction(ctx, tx); err != nil {
			return fmt.Errorf("failed to record share transaction: %w", err)
		}

		s.emit(ctx, events.TypeShareReturn, tx)
		result = tx
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("shares returned",
		"member_id", p.MemberID,
		"transaction_no", result.TransactionNo,
		"kitta", p.Kitta,
	)
	return result, nil
}

// GetAccount returns a share account
func (s *Service) GetAccount(ctx context.Context, tenantID, id uuid.UUID) (*Account, error) {
	account, err := s.repo.GetAccount(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrShareAccountNotFound) {
			return nil, apperrors.NotFound("share account", err)
		}
		return nil, fmt.Errorf("failed to get share account: %w", err)
	}
	return account, nil
}

// ListTransactions returns the movements of a share account, oldest first
func (s *Service) ListTransactions(ctx context.Context, tenantID, accountID uuid.UUID) ([]*Transaction, error) {
	txs, err := s.repo.ListTransactions(ctx, tenantID, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list share transactions: %w", err)
	}
	return txs, nil
}

func (s *Service) loadClass(ctx context.Context, tenantID, id uuid.UUID) (*Class, error) {
	class, err := s.repo.GetClass(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrShareClassNotFound) {
			return nil, apperrors.NotFound("share class", err)
		}
		return nil, fmt.Errorf("failed to get share class: %w", err)
	}
	return class, nil
}

func (s *Service) resolveAccounts(ctx context.Context, tenantID, classID uuid.UUID, isCash bool) (capital, settlement *ledger.Account, err error) {
	capital, err = s.chart.ResolveMappedAccount(ctx, tenantID, ledger.ProductShare, classID, ledger.MappingShareCapital, ledger.AccountTypeEquity)
	if err != nil {
		return nil, nil, err
	}
	settlement, err = s.chart.ResolveGeneralAccount(ctx, tenantID, ledger.SettlementKey(isCash), ledger.AccountTypeAsset)
	if err != nil {
		return nil, nil, err
	}
	return capital, settlement, nil
}

func (s *Service) emit(ctx context.Context, eventType events.Type, tx *Transaction) {
	s.events.Emit(ctx, events.Event{
		Type:             eventType,
		TenantID:         tx.TenantID,
		MemberID:         tx.MemberID,
		Amount:           tx.Amount,
		IsCash:           tx.IsCash,
		TransactionID:    tx.ID,
		TransactionNo:    tx.TransactionNo,
		JournalEntryID:   tx.JournalEntryID,
		CounterpartyType: events.CounterpartyMember,
	})
}
