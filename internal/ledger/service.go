package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/kislikjeka/coopledger/internal/shared/errors"
	"github.com/kislikjeka/coopledger/internal/shared/txn"
	"github.com/kislikjeka/coopledger/pkg/logger"
	"github.com/kislikjeka/coopledger/pkg/metrics"
	"github.com/kislikjeka/coopledger/pkg/money"
)

// Service is the journal posting engine.
// Every financial action in the cooperative ends up in PostJournalEntry.
type Service struct {
	repo      Repository
	tx        txn.Manager
	numbers   NumberGenerator
	validator *entryValidator
	committer *entryCommitter
	metrics   *metrics.LedgerMetrics
	logger    *logger.Logger
	now       func() time.Time
}

// NewService creates a new posting engine
func NewService(repo Repository, tx txn.Manager, numbers NumberGenerator, log *logger.Logger, m *metrics.LedgerMetrics) *Service {
	return &Service{
		repo:      repo,
		tx:        tx,
		numbers:   numbers,
		validator: newEntryValidator(),
		committer: newEntryCommitter(repo),
		metrics:   m,
		logger:    log.WithField("component", "ledger"),
		now:       time.Now,
	}
}

// PostJournalEntry validates and persists one balanced journal entry.
//
// Steps:
// 1. Normalize and validate the lines (amounts, balance) before touching storage
// 2. Load the referenced accounts and check they are postable in the tenant
// 3. Allocate the entry number
// 4. Write the entry and its lines
// 5. Apply the signed change to each account's running balance under row locks
//
// Steps 2-5 run in the caller's transaction when ctx carries one, so a failure
// here also undoes the caller's own state change. The engine never retries.
func (s *Service) PostJournalEntry(ctx context.Context, req PostingRequest) (*JournalEntry, error) {
	start := s.now()
	entry, err := s.postJournalEntry(ctx, req)
	s.metrics.ObservePosting(err, s.now().Sub(start))
	if err != nil {
		s.logger.WithContext(ctx).Debug("journal entry rejected",
			"tenant_id", req.TenantID,
			"source_type", req.SourceType,
			"error", err,
		)
		return nil, err
	}

	s.logger.WithContext(ctx).Info("journal entry posted",
		"tenant_id", entry.TenantID,
		"entry_no", entry.EntryNo,
		"lines", len(entry.Lines),
		"amount", money.Format(entry.TotalDebit()),
		"source_type", entry.SourceType,
	)
	return entry, nil
}

func (s *Service) postJournalEntry(ctx context.Context, req PostingRequest) (*JournalEntry, error) {
	lines, err := s.validator.validateRequest(req)
	if err != nil {
		return nil, err
	}

	postingDate := s.now().UTC().Truncate(24 * time.Hour)
	if req.PostingDate != nil {
		postingDate = req.PostingDate.UTC()
	}

	var entry *JournalEntry
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		accounts, err := s.repo.GetAccountsForPosting(ctx, req.TenantID, distinctAccountIDs(lines))
		if err != nil {
			return apperrors.Internal("failed to load accounts", err)
		}
		if err := s.validator.validateAccounts(req.TenantID, lines, accounts); err != nil {
			return err
		}

		entryNo, err := s.numbers.NextNumber(ctx, req.TenantID, SeriesJournal)
		if err != nil {
			return fmt.Errorf("failed to allocate entry number: %w", err)
		}

		entry = &JournalEntry{
			ID:          uuid.New(),
			TenantID:    req.TenantID,
			EntryNo:     entryNo,
			Description: strings.TrimSpace(req.Description),
			PostingDate: postingDate,
			SourceType:  req.SourceType,
			SourceID:    req.SourceID,
			ReversalOf:  req.reversalOf,
			CreatedAt:   s.now().UTC(),
		}
		for i, l := range lines {
			entry.Lines = append(entry.Lines, &JournalLine{
				ID:        uuid.New(),
				EntryID:   entry.ID,
				LineNo:    i + 1,
				AccountID: l.AccountID,
				Debit:     l.Debit,
				Credit:    l.Credit,
				Narration: l.Narration,
				Subledger: l.Subledger,
			})
		}

		if err := s.repo.CreateJournalEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to create journal entry: %w", err)
		}

		if err := s.committer.updateBalances(ctx, entry, accounts); err != nil {
			return fmt.Errorf("failed to update balances: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// ReverseJournalEntry posts a mirror image of an existing entry. The original
// is never modified; an entry can be reversed at most once.
func (s *Service) ReverseJournalEntry(ctx context.Context, tenantID, entryID uuid.UUID, description string) (*JournalEntry, error) {
	var reversal *JournalEntry
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		original, err := s.repo.GetJournalEntry(ctx, tenantID, entryID)
		if err != nil {
			if errors.Is(err, ErrJournalEntryNotFound) {
				return apperrors.NotFound("journal entry", err)
			}
			return apperrors.Internal("failed to load journal entry", err)
		}

		existing, err := s.repo.FindReversal(ctx, tenantID, entryID)
		if err != nil && !errors.Is(err, ErrJournalEntryNotFound) {
			return apperrors.Internal("failed to check for reversal", err)
		}
		if existing != nil {
			return apperrors.State(fmt.Sprintf("entry %s already reversed by %s", original.EntryNo, existing.EntryNo), ErrAlreadyReversed)
		}

		if strings.TrimSpace(description) == "" {
			description = "Reversal of " + original.EntryNo
		}

		lines := make([]LineInput, 0, len(original.Lines))
		for _, l := range original.Lines {
			lines = append(lines, LineInput{
				AccountID: l.AccountID,
				Debit:     l.Credit,
				Credit:    l.Debit,
				Narration: l.Narration,
				Subledger: l.Subledger,
			})
		}

		reversal, err = s.postJournalEntry(ctx, PostingRequest{
			TenantID:    tenantID,
			Description: description,
			Lines:       lines,
			SourceType:  original.SourceType,
			SourceID:    original.SourceID,
			reversalOf:  &original.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("journal entry reversed",
		"tenant_id", tenantID,
		"entry_id", entryID,
		"reversal_no", reversal.EntryNo,
	)
	return reversal, nil
}

// GetJournalEntry retrieves a journal entry with its lines
func (s *Service) GetJournalEntry(ctx context.Context, tenantID, id uuid.UUID) (*JournalEntry, error) {
	entry, err := s.repo.GetJournalEntry(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrJournalEntryNotFound) {
			return nil, apperrors.NotFound("journal entry", err)
		}
		return nil, apperrors.Internal("failed to load journal entry", err)
	}
	return entry, nil
}

// ListJournalEntries lists journal entries with filters
func (s *Service) ListJournalEntries(ctx context.Context, filters JournalFilters) ([]*JournalEntry, error) {
	if filters.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ErrMissingTenant)
	}
	return s.repo.ListJournalEntries(ctx, filters)
}

// GetAccountBalance retrieves the running balance of an account
func (s *Service) GetAccountBalance(ctx context.Context, tenantID, accountID uuid.UUID) (*AccountBalance, error) {
	return s.repo.GetAccountBalance(ctx, tenantID, accountID)
}

// ReconcileAccount verifies that an account's running balance matches the
// net of its journal lines.
func (s *Service) ReconcileAccount(ctx context.Context, tenantID, accountID uuid.UUID) error {
	account, err := s.repo.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return apperrors.NotFound("account", err)
		}
		return fmt.Errorf("failed to get account: %w", err)
	}

	current, err := s.repo.GetAccountBalance(ctx, tenantID, accountID)
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	debit, credit, err := s.repo.CalculateBalanceFromLines(ctx, tenantID, accountID)
	if err != nil {
		return fmt.Errorf("failed to calculate balance from lines: %w", err)
	}

	calculated := account.Type.SignedChange(debit, credit)
	if !current.Balance.Equal(calculated) {
		return fmt.Errorf(
			"%w: account=%s current=%s calculated=%s",
			ErrBalanceMismatch,
			account.Code,
			money.Format(current.Balance),
			money.Format(calculated),
		)
	}

	return nil
}

// SubledgerNet returns the signed net of the lines posted against one GL
// account for one sub-ledger entity.
func (s *Service) SubledgerNet(ctx context.Context, tenantID, accountID uuid.UUID, ref SubledgerRef) (decimal.Decimal, error) {
	account, err := s.repo.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get account: %w", err)
	}

	debit, credit, err := s.repo.SumSubledgerLines(ctx, tenantID, accountID, ref)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum sub-ledger lines: %w", err)
	}

	return account.Type.SignedChange(debit, credit), nil
}

func distinctAccountIDs(lines []LineInput) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.AccountID]; ok {
			continue
		}
		seen[l.AccountID] = struct{}{}
		ids = append(ids, l.AccountID)
	}
	return ids
}

// entryValidator validates posting requests before anything is written
type entryValidator struct{}

func newEntryValidator() *entryValidator {
	return &entryValidator{}
}

// validateRequest rounds every amount to the persisted scale and checks the
// balance invariant with zero tolerance.
func (v *entryValidator) validateRequest(req PostingRequest) ([]LineInput, error) {
	if req.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ErrMissingTenant)
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, apperrors.Validation("description is required", ErrMissingDescription)
	}
	if len(req.Lines) == 0 {
		return nil, apperrors.Validation("journal entry needs at least one line", ErrNoLines)
	}

	lines := make([]LineInput, len(req.Lines))
	debitSum := decimal.Zero
	creditSum := decimal.Zero

	for i, l := range req.Lines {
		if l.AccountID == uuid.Nil {
			return nil, apperrors.Validation(fmt.Sprintf("line %d: account is required", i+1), ErrAccountNotFound)
		}

		debit := money.Round(l.Debit)
		credit := money.Round(l.Credit)

		if debit.IsNegative() || credit.IsNegative() {
			return nil, apperrors.Validation(fmt.Sprintf("line %d: amounts must not be negative", i+1), ErrNegativeAmount)
		}
		if debit.IsZero() && credit.IsZero() {
			return nil, apperrors.Validation(fmt.Sprintf("line %d: debit or credit is required", i+1), ErrEmptyLine)
		}

		l.Debit = debit
		l.Credit = credit
		lines[i] = l

		debitSum = debitSum.Add(debit)
		creditSum = creditSum.Add(credit)
	}

	if !debitSum.Equal(creditSum) {
		return nil, apperrors.LedgerUnbalanced(
			fmt.Sprintf("debit=%s, credit=%s", money.Format(debitSum), money.Format(creditSum)),
			ErrEntryNotBalanced,
		).WithDetail("debit", money.Format(debitSum)).
			WithDetail("credit", money.Format(creditSum))
	}

	return lines, nil
}

func (v *entryValidator) validateAccounts(tenantID uuid.UUID, lines []LineInput, accounts map[uuid.UUID]*Account) error {
	for i, l := range lines {
		account, ok := accounts[l.AccountID]
		if !ok || account.TenantID != tenantID {
			return apperrors.NotFound(fmt.Sprintf("line %d: account %s", i+1, l.AccountID), ErrAccountNotFound)
		}
		if !account.IsPostable() {
			return apperrors.Validation(
				fmt.Sprintf("line %d: account %s cannot be posted to", i+1, account.Code),
				ErrAccountNotPostable,
			)
		}
	}
	return nil
}

// entryCommitter applies the running-balance side of a posting
type entryCommitter struct {
	repo Repository
}

func newEntryCommitter(repo Repository) *entryCommitter {
	return &entryCommitter{repo: repo}
}

type balanceChange struct {
	accountID uuid.UUID
	debit     decimal.Decimal
	credit    decimal.Decimal
}

func (c *entryCommitter) updateBalances(ctx context.Context, entry *JournalEntry, accounts map[uuid.UUID]*Account) error {
	changes := make(map[uuid.UUID]*balanceChange)

	for _, line := range entry.Lines {
		bc, ok := changes[line.AccountID]
		if !ok {
			bc = &balanceChange{accountID: line.AccountID, debit: decimal.Zero, credit: decimal.Zero}
			changes[line.AccountID] = bc
		}
		bc.debit = bc.debit.Add(line.Debit)
		bc.credit = bc.credit.Add(line.Credit)
	}

	// Lock in a stable order so two entries touching the same accounts
	// cannot deadlock each other.
	ordered := make([]*balanceChange, 0, len(changes))
	for _, bc := range changes {
		ordered = append(ordered, bc)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].accountID[:], ordered[j].accountID[:]) < 0
	})

	for _, bc := range ordered {
		if err := c.applyBalanceChange(ctx, entry.TenantID, accounts[bc.accountID], bc); err != nil {
			return fmt.Errorf("failed to apply balance change for %s: %w", bc.accountID, err)
		}
	}

	return nil
}

func (c *entryCommitter) applyBalanceChange(ctx context.Context, tenantID uuid.UUID, account *Account, bc *balanceChange) error {
	// FOR UPDATE is only effective inside the transaction opened by PostJournalEntry
	current, err := c.repo.GetAccountBalanceForUpdate(ctx, tenantID, bc.accountID)
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	updated := &AccountBalance{
		TenantID:    tenantID,
		AccountID:   bc.accountID,
		DebitTotal:  current.DebitTotal.Add(bc.debit),
		CreditTotal: current.CreditTotal.Add(bc.credit),
		Balance:     current.Balance.Add(account.Type.SignedChange(bc.debit, bc.credit)),
		UpdatedAt:   time.Now().UTC(),
	}

	if err := c.repo.UpsertAccountBalance(ctx, updated); err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}

	return nil
}
