// Package ledgertest provides in-memory ledger collaborators for unit tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/coopledger/internal/ledger"
)

// Repository is an in-memory ledger.Repository. It ignores transactions, so
// tests exercising rollback belong in the postgres integration suite.
type Repository struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*ledger.Account
	mappings map[string]*ledger.ProductGLMap
	entries  []*ledger.JournalEntry
	balances map[uuid.UUID]*ledger.AccountBalance

	// FailCreateEntry makes CreateJournalEntry return this error when set.
	FailCreateEntry error
}

// NewRepository returns an empty repository
func NewRepository() *Repository {
	return &Repository{
		accounts: make(map[uuid.UUID]*ledger.Account),
		mappings: make(map[string]*ledger.ProductGLMap),
		balances: make(map[uuid.UUID]*ledger.AccountBalance),
	}
}

func mappingKey(tenantID uuid.UUID, productType ledger.ProductType, productID uuid.UUID, key ledger.MappingKey) string {
	return fmt.Sprintf("%s|%s|%s|%s", tenantID, productType, productID, key)
}

func (r *Repository) CreateAccount(ctx context.Context, account *ledger.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if a.TenantID == account.TenantID && a.Code == account.Code {
			return ledger.ErrDuplicateAccountCode
		}
	}
	cp := *account
	r.accounts[account.ID] = &cp
	r.balances[account.ID] = &ledger.AccountBalance{
		TenantID:    account.TenantID,
		AccountID:   account.ID,
		DebitTotal:  decimal.Zero,
		CreditTotal: decimal.Zero,
		Balance:     decimal.Zero,
	}
	return nil
}

func (r *Repository) GetAccount(ctx context.Context, tenantID, id uuid.UUID) (*ledger.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok || a.TenantID != tenantID {
		return nil, ledger.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *Repository) GetAccountByCode(ctx context.Context, tenantID uuid.UUID, code string) (*ledger.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if a.TenantID == tenantID && a.Code == code {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ledger.ErrAccountNotFound
}

func (r *Repository) GetAccountsForPosting(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*ledger.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[uuid.UUID]*ledger.Account, len(ids))
	for _, id := range ids {
		if a, ok := r.accounts[id]; ok && a.TenantID == tenantID {
			cp := *a
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *Repository) ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]*ledger.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*ledger.Account
	for _, a := range r.accounts {
		if a.TenantID == tenantID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *Repository) SetAccountActive(ctx context.Context, tenantID, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok || a.TenantID != tenantID {
		return ledger.ErrAccountNotFound
	}
	a.IsActive = active
	return nil
}

func (r *Repository) UpsertProductMapping(ctx context.Context, m *ledger.ProductGLMap) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *m
	r.mappings[mappingKey(m.TenantID, m.ProductType, m.ProductID, m.Key)] = &cp
	return nil
}

func (r *Repository) GetProductMapping(ctx context.Context, tenantID uuid.UUID, productType ledger.ProductType, productID uuid.UUID, key ledger.MappingKey) (*ledger.ProductGLMap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mappings[mappingKey(tenantID, productType, productID, key)]
	if !ok {
		return nil, ledger.ErrGLMappingNotConfigured
	}
	cp := *m
	return &cp, nil
}

func (r *Repository) CreateJournalEntry(ctx context.Context, entry *ledger.JournalEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailCreateEntry != nil {
		return r.FailCreateEntry
	}
	if entry.ReversalOf != nil {
		for _, e := range r.entries {
			if e.ReversalOf != nil && *e.ReversalOf == *entry.ReversalOf {
				return ledger.ErrAlreadyReversed
			}
		}
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *Repository) GetJournalEntry(ctx context.Context, tenantID, id uuid.UUID) (*ledger.JournalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.ID == id && e.TenantID == tenantID {
			return e, nil
		}
	}
	return nil, ledger.ErrJournalEntryNotFound
}

func (r *Repository) FindReversal(ctx context.Context, tenantID, entryID uuid.UUID) (*ledger.JournalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.TenantID == tenantID && e.ReversalOf != nil && *e.ReversalOf == entryID {
			return e, nil
		}
	}
	return nil, ledger.ErrJournalEntryNotFound
}

func (r *Repository) ListJournalEntries(ctx context.Context, filters ledger.JournalFilters) ([]*ledger.JournalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*ledger.JournalEntry
	for _, e := range r.entries {
		if e.TenantID != filters.TenantID {
			continue
		}
		if filters.SourceType != nil && e.SourceType != *filters.SourceType {
			continue
		}
		if filters.SourceID != nil && (e.SourceID == nil || *e.SourceID != *filters.SourceID) {
			continue
		}
		if filters.AccountID != nil && !touches(e, *filters.AccountID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func touches(e *ledger.JournalEntry, accountID uuid.UUID) bool {
	for _, l := range e.Lines {
		if l.AccountID == accountID {
			return true
		}
	}
	return false
}

func (r *Repository) GetAccountBalance(ctx context.Context, tenantID, accountID uuid.UUID) (*ledger.AccountBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.balances[accountID]
	if !ok || b.TenantID != tenantID {
		return &ledger.AccountBalance{TenantID: tenantID, AccountID: accountID}, nil
	}
	cp := *b
	return &cp, nil
}

func (r *Repository) GetAccountBalanceForUpdate(ctx context.Context, tenantID, accountID uuid.UUID) (*ledger.AccountBalance, error) {
	return r.GetAccountBalance(ctx, tenantID, accountID)
}

func (r *Repository) UpsertAccountBalance(ctx context.Context, balance *ledger.AccountBalance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *balance
	r.balances[balance.AccountID] = &cp
	return nil
}

func (r *Repository) CalculateBalanceFromLines(ctx context.Context, tenantID, accountID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range r.entries {
		if e.TenantID != tenantID {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == accountID {
				debit = debit.Add(l.Debit)
				credit = credit.Add(l.Credit)
			}
		}
	}
	return debit, credit, nil
}

func (r *Repository) SumSubledgerLines(ctx context.Context, tenantID, accountID uuid.UUID, ref ledger.SubledgerRef) (decimal.Decimal, decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range r.entries {
		if e.TenantID != tenantID {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID == accountID && l.Subledger != nil && *l.Subledger == ref {
				debit = debit.Add(l.Debit)
				credit = credit.Add(l.Credit)
			}
		}
	}
	return debit, credit, nil
}

// Entries returns every stored entry in insertion order
func (r *Repository) Entries() []*ledger.JournalEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*ledger.JournalEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Numbers is an in-memory ledger.NumberGenerator producing series-000001
// style numbers, e.g. journal-000001.
type Numbers struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewNumbers returns a fresh generator
func NewNumbers() *Numbers {
	return &Numbers{counters: make(map[string]int64)}
}

func (n *Numbers) NextNumber(ctx context.Context, tenantID uuid.UUID, series string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	key := tenantID.String() + "|" + series
	n.counters[key]++
	return fmt.Sprintf("%s-%06d", series, n.counters[key]), nil
}
