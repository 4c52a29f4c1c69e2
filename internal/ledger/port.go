package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository defines the interface for ledger persistence operations.
// Every method joins the transaction carried by ctx when there is one.
type Repository interface {
	// Account operations
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, tenantID, id uuid.UUID) (*Account, error)
	GetAccountByCode(ctx context.Context, tenantID uuid.UUID, code string) (*Account, error)
	// GetAccountsForPosting loads and share-locks the accounts referenced by an entry.
	GetAccountsForPosting(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]*Account, error)
	ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]*Account, error)
	SetAccountActive(ctx context.Context, tenantID, id uuid.UUID, active bool) error

	// Product-GL map operations
	UpsertProductMapping(ctx context.Context, m *ProductGLMap) error
	GetProductMapping(ctx context.Context, tenantID uuid.UUID, productType ProductType, productID uuid.UUID, key MappingKey) (*ProductGLMap, error)

	// Journal operations (entries are immutable once written)
	CreateJournalEntry(ctx context.Context, entry *JournalEntry) error
	GetJournalEntry(ctx context.Context, tenantID, id uuid.UUID) (*JournalEntry, error)
	FindReversal(ctx context.Context, tenantID, entryID uuid.UUID) (*JournalEntry, error)
	ListJournalEntries(ctx context.Context, filters JournalFilters) ([]*JournalEntry, error)

	// Balance operations
	GetAccountBalance(ctx context.Context, tenantID, accountID uuid.UUID) (*AccountBalance, error)
	GetAccountBalanceForUpdate(ctx context.Context, tenantID, accountID uuid.UUID) (*AccountBalance, error)
	UpsertAccountBalance(ctx context.Context, balance *AccountBalance) error
	CalculateBalanceFromLines(ctx context.Context, tenantID, accountID uuid.UUID) (debit, credit decimal.Decimal, err error)
	SumSubledgerLines(ctx context.Context, tenantID, accountID uuid.UUID, ref SubledgerRef) (debit, credit decimal.Decimal, err error)
}

// AccountCache caches chart-of-accounts lookups. Implementations are
// best-effort: callers fall back to the repository on any error.
type AccountCache interface {
	GetAccount(ctx context.Context, tenantID uuid.UUID, code string) (*Account, bool, error)
	SetAccount(ctx context.Context, account *Account) error
	DeleteAccount(ctx context.Context, tenantID uuid.UUID, code string) error
	GetMapping(ctx context.Context, tenantID uuid.UUID, productType ProductType, productID uuid.UUID, key MappingKey) (string, bool, error)
	SetMapping(ctx context.Context, m *ProductGLMap) error
	DeleteMapping(ctx context.Context, tenantID uuid.UUID, productType ProductType, productID uuid.UUID, key MappingKey) error
}

// NumberGenerator issues human-readable sequence numbers
type NumberGenerator interface {
	NextNumber(ctx context.Context, tenantID uuid.UUID, series string) (string, error)
}

// SeriesJournal is the sequence series for journal entry numbers
const SeriesJournal = "journal"
