package savings

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/ledger"
)

// Repository defines the interface for savings persistence operations.
// Methods join the transaction carried by ctx.
type Repository interface {
	CreateProduct(ctx context.Context, product *Product) error
	GetProduct(ctx context.Context, tenantID, id uuid.UUID) (*Product, error)

	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, tenantID, id uuid.UUID) (*Account, error)
	// GetAccountForUpdate loads the account row under FOR UPDATE
	GetAccountForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Account, error)
	UpdateAccount(ctx context.Context, account *Account) error

	CreateTransaction(ctx context.Context, tx *Transaction) error
	ListTransactions(ctx context.Context, tenantID, accountID uuid.UUID) ([]*Transaction, error)
}

// Ledger is the part of the posting engine savings operations use
type Ledger interface {
	PostJournalEntry(ctx context.Context, req ledger.PostingRequest) (*ledger.JournalEntry, error)
	SubledgerNet(ctx context.Context, tenantID, accountID uuid.UUID, ref ledger.SubledgerRef) (decimal.Decimal, error)
}

// Chart resolves GL accounts for savings postings
type Chart interface {
	ResolveMappedAccount(ctx context.Context, tenantID uuid.UUID, productType ledger.ProductType, productID uuid.UUID, key ledger.MappingKey, expected ledger.AccountType) (*ledger.Account, error)
	ResolveGeneralAccount(ctx context.Context, tenantID uuid.UUID, key ledger.MappingKey, expected ledger.AccountType) (*ledger.Account, error)
}

// NumberGenerator issues account and transaction numbers
type NumberGenerator interface {
	NextNumber(ctx context.Context, tenantID uuid.UUID, series string) (string, error)
}

// EventEmitter schedules domain events after commit
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}
