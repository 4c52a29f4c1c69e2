package share

import (
	"context"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/ledger"
)

// Repository defines the interface for share persistence operations.
// Methods join the transaction carried by ctx.
type Repository interface {
	CreateClass(ctx context.Context, class *Class) error
	GetClass(ctx context.Context, tenantID, id uuid.UUID) (*Class, error)

	// GetOrCreateAccountForUpdate returns the locked holding of a member in a
	// class, inserting an empty one first when it does not exist yet.
	GetOrCreateAccountForUpdate(ctx context.Context, account *Account) (*Account, error)
	GetAccountForUpdate(ctx context.Context, tenantID, memberID, classID uuid.UUID) (*Account, error)
	GetAccount(ctx context.Context, tenantID, id uuid.UUID) (*Account, error)
	UpdateAccount(ctx context.Context, account *Account) error

	CreateTransaction(ctx context.Context, tx *Transaction) error
	ListTransactions(ctx context.Context, tenantID, accountID uuid.UUID) ([]*Transaction, error)
}

// Ledger is the part of the posting engine share operations use
type Ledger interface {
	PostJournalEntry(ctx context.Context, req ledger.PostingRequest) (*ledger.JournalEntry, error)
}

// Chart resolves GL accounts for share postings
type Chart interface {
	ResolveMappedAccount(ctx context.Context, tenantID uuid.UUID, productType ledger.ProductType, productID uuid.UUID, key ledger.MappingKey, expected ledger.AccountType) (*ledger.Account, error)
	ResolveGeneralAccount(ctx context.Context, tenantID uuid.UUID, key ledger.MappingKey, expected ledger.AccountType) (*ledger.Account, error)
}

// NumberGenerator issues certificate and transaction numbers
type NumberGenerator interface {
	NextNumber(ctx context.Context, tenantID uuid.UUID, series string) (string, error)
}

// EventEmitter schedules domain events after commit
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}
