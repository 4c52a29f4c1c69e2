package loan

import (
	"context"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/ledger"
)

// Repository defines the interface for loan persistence operations.
// Methods join the transaction carried by ctx.
type Repository interface {
	CreateProduct(ctx context.Context, product *Product) error
	GetProduct(ctx context.Context, tenantID, id uuid.UUID) (*Product, error)

	CreateApplication(ctx context.Context, app *Application) error
	GetApplication(ctx context.Context, tenantID, id uuid.UUID) (*Application, error)
	// GetApplicationForUpdate loads the application row under FOR UPDATE
	GetApplicationForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Application, error)
	UpdateApplication(ctx context.Context, app *Application) error
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status Status) error

	CreateSchedule(ctx context.Context, installments []*Installment) error
	ListSchedule(ctx context.Context, tenantID, loanID uuid.UUID) ([]*Installment, error)
	UpdateInstallment(ctx context.Context, installment *Installment) error
}

// Ledger is the part of the posting engine loan operations use
type Ledger interface {
	PostJournalEntry(ctx context.Context, req ledger.PostingRequest) (*ledger.JournalEntry, error)
}

// Chart resolves GL accounts for loan postings
type Chart interface {
	ResolveMappedAccount(ctx context.Context, tenantID uuid.UUID, productType ledger.ProductType, productID uuid.UUID, key ledger.MappingKey, expected ledger.AccountType) (*ledger.Account, error)
	ResolveGeneralAccount(ctx context.Context, tenantID uuid.UUID, key ledger.MappingKey, expected ledger.AccountType) (*ledger.Account, error)
}

// NumberGenerator issues loan numbers
type NumberGenerator interface {
	NextNumber(ctx context.Context, tenantID uuid.UUID, series string) (string, error)
}

// EventEmitter schedules domain events after commit
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}
