package payroll

import (
	"context"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/ledger"
)

// Repository defines the interface for payroll persistence operations.
// Methods join the transaction carried by ctx.
type Repository interface {
	// CreateRun inserts the run and its items. A second run for the same
	// period returns ErrDuplicatePeriod.
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, tenantID, id uuid.UUID) (*Run, error)
	// GetRunForUpdate loads the run row under FOR UPDATE, with its items
	GetRunForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Run, error)
	// UpdateRun saves the run's status, totals and the items' TDS and net
	UpdateRun(ctx context.Context, run *Run) error
}

// Ledger is the part of the posting engine payroll uses
type Ledger interface {
	PostJournalEntry(ctx context.Context, req ledger.PostingRequest) (*ledger.JournalEntry, error)
}

// Chart resolves the tenant-wide salary accounts
type Chart interface {
	ResolveGeneralAccount(ctx context.Context, tenantID uuid.UUID, key ledger.MappingKey, expected ledger.AccountType) (*ledger.Account, error)
}

// EventEmitter schedules domain events after commit
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}
