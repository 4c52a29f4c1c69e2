package member

import (
	"context"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/ledger"
	"github.com/kislikjeka/coopledger/internal/module/share"
)

// Repository defines the interface for member persistence operations.
// Methods join the transaction carried by ctx.
type Repository interface {
	Create(ctx context.Context, m *Member) error
	Get(ctx context.Context, tenantID, id uuid.UUID) (*Member, error)
	// GetForUpdate loads the member row under FOR UPDATE
	GetForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Member, error)
	Update(ctx context.Context, m *Member) error
	UpdateStatus(ctx context.Context, tenantID, id uuid.UUID, status Status) error
}

// Ledger is the part of the posting engine member operations use
type Ledger interface {
	PostJournalEntry(ctx context.Context, req ledger.PostingRequest) (*ledger.JournalEntry, error)
}

// Chart resolves the tenant-wide accounts for the entry fee
type Chart interface {
	ResolveGeneralAccount(ctx context.Context, tenantID uuid.UUID, key ledger.MappingKey, expected ledger.AccountType) (*ledger.Account, error)
}

// NumberGenerator issues member numbers
type NumberGenerator interface {
	NextNumber(ctx context.Context, tenantID uuid.UUID, series string) (string, error)
}

// EventEmitter schedules domain events after commit
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}

// ShareIssuer sells the initial shares of an approved member
type ShareIssuer interface {
	IssueShares(ctx context.Context, p share.IssueParams) (*share.Transaction, error)
}
