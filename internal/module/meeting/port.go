package meeting

import (
	"context"

	"github.com/google/uuid"

	"github.com/kislikjeka/coopledger/internal/events"
	"github.com/kislikjeka/coopledger/internal/ledger"
)

// Repository defines the interface for meeting persistence operations.
// Methods join the transaction carried by ctx.
type Repository interface {
	CreateMeeting(ctx context.Context, m *Meeting) error
	// GetMeeting returns the meeting with its attendees
	GetMeeting(ctx context.Context, tenantID, id uuid.UUID) (*Meeting, error)
	// GetMeetingForUpdate locks the meeting row and loads its attendees
	GetMeetingForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Meeting, error)
	// UpdateMeeting saves status and journal entry, and the attendees' TDS and net
	UpdateMeeting(ctx context.Context, m *Meeting) error
	// AddAttendee returns ErrDuplicateAttendee for a second row of one attendee
	AddAttendee(ctx context.Context, a *Attendee) error
}

// Ledger is the part of the posting engine meeting settlement uses
type Ledger interface {
	PostJournalEntry(ctx context.Context, req ledger.PostingRequest) (*ledger.JournalEntry, error)
}

// Chart resolves the tenant-wide allowance accounts
type Chart interface {
	ResolveGeneralAccount(ctx context.Context, tenantID uuid.UUID, key ledger.MappingKey, expected ledger.AccountType) (*ledger.Account, error)
}

// NumberGenerator issues meeting numbers
type NumberGenerator interface {
	NextNumber(ctx context.Context, tenantID uuid.UUID, series string) (string, error)
}

// EventEmitter schedules domain events after commit
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}
