package meeting

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
const SourceType = "meeting"

// Service schedules meetings and settles attendance allowances
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

// NewService creates a new meeting service
func NewService(repo Repository, l Ledger, chart Chart, numbers NumberGenerator, emitter EventEmitter, runner *txn.Runner, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		ledger:  l,
		chart:   chart,
		numbers: numbers,
		events:  emitter,
		runner:  runner,
		logger:  log.WithField("component", "meeting"),
		now:     time.Now,
	}
}

// Schedule records a new meeting and allocates its MTG- number
func (s *Service) Schedule(ctx context.Context, p ScheduleParams) (*Meeting, error) {
	if p.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}
	if err := p.Validate(); err != nil {
		return nil, apperrors.Validation("invalid meeting", err)
	}

	var m *Meeting
	err := s.runner.Run(ctx, "meeting.schedule", func(ctx context.Context) error {
		meetingNo, err := s.numbers.NextNumber(ctx, p.TenantID, sequence.SeriesMeeting)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		m = &Meeting{
			ID:               uuid.New(),
			TenantID:         p.TenantID,
			MeetingNo:        meetingNo,
			Title:            p.Title,
			ScheduledAt:      p.ScheduledAt.UTC(),
			AllowanceTaxRate: p.AllowanceTaxRate,
			Status:           StatusScheduled,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.repo.CreateMeeting(ctx, m); err != nil {
			return fmt.Errorf("failed to create meeting: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("meeting scheduled", "meeting_no", m.MeetingNo, "scheduled_at", m.ScheduledAt)
	return m, nil
}

// AddAttendee records an attendee and the allowance they are owed. The
// meeting must not be cancelled or settled yet.
func (s *Service) AddAttendee(ctx context.Context, p AttendeeParams) (*Attendee, error) {
	if p.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}
	if err := p.Validate(); err != nil {
		return nil, apperrors.Validation("invalid attendee", err)
	}

	var a *Attendee
	err := s.runner.Run(ctx, "meeting.add_attendee", func(ctx context.Context) error {
		m, err := s.lock(ctx, p.TenantID, p.MeetingID)
		if err != nil {
			return err
		}
		if m.Status != StatusScheduled && m.Status != StatusHeld {
			return stateError(m, ErrClosed, StatusScheduled, StatusHeld)
		}

		a = &Attendee{
			ID:         uuid.New(),
			TenantID:   p.TenantID,
			MeetingID:  m.ID,
			AttendeeID: p.AttendeeID,
			Name:       p.Name,
			Allowance:  money.Round(p.Allowance),
		}
		if err := s.repo.AddAttendee(ctx, a); err != nil {
			if errors.Is(err, ErrDuplicateAttendee) {
				return apperrors.Conflict("attendee already recorded for "+m.MeetingNo, err)
			}
			return fmt.Errorf("failed to add attendee: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// MarkHeld records that a scheduled meeting took place
func (s *Service) MarkHeld(ctx context.Context, tenantID, meetingID uuid.UUID) (*Meeting, error) {
	return s.move(ctx, "meeting.mark_held", tenantID, meetingID, StatusHeld, ErrNotScheduled, StatusScheduled)
}

// Cancel calls off a scheduled meeting
func (s *Service) Cancel(ctx context.Context, tenantID, meetingID uuid.UUID) (*Meeting, error) {
	return s.move(ctx, "meeting.cancel", tenantID, meetingID, StatusCancelled, ErrNotScheduled, StatusScheduled)
}

// SettleAllowances pays the attendees of a held meeting:
// Dr allowance expense Σallowance, Cr TDS payable ΣTDS, Cr cash|bank Σnet.
func (s *Service) SettleAllowances(ctx context.Context, tenantID, meetingID uuid.UUID, isCash bool) (*Meeting, error) {
	if tenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}

	var m *Meeting
	err := s.runner.Run(ctx, "meeting.settle", func(ctx context.Context) error {
		var err error
		m, err = s.lock(ctx, tenantID, meetingID)
		if err != nil {
			return err
		}
		if m.Status != StatusHeld {
			return stateError(m, ErrNotHeld, StatusHeld)
		}
		if len(m.Attendees) == 0 {
			return apperrors.State("meeting "+m.MeetingNo+" has no attendees", ErrNoAttendees)
		}

		gross, tds, net := m.settle()
		if !gross.IsPositive() {
			return apperrors.State("meeting "+m.MeetingNo+" has no allowance to settle", ErrNothingToSettle)
		}

		expense, err := s.chart.ResolveGeneralAccount(ctx, tenantID, ledger.MappingAllowanceExpense, ledger.AccountTypeExpense)
		if err != nil {
			return err
		}
		settlement, err := s.chart.ResolveGeneralAccount(ctx, tenantID, ledger.SettlementKey(isCash), ledger.AccountTypeAsset)
		if err != nil {
			return err
		}

		lines := []ledger.LineInput{
			ledger.Debit(expense.ID, gross, "Meeting allowance "+m.MeetingNo),
		}
		if tds.IsPositive() {
			tdsAccount, err := s.chart.ResolveGeneralAccount(ctx, tenantID, ledger.MappingTDSPayable, ledger.AccountTypeLiability)
			if err != nil {
				return err
			}
			lines = append(lines, ledger.Credit(tdsAccount.ID, tds, "TDS on allowance "+m.MeetingNo))
		}
		lines = append(lines, ledger.Credit(settlement.ID, net, "Allowance paid "+m.MeetingNo))

		entry, err := s.ledger.PostJournalEntry(ctx, ledger.PostingRequest{
			TenantID:    tenantID,
			Description: fmt.Sprintf("Allowances for %s (%s)", m.MeetingNo, m.Title),
			SourceType:  SourceType,
			SourceID:    &m.ID,
			Lines:       lines,
		})
		if err != nil {
			return err
		}

		m.Status = StatusSettled
		m.JournalEntryID = &entry.ID
		m.UpdatedAt = s.now().UTC()
		if err := s.repo.UpdateMeeting(ctx, m); err != nil {
			return fmt.Errorf("failed to update meeting: %w", err)
		}

		s.events.Emit(ctx, events.Event{
			Type:             events.TypeAllowanceSettled,
			TenantID:         tenantID,
			Amount:           gross,
			IsCash:           isCash,
			TransactionID:    m.ID,
			TransactionNo:    m.MeetingNo,
			JournalEntryID:   entry.ID,
			CounterpartyType: events.CounterpartyMember,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("meeting allowances settled",
		"meeting_no", m.MeetingNo,
		"attendees", len(m.Attendees),
		"is_cash", isCash,
	)
	return m, nil
}

// Get returns a meeting with its attendees
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*Meeting, error) {
	m, err := s.repo.GetMeeting(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrMeetingNotFound) {
			return nil, apperrors.NotFound("meeting", err)
		}
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}
	return m, nil
}

func (s *Service) move(ctx context.Context, operation string, tenantID, meetingID uuid.UUID, to Status, sentinel error, from Status) (*Meeting, error) {
	var m *Meeting
	err := s.runner.Run(ctx, operation, func(ctx context.Context) error {
		var err error
		m, err = s.lock(ctx, tenantID, meetingID)
		if err != nil {
			return err
		}
		if m.Status != from {
			return stateError(m, sentinel, from)
		}
		m.Status = to
		m.UpdatedAt = s.now().UTC()
		if err := s.repo.UpdateMeeting(ctx, m); err != nil {
			return fmt.Errorf("failed to update meeting: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("meeting status changed", "meeting_no", m.MeetingNo, "status", m.Status)
	return m, nil
}

func (s *Service) lock(ctx context.Context, tenantID, id uuid.UUID) (*Meeting, error) {
	m, err := s.repo.GetMeetingForUpdate(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrMeetingNotFound) {
			return nil, apperrors.NotFound("meeting", err)
		}
		return nil, fmt.Errorf("failed to lock meeting: %w", err)
	}
	return m, nil
}

func stateError(m *Meeting, sentinel error, allowed ...Status) error {
	return apperrors.State(
		fmt.Sprintf("meeting %s is %s", m.MeetingNo, m.Status),
		sentinel,
	).WithDetail("current_state", string(m.Status)).
		WithDetail("allowed_states", allowed)
}
