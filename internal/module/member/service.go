package member

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
const SourceType = "member"

// Service registers members and collects their entry fee
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

// NewService creates a new member service
func NewService(repo Repository, l Ledger, chart Chart, numbers NumberGenerator, emitter EventEmitter, runner *txn.Runner, log *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		ledger:  l,
		chart:   chart,
		numbers: numbers,
		events:  emitter,
		runner:  runner,
		logger:  log.WithField("component", "member"),
		now:     time.Now,
	}
}

// Register records a pending member and allocates its MEM- number
func (s *Service) Register(ctx context.Context, p RegisterParams) (*Member, error) {
	if p.TenantID == uuid.Nil {
		return nil, apperrors.Validation("tenant is required", ledger.ErrMissingTenant)
	}
	if err := p.Validate(); err != nil {
		return nil, apperrors.Validation("invalid member", err)
	}

	var m *Member
	err := s.runner.Run(ctx, "member.register", func(ctx context.Context) error {
		memberNo, err := s.numbers.NextNumber(ctx, p.TenantID, sequence.SeriesMember)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		m = &Member{
			ID:           uuid.New(),
			TenantID:     p.TenantID,
			MemberNo:     memberNo,
			FullName:     p.FullName,
			Status:       StatusPending,
			EntryFee:     money.Round(p.EntryFee),
			InitialKitta: p.InitialKitta,
			ShareClassID: p.ShareClassID,
			PaysCash:     p.PaysCash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.Create(ctx, m); err != nil {
			return fmt.Errorf("failed to create member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("member registered", "member_no", m.MemberNo, "entry_fee", money.Format(m.EntryFee))
	return m, nil
}

// PostEntryFee books the entry fee of an approved member:
// Dr cash|bank, Cr entry fee income. A fee is posted at most once.
func (s *Service) PostEntryFee(ctx context.Context, tenantID, memberID uuid.UUID, isCash bool) (*Member, error) {
	var m *Member
	err := s.runner.Run(ctx, "member.entry_fee", func(ctx context.Context) error {
		var err error
		m, err = s.lock(ctx, tenantID, memberID)
		if err != nil {
			return err
		}
		if m.Status != StatusApproved {
			return apperrors.State(
				fmt.Sprintf("member %s is %s", m.MemberNo, m.Status),
				ErrNotApproved,
			).WithDetail("current_state", string(m.Status))
		}
		if m.EntryFeeEntryID != nil {
			return apperrors.State("entry fee of "+m.MemberNo+" already posted", ErrEntryFeeCollected).
				WithDetail("journal_entry_id", m.EntryFeeEntryID.String())
		}
		if !m.EntryFee.IsPositive() {
			return apperrors.Validation("member "+m.MemberNo+" has no entry fee", ErrNoEntryFee)
		}

		settlement, err := s.chart.ResolveGeneralAccount(ctx, tenantID, ledger.SettlementKey(isCash), ledger.AccountTypeAsset)
		if err != nil {
			return err
		}
		income, err := s.chart.ResolveGeneralAccount(ctx, tenantID, ledger.MappingEntryFeeIncome, ledger.AccountTypeIncome)
		if err != nil {
			return err
		}

		entry, err := s.ledger.PostJournalEntry(ctx, ledger.PostingRequest{
			TenantID:    tenantID,
			Description: "Entry fee " + m.MemberNo,
			SourceType:  SourceType,
			SourceID:    &m.ID,
			Lines: []ledger.LineInput{
				ledger.Debit(settlement.ID, m.EntryFee, "Entry fee received"),
				ledger.Credit(income.ID, m.EntryFee, "Entry fee "+m.MemberNo).
					For(ledger.SubledgerMember, m.ID),
			},
		})
		if err != nil {
			return err
		}

		m.EntryFeeEntryID = &entry.ID
		m.UpdatedAt = s.now().UTC()
		if err := s.repo.Update(ctx, m); err != nil {
			return fmt.Errorf("failed to update member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("entry fee posted", "member_no", m.MemberNo, "amount", money.Format(m.EntryFee))
	return m, nil
}

// Announce emits member_approved for an approved member once the
// surrounding transaction commits
func (s *Service) Announce(ctx context.Context, tenantID, memberID uuid.UUID) error {
	m, err := s.Get(ctx, tenantID, memberID)
	if err != nil {
		return err
	}
	if m.Status != StatusApproved {
		return nil
	}

	event := events.Event{
		Type:             events.TypeMemberApproved,
		TenantID:         tenantID,
		MemberID:         m.ID,
		Amount:           m.EntryFee,
		IsCash:           m.PaysCash,
		TransactionID:    m.ID,
		TransactionNo:    m.MemberNo,
		CounterpartyType: events.CounterpartyMember,
	}
	if m.EntryFeeEntryID != nil {
		event.JournalEntryID = *m.EntryFeeEntryID
	}
	s.events.Emit(ctx, event)
	return nil
}

// Get returns a member
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*Member, error) {
	m, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, apperrors.NotFound("member", err)
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

func (s *Service) lock(ctx context.Context, tenantID, id uuid.UUID) (*Member, error) {
	m, err := s.repo.GetForUpdate(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return nil, apperrors.NotFound("member", err)
		}
		return nil, fmt.Errorf("failed to lock member: %w", err)
	}
	return m, nil
}
