package meeting

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/coopledger/pkg/money"
)

// Status is the lifecycle state of a meeting
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusHeld      Status = "held"
	StatusCancelled Status = "cancelled"
	StatusSettled   Status = "settled"
)

// Meeting is a board or committee meeting whose attendees draw an allowance
type Meeting struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	MeetingNo        string
	Title            string
	ScheduledAt      time.Time
	AllowanceTaxRate decimal.Decimal
	Status           Status
	JournalEntryID   *uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Attendees        []*Attendee
}

// Attendee is one person's allowance for a meeting. TDS and Net are set at
// settlement.
type Attendee struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	MeetingID  uuid.UUID
	AttendeeID uuid.UUID
	Name       string
	Allowance  decimal.Decimal
	TDS        decimal.Decimal
	Net        decimal.Decimal
}

// ScheduleParams is the input of Schedule
type ScheduleParams struct {
	TenantID         uuid.UUID
	Title            string
	ScheduledAt      time.Time
	AllowanceTaxRate decimal.Decimal
}

// Validate checks the parameters that do not need storage
func (p ScheduleParams) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return ErrMissingTitle
	}
	if p.ScheduledAt.IsZero() {
		return ErrMissingSchedule
	}
	if p.AllowanceTaxRate.IsNegative() || p.AllowanceTaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return ErrInvalidTaxRate
	}
	return nil
}

// AttendeeParams is the input of AddAttendee
type AttendeeParams struct {
	TenantID   uuid.UUID
	MeetingID  uuid.UUID
	AttendeeID uuid.UUID
	Name       string
	Allowance  decimal.Decimal
}

// Validate checks the parameters that do not need storage
func (p AttendeeParams) Validate() error {
	if p.AttendeeID == uuid.Nil {
		return ErrMissingAttendee
	}
	if p.Allowance.IsNegative() {
		return ErrNegativeAllowance
	}
	return nil
}

// settle computes per-attendee TDS at the meeting's rate and returns the totals
func (m *Meeting) settle() (gross, tds, net decimal.Decimal) {
	gross, tds, net = decimal.Zero, decimal.Zero, decimal.Zero
	for _, a := range m.Attendees {
		a.TDS, a.Net = money.SplitTax(a.Allowance, m.AllowanceTaxRate)
		gross = gross.Add(money.Round(a.Allowance))
		tds = tds.Add(a.TDS)
		net = net.Add(a.Net)
	}
	return money.Round(gross), money.Round(tds), money.Round(net)
}
