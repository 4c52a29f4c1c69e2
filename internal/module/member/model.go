package member

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the KYC state of a member
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusClosed   Status = "closed"
)

// Member is a cooperative member. EntryFee, InitialKitta and ShareClassID
// are captured at registration and acted on when KYC approves the member.
type Member struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	MemberNo        string
	FullName        string
	Status          Status
	EntryFee        decimal.Decimal
	InitialKitta    int64
	ShareClassID    *uuid.UUID
	PaysCash        bool
	EntryFeeEntryID *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RegisterParams is the input of Register
type RegisterParams struct {
	TenantID     uuid.UUID
	FullName     string
	EntryFee     decimal.Decimal
	InitialKitta int64
	ShareClassID *uuid.UUID
	PaysCash     bool
}

// Validate checks the parameters that do not need storage
func (p RegisterParams) Validate() error {
	if strings.TrimSpace(p.FullName) == "" {
		return ErrMissingName
	}
	if p.EntryFee.IsNegative() {
		return ErrNegativeEntryFee
	}
	if p.InitialKitta < 0 {
		return ErrNegativeKitta
	}
	if p.InitialKitta > 0 && (p.ShareClassID == nil || *p.ShareClassID == uuid.Nil) {
		return ErrMissingShareClass
	}
	return nil
}
