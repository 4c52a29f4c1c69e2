package loan

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a loan scheme. InterestRate is an annual fraction.
type Product struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Name            string
	InterestRate    decimal.Decimal
	MaxTenureMonths int
	CreatedAt       time.Time
}

// Status is the lifecycle state of a loan application
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusDisbursed Status = "disbursed"
	StatusClosed    Status = "closed"
)

// Application is a member's loan from application to closure
type Application struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	MemberID          uuid.UUID
	ProductID         uuid.UUID
	LoanNo            string
	Principal         decimal.Decimal
	InterestRate      decimal.Decimal
	TenureMonths      int
	Outstanding       decimal.Decimal
	Status            Status
	DisburseCash      bool
	DisbursedOn       *time.Time
	DisbursementEntry *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AwaitingDisbursement reports whether the loan can be paid out. The
// approved → disbursed workflow transition saves the new status before its
// after hook posts the payout, so a disbursed loan without a disbursement
// entry is still awaiting it.
func (a *Application) AwaitingDisbursement() bool {
	if a.DisbursementEntry != nil {
		return false
	}
	return a.Status == StatusApproved || a.Status == StatusDisbursed
}

// Installment is one row of the EMI schedule
type Installment struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	LoanID         uuid.UUID
	InstallmentNo  int
	DueDate        time.Time
	Principal      decimal.Decimal
	Interest       decimal.Decimal
	Total          decimal.Decimal
	BalanceAfter   decimal.Decimal
	PaidOn         *time.Time
	JournalEntryID *uuid.UUID
}

// IsPaid reports whether the installment has been repaid
func (i *Installment) IsPaid() bool {
	return i.PaidOn != nil
}

// CreateParams is the input of CreateApplication
type CreateParams struct {
	TenantID     uuid.UUID
	MemberID     uuid.UUID
	ProductID    uuid.UUID
	Principal    decimal.Decimal
	TenureMonths int
	DisburseCash bool
}

// RepayParams is the input of RepayInstallment
type RepayParams struct {
	TenantID uuid.UUID
	LoanID   uuid.UUID
	IsCash   bool
}
