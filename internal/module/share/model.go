package share

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/coopledger/pkg/money"
)

// Class is a share class with a fixed unit price per kitta
type Class struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	UnitPrice decimal.Decimal
	CreatedAt time.Time
}

// Account is a member's holding in one share class
type Account struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	MemberID     uuid.UUID
	ShareClassID uuid.UUID
	TotalKitta   int64
	Amount       decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TransactionType is the direction of a share movement
type TransactionType string

const (
	TransactionPurchase TransactionType = "purchase"
	TransactionReturn   TransactionType = "return"
)

// Transaction is one share issue or return
type Transaction struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ShareAccountID uuid.UUID
	MemberID       uuid.UUID
	TransactionNo  string
	CertificateNo  *string
	Type           TransactionType
	Kitta          int64
	UnitPrice      decimal.Decimal
	Amount         decimal.Decimal
	IsCash         bool
	JournalEntryID uuid.UUID
	CreatedAt      time.Time
}

// IssueParams is the input of IssueShares
type IssueParams struct {
	TenantID     uuid.UUID
	MemberID     uuid.UUID
	ShareClassID uuid.UUID
	Kitta        int64
	IsCash       bool
	Remarks      string
}

// Validate checks the parameters that do not need storage
func (p IssueParams) Validate() error {
	return validateMovement(p.MemberID, p.ShareClassID, p.Kitta)
}

// ReturnParams is the input of ReturnShares
type ReturnParams struct {
	TenantID     uuid.UUID
	MemberID     uuid.UUID
	ShareClassID uuid.UUID
	Kitta        int64
	IsCash       bool
	Remarks      string
}

// Validate checks the parameters that do not need storage
func (p ReturnParams) Validate() error {
	return validateMovement(p.MemberID, p.ShareClassID, p.Kitta)
}

func validateMovement(memberID, classID uuid.UUID, kitta int64) error {
	if memberID == uuid.Nil {
		return ErrMissingMember
	}
	if classID == uuid.Nil {
		return ErrMissingShareClass
	}
	if kitta <= 0 {
		return ErrInvalidKitta
	}
	return nil
}

// Value returns the money value of kitta units at the class price
func (c *Class) Value(kitta int64) decimal.Decimal {
	return money.Round(c.UnitPrice.Mul(decimal.NewFromInt(kitta)))
}
