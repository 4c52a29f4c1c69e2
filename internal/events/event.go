// Package events carries domain events out of committed ledger operations.
// Emission is fire-and-forget: a publish failure is logged and counted but
// never fails the business transaction that produced the event.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type identifies what happened
type Type string

const (
	TypeDeposit          Type = "deposit"
	TypeWithdrawal       Type = "withdrawal"
	TypeInterestPosted   Type = "interest_posted"
	TypeSharePurchase    Type = "share_purchase"
	TypeShareReturn      Type = "share_return"
	TypeLoanDisbursement Type = "loan_disbursement"
	TypeLoanRepayment    Type = "loan_repayment"
	TypePayrollFinalized Type = "payroll_finalized"
	TypeAllowanceSettled Type = "allowance_settled"
	TypeMemberApproved   Type = "member_approved"
)

// Counterparty types
const (
	CounterpartyMember = "member"
	CounterpartyStaff  = "staff"
)

// Event is the payload handed to monitoring and compliance consumers
type Event struct {
	ID               uuid.UUID       `json:"id"`
	Type             Type            `json:"type"`
	TenantID         uuid.UUID       `json:"tenant_id"`
	MemberID         uuid.UUID       `json:"member_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	IsCash           bool            `json:"is_cash"`
	TransactionID    uuid.UUID       `json:"transaction_id"`
	TransactionNo    string          `json:"transaction_no,omitempty"`
	JournalEntryID   uuid.UUID       `json:"journal_entry_id"`
	OccurredOn       time.Time       `json:"occurred_on"`
	TransactionType  string          `json:"transaction_type"`
	CounterpartyType string          `json:"counterparty_type"`
}

// Publisher delivers events to a transport
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}
