package savings

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/coopledger/pkg/money"
)

// DaysInYear is the day count basis of interest accrual
const DaysInYear = 365

// Product is a saving scheme. Rates are fractions: 0.06 is 6%.
type Product struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Name           string
	InterestRate   decimal.Decimal
	TaxRate        decimal.Decimal
	MinimumBalance decimal.Decimal
	CreatedAt      time.Time
}

// Validate checks rates and the minimum balance
func (p *Product) Validate() error {
	if p.InterestRate.IsNegative() {
		return ErrInvalidRate
	}
	if p.TaxRate.IsNegative() || p.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return ErrInvalidRate
	}
	if p.MinimumBalance.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// AccountStatus is the lifecycle state of a saving account
type AccountStatus string

const (
	AccountActive  AccountStatus = "active"
	AccountDormant AccountStatus = "dormant"
	AccountClosed  AccountStatus = "closed"
)

// Account is a member's saving account sub-ledger
type Account struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	MemberID        uuid.UUID
	ProductID       uuid.UUID
	AccountNo       string
	Balance         decimal.Decimal
	InterestAccrued decimal.Decimal
	Status          AccountStatus
	LastAccruedOn   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsActive reports whether the account accepts transactions
func (a *Account) IsActive() bool {
	return a.Status == AccountActive
}

// TransactionType is the kind of saving movement
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionInterest   TransactionType = "interest"
)

// Transaction is one movement on a saving account. For interest, Amount is
// the net credited and TDS the tax withheld.
type Transaction struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	AccountID      uuid.UUID
	TransactionNo  string
	Type           TransactionType
	Amount         decimal.Decimal
	TDS            decimal.Decimal
	BalanceAfter   decimal.Decimal
	IsCash         bool
	JournalEntryID uuid.UUID
	CreatedAt      time.Time
}

// OpenParams is the input of OpenAccount
type OpenParams struct {
	TenantID  uuid.UUID
	MemberID  uuid.UUID
	ProductID uuid.UUID
}

// TransactionParams is the input of Deposit and Withdraw
type TransactionParams struct {
	TenantID  uuid.UUID
	AccountID uuid.UUID
	Amount    decimal.Decimal
	IsCash    bool
	Remarks   string
}

// InterestParams is the input of PostInterest. A nil Gross posts the accrued interest.
type InterestParams struct {
	TenantID  uuid.UUID
	AccountID uuid.UUID
	Gross     *decimal.Decimal
}

// AccrualFor computes the memo interest on balance for the given days:
// balance × rate × days / 365, rounded once.
func AccrualFor(balance, rate decimal.Decimal, days int) decimal.Decimal {
	return money.Round(balance.Mul(rate).Mul(decimal.NewFromInt(int64(days))).Div(decimal.NewFromInt(DaysInYear)))
}
