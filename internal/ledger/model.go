package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType is the accounting class of a GL account
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeIncome    AccountType = "income"
	AccountTypeExpense   AccountType = "expense"
)

// IsValid checks if the account type is valid
func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// IsDebitNormal reports whether debits increase the account's balance.
func (t AccountType) IsDebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// SignedChange returns the balance movement a debit/credit pair causes on an
// account of this type.
func (t AccountType) SignedChange(debit, credit decimal.Decimal) decimal.Decimal {
	if t.IsDebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// accountTypeByClass maps the first digit of a GL head to its account type
var accountTypeByClass = map[byte]AccountType{
	'1': AccountTypeAsset,
	'2': AccountTypeLiability,
	'3': AccountTypeEquity,
	'4': AccountTypeIncome,
	'5': AccountTypeExpense,
}

// Account code field widths: BB-GGGGG-SS-NNNN
const (
	branchWidth  = 2
	glHeadWidth  = 5
	subTypeWidth = 2
	serialWidth  = 4
)

// AccountCode is a parsed structured account code.
type AccountCode struct {
	Branch  string
	GLHead  string
	SubType string
	Serial  string
}

// ParseAccountCode parses "BB-GGGGG-SS-NNNN". Every field must have its exact
// width and contain only digits.
func ParseAccountCode(code string) (AccountCode, error) {
	parts := strings.Split(code, "-")
	if len(parts) != 4 {
		return AccountCode{}, fmt.Errorf("%w: %q: expected 4 fields", ErrMalformedAccountCode, code)
	}

	widths := []int{branchWidth, glHeadWidth, subTypeWidth, serialWidth}
	names := []string{"branch", "gl head", "sub-type", "serial"}
	for i, part := range parts {
		if len(part) != widths[i] {
			return AccountCode{}, fmt.Errorf("%w: %q: %s must be %d digits", ErrMalformedAccountCode, code, names[i], widths[i])
		}
		for j := 0; j < len(part); j++ {
			if part[j] < '0' || part[j] > '9' {
				return AccountCode{}, fmt.Errorf("%w: %q: %s must be numeric", ErrMalformedAccountCode, code, names[i])
			}
		}
	}

	return AccountCode{
		Branch:  parts[0],
		GLHead:  parts[1],
		SubType: parts[2],
		Serial:  parts[3],
	}, nil
}

// String renders the code in its canonical form
func (c AccountCode) String() string {
	return fmt.Sprintf("%s-%s-%s-%s", c.Branch, c.GLHead, c.SubType, c.Serial)
}

// Type returns the account type implied by the GL head class digit
func (c AccountCode) Type() (AccountType, bool) {
	if len(c.GLHead) == 0 {
		return "", false
	}
	t, ok := accountTypeByClass[c.GLHead[0]]
	return t, ok
}

// Account is a node in a tenant's chart of accounts
type Account struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Code      string
	Name      string
	Type      AccountType
	IsGroup   bool
	IsActive  bool
	ParentID  *uuid.UUID
	CreatedAt time.Time
}

// Validate checks the account's code, type and their agreement
func (a *Account) Validate() error {
	if a.TenantID == uuid.Nil {
		return ErrMissingTenant
	}
	if strings.TrimSpace(a.Name) == "" {
		return ErrInvalidAccountName
	}
	if !a.Type.IsValid() {
		return ErrInvalidAccountType
	}

	code, err := ParseAccountCode(a.Code)
	if err != nil {
		return err
	}

	implied, ok := code.Type()
	if !ok || implied != a.Type {
		return fmt.Errorf("%w: code %s implies %q, account declares %q", ErrAccountTypeMismatch, a.Code, implied, a.Type)
	}

	return nil
}

// IsPostable reports whether journal lines may reference this account
func (a *Account) IsPostable() bool {
	return a.IsActive && !a.IsGroup
}

// AccountBalance is the running GL balance of one account
type AccountBalance struct {
	TenantID    uuid.UUID
	AccountID   uuid.UUID
	DebitTotal  decimal.Decimal
	CreditTotal decimal.Decimal
	Balance     decimal.Decimal
	UpdatedAt   time.Time
}

// SubledgerRef names the member-level entity a journal line moves
type SubledgerRef struct {
	Type string
	ID   uuid.UUID
}

// Sub-ledger types referenced by journal lines
const (
	SubledgerSavingAccount = "saving_account"
	SubledgerShareAccount  = "share_account"
	SubledgerLoan          = "loan"
	SubledgerMember        = "member"
)

// JournalLine is one debit or credit posting inside an entry
type JournalLine struct {
	ID        uuid.UUID
	EntryID   uuid.UUID
	LineNo    int
	AccountID uuid.UUID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Narration string
	Subledger *SubledgerRef
}

// JournalEntry is an immutable, balanced set of journal lines
type JournalEntry struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	EntryNo     string
	Description string
	PostingDate time.Time
	SourceType  string
	SourceID    *uuid.UUID
	ReversalOf  *uuid.UUID
	CreatedAt   time.Time
	Lines       []*JournalLine
}

// TotalDebit sums the debit side of the entry
func (e *JournalEntry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// TotalCredit sums the credit side of the entry
func (e *JournalEntry) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// LineInput is a caller-supplied journal line
type LineInput struct {
	AccountID uuid.UUID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Narration string
	Subledger *SubledgerRef
}

// Debit builds a debit line
func Debit(accountID uuid.UUID, amount decimal.Decimal, narration string) LineInput {
	return LineInput{AccountID: accountID, Debit: amount, Narration: narration}
}

// Credit builds a credit line
func Credit(accountID uuid.UUID, amount decimal.Decimal, narration string) LineInput {
	return LineInput{AccountID: accountID, Credit: amount, Narration: narration}
}

// For tags a line with the sub-ledger entity it moves
func (l LineInput) For(subledgerType string, id uuid.UUID) LineInput {
	l.Subledger = &SubledgerRef{Type: subledgerType, ID: id}
	return l
}

// PostingRequest is the input of the posting engine
type PostingRequest struct {
	TenantID    uuid.UUID
	Description string
	Lines       []LineInput
	PostingDate *time.Time
	SourceType  string
	SourceID    *uuid.UUID

	reversalOf *uuid.UUID
}

// ProductType identifies what kind of business product a GL mapping belongs to
type ProductType string

const (
	// ProductGeneral holds tenant-wide mappings (cash, bank, TDS payable ...)
	// under the nil product id.
	ProductGeneral ProductType = "general"
	ProductSaving  ProductType = "saving"
	ProductLoan    ProductType = "loan"
	ProductShare   ProductType = "share"
)

// IsValid checks if the product type is valid
func (p ProductType) IsValid() bool {
	switch p {
	case ProductGeneral, ProductSaving, ProductLoan, ProductShare:
		return true
	}
	return false
}

// MappingKey names the role an account plays for a product
type MappingKey string

const (
	MappingCash             MappingKey = "cash"
	MappingBank             MappingKey = "bank"
	MappingTDSPayable       MappingKey = "tds_payable"
	MappingSalaryExpense    MappingKey = "salary_expense"
	MappingSalaryPayable    MappingKey = "salary_payable"
	MappingAllowanceExpense MappingKey = "allowance_expense"
	MappingEntryFeeIncome   MappingKey = "entry_fee_income"
	MappingDepositLiability MappingKey = "deposit_liability"
	MappingInterestExpense  MappingKey = "interest_expense"
	MappingShareCapital     MappingKey = "share_capital"
	MappingLoanReceivable   MappingKey = "loan_receivable"
	MappingInterestIncome   MappingKey = "interest_income"
)

// SettlementKey returns the mapping used for the cash side of a transaction
func SettlementKey(isCash bool) MappingKey {
	if isCash {
		return MappingCash
	}
	return MappingBank
}

// ProductGLMap links a product and role to an account code
type ProductGLMap struct {
	TenantID    uuid.UUID
	ProductType ProductType
	ProductID   uuid.UUID
	Key         MappingKey
	AccountCode string
	UpdatedAt   time.Time
}

// JournalFilters defines filters for listing journal entries
type JournalFilters struct {
	TenantID   uuid.UUID
	AccountID  *uuid.UUID
	SourceType *string
	SourceID   *uuid.UUID
	FromDate   *time.Time
	ToDate     *time.Time
	Limit      int
	Offset     int
}
