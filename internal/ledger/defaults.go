package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Account codes of the default chart created for a new cooperative
const (
	CodeAssetsGroup      = "01-10000-00-0000"
	CodeCashInHand       = "01-10100-00-0001"
	CodeBank             = "01-10200-00-0001"
	CodeLoanReceivable   = "01-10500-00-0001"
	CodeLiabilitiesGroup = "01-20000-00-0000"
	CodeSavingDeposits   = "01-20100-00-0001"
	CodeTDSPayable       = "01-20500-00-0001"
	CodeSalaryPayable    = "01-20600-00-0001"
	CodeEquityGroup      = "01-30000-00-0000"
	CodeShareCapital     = "01-30100-00-0001"
	CodeIncomeGroup      = "01-40000-00-0000"
	CodeInterestIncome   = "01-40100-00-0001"
	CodeEntryFeeIncome   = "01-40200-00-0001"
	CodeExpenseGroup     = "01-50000-00-0000"
	CodeInterestExpense  = "01-50100-00-0001"
	CodeSalaryExpense    = "01-50200-00-0001"
	CodeAllowanceExpense = "01-50300-00-0001"
)

// AccountTemplate describes one account of the default chart
type AccountTemplate struct {
	Code       string
	Name       string
	Type       AccountType
	IsGroup    bool
	ParentCode string
}

// DefaultChart returns the chart created by Bootstrap, groups first
func DefaultChart() []AccountTemplate {
	return []AccountTemplate{
		{Code: CodeAssetsGroup, Name: "Assets", Type: AccountTypeAsset, IsGroup: true},
		{Code: CodeLiabilitiesGroup, Name: "Liabilities", Type: AccountTypeLiability, IsGroup: true},
		{Code: CodeEquityGroup, Name: "Equity", Type: AccountTypeEquity, IsGroup: true},
		{Code: CodeIncomeGroup, Name: "Income", Type: AccountTypeIncome, IsGroup: true},
		{Code: CodeExpenseGroup, Name: "Expenses", Type: AccountTypeExpense, IsGroup: true},

		{Code: CodeCashInHand, Name: "Cash in Hand", Type: AccountTypeAsset, ParentCode: CodeAssetsGroup},
		{Code: CodeBank, Name: "Bank Balance", Type: AccountTypeAsset, ParentCode: CodeAssetsGroup},
		{Code: CodeLoanReceivable, Name: "Loans to Members", Type: AccountTypeAsset, ParentCode: CodeAssetsGroup},
		{Code: CodeSavingDeposits, Name: "Member Savings Deposits", Type: AccountTypeLiability, ParentCode: CodeLiabilitiesGroup},
		{Code: CodeTDSPayable, Name: "TDS Payable", Type: AccountTypeLiability, ParentCode: CodeLiabilitiesGroup},
		{Code: CodeSalaryPayable, Name: "Salary Payable", Type: AccountTypeLiability, ParentCode: CodeLiabilitiesGroup},
		{Code: CodeShareCapital, Name: "Share Capital", Type: AccountTypeEquity, ParentCode: CodeEquityGroup},
		{Code: CodeInterestIncome, Name: "Interest Income on Loans", Type: AccountTypeIncome, ParentCode: CodeIncomeGroup},
		{Code: CodeEntryFeeIncome, Name: "Membership Entry Fee", Type: AccountTypeIncome, ParentCode: CodeIncomeGroup},
		{Code: CodeInterestExpense, Name: "Interest Expense on Savings", Type: AccountTypeExpense, ParentCode: CodeExpenseGroup},
		{Code: CodeSalaryExpense, Name: "Staff Salary", Type: AccountTypeExpense, ParentCode: CodeExpenseGroup},
		{Code: CodeAllowanceExpense, Name: "Meeting Allowance", Type: AccountTypeExpense, ParentCode: CodeExpenseGroup},
	}
}

// DefaultGeneralMappings are the tenant-wide roles wired by Bootstrap
func DefaultGeneralMappings() map[MappingKey]string {
	return map[MappingKey]string{
		MappingCash:             CodeCashInHand,
		MappingBank:             CodeBank,
		MappingTDSPayable:       CodeTDSPayable,
		MappingSalaryExpense:    CodeSalaryExpense,
		MappingSalaryPayable:    CodeSalaryPayable,
		MappingAllowanceExpense: CodeAllowanceExpense,
		MappingEntryFeeIncome:   CodeEntryFeeIncome,
	}
}

// Bootstrap creates the default chart and general mappings for a tenant.
// Accounts that already exist are kept, so running it twice is harmless.
// Product-specific mappings are left to product setup.
func (c *Chart) Bootstrap(ctx context.Context, tenantID uuid.UUID) (map[string]*Account, error) {
	created := make(map[string]*Account)

	for _, tpl := range DefaultChart() {
		account := &Account{
			TenantID: tenantID,
			Code:     tpl.Code,
			Name:     tpl.Name,
			Type:     tpl.Type,
			IsGroup:  tpl.IsGroup,
			IsActive: true,
		}
		if tpl.ParentCode != "" {
			parent, ok := created[tpl.ParentCode]
			if !ok {
				return nil, fmt.Errorf("default chart: parent %s of %s not created", tpl.ParentCode, tpl.Code)
			}
			account.ParentID = &parent.ID
		}

		acc, err := c.CreateAccount(ctx, account)
		if err != nil {
			if !errors.Is(err, ErrDuplicateAccountCode) {
				return nil, fmt.Errorf("default chart: %s: %w", tpl.Code, err)
			}
			acc, err = c.ResolveAccount(ctx, tenantID, tpl.Code, tpl.Type)
			if err != nil {
				return nil, err
			}
		}
		created[tpl.Code] = acc
	}

	for key, code := range DefaultGeneralMappings() {
		err := c.SetProductMapping(ctx, ProductGLMap{
			TenantID:    tenantID,
			ProductType: ProductGeneral,
			ProductID:   uuid.Nil,
			Key:         key,
			AccountCode: code,
		})
		if err != nil {
			return nil, fmt.Errorf("default mapping %s: %w", key, err)
		}
	}

	return created, nil
}
