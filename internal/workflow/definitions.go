package workflow

// Shipped workflow names
const (
	WorkflowMemberKYC       = "member_kyc"
	WorkflowLoanApplication = "loan_application"
)

// Entity types
const (
	EntityMember = "member"
	EntityLoan   = "loan_application"
)

// Hook names referenced by the shipped workflows
const (
	HookPostEntryFee       = "post_entry_fee"
	HookIssueInitialShares = "issue_initial_shares"
	HookAnnounce           = "announce"
	HookDisburseLoan       = "disburse_loan"
)

// Roles
const (
	RoleManager         = "manager"
	RoleCreditCommittee = "credit_committee"
)

// DefaultHistoryTable is where transitions are logged unless a store says otherwise
const DefaultHistoryTable = "workflow_history"

// MemberKYC is the member onboarding workflow. Approval posts the entry fee
// and issues the initial shares, both as critical hooks.
func MemberKYC() Definition {
	return Definition{
		Name:         WorkflowMemberKYC,
		EntityType:   EntityMember,
		InitialState: "pending",
		States: []State{
			{Name: "pending"},
			{Name: "approved"},
			{Name: "rejected", Terminal: true},
			{Name: "closed", Terminal: true},
		},
		Transitions: []Transition{
			{
				From:       "pending",
				To:         "approved",
				Roles:      []string{RoleManager},
				Conditions: []Condition{{Field: "entryFee", Operator: OpGreaterThan, Value: 0}},
				AfterHooks: []string{HookPostEntryFee, HookIssueInitialShares},
			},
			{From: "pending", To: "rejected"},
			{From: "approved", To: "closed"},
		},
		AfterHooks: []string{HookAnnounce},
	}
}

// LoanApplication is the loan lifecycle. Reaching disbursed posts the payout.
func LoanApplication() Definition {
	return Definition{
		Name:         WorkflowLoanApplication,
		EntityType:   EntityLoan,
		InitialState: "draft",
		States: []State{
			{Name: "draft"},
			{Name: "submitted"},
			{Name: "approved"},
			{Name: "rejected", Terminal: true},
			{Name: "disbursed"},
			{Name: "closed", Terminal: true},
		},
		Transitions: []Transition{
			{From: "draft", To: "submitted"},
			{
				From:       "submitted",
				To:         "approved",
				Roles:      []string{RoleCreditCommittee},
				Conditions: []Condition{{Field: "principal", Operator: OpGreaterThan, Value: 0}},
			},
			{From: "submitted", To: "rejected"},
			{From: "approved", To: "disbursed", AfterHooks: []string{HookDisburseLoan}},
			{
				From:       "disbursed",
				To:         "closed",
				Conditions: []Condition{{Field: "outstanding", Operator: OpEquals, Value: 0}},
			},
		},
	}
}

// Defaults returns the shipped workflow definitions
func Defaults() []Definition {
	return []Definition{MemberKYC(), LoanApplication()}
}
