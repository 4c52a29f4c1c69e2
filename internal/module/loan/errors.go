package loan

import "errors"

var (
	// Validation errors
	ErrInvalidPrincipal = errors.New("principal must be positive")
	ErrInvalidTenure    = errors.New("tenure must be positive and within the product maximum")
	ErrInvalidRate      = errors.New("interest rate cannot be negative")
	ErrMissingMember    = errors.New("member ID is required")
	ErrMissingProduct   = errors.New("loan product ID is required")

	// Repository errors
	ErrProductNotFound     = errors.New("loan product not found")
	ErrApplicationNotFound = errors.New("loan application not found")

	// State errors
	ErrNotApproved      = errors.New("loan is not approved for disbursement")
	ErrNotDisbursed     = errors.New("loan is not disbursed")
	ErrNoInstallmentDue = errors.New("loan has no unpaid installment")
)
