package savings

import "errors"

var (
	// Validation errors
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrMissingMember   = errors.New("member ID is required")
	ErrMissingProduct  = errors.New("saving product ID is required")
	ErrInvalidRate     = errors.New("rate must be between 0 and 1")
	ErrInvalidDays     = errors.New("accrual days must be positive")
	ErrNothingToPost   = errors.New("no interest to post")
	ErrMissingAsOfDate = errors.New("accrual date is required")

	// Repository errors
	ErrProductNotFound = errors.New("saving product not found")
	ErrAccountNotFound = errors.New("saving account not found")

	// State errors
	ErrAccountNotActive        = errors.New("saving account is not active")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrMinimumBalanceViolation = errors.New("withdrawal breaches minimum balance")
	ErrAlreadyAccrued          = errors.New("interest already accrued up to this date")
	ErrSubledgerMismatch       = errors.New("saving balance does not match the deposit ledger")
)
