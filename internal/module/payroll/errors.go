package payroll

import "errors"

var (
	// Validation errors
	ErrMissingPeriod   = errors.New("payroll period is required")
	ErrNoItems         = errors.New("payroll run needs at least one item")
	ErrMissingEmployee = errors.New("employee ID is required")
	ErrInvalidGross    = errors.New("gross salary must be positive")
	ErrInvalidTaxRate  = errors.New("tax rate must be in [0, 1)")

	// Repository errors
	ErrRunNotFound     = errors.New("payroll run not found")
	ErrDuplicatePeriod = errors.New("payroll run already exists for period")

	// State errors
	ErrNotDraft = errors.New("payroll run is not a draft")
)
