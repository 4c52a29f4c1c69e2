package share

import "errors"

var (
	// Validation errors
	ErrInvalidKitta      = errors.New("kitta must be positive")
	ErrMissingMember     = errors.New("member ID is required")
	ErrMissingShareClass = errors.New("share class ID is required")

	// Repository errors
	ErrShareClassNotFound   = errors.New("share class not found")
	ErrShareAccountNotFound = errors.New("share account not found")

	// State errors
	ErrInsufficientKitta = errors.New("not enough kitta to return")
)
