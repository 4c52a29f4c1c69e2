package member

import "errors"

var (
	// Validation errors
	ErrMissingName       = errors.New("member name is required")
	ErrNegativeEntryFee  = errors.New("entry fee cannot be negative")
	ErrNegativeKitta     = errors.New("initial kitta cannot be negative")
	ErrMissingShareClass = errors.New("initial kitta needs a share class")
	ErrNoEntryFee        = errors.New("member has no entry fee to post")

	// Repository errors
	ErrMemberNotFound = errors.New("member not found")

	// State errors
	ErrNotApproved       = errors.New("member is not approved")
	ErrEntryFeeCollected = errors.New("entry fee already posted")
)
