package ledger

import "errors"

// Account errors
var (
	ErrMissingTenant        = errors.New("tenant ID is required")
	ErrInvalidAccountName   = errors.New("account name is required")
	ErrInvalidAccountType   = errors.New("invalid account type")
	ErrMalformedAccountCode = errors.New("malformed account code")
	ErrAccountTypeMismatch  = errors.New("account type mismatch")
	ErrAccountNotFound      = errors.New("account not found")
	ErrDuplicateAccountCode = errors.New("account code already exists")
	ErrAccountNotPostable   = errors.New("account is inactive or a group account")
)

// GL mapping errors
var (
	ErrInvalidProductType     = errors.New("invalid product type")
	ErrGLMappingNotConfigured = errors.New("GL mapping not configured")
)

// Journal entry errors
var (
	ErrNoLines              = errors.New("journal entry has no lines")
	ErrNegativeAmount       = errors.New("line amount cannot be negative")
	ErrEmptyLine            = errors.New("line has neither debit nor credit")
	ErrEntryNotBalanced     = errors.New("journal entry debits and credits do not balance")
	ErrMissingDescription   = errors.New("journal entry description is required")
	ErrJournalEntryNotFound = errors.New("journal entry not found")
	ErrAlreadyReversed      = errors.New("journal entry already reversed")
)

// Balance errors
var (
	ErrBalanceMismatch = errors.New("stored balance does not match journal lines")
)
