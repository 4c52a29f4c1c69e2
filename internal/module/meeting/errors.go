package meeting

import "errors"

var (
	// Validation errors
	ErrMissingTitle      = errors.New("meeting title is required")
	ErrMissingSchedule   = errors.New("meeting time is required")
	ErrInvalidTaxRate    = errors.New("allowance tax rate must be in [0, 1)")
	ErrMissingAttendee   = errors.New("attendee ID is required")
	ErrNegativeAllowance = errors.New("allowance cannot be negative")
	ErrNothingToSettle   = errors.New("meeting has no allowance to settle")
	ErrNoAttendees       = errors.New("meeting has no attendees")

	// Repository errors
	ErrMeetingNotFound   = errors.New("meeting not found")
	ErrDuplicateAttendee = errors.New("attendee already recorded for meeting")

	// State errors
	ErrNotScheduled = errors.New("meeting is not scheduled")
	ErrNotHeld      = errors.New("meeting has not been held")
	ErrClosed       = errors.New("meeting is cancelled or settled")
)
