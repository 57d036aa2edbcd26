package dispatch

import "errors"

// Sentinel errors for the dispatch service layer. All are rejected
// synchronously before any state is mutated.
var (
	ErrNotFound       = errors.New("campaign not found")
	ErrNoContacts     = errors.New("campaign has no contacts to send")
	ErrNoTransport    = errors.New("no transport configured for sender")
	ErrScheduleInPast = errors.New("scheduled time is not in the future")
	ErrAlreadySending = errors.New("campaign is already sending")
	ErrNotRetryable   = errors.New("only completed or failed campaigns can be retried")
	ErrInFlight       = errors.New("dispatch already in flight for campaign")
)
