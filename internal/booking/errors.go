package booking

import "errors"

// The lifecycle's failure kinds. Operations fail fast with one of these and
// leave the match unchanged; callers surface the kind to the user as-is.
var (
	ErrSlotConflict    = errors.New("an active match already occupies this slot")
	ErrIneligibleLevel = errors.New("player level outside the match bounds")
	ErrFull            = errors.New("match roster is full")
	ErrAlreadyJoined   = errors.New("player already occupies a slot")
	ErrNotFull         = errors.New("match roster is not full")
	ErrAlreadyPlayed   = errors.New("match has already been played")
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("actor lacks permission")

	// ErrPersistence wraps any storage failure, including malformed stored
	// records. Never swallowed.
	ErrPersistence = errors.New("persistence failure")
)
