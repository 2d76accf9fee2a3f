package scheduling

import "errors"

// Kind classifies a scheduling failure so transports can map it to a status code.
type Kind string

const (
	KindInvalidRange       Kind = "invalid_range"
	KindInvalidInput       Kind = "invalid_input"
	KindDuplicate          Kind = "duplicate"
	KindConflict           Kind = "conflict"
	KindSlotUnavailable    Kind = "slot_unavailable"
	KindNotFound           Kind = "not_found"
	KindForbidden          Kind = "forbidden"
	KindUnauthenticated    Kind = "unauthenticated"
	KindInvalidTransition  Kind = "invalid_transition"
	KindStorageUnavailable Kind = "storage_unavailable"
)

// Error is a sentinel carrying its Kind. Compare with errors.Is against the vars below.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

var (
	ErrInvalidRange     = newError(KindInvalidRange, "start time must be before end time")
	ErrInvalidInput     = newError(KindInvalidInput, "invalid input")
	ErrInvalidRating    = newError(KindInvalidInput, "rating must be between 1 and 5")
	ErrDuplicateSlot    = newError(KindDuplicate, "availability window already exists for this weekday and start time")
	ErrDuplicateReview  = newError(KindDuplicate, "review already exists for this booking")
	ErrDuplicateProfile = newError(KindDuplicate, "provider profile already exists")
	ErrSlotConflict     = newError(KindConflict, "requested time overlaps an existing booking")
	ErrSlotUnavailable  = newError(KindSlotUnavailable, "requested time is outside the provider's availability")

	ErrProviderNotFound = newError(KindNotFound, "provider not found")
	ErrWindowNotFound   = newError(KindNotFound, "availability window not found")
	ErrBookingNotFound  = newError(KindNotFound, "booking not found")
	ErrReviewNotFound   = newError(KindNotFound, "review not found")

	ErrForbidden       = newError(KindForbidden, "not allowed for this principal")
	ErrUnauthenticated = newError(KindUnauthenticated, "unauthenticated")

	ErrInvalidTransition   = newError(KindInvalidTransition, "invalid status transition")
	ErrBookingNotConfirmed = newError(KindInvalidTransition, "reviews can only be written for confirmed bookings")

	ErrStorageUnavailable = newError(KindStorageUnavailable, "storage unavailable")
)

// KindOf returns the Kind of the first scheduling Error in err's chain, or
// KindStorageUnavailable for anything unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorageUnavailable
}
