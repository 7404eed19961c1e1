package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by every layer of the reservation core.  Typed
// errors below unwrap to one of these so callers can branch with
// errors.Is and still reach the details with errors.As.
var (
	ErrSeatUnavailable      = errors.New("seat unavailable")
	ErrInvalidState         = errors.New("invalid reservation state")
	ErrScreeningNotBookable = errors.New("screening not bookable")
	ErrValidation           = errors.New("validation error")
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	// ErrUnavailable is returned once transient storage failures have
	// exhausted the retry budget.  It is distinct from ErrSeatUnavailable.
	ErrUnavailable = errors.New("service temporarily unavailable")
	// ErrOutcomeUnknown marks a write whose commit failed in a way that
	// leaves open whether it was applied.  Such writes are never retried.
	ErrOutcomeUnknown = errors.New("commit outcome unknown")
	// ErrBookingRefTaken is returned by a store when a freshly generated
	// booking reference collides with an existing one.
	ErrBookingRefTaken = errors.New("booking reference already in use")
)

// SeatUnavailableError lists the requested seats that already carry an
// active claim for the screening.
type SeatUnavailableError struct {
	ScreeningID uint64
	SeatIDs     []uint64
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("seats %s unavailable for screening %d", joinIDs(e.SeatIDs), e.ScreeningID)
}

func (e *SeatUnavailableError) Unwrap() error { return ErrSeatUnavailable }

// InvalidStateError reports a transition attempted from the wrong source
// state.  Reason is set when the status alone does not explain the
// refusal (for example a held reservation whose deadline has passed).
type InvalidStateError struct {
	ReservationID uint64
	Current       ReservationStatus
	Target        ReservationStatus
	Reason        string
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("reservation %d cannot move from %s to %s", e.ReservationID, e.Current, e.Target)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// Reasons carried by InvalidStateError.
const (
	ReasonHoldExpired      = "hold expired"
	ReasonHoldLive         = "hold still live"
	ReasonScreeningRunning = "screening not finished"
)

// Reasons carried by ScreeningNotBookableError.
const (
	ReasonScreeningCancelled = "screening cancelled"
	ReasonScreeningStarted   = "screening already started"
	ReasonSoldOut            = "sold out"
)

type ScreeningNotBookableError struct {
	ScreeningID uint64
	Reason      string
}

func (e *ScreeningNotBookableError) Error() string {
	return fmt.Sprintf("screening %d not bookable: %s", e.ScreeningID, e.Reason)
}

func (e *ScreeningNotBookableError) Unwrap() error { return ErrScreeningNotBookable }

// ValidationError describes a malformed booking request.  SeatIDs is
// populated when specific seats caused the failure.
type ValidationError struct {
	Field   string
	Message string
	SeatIDs []uint64
}

func (e *ValidationError) Error() string {
	if len(e.SeatIDs) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, joinIDs(e.SeatIDs))
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransientError marks a storage failure worth retrying: deadlocks, lock
// wait timeouts and dropped connections.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient storage error: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError.  A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err or anything it wraps is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func joinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
