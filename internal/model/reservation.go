package model

import (
	"encoding/base32"
	"time"

	"github.com/google/uuid"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusHeld      ReservationStatus = "held"
	StatusBooked    ReservationStatus = "booked"
	StatusCompleted ReservationStatus = "completed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusExpired   ReservationStatus = "expired"
)

// transitions lists the legal targets of each non-terminal state.
var transitions = map[ReservationStatus][]ReservationStatus{
	StatusHeld:   {StatusBooked, StatusCancelled, StatusExpired},
	StatusBooked: {StatusCompleted, StatusCancelled},
}

func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusHeld, StatusBooked, StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// IsActive reports whether claims of a reservation in this state block
// their seats.
func (s ReservationStatus) IsActive() bool {
	return s == StatusHeld || s == StatusBooked
}

func (s ReservationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

// CanTransitionTo reports whether the state machine has an edge s -> to.
func (s ReservationStatus) CanTransitionTo(to ReservationStatus) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

func (s ReservationStatus) String() string { return string(s) }

// SeatClaim binds one seat to one reservation.  (ReservationID, SeatID) is
// the identity; ScreeningID is denormalized so the storage layer can
// enforce one active claim per (screening, seat).
type SeatClaim struct {
	ReservationID uint64 `json:"-"`
	ScreeningID   uint64 `json:"-"`
	SeatID        uint64 `json:"seat_id"`
	PriceCents    int64  `json:"price_cents"`
}

// Reservation is the header of a set of seat claims.
type Reservation struct {
	ID              uint64            `json:"id"`
	UserID          uint64            `json:"user_id"`
	ScreeningID     uint64            `json:"screening_id"`
	Status          ReservationStatus `json:"status"`
	TotalPriceCents int64             `json:"total_price_cents"`
	BookingRef      string            `json:"booking_ref,omitempty"`
	HoldExpiresAt   time.Time         `json:"hold_expires_at"`
	ConfirmedAt     *time.Time        `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Claims          []SeatClaim       `json:"seats"`
}

// SeatIDs returns the claimed seat ids in claim order.
func (r *Reservation) SeatIDs() []uint64 {
	ids := make([]uint64, len(r.Claims))
	for i, c := range r.Claims {
		ids[i] = c.SeatID
	}
	return ids
}

// HoldExpired reports whether r is a hold whose deadline has passed at now.
func (r *Reservation) HoldExpired(now time.Time) bool {
	return r.Status == StatusHeld && !now.Before(r.HoldExpiresAt)
}

// BelongsTo reports whether the reservation is owned by userID.
func (r *Reservation) BelongsTo(userID uint64) bool { return r.UserID == userID }

// SumClaims returns the total price of claims.
func SumClaims(claims []SeatClaim) int64 {
	var total int64
	for _, c := range claims {
		total += c.PriceCents
	}
	return total
}

// HoldRequest is the input of the ledger's single seat-claiming primitive.
type HoldRequest struct {
	ScreeningID uint64
	UserID      uint64
	Claims      []SeatClaim
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Transition asks the ledger to move a reservation to To at time At.
// BookingRef is assigned when To is StatusBooked.
type Transition struct {
	ReservationID uint64
	To            ReservationStatus
	At            time.Time
	BookingRef    string
}

// Apply runs the state machine for t against r and mutates r on success.
// screeningEndsAt is consulted only for completion.  The returned bool is
// true when the transition ends the reservation's claims.
func (r *Reservation) Apply(t Transition, screeningEndsAt time.Time) (bool, error) {
	if !r.Status.CanTransitionTo(t.To) {
		return false, &InvalidStateError{ReservationID: r.ID, Current: r.Status, Target: t.To}
	}
	switch t.To {
	case StatusBooked:
		if r.HoldExpired(t.At) {
			return false, &InvalidStateError{ReservationID: r.ID, Current: r.Status, Target: t.To, Reason: ReasonHoldExpired}
		}
	case StatusExpired:
		if !r.HoldExpired(t.At) {
			return false, &InvalidStateError{ReservationID: r.ID, Current: r.Status, Target: t.To, Reason: ReasonHoldLive}
		}
	case StatusCompleted:
		if t.At.Before(screeningEndsAt) {
			return false, &InvalidStateError{ReservationID: r.ID, Current: r.Status, Target: t.To, Reason: ReasonScreeningRunning}
		}
	}

	at := t.At.UTC()
	r.Status = t.To
	r.UpdatedAt = at
	switch t.To {
	case StatusBooked:
		r.ConfirmedAt = &at
		r.BookingRef = t.BookingRef
	case StatusCancelled:
		r.CancelledAt = &at
	}
	return t.To.IsTerminal(), nil
}

var refEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewBookingRef returns a human-readable booking reference such as
// "MR-K3X7Q2ZB4A".  Uniqueness is enforced by the store.
func NewBookingRef() string {
	u := uuid.New()
	return "MR-" + refEncoding.EncodeToString(u[:])[:10]
}
