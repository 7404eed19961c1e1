package model

import (
	"time"

	"github.com/google/uuid"
)

// StatusChangedEvent is emitted after every committed reservation
// transition, including the initial hold (From is empty).  It carries
// enough for a notification consumer to act without reading the store.
type StatusChangedEvent struct {
	EventID         string            `json:"event_id"`
	ReservationID   uint64            `json:"reservation_id"`
	UserID          uint64            `json:"user_id"`
	ScreeningID     uint64            `json:"screening_id"`
	From            ReservationStatus `json:"from,omitempty"`
	To              ReservationStatus `json:"to"`
	SeatIDs         []uint64          `json:"seat_ids"`
	TotalPriceCents int64             `json:"total_price_cents"`
	BookingRef      string            `json:"booking_ref,omitempty"`
	OccurredAt      time.Time         `json:"occurred_at"`
}

// NewStatusChangedEvent builds the event for r having moved from -> r.Status.
func NewStatusChangedEvent(r *Reservation, from ReservationStatus) StatusChangedEvent {
	return StatusChangedEvent{
		EventID:         uuid.NewString(),
		ReservationID:   r.ID,
		UserID:          r.UserID,
		ScreeningID:     r.ScreeningID,
		From:            from,
		To:              r.Status,
		SeatIDs:         r.SeatIDs(),
		TotalPriceCents: r.TotalPriceCents,
		BookingRef:      r.BookingRef,
		OccurredAt:      r.UpdatedAt,
	}
}
