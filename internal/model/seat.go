package model

import "fmt"

// SeatClass is the pricing class of a physical seat.
type SeatClass string

const (
	SeatClassStandard SeatClass = "standard"
	SeatClassPremium  SeatClass = "premium"
)

// Valid reports whether c is a known seat class.
func (c SeatClass) Valid() bool {
	return c == SeatClassStandard || c == SeatClassPremium
}

// Seat describes a physical seat in an auditorium.  Seats are uniquely
// identified by their auditorium, row label and seat number; ID is the
// surrogate key every other table references.
//
// Fields:
//
//	ID           – seats.id
//	AuditoriumID – auditorium owning the seat
//	RowLabel     – letter(s) designating the row (A, B, AA)
//	SeatNumber   – 1-based position within the row
//	Class        – standard or premium
//	IsActive     – inactive seats cannot be booked
type Seat struct {
	ID           uint64    `json:"id"`
	AuditoriumID uint64    `json:"auditorium_id"`
	RowLabel     string    `json:"row_label"`
	SeatNumber   uint32    `json:"seat_number"`
	Class        SeatClass `json:"seat_class"`
	IsActive     bool      `json:"is_active"`
}

// Label renders the seat the way it is printed on a ticket, e.g. "A12".
func (s Seat) Label() string {
	return fmt.Sprintf("%s%d", s.RowLabel, s.SeatNumber)
}

// Auditorium groups the seats of one screening room.  Capacity is not
// stored; it is the number of active seats in the catalog.
type Auditorium struct {
	ID        uint64 `json:"id"`
	TheatreID uint64 `json:"theatre_id"`
	Name      string `json:"name"`
}
