package model

import "time"

// ScreeningStatus is the single lifecycle flag of a screening.  It replaces
// the soft-delete columns scattered across the original schema.
type ScreeningStatus string

const (
	ScreeningScheduled ScreeningStatus = "scheduled"
	ScreeningCancelled ScreeningStatus = "cancelled"
)

// Screening is a scheduled showing of a movie in an auditorium.
// AvailableSeats is a cached projection of (active seats - active claims)
// and is only ever changed together with the claims it summarizes.
type Screening struct {
	ID                    uint64          `json:"id"`
	MovieID               uint64          `json:"movie_id"`
	AuditoriumID          uint64          `json:"auditorium_id"`
	StartsAt              time.Time       `json:"starts_at"`
	EndsAt                time.Time       `json:"ends_at"`
	BasePriceCents        int64           `json:"base_price_cents"`
	PremiumSurchargeCents int64           `json:"premium_surcharge_cents"`
	Status                ScreeningStatus `json:"status"`
	AvailableSeats        int             `json:"available_seats"`
}

// Validate checks the creation-time rules of a screening relative to now.
func (s *Screening) Validate(now time.Time) error {
	if s.AuditoriumID == 0 {
		return &ValidationError{Field: "auditorium_id", Message: "is required"}
	}
	if s.BasePriceCents <= 0 {
		return &ValidationError{Field: "base_price_cents", Message: "must be greater than zero"}
	}
	if s.PremiumSurchargeCents < 0 {
		return &ValidationError{Field: "premium_surcharge_cents", Message: "must not be negative"}
	}
	if !s.StartsAt.After(now) {
		return &ValidationError{Field: "starts_at", Message: "must be in the future"}
	}
	if !s.EndsAt.After(s.StartsAt) {
		return &ValidationError{Field: "ends_at", Message: "must be after starts_at"}
	}
	return nil
}

// CheckBookable returns a ScreeningNotBookableError when new holds must be
// refused at now.  Sold-out is judged from the cached counter.
func (s *Screening) CheckBookable(now time.Time) error {
	switch {
	case s.Status == ScreeningCancelled:
		return &ScreeningNotBookableError{ScreeningID: s.ID, Reason: ReasonScreeningCancelled}
	case !s.StartsAt.After(now):
		return &ScreeningNotBookableError{ScreeningID: s.ID, Reason: ReasonScreeningStarted}
	case s.AvailableSeats <= 0:
		return &ScreeningNotBookableError{ScreeningID: s.ID, Reason: ReasonSoldOut}
	}
	return nil
}

// PriceFor returns the per-seat price of seat for this screening.
func (s *Screening) PriceFor(seat Seat) int64 {
	if seat.Class == SeatClassPremium {
		return s.BasePriceCents + s.PremiumSurchargeCents
	}
	return s.BasePriceCents
}

// HasEnded reports whether the screening is over at now.
func (s *Screening) HasEnded(now time.Time) bool {
	return !now.Before(s.EndsAt)
}
