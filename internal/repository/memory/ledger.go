package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/movie-reservation/internal/model"
)

// CreateHold claims every seat in req under one new held reservation, or
// none of them.  Conflicts are reported in request order.
func (s *Store) CreateHold(_ context.Context, req model.HoldRequest) (*model.Reservation, error) {
	if len(req.Claims) == 0 {
		return nil, &model.ValidationError{Field: "seat_ids", Message: "must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.screenings[req.ScreeningID]
	if !ok {
		return nil, fmt.Errorf("screening %d: %w", req.ScreeningID, model.ErrNotFound)
	}

	var conflicts []uint64
	for _, c := range req.Claims {
		if _, taken := s.activeClaims[claimKey{req.ScreeningID, c.SeatID}]; taken {
			conflicts = append(conflicts, c.SeatID)
		}
	}
	if len(conflicts) > 0 {
		return nil, &model.SeatUnavailableError{ScreeningID: req.ScreeningID, SeatIDs: conflicts}
	}
	if sc.AvailableSeats < len(req.Claims) {
		return nil, &model.ScreeningNotBookableError{ScreeningID: sc.ID, Reason: model.ReasonSoldOut}
	}

	s.nextReservationID++
	r := &model.Reservation{
		ID:            s.nextReservationID,
		UserID:        req.UserID,
		ScreeningID:   req.ScreeningID,
		Status:        model.StatusHeld,
		HoldExpiresAt: req.ExpiresAt.UTC(),
		CreatedAt:     req.CreatedAt.UTC(),
		UpdatedAt:     req.CreatedAt.UTC(),
		Claims:        make([]model.SeatClaim, len(req.Claims)),
	}
	for i, c := range req.Claims {
		c.ReservationID = r.ID
		c.ScreeningID = req.ScreeningID
		r.Claims[i] = c
		s.activeClaims[claimKey{req.ScreeningID, c.SeatID}] = r.ID
	}
	r.TotalPriceCents = model.SumClaims(r.Claims)
	sc.AvailableSeats -= len(req.Claims)
	s.screenings[sc.ID] = sc
	s.reservations[r.ID] = r
	return clone(r), nil
}

// ApplyTransition runs the state machine and, for terminal targets,
// releases the claims and returns the seats to the counter in the same
// critical section.  It returns the updated reservation and the status it
// left.
func (s *Store) ApplyTransition(_ context.Context, t model.Transition) (*model.Reservation, model.ReservationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[t.ReservationID]
	if !ok {
		return nil, "", fmt.Errorf("reservation %d: %w", t.ReservationID, model.ErrNotFound)
	}
	sc := s.screenings[r.ScreeningID]
	if t.To == model.StatusBooked {
		if _, taken := s.bookingRefs[t.BookingRef]; taken {
			return nil, r.Status, model.ErrBookingRefTaken
		}
	}

	prev := r.Status
	next := clone(r)
	released, err := next.Apply(t, sc.EndsAt)
	if err != nil {
		return nil, prev, err
	}
	if released {
		for _, c := range next.Claims {
			delete(s.activeClaims, claimKey{next.ScreeningID, c.SeatID})
		}
		sc.AvailableSeats += len(next.Claims)
		s.screenings[sc.ID] = sc
	}
	if next.BookingRef != "" && prev == model.StatusHeld {
		s.bookingRefs[next.BookingRef] = next.ID
	}
	s.reservations[next.ID] = next
	return clone(next), prev, nil
}

func (s *Store) GetReservation(_ context.Context, id uint64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %d: %w", id, model.ErrNotFound)
	}
	return clone(r), nil
}

// ListReservationsByUser returns the user's reservations, newest first.
func (s *Store) ListReservationsByUser(_ context.Context, userID uint64) ([]model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Reservation{}
	for _, r := range s.reservations {
		if r.UserID == userID {
			out = append(out, *clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// ListExpiredHolds returns ids of held reservations whose deadline is at or
// before now, oldest deadline first.
func (s *Store) ListExpiredHolds(_ context.Context, now time.Time, limit int) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var held []*model.Reservation
	for _, r := range s.reservations {
		if r.HoldExpired(now) {
			held = append(held, r)
		}
	}
	sort.Slice(held, func(i, j int) bool {
		if !held[i].HoldExpiresAt.Equal(held[j].HoldExpiresAt) {
			return held[i].HoldExpiresAt.Before(held[j].HoldExpiresAt)
		}
		return held[i].ID < held[j].ID
	})
	ids := make([]uint64, len(held))
	for i, r := range held {
		ids[i] = r.ID
	}
	return truncate(ids, limit), nil
}

// ListFinishedBookings returns ids of booked reservations whose screening
// ended at or before now.
func (s *Store) ListFinishedBookings(_ context.Context, now time.Time, limit int) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint64
	for id, r := range s.reservations {
		if r.Status != model.StatusBooked {
			continue
		}
		if sc, ok := s.screenings[r.ScreeningID]; ok && sc.HasEnded(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return truncate(ids, limit), nil
}

func clone(r *model.Reservation) *model.Reservation {
	cp := *r
	cp.Claims = append([]model.SeatClaim(nil), r.Claims...)
	if r.ConfirmedAt != nil {
		t := *r.ConfirmedAt
		cp.ConfirmedAt = &t
	}
	if r.CancelledAt != nil {
		t := *r.CancelledAt
		cp.CancelledAt = &t
	}
	return &cp
}
