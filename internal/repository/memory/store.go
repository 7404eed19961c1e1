// Package memory is an in-process implementation of the seat catalog,
// screening inventory and reservation ledger.  A single mutex plays the
// role of the database transaction: every exported method is atomic.  The
// activeClaims index enforces the same uniqueness rule as the MySQL
// schema's (screening_id, seat_id, active) key.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/movie-reservation/internal/model"
)

type claimKey struct {
	screeningID uint64
	seatID      uint64
}

// Store holds all state in maps guarded by mu.
type Store struct {
	mu sync.Mutex

	nextSeatID        uint64
	nextScreeningID   uint64
	nextReservationID uint64

	seats        map[uint64]model.Seat
	screenings   map[uint64]model.Screening
	reservations map[uint64]*model.Reservation
	activeClaims map[claimKey]uint64 // (screening, seat) -> reservation
	bookingRefs  map[string]uint64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		seats:        make(map[uint64]model.Seat),
		screenings:   make(map[uint64]model.Screening),
		reservations: make(map[uint64]*model.Reservation),
		activeClaims: make(map[claimKey]uint64),
		bookingRefs:  make(map[string]uint64),
	}
}

// ---- catalog administration (external CRUD in production) ----

// AddSeats inserts seats, assigning ids in order, and returns them.  A
// duplicate (auditorium, row, number) is rejected.
func (s *Store) AddSeats(seats ...model.Seat) ([]model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Seat, 0, len(seats))
	for _, seat := range seats {
		for _, existing := range s.seats {
			if existing.AuditoriumID == seat.AuditoriumID && existing.RowLabel == seat.RowLabel && existing.SeatNumber == seat.SeatNumber {
				return nil, fmt.Errorf("seat %s already exists in auditorium %d", seat.Label(), seat.AuditoriumID)
			}
		}
		if seat.Class == "" {
			seat.Class = model.SeatClassStandard
		}
		s.nextSeatID++
		seat.ID = s.nextSeatID
		s.seats[seat.ID] = seat
		out = append(out, seat)
	}
	return out, nil
}

// SetSeatActive toggles the active flag of a seat.  Existing counters are
// not adjusted; Reconcile picks the change up.
func (s *Store) SetSeatActive(seatID uint64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seat, ok := s.seats[seatID]
	if !ok {
		return fmt.Errorf("seat %d: %w", seatID, model.ErrNotFound)
	}
	seat.IsActive = active
	s.seats[seatID] = seat
	return nil
}

// AddScreening validates sc as of now and stores it with a fresh id and
// its counter initialised to the auditorium's active seat count.
func (s *Store) AddScreening(sc model.Screening, now time.Time) (model.Screening, error) {
	if err := sc.Validate(now); err != nil {
		return model.Screening{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc.Status == "" {
		sc.Status = model.ScreeningScheduled
	}
	s.nextScreeningID++
	sc.ID = s.nextScreeningID
	sc.AvailableSeats = s.capacityLocked(sc.AuditoriumID)
	s.screenings[sc.ID] = sc
	return sc, nil
}

// CancelScreening flips the screening's status.  Outstanding holds and
// bookings are left untouched.
func (s *Store) CancelScreening(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.screenings[id]
	if !ok {
		return fmt.Errorf("screening %d: %w", id, model.ErrNotFound)
	}
	sc.Status = model.ScreeningCancelled
	s.screenings[id] = sc
	return nil
}

// SetAvailableSeats overwrites the cached counter.  Tests use it to
// simulate drift.
func (s *Store) SetAvailableSeats(id uint64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := s.screenings[id]
	sc.AvailableSeats = n
	s.screenings[id] = sc
}

// ---- seat catalog ----

func (s *Store) ListSeats(_ context.Context, auditoriumID uint64) ([]model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Seat
	for _, seat := range s.seats {
		if seat.AuditoriumID == auditoriumID {
			out = append(out, seat)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RowLabel != out[j].RowLabel {
			return out[i].RowLabel < out[j].RowLabel
		}
		return out[i].SeatNumber < out[j].SeatNumber
	})
	return out, nil
}

func (s *Store) GetSeat(_ context.Context, seatID uint64) (*model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seat, ok := s.seats[seatID]
	if !ok {
		return nil, fmt.Errorf("seat %d: %w", seatID, model.ErrNotFound)
	}
	return &seat, nil
}

// GetSeats returns the seats among seatIDs that exist; unknown ids are
// omitted.
func (s *Store) GetSeats(_ context.Context, seatIDs []uint64) ([]model.Seat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Seat, 0, len(seatIDs))
	for _, id := range seatIDs {
		if seat, ok := s.seats[id]; ok {
			out = append(out, seat)
		}
	}
	return out, nil
}

// ---- screening inventory ----

func (s *Store) GetScreening(_ context.Context, id uint64) (*model.Screening, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.screenings[id]
	if !ok {
		return nil, fmt.Errorf("screening %d: %w", id, model.ErrNotFound)
	}
	return &sc, nil
}

func (s *Store) AvailableSeats(_ context.Context, id uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.screenings[id]
	if !ok {
		return 0, fmt.Errorf("screening %d: %w", id, model.ErrNotFound)
	}
	return sc.AvailableSeats, nil
}

func (s *Store) SeatClaimed(_ context.Context, screeningID, seatID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, claimed := s.activeClaims[claimKey{screeningID, seatID}]
	return claimed, nil
}

func (s *Store) ActiveClaimSeatIDs(_ context.Context, screeningID uint64) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint64
	for k := range s.activeClaims {
		if k.screeningID == screeningID {
			ids = append(ids, k.seatID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ComputeAvailability derives the counter from the catalog and claims.
func (s *Store) ComputeAvailability(_ context.Context, id uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.screenings[id]
	if !ok {
		return 0, fmt.Errorf("screening %d: %w", id, model.ErrNotFound)
	}
	return s.computeLocked(sc), nil
}

// HealAvailability rewrites the counter with the derived value.
func (s *Store) HealAvailability(_ context.Context, id uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.screenings[id]
	if !ok {
		return 0, fmt.Errorf("screening %d: %w", id, model.ErrNotFound)
	}
	sc.AvailableSeats = s.computeLocked(sc)
	s.screenings[id] = sc
	return sc.AvailableSeats, nil
}

// ListUpcomingScreeningIDs returns scheduled screenings that have not
// ended at now.
func (s *Store) ListUpcomingScreeningIDs(_ context.Context, now time.Time, limit int) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint64
	for id, sc := range s.screenings {
		if sc.Status == model.ScreeningScheduled && sc.EndsAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return truncate(ids, limit), nil
}

func (s *Store) capacityLocked(auditoriumID uint64) int {
	n := 0
	for _, seat := range s.seats {
		if seat.AuditoriumID == auditoriumID && seat.IsActive {
			n++
		}
	}
	return n
}

func (s *Store) computeLocked(sc model.Screening) int {
	claimed := 0
	for k := range s.activeClaims {
		if k.screeningID == sc.ID {
			claimed++
		}
	}
	if n := s.capacityLocked(sc.AuditoriumID) - claimed; n > 0 {
		return n
	}
	return 0
}

func truncate(ids []uint64, limit int) []uint64 {
	if limit > 0 && len(ids) > limit {
		return ids[:limit]
	}
	return ids
}
