package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/movie-reservation/internal/logger"
	"github.com/iliyamo/movie-reservation/internal/model"
)

// InventoryService exposes per-screening availability.  The counter it
// serves is a cache of the claim set; Reconcile re-derives it.
type InventoryService struct {
	screenings ScreeningStore
	seats      SeatStore
	cache      AvailabilityCache
	log        logger.Logger
}

// NewInventoryService wires the service.  cache may be nil.
func NewInventoryService(screenings ScreeningStore, seats SeatStore, cache AvailabilityCache, log logger.Logger) *InventoryService {
	if cache == nil {
		cache = nopCache{}
	}
	return &InventoryService{screenings: screenings, seats: seats, cache: cache, log: log}
}

// GetAvailableCount returns the screening's available-seat counter,
// read through the availability cache.  The cache version is taken before
// the store read so a commit landing in between discards the write-back.
func (s *InventoryService) GetAvailableCount(ctx context.Context, screeningID uint64) (int, error) {
	n, version, ok := s.cache.Get(ctx, screeningID)
	if ok {
		return n, nil
	}
	n, err := s.screenings.AvailableSeats(ctx, screeningID)
	if err != nil {
		return 0, err
	}
	s.cache.Set(ctx, screeningID, n, version)
	return n, nil
}

// SeatIsAvailable reports whether the seat is free for the screening:
// it belongs to the screening's auditorium, is active and carries no
// active claim.
func (s *InventoryService) SeatIsAvailable(ctx context.Context, screeningID, seatID uint64) (bool, error) {
	sc, err := s.screenings.GetScreening(ctx, screeningID)
	if err != nil {
		return false, err
	}
	seat, err := s.seats.GetSeat(ctx, seatID)
	if err != nil {
		return false, err
	}
	if seat.AuditoriumID != sc.AuditoriumID || !seat.IsActive {
		return false, nil
	}
	claimed, err := s.screenings.SeatClaimed(ctx, screeningID, seatID)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// ActiveClaims lists the seats currently held or booked for the screening.
func (s *InventoryService) ActiveClaims(ctx context.Context, screeningID uint64) ([]uint64, error) {
	if _, err := s.screenings.GetScreening(ctx, screeningID); err != nil {
		return nil, err
	}
	ids, err := s.screenings.ActiveClaimSeatIDs(ctx, screeningID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

// SeatState is one entry of a seat map.
type SeatState struct {
	model.Seat
	Available bool `json:"available"`
}

// SeatMap is the display view of a screening.
type SeatMap struct {
	ScreeningID    uint64      `json:"screening_id"`
	AuditoriumID   uint64      `json:"auditorium_id"`
	AvailableSeats int         `json:"available_seats"`
	Seats          []SeatState `json:"seats"`
}

// SeatMap returns every seat of the screening's auditorium with its
// availability.  Inactive seats are listed as unavailable.
func (s *InventoryService) SeatMap(ctx context.Context, screeningID uint64) (*SeatMap, error) {
	sc, err := s.screenings.GetScreening(ctx, screeningID)
	if err != nil {
		return nil, err
	}
	seats, err := s.seats.ListSeats(ctx, sc.AuditoriumID)
	if err != nil {
		return nil, err
	}
	claimedIDs, err := s.screenings.ActiveClaimSeatIDs(ctx, screeningID)
	if err != nil {
		return nil, err
	}
	claimed := make(map[uint64]bool, len(claimedIDs))
	for _, id := range claimedIDs {
		claimed[id] = true
	}
	m := &SeatMap{ScreeningID: sc.ID, AuditoriumID: sc.AuditoriumID, AvailableSeats: sc.AvailableSeats, Seats: make([]SeatState, len(seats))}
	for i, seat := range seats {
		m.Seats[i] = SeatState{Seat: seat, Available: seat.IsActive && !claimed[seat.ID]}
	}
	return m, nil
}

// ReconcileResult reports one reconcile pass.
type ReconcileResult struct {
	ScreeningID uint64 `json:"screening_id"`
	Cached      int    `json:"cached"`
	Computed    int    `json:"computed"`
	Healed      bool   `json:"healed"`
}

// Reconcile re-derives the available-seat counter from active capacity
// and active claims.  Bookings are not blocked; when the stored counter
// disagrees it is overwritten in one statement and a warning is logged.
func (s *InventoryService) Reconcile(ctx context.Context, screeningID uint64) (ReconcileResult, error) {
	res := ReconcileResult{ScreeningID: screeningID}
	cached, err := s.screenings.AvailableSeats(ctx, screeningID)
	if err != nil {
		return res, err
	}
	computed, err := s.screenings.ComputeAvailability(ctx, screeningID)
	if err != nil {
		return res, err
	}
	res.Cached, res.Computed = cached, computed
	if cached == computed {
		return res, nil
	}
	// a booking may have committed between the two reads, so the heal
	// statement re-derives the value itself
	healed, err := s.screenings.HealAvailability(ctx, screeningID)
	if err != nil {
		return res, fmt.Errorf("heal availability of screening %d: %w", screeningID, err)
	}
	res.Computed = healed
	res.Healed = true
	s.cache.Invalidate(ctx, screeningID)
	s.log.Warn("availability counter drift healed",
		"screening_id", screeningID, "cached", cached, "computed", healed)
	return res, nil
}

// ReconcileUpcoming reconciles up to limit screenings that have not ended.
// Individual failures are logged and counted, not returned.
func (s *InventoryService) ReconcileUpcoming(ctx context.Context, now time.Time, limit int) (healed, failed int, err error) {
	ids, err := s.screenings.ListUpcomingScreeningIDs(ctx, now, limit)
	if err != nil {
		return 0, 0, err
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return healed, failed, ctx.Err()
		}
		res, err := s.Reconcile(ctx, id)
		if err != nil {
			failed++
			s.log.Error("reconcile failed", "screening_id", id, "error", err)
			continue
		}
		if res.Healed {
			healed++
		}
	}
	return healed, failed, nil
}
