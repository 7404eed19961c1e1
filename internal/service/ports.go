// Package service holds the booking engine and the read-side catalog and
// inventory services.  Storage is reached through the interfaces below,
// implemented by the MySQL repositories and by the in-memory store.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/movie-reservation/internal/model"
)

// SeatStore reads the seat catalog.
type SeatStore interface {
	ListSeats(ctx context.Context, auditoriumID uint64) ([]model.Seat, error)
	GetSeat(ctx context.Context, seatID uint64) (*model.Seat, error)
	// GetSeats omits unknown ids.
	GetSeats(ctx context.Context, seatIDs []uint64) ([]model.Seat, error)
}

// ScreeningStore reads screenings and maintains their counters.
type ScreeningStore interface {
	GetScreening(ctx context.Context, id uint64) (*model.Screening, error)
	AvailableSeats(ctx context.Context, id uint64) (int, error)
	SeatClaimed(ctx context.Context, screeningID, seatID uint64) (bool, error)
	ActiveClaimSeatIDs(ctx context.Context, screeningID uint64) ([]uint64, error)
	ComputeAvailability(ctx context.Context, id uint64) (int, error)
	HealAvailability(ctx context.Context, id uint64) (int, error)
	ListUpcomingScreeningIDs(ctx context.Context, now time.Time, limit int) ([]uint64, error)
}

// LedgerStore is the reservation ledger.  CreateHold and ApplyTransition
// are atomic with respect to claims and the screening counter.
type LedgerStore interface {
	CreateHold(ctx context.Context, req model.HoldRequest) (*model.Reservation, error)
	ApplyTransition(ctx context.Context, t model.Transition) (*model.Reservation, model.ReservationStatus, error)
	GetReservation(ctx context.Context, id uint64) (*model.Reservation, error)
	ListReservationsByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]uint64, error)
	ListFinishedBookings(ctx context.Context, now time.Time, limit int) ([]uint64, error)
}

// AvailabilityCache fronts ScreeningStore.AvailableSeats.  Implementations
// must treat every failure as a miss.
//
// Get reports a version on a miss; Set must drop n when Invalidate ran for
// the screening after that version was read.
type AvailabilityCache interface {
	Get(ctx context.Context, screeningID uint64) (n int, version int64, ok bool)
	Set(ctx context.Context, screeningID uint64, n int, version int64)
	Invalidate(ctx context.Context, screeningIDs ...uint64)
}

// CacheInvalidator drops derived per-screening views, such as cached seat
// map responses, after a commit changed the screening's claims.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, screeningIDs ...uint64)
}

// EventPublisher delivers status-changed events after commit.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, ev model.StatusChangedEvent) error
}

type nopCache struct{}

func (nopCache) Get(context.Context, uint64) (int, int64, bool) { return 0, 0, false }
func (nopCache) Set(context.Context, uint64, int, int64)        {}
func (nopCache) Invalidate(context.Context, ...uint64)          {}

type nopPublisher struct{}

func (nopPublisher) PublishStatusChanged(context.Context, model.StatusChangedEvent) error { return nil }

// NopPublisher discards events.
var NopPublisher EventPublisher = nopPublisher{}
