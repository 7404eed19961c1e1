package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-reservation/internal/config"
	"github.com/iliyamo/movie-reservation/internal/logger"
	"github.com/iliyamo/movie-reservation/internal/model"
	"github.com/iliyamo/movie-reservation/internal/repository/memory"
)

var t0 = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.StatusChangedEvent
	err    error
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, ev model.StatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) transitions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = string(ev.From) + ">" + string(ev.To)
	}
	return out
}

type recordingCache struct {
	mu          sync.Mutex
	values      map[uint64]int
	versions    map[uint64]int64
	invalidated []uint64
}

func newRecordingCache() *recordingCache {
	return &recordingCache{values: map[uint64]int{}, versions: map[uint64]int64{}}
}

func (c *recordingCache) Get(_ context.Context, id uint64) (int, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.values[id]
	return n, c.versions[id], ok
}

func (c *recordingCache) Set(_ context.Context, id uint64, n int, version int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[id] != version {
		return
	}
	c.values[id] = n
}

func (c *recordingCache) Invalidate(_ context.Context, ids ...uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.values, id)
		c.versions[id]++
		c.invalidated = append(c.invalidated, id)
	}
}

func (c *recordingCache) cached(id uint64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.values[id]
	return n, ok
}

// env is an in-memory world: auditorium 1 has A1-A4 standard, A5 premium,
// an inactive B1 and C1-C10 standard; auditorium 2 has a single seat.
type env struct {
	store     *memory.Store
	clock     *fakeClock
	events    *recordingPublisher
	cache     *recordingCache
	seatMaps  *recordingCache
	booking   *BookingService
	inventory *InventoryService
	screening model.Screening
	seat      map[string]uint64 // label -> id in auditorium 1
	foreignID uint64            // seat of auditorium 2
}

func testBookingConfig() config.BookingConfig {
	return config.BookingConfig{
		HoldTTL:              10 * time.Minute,
		MaxSeatsPerBooking:   6,
		SweepInterval:        30 * time.Second,
		SweepBatchSize:       100,
		RetryMaxAttempts:     4,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     2 * time.Millisecond,
	}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, func(s *memory.Store) LedgerStore { return s })
}

// newEnvWith lets a test wrap the ledger, e.g. to inject failures.
func newEnvWith(t *testing.T, wrap func(*memory.Store) LedgerStore) *env {
	t.Helper()
	store := memory.New()
	var seats []model.Seat
	for i := 1; i <= 5; i++ {
		class := model.SeatClassStandard
		if i == 5 {
			class = model.SeatClassPremium
		}
		seats = append(seats, model.Seat{AuditoriumID: 1, RowLabel: "A", SeatNumber: uint32(i), Class: class, IsActive: true})
	}
	seats = append(seats, model.Seat{AuditoriumID: 1, RowLabel: "B", SeatNumber: 1, IsActive: false})
	for i := 1; i <= 10; i++ {
		seats = append(seats, model.Seat{AuditoriumID: 1, RowLabel: "C", SeatNumber: uint32(i), IsActive: true})
	}
	seats = append(seats, model.Seat{AuditoriumID: 2, RowLabel: "A", SeatNumber: 1, IsActive: true})
	created, err := store.AddSeats(seats...)
	require.NoError(t, err)

	e := &env{
		store:    store,
		clock:    &fakeClock{now: t0},
		events:   &recordingPublisher{},
		cache:    newRecordingCache(),
		seatMaps: newRecordingCache(),
		seat:     map[string]uint64{},
	}
	for _, s := range created {
		if s.AuditoriumID == 1 {
			e.seat[s.Label()] = s.ID
		} else {
			e.foreignID = s.ID
		}
	}
	e.screening, err = store.AddScreening(model.Screening{
		MovieID:               3,
		AuditoriumID:          1,
		StartsAt:              t0.Add(24 * time.Hour),
		EndsAt:                t0.Add(26 * time.Hour),
		BasePriceCents:        1000,
		PremiumSurchargeCents: 500,
	}, t0)
	require.NoError(t, err)

	log := logger.NewNop()
	e.booking = NewBookingService(store, store, wrap(store), testBookingConfig(), log,
		WithClock(e.clock.Now), WithPublisher(e.events),
		WithAvailabilityCache(e.cache), WithSeatMapCache(e.seatMaps))
	e.inventory = NewInventoryService(store, store, e.cache, log)
	return e
}

func (e *env) ids(labels ...string) []uint64 {
	out := make([]uint64, len(labels))
	for i, l := range labels {
		out[i] = e.seat[l]
	}
	return out
}

func (e *env) book(user uint64, labels ...string) (*model.Reservation, error) {
	return e.booking.Book(context.Background(), BookRequest{UserID: user, ScreeningID: e.screening.ID, SeatIDs: e.ids(labels...)})
}

// requireConsistent checks the counter against capacity minus claims.
func (e *env) requireConsistent(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	cached, err := e.store.AvailableSeats(ctx, e.screening.ID)
	require.NoError(t, err)
	computed, err := e.store.ComputeAvailability(ctx, e.screening.ID)
	require.NoError(t, err)
	claims, err := e.store.ActiveClaimSeatIDs(ctx, e.screening.ID)
	require.NoError(t, err)
	require.Equal(t, computed, cached, "counter drifted from claims")
	require.Equal(t, 15-len(claims), cached)
}
