package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-reservation/internal/config"
	"github.com/iliyamo/movie-reservation/internal/logger"
	"github.com/iliyamo/movie-reservation/internal/model"
	"github.com/iliyamo/movie-reservation/internal/repository/memory"
	"github.com/iliyamo/movie-reservation/internal/service"
)

var t0 = time.Date(2026, 10, 15, 18, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sweepConfig() config.BookingConfig {
	return config.BookingConfig{
		HoldTTL:              10 * time.Minute,
		MaxSeatsPerBooking:   10,
		SweepInterval:        10 * time.Millisecond,
		SweepBatchSize:       2,
		ReconcileInterval:    5 * time.Minute,
		ReconcileBatchSize:   10,
		RetryMaxAttempts:     2,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     time.Millisecond,
	}
}

type world struct {
	store     *memory.Store
	clock     *clock
	booking   *service.BookingService
	sweeper   *Sweeper
	screening model.Screening
	seats     []model.Seat
}

func newWorld(t *testing.T) *world {
	t.Helper()
	store := memory.New()
	var seats []model.Seat
	for i := 1; i <= 6; i++ {
		seats = append(seats, model.Seat{AuditoriumID: 1, RowLabel: "A", SeatNumber: uint32(i), IsActive: true})
	}
	created, err := store.AddSeats(seats...)
	require.NoError(t, err)
	sc, err := store.AddScreening(model.Screening{
		AuditoriumID:   1,
		StartsAt:       t0.Add(2 * time.Hour),
		EndsAt:         t0.Add(4 * time.Hour),
		BasePriceCents: 900,
	}, t0)
	require.NoError(t, err)

	c := &clock{now: t0}
	log := logger.NewNop()
	cfg := sweepConfig()
	booking := service.NewBookingService(store, store, store, cfg, log, service.WithClock(c.Now))
	inventory := service.NewInventoryService(store, store, nil, log)
	sw := NewSweeper(booking, inventory, cfg, log)
	sw.SetClock(c.Now)
	return &world{store: store, clock: c, booking: booking, sweeper: sw, screening: sc, seats: created}
}

func (w *world) hold(t *testing.T, user uint64, idx ...int) *model.Reservation {
	t.Helper()
	ids := make([]uint64, len(idx))
	for i, n := range idx {
		ids[i] = w.seats[n].ID
	}
	r, err := w.booking.Book(context.Background(), service.BookRequest{UserID: user, ScreeningID: w.screening.ID, SeatIDs: ids})
	require.NoError(t, err)
	return r
}

func TestSweeper_ExpiresHoldAfterTenMinutes(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	r := w.hold(t, 1, 0, 1)

	w.clock.Advance(9*time.Minute + 59*time.Second)
	res := w.sweeper.RunOnce(ctx)
	assert.Equal(t, 0, res.Expired)

	w.clock.Advance(time.Second)
	res = w.sweeper.RunOnce(ctx)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, 0, res.Failed)

	got, err := w.store.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
	n, _ := w.store.AvailableSeats(ctx, w.screening.ID)
	assert.Equal(t, 6, n)

	_, err = w.booking.Confirm(ctx, r.ID)
	var ise *model.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, model.StatusExpired, ise.Current)

	res = w.sweeper.RunOnce(ctx)
	assert.Equal(t, 0, res.Expired, "second sweep is a no-op")
}

func TestSweeper_DrainsMultipleBatches(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		w.hold(t, uint64(i+1), i)
	}
	w.clock.Advance(10 * time.Minute)

	res := w.sweeper.RunOnce(ctx)
	assert.Equal(t, 5, res.Expired, "batch size 2 still drains everything in one tick")
	ids, err := w.store.ActiveClaimSeatIDs(ctx, w.screening.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSweeper_CompletesFinishedBookings(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	r := w.hold(t, 1, 0)
	_, err := w.booking.Confirm(ctx, r.ID)
	require.NoError(t, err)

	w.clock.Advance(4 * time.Hour)
	res := w.sweeper.RunOnce(ctx)
	assert.Equal(t, 1, res.Completed)
	got, _ := w.store.GetReservation(ctx, r.ID)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestSweeper_ReconcilesOnInterval(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	res := w.sweeper.RunOnce(ctx)
	assert.True(t, res.Reconciled)

	w.store.SetAvailableSeats(w.screening.ID, 1)
	res = w.sweeper.RunOnce(ctx)
	assert.False(t, res.Reconciled, "interval not elapsed")

	w.clock.Advance(5 * time.Minute)
	res = w.sweeper.RunOnce(ctx)
	assert.True(t, res.Reconciled)
	assert.Equal(t, 1, res.Healed)
	n, _ := w.store.AvailableSeats(ctx, w.screening.ID)
	assert.Equal(t, 6, n)
}

type stubReservations struct {
	expireErr error
	panicOn   bool
	calls     atomic.Int32
}

func (s *stubReservations) ExpireDue(context.Context, int) (int, int, error) {
	s.calls.Add(1)
	if s.panicOn {
		panic("boom")
	}
	return 0, 0, s.expireErr
}

func (s *stubReservations) CompleteDue(context.Context, int) (int, int, error) { return 0, 0, nil }

func TestSweeper_ToleratesStoreErrors(t *testing.T) {
	stub := &stubReservations{expireErr: errors.New("connection refused")}
	sw := NewSweeper(stub, nil, sweepConfig(), logger.NewNop())
	res := sw.RunOnce(context.Background())
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestSweeper_StartStop(t *testing.T) {
	stub := &stubReservations{panicOn: true}
	sw := NewSweeper(stub, nil, sweepConfig(), logger.NewNop())

	require.NoError(t, sw.Start(context.Background()))
	assert.Error(t, sw.Start(context.Background()), "double start")

	// the loop survives panicking ticks
	require.Eventually(t, func() bool { return stub.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	sw.Stop()
	sw.Stop()

	after := stub.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, stub.calls.Load(), "no ticks after Stop")
}

func TestSweeper_StopsWithContext(t *testing.T) {
	stub := &stubReservations{}
	sw := NewSweeper(stub, nil, sweepConfig(), logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sw.Start(ctx))
	require.Eventually(t, func() bool { return stub.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	done := make(chan struct{})
	go func() { sw.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}
