package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-reservation/internal/database"
	"github.com/iliyamo/movie-reservation/internal/model"
)

// openTestDB connects to the MySQL named by DB_* and applies the schema.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
	ctx := context.Background()
	db, err := database.Open(ctx, database.Options{
		User:           envOr("DB_USER", "root"),
		Pass:           os.Getenv("DB_PASS"),
		Host:           envOr("DB_HOST", "127.0.0.1"),
		Port:           envOr("DB_PORT", "3306"),
		Name:           envOr("DB_NAME", "movie_reservation_test"),
		ConnectTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(ctx, db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

type fixture struct {
	seats      *SeatRepo
	screenings *ScreeningRepo
	ledger     *ReservationRepo
	screening  model.Screening
	seatIDs    []uint64
}

// newFixture creates a fresh auditorium with rows A and B of n seats each
// and a screening starting tomorrow.
func newFixture(t *testing.T, db *sql.DB, n int) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{seats: NewSeatRepo(db), screenings: NewScreeningRepo(db), ledger: NewReservationRepo(db)}

	aud := model.Auditorium{TheatreID: 1, Name: fmt.Sprintf("it-%d", time.Now().UnixNano())}
	require.NoError(t, f.seats.CreateAuditorium(ctx, &aud))
	var seats []model.Seat
	for _, row := range []string{"A", "B"} {
		for i := 1; i <= n; i++ {
			seats = append(seats, model.Seat{AuditoriumID: aud.ID, RowLabel: row, SeatNumber: uint32(i), IsActive: true})
		}
	}
	require.NoError(t, f.seats.CreateBulk(ctx, seats))
	listed, err := f.seats.ListSeats(ctx, aud.ID)
	require.NoError(t, err)
	for _, s := range listed {
		f.seatIDs = append(f.seatIDs, s.ID)
	}

	now := time.Now().UTC()
	f.screening = model.Screening{
		MovieID:        7,
		AuditoriumID:   aud.ID,
		StartsAt:       now.Add(24 * time.Hour),
		EndsAt:         now.Add(26 * time.Hour),
		BasePriceCents: 1200,
	}
	require.NoError(t, f.screenings.Create(ctx, &f.screening, now))
	require.Equal(t, 2*n, f.screening.AvailableSeats)
	return f
}

func holdFor(f fixture, user uint64, seatIDs ...uint64) model.HoldRequest {
	now := time.Now().UTC()
	claims := make([]model.SeatClaim, len(seatIDs))
	for i, id := range seatIDs {
		claims[i] = model.SeatClaim{SeatID: id, PriceCents: f.screening.BasePriceCents}
	}
	return model.HoldRequest{ScreeningID: f.screening.ID, UserID: user, Claims: claims, CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute)}
}

func TestMySQL_HoldConflictAndRelease(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	f := newFixture(t, db, 3)
	a1, a2, a3 := f.seatIDs[0], f.seatIDs[1], f.seatIDs[2]

	r1, err := f.ledger.CreateHold(ctx, holdFor(f, 1, a1, a2))
	require.NoError(t, err)
	assert.Equal(t, int64(2400), r1.TotalPriceCents)

	_, err = f.ledger.CreateHold(ctx, holdFor(f, 2, a2, a3))
	var sue *model.SeatUnavailableError
	require.ErrorAs(t, err, &sue)
	assert.Equal(t, []uint64{a2}, sue.SeatIDs)

	claimed, err := f.screenings.SeatClaimed(ctx, f.screening.ID, a3)
	require.NoError(t, err)
	assert.False(t, claimed)

	n, err := f.screenings.AvailableSeats(ctx, f.screening.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	got, prev, err := f.ledger.ApplyTransition(ctx, model.Transition{ReservationID: r1.ID, To: model.StatusCancelled, At: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, model.StatusHeld, prev)
	require.NotNil(t, got.CancelledAt)

	n, _ = f.screenings.AvailableSeats(ctx, f.screening.ID)
	assert.Equal(t, 6, n)
	_, err = f.ledger.CreateHold(ctx, holdFor(f, 2, a2, a3))
	assert.NoError(t, err)
}

func TestMySQL_ConcurrentHoldsOnOneSeat(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	f := newFixture(t, db, 2)
	seat := f.seatIDs[0]

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(user uint64) {
			defer wg.Done()
			if _, err := f.ledger.CreateHold(ctx, holdFor(f, user, seat)); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(uint64(i + 1))
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	computed, err := f.screenings.ComputeAvailability(ctx, f.screening.ID)
	require.NoError(t, err)
	cached, _ := f.screenings.AvailableSeats(ctx, f.screening.ID)
	assert.Equal(t, computed, cached)
}

func TestMySQL_ConfirmAndReconcile(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	f := newFixture(t, db, 2)

	r, err := f.ledger.CreateHold(ctx, holdFor(f, 9, f.seatIDs[0]))
	require.NoError(t, err)
	ref := model.NewBookingRef()
	booked, _, err := f.ledger.ApplyTransition(ctx, model.Transition{ReservationID: r.ID, To: model.StatusBooked, At: time.Now(), BookingRef: ref})
	require.NoError(t, err)
	assert.Equal(t, ref, booked.BookingRef)

	r2, err := f.ledger.CreateHold(ctx, holdFor(f, 9, f.seatIDs[1]))
	require.NoError(t, err)
	_, _, err = f.ledger.ApplyTransition(ctx, model.Transition{ReservationID: r2.ID, To: model.StatusBooked, At: time.Now(), BookingRef: ref})
	assert.ErrorIs(t, err, model.ErrBookingRefTaken)

	require.NoError(t, f.seats.SetActive(ctx, f.seatIDs[3], false))
	healed, err := f.screenings.HealAvailability(ctx, f.screening.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, healed) // 3 active seats, 2 claimed

	mine, err := f.ledger.ListReservationsByUser(ctx, 9)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(mine), 2)
	assert.Len(t, mine[0].Claims, 1)
}
