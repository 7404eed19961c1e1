package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/movie-reservation/internal/model"
)

// ScreeningRepo manages screenings and their available-seat counter.  The
// counter is only ever moved inside ledger transactions (see
// ReservationRepo); this repo reads it and re-derives it during reconcile.
type ScreeningRepo struct {
	db *sql.DB
}

func NewScreeningRepo(db *sql.DB) *ScreeningRepo {
	return &ScreeningRepo{db: db}
}

const screeningColumns = `id, movie_id, auditorium_id, starts_at, ends_at, base_price_cents,
	premium_surcharge_cents, status, available_seats`

func scanScreening(row interface{ Scan(...interface{}) error }) (model.Screening, error) {
	var s model.Screening
	err := row.Scan(&s.ID, &s.MovieID, &s.AuditoriumID, &s.StartsAt, &s.EndsAt, &s.BasePriceCents,
		&s.PremiumSurchargeCents, &s.Status, &s.AvailableSeats)
	return s, err
}

// capacityExpr and claimedExpr derive the counter for the screening
// aliased as s.
const (
	capacityExpr = `(SELECT COUNT(*) FROM seats se WHERE se.auditorium_id = s.auditorium_id AND se.is_active = 1)`
	claimedExpr  = `(SELECT COUNT(*) FROM reservation_seats rs WHERE rs.screening_id = s.id AND rs.active = 1)`
)

// Create inserts a scheduled screening with its counter set to the
// auditorium's active seat count.  A screening overlapping another
// scheduled screening in the same auditorium is rejected.
func (r *ScreeningRepo) Create(ctx context.Context, sc *model.Screening, now time.Time) error {
	if err := sc.Validate(now); err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		// lock the auditorium row so concurrent creates serialise
		var aid uint64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM auditoriums WHERE id = ? FOR UPDATE`, sc.AuditoriumID).Scan(&aid); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("auditorium %d: %w", sc.AuditoriumID, model.ErrNotFound)
			}
			return err
		}
		var overlapping int
		const overlapQ = `SELECT COUNT(*) FROM screenings
		                  WHERE auditorium_id = ? AND status = 'scheduled' AND starts_at < ? AND ends_at > ?`
		if err := tx.QueryRowContext(ctx, overlapQ, sc.AuditoriumID, sc.EndsAt, sc.StartsAt).Scan(&overlapping); err != nil {
			return err
		}
		if overlapping > 0 {
			return &model.ValidationError{Field: "starts_at", Message: "overlaps another screening in the auditorium"}
		}
		const ins = `INSERT INTO screenings (movie_id, auditorium_id, starts_at, ends_at, base_price_cents,
		                 premium_surcharge_cents, status, available_seats)
		             SELECT ?, ?, ?, ?, ?, ?, 'scheduled', COUNT(*) FROM seats WHERE auditorium_id = ? AND is_active = 1`
		res, err := tx.ExecContext(ctx, ins, sc.MovieID, sc.AuditoriumID, sc.StartsAt.UTC(), sc.EndsAt.UTC(),
			sc.BasePriceCents, sc.PremiumSurchargeCents, sc.AuditoriumID)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		created, err := scanScreening(tx.QueryRowContext(ctx, `SELECT `+screeningColumns+` FROM screenings WHERE id = ?`, id))
		if err != nil {
			return err
		}
		*sc = created
		return nil
	})
}

// Cancel marks the screening cancelled.  New holds are refused from then
// on; existing reservations are left to expire or be refunded.
func (r *ScreeningRepo) Cancel(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE screenings SET status = 'cancelled' WHERE id = ?`, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetScreening(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *ScreeningRepo) GetScreening(ctx context.Context, id uint64) (*model.Screening, error) {
	sc, err := scanScreening(r.db.QueryRowContext(ctx, `SELECT `+screeningColumns+` FROM screenings WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("screening %d: %w", id, model.ErrNotFound)
		}
		return nil, classify(err)
	}
	return &sc, nil
}

// AvailableSeats reads the cached counter.
func (r *ScreeningRepo) AvailableSeats(ctx context.Context, id uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT available_seats FROM screenings WHERE id = ?`, id).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("screening %d: %w", id, model.ErrNotFound)
		}
		return 0, classify(err)
	}
	return n, nil
}

// SeatClaimed reports whether an active claim exists for the seat.
func (r *ScreeningRepo) SeatClaimed(ctx context.Context, screeningID, seatID uint64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM reservation_seats WHERE screening_id = ? AND seat_id = ? AND active = 1`,
		screeningID, seatID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(err)
	}
	return true, nil
}

// ActiveClaimSeatIDs lists the seats currently held or booked, ascending.
func (r *ScreeningRepo) ActiveClaimSeatIDs(ctx context.Context, screeningID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seat_id FROM reservation_seats WHERE screening_id = ? AND active = 1 ORDER BY seat_id`, screeningID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, classify(rows.Err())
}

// ComputeAvailability derives active capacity minus active claims in a
// single statement, so both counts come from one consistent read.
func (r *ScreeningRepo) ComputeAvailability(ctx context.Context, id uint64) (int, error) {
	q := `SELECT GREATEST(0, ` + capacityExpr + ` - ` + claimedExpr + `) FROM screenings s WHERE s.id = ?`
	var n int
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("screening %d: %w", id, model.ErrNotFound)
		}
		return 0, classify(err)
	}
	return n, nil
}

// HealAvailability overwrites the counter with the derived value and
// returns it.  The UPDATE locks the screening row, so it cannot interleave
// with a ledger transaction moving the counter.
func (r *ScreeningRepo) HealAvailability(ctx context.Context, id uint64) (int, error) {
	var n int
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		q := `UPDATE screenings s SET s.available_seats = GREATEST(0, ` + capacityExpr + ` - ` + claimedExpr + `) WHERE s.id = ?`
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
		err := tx.QueryRowContext(ctx, `SELECT available_seats FROM screenings WHERE id = ?`, id).Scan(&n)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("screening %d: %w", id, model.ErrNotFound)
		}
		return err
	})
	return n, err
}

// ListUpcomingScreeningIDs returns scheduled screenings that have not
// ended at now, soonest first.
func (r *ScreeningRepo) ListUpcomingScreeningIDs(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM screenings WHERE status = 'scheduled' AND ends_at > ? ORDER BY starts_at, id LIMIT ?`,
		now.UTC(), limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, classify(rows.Err())
}
