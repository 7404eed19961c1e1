package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/movie-reservation/internal/model"
)

// ReservationRepo is the reservation ledger.  Reservations group one or
// more seat claims stored in reservation_seats.  Every method that
// creates or moves a reservation runs in one transaction together with the
// claim rows and the screening's available_seats counter, so the three
// never disagree after a commit.  All timestamps are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, user_id, screening_id, status, total_price_cents, booking_ref,
	hold_expires_at, confirmed_at, cancelled_at, created_at, updated_at`

func scanReservation(row interface{ Scan(...interface{}) error }) (*model.Reservation, error) {
	var (
		r                      model.Reservation
		ref                    sql.NullString
		confirmed, cancelledAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.UserID, &r.ScreeningID, &r.Status, &r.TotalPriceCents, &ref,
		&r.HoldExpiresAt, &confirmed, &cancelledAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.BookingRef = ref.String
	if confirmed.Valid {
		t := confirmed.Time.UTC()
		r.ConfirmedAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		r.CancelledAt = &t
	}
	r.HoldExpiresAt = r.HoldExpiresAt.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// loadClaims attaches the claim rows of each reservation in rs.
func loadClaims(ctx context.Context, q queryer, rs ...*model.Reservation) error {
	if len(rs) == 0 {
		return nil
	}
	byID := make(map[uint64]*model.Reservation, len(rs))
	ids := make([]uint64, len(rs))
	for i, r := range rs {
		byID[r.ID] = r
		ids[i] = r.ID
		r.Claims = []model.SeatClaim{}
	}
	ph, args := inClause(ids)
	rows, err := q.QueryContext(ctx,
		`SELECT reservation_id, screening_id, seat_id, price_cents FROM reservation_seats
		 WHERE reservation_id IN (`+ph+`) ORDER BY reservation_id, seat_id`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var c model.SeatClaim
		if err := rows.Scan(&c.ReservationID, &c.ScreeningID, &c.SeatID, &c.PriceCents); err != nil {
			return err
		}
		if r, ok := byID[c.ReservationID]; ok {
			r.Claims = append(r.Claims, c)
		}
	}
	return rows.Err()
}

// CreateHold claims every seat in req under one new held reservation, or
// none of them.  Inside a single transaction it
//
//  1. locks the active claim rows of the requested seats, failing with
//     SeatUnavailableError when any exist,
//  2. inserts the reservation and its claims, and
//  3. decrements available_seats guarded by available_seats >= n.
//
// A hold that commits therefore owns every requested seat exclusively.
// When two transactions race past step 1 for the same free seat the
// loser's insert trips uk_active_claim; the conflicting seats are then
// re-read and reported, or the failure is surfaced as transient when the
// winner has since rolled back.
func (r *ReservationRepo) CreateHold(ctx context.Context, req model.HoldRequest) (*model.Reservation, error) {
	if len(req.Claims) == 0 {
		return nil, &model.ValidationError{Field: "seat_ids", Message: "must not be empty"}
	}
	seatIDs := make([]uint64, len(req.Claims))
	for i, c := range req.Claims {
		seatIDs[i] = c.SeatID
	}

	var out *model.Reservation
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM screenings WHERE id = ?`, req.ScreeningID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("screening %d: %w", req.ScreeningID, model.ErrNotFound)
		}
		if err != nil {
			return err
		}

		taken, err := r.activeClaims(ctx, tx, req.ScreeningID, seatIDs, true)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return &model.SeatUnavailableError{ScreeningID: req.ScreeningID, SeatIDs: taken}
		}

		total := model.SumClaims(req.Claims)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO reservations (user_id, screening_id, status, total_price_cents, hold_expires_at, created_at, updated_at)
			 VALUES (?, ?, 'held', ?, ?, ?, ?)`,
			req.UserID, req.ScreeningID, total, req.ExpiresAt.UTC(), req.CreatedAt.UTC(), req.CreatedAt.UTC())
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		query := `INSERT INTO reservation_seats (reservation_id, seat_id, screening_id, price_cents, active) VALUES `
		args := make([]interface{}, 0, len(req.Claims)*4)
		claims := make([]model.SeatClaim, len(req.Claims))
		for i, c := range req.Claims {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?, 1)"
			args = append(args, id, c.SeatID, req.ScreeningID, c.PriceCents)
			claims[i] = model.SeatClaim{ReservationID: uint64(id), ScreeningID: req.ScreeningID, SeatID: c.SeatID, PriceCents: c.PriceCents}
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isDuplicate(err, keyActiveClaim) {
				return errClaimRace
			}
			return err
		}

		n := len(req.Claims)
		upd, err := tx.ExecContext(ctx,
			`UPDATE screenings SET available_seats = available_seats - ? WHERE id = ? AND available_seats >= ?`,
			n, req.ScreeningID, n)
		if err != nil {
			return err
		}
		if affected, _ := upd.RowsAffected(); affected == 0 {
			return &model.ScreeningNotBookableError{ScreeningID: req.ScreeningID, Reason: model.ReasonSoldOut}
		}

		out = &model.Reservation{
			ID:              uint64(id),
			UserID:          req.UserID,
			ScreeningID:     req.ScreeningID,
			Status:          model.StatusHeld,
			TotalPriceCents: total,
			HoldExpiresAt:   req.ExpiresAt.UTC(),
			CreatedAt:       req.CreatedAt.UTC(),
			UpdatedAt:       req.CreatedAt.UTC(),
			Claims:          claims,
		}
		return nil
	})
	if errors.Is(err, errClaimRace) {
		taken, qerr := r.activeClaims(ctx, r.db, req.ScreeningID, seatIDs, false)
		if qerr != nil {
			return nil, classify(qerr)
		}
		if len(taken) > 0 {
			return nil, &model.SeatUnavailableError{ScreeningID: req.ScreeningID, SeatIDs: taken}
		}
		return nil, model.Transient(err)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// activeClaims returns the seats among seatIDs that carry an active claim,
// in the order of seatIDs.  With lock set the rows are read FOR UPDATE.
func (r *ReservationRepo) activeClaims(ctx context.Context, q queryer, screeningID uint64, seatIDs []uint64, lock bool) ([]uint64, error) {
	ph, args := inClause(seatIDs)
	query := `SELECT seat_id FROM reservation_seats WHERE screening_id = ? AND active = 1 AND seat_id IN (` + ph + `)`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, append([]interface{}{screeningID}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	claimed := map[uint64]bool{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		claimed[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var taken []uint64
	for _, id := range seatIDs {
		if claimed[id] {
			taken = append(taken, id)
		}
	}
	return taken, nil
}

// ApplyTransition locks the reservation row, runs the state machine and,
// for terminal targets, deactivates the claims and returns the seats to
// the counter in the same transaction.  It returns the updated reservation
// and the status it left.
func (r *ReservationRepo) ApplyTransition(ctx context.Context, t model.Transition) (*model.Reservation, model.ReservationStatus, error) {
	var (
		out  *model.Reservation
		prev model.ReservationStatus
	)
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := scanReservation(tx.QueryRowContext(ctx,
			`SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, t.ReservationID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reservation %d: %w", t.ReservationID, model.ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := loadClaims(ctx, tx, res); err != nil {
			return err
		}
		var endsAt time.Time
		if err := tx.QueryRowContext(ctx, `SELECT ends_at FROM screenings WHERE id = ?`, res.ScreeningID).Scan(&endsAt); err != nil {
			return err
		}

		prev = res.Status
		released, err := res.Apply(t, endsAt)
		if err != nil {
			return err
		}

		var ref sql.NullString
		if res.BookingRef != "" {
			ref = sql.NullString{String: res.BookingRef, Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE reservations SET status = ?, booking_ref = ?, confirmed_at = ?, cancelled_at = ?, updated_at = ? WHERE id = ?`,
			res.Status, ref, nullTime(res.ConfirmedAt), nullTime(res.CancelledAt), res.UpdatedAt, res.ID)
		if err != nil {
			if isDuplicate(err, keyBookingRef) {
				return model.ErrBookingRefTaken
			}
			return err
		}

		if released {
			if _, err := tx.ExecContext(ctx,
				`UPDATE reservation_seats SET active = NULL WHERE reservation_id = ? AND active = 1`, res.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE screenings SET available_seats = available_seats + ? WHERE id = ?`,
				len(res.Claims), res.ScreeningID); err != nil {
				return err
			}
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, prev, err
	}
	return out, prev, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func (r *ReservationRepo) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, classify(err)
	}
	if err := loadClaims(ctx, r.db, res); err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// ListReservationsByUser returns the user's reservations, newest first.
func (r *ReservationRepo) ListReservationsByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var list []*model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, res)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	if err := loadClaims(ctx, r.db, list...); err != nil {
		return nil, classify(err)
	}
	out := make([]model.Reservation, len(list))
	for i, res := range list {
		out[i] = *res
	}
	return out, nil
}

// ListExpiredHolds returns ids of held reservations whose deadline is at or
// before now, oldest deadline first.
func (r *ReservationRepo) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	return r.listIDs(ctx,
		`SELECT id FROM reservations WHERE status = 'held' AND hold_expires_at <= ?
		 ORDER BY hold_expires_at, id LIMIT ?`, now.UTC(), batchLimit(limit))
}

// ListFinishedBookings returns ids of booked reservations whose screening
// ended at or before now.
func (r *ReservationRepo) ListFinishedBookings(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	return r.listIDs(ctx,
		`SELECT r.id FROM reservations r JOIN screenings s ON s.id = r.screening_id
		 WHERE r.status = 'booked' AND s.ends_at <= ? ORDER BY r.id LIMIT ?`, now.UTC(), batchLimit(limit))
}

func (r *ReservationRepo) listIDs(ctx context.Context, q string, args ...interface{}) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
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

func batchLimit(limit int) int {
	if limit <= 0 {
		return 1000
	}
	return limit
}
