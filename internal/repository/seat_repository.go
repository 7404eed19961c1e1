package repository // repository defines data access for seats

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
	"errors"
	"fmt"

	"github.com/iliyamo/movie-reservation/internal/model"
)

// SeatRepo reads the seat catalog.  Seats are maintained by the external
// catalog CRUD; CreateAuditorium and CreateBulk exist for seeding and
// integration tests.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

const seatColumns = `id, auditorium_id, row_label, seat_number, seat_class, is_active`

func scanSeat(row interface{ Scan(...interface{}) error }) (model.Seat, error) {
	var s model.Seat
	err := row.Scan(&s.ID, &s.AuditoriumID, &s.RowLabel, &s.SeatNumber, &s.Class, &s.IsActive)
	return s, err
}

// CreateAuditorium inserts an auditorium row and returns its id.
func (r *SeatRepo) CreateAuditorium(ctx context.Context, a *model.Auditorium) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO auditoriums (theatre_id, name) VALUES (?, ?)`, a.TheatreID, a.Name)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// CreateBulk inserts multiple seats in a single statement.  IDs are not
// populated; use ListSeats to read them back.
func (r *SeatRepo) CreateBulk(ctx context.Context, seats []model.Seat) error {
	if len(seats) == 0 {
		return nil
	}
	query := `INSERT INTO seats (auditorium_id, row_label, seat_number, seat_class, is_active) VALUES `
	args := make([]interface{}, 0, len(seats)*5)
	for i, seat := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		class := seat.Class
		if class == "" {
			class = model.SeatClassStandard
		}
		args = append(args, seat.AuditoriumID, seat.RowLabel, seat.SeatNumber, class, seat.IsActive)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// SetActive toggles a seat's is_active flag.  Counters of existing
// screenings are corrected by the next reconcile pass.
func (r *SeatRepo) SetActive(ctx context.Context, seatID uint64, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE seats SET is_active = ? WHERE id = ?`, active, seatID)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// RowsAffected is 0 for an unchanged row too, so confirm existence
		if _, err := r.GetSeat(ctx, seatID); err != nil {
			return err
		}
	}
	return nil
}

// ListSeats retrieves all seats of an auditorium ordered by row_label then
// seat_number.
func (r *SeatRepo) ListSeats(ctx context.Context, auditoriumID uint64) ([]model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats WHERE auditorium_id = ? ORDER BY row_label, seat_number`
	rows, err := r.db.QueryContext(ctx, q, auditoriumID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// GetSeat retrieves a seat by its id.
func (r *SeatRepo) GetSeat(ctx context.Context, seatID uint64) (*model.Seat, error) {
	s, err := scanSeat(r.db.QueryRowContext(ctx, `SELECT `+seatColumns+` FROM seats WHERE id = ?`, seatID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("seat %d: %w", seatID, model.ErrNotFound)
		}
		return nil, classify(err)
	}
	return &s, nil
}

// GetSeats returns the seats among seatIDs that exist, in id order.
// Unknown ids are omitted; the caller compares lengths.
func (r *SeatRepo) GetSeats(ctx context.Context, seatIDs []uint64) ([]model.Seat, error) {
	if len(seatIDs) == 0 {
		return []model.Seat{}, nil
	}
	ph, args := inClause(seatIDs)
	rows, err := r.db.QueryContext(ctx, `SELECT `+seatColumns+` FROM seats WHERE id IN (`+ph+`) ORDER BY id`, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	result := make([]model.Seat, 0, len(seatIDs))
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}
