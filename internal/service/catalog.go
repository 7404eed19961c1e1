package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/iliyamo/movie-reservation/internal/model"
)

// CatalogService answers questions about physical seats.
type CatalogService struct {
	seats SeatStore
}

func NewCatalogService(seats SeatStore) *CatalogService {
	return &CatalogService{seats: seats}
}

// ListSeats returns the auditorium's seats ordered by row then number.
func (s *CatalogService) ListSeats(ctx context.Context, auditoriumID uint64) ([]model.Seat, error) {
	seats, err := s.seats.ListSeats(ctx, auditoriumID)
	if err != nil {
		return nil, fmt.Errorf("list seats of auditorium %d: %w", auditoriumID, err)
	}
	return seats, nil
}

// IsActive reports whether the seat may be sold.  Unknown seats yield
// ErrNotFound.
func (s *CatalogService) IsActive(ctx context.Context, seatID uint64) (bool, error) {
	seat, err := s.seats.GetSeat(ctx, seatID)
	if err != nil {
		return false, err
	}
	return seat.IsActive, nil
}

// ResolveForBooking loads seatIDs and checks that every one exists,
// belongs to auditoriumID and is active.  The result is in request order.
// Offending ids are reported together in a ValidationError.
func (s *CatalogService) ResolveForBooking(ctx context.Context, auditoriumID uint64, seatIDs []uint64) ([]model.Seat, error) {
	found, err := s.seats.GetSeats(ctx, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("load seats: %w", err)
	}
	byID := make(map[uint64]model.Seat, len(found))
	for _, seat := range found {
		byID[seat.ID] = seat
	}

	var unknown, foreign, inactive []uint64
	out := make([]model.Seat, 0, len(seatIDs))
	for _, id := range seatIDs {
		seat, ok := byID[id]
		switch {
		case !ok:
			unknown = append(unknown, id)
		case seat.AuditoriumID != auditoriumID:
			foreign = append(foreign, id)
		case !seat.IsActive:
			inactive = append(inactive, id)
		default:
			out = append(out, seat)
		}
	}
	switch {
	case len(unknown) > 0:
		return nil, &model.ValidationError{Field: "seat_ids", Message: "unknown seats", SeatIDs: sorted(unknown)}
	case len(foreign) > 0:
		return nil, &model.ValidationError{Field: "seat_ids", Message: "seats do not belong to the screening's auditorium", SeatIDs: sorted(foreign)}
	case len(inactive) > 0:
		return nil, &model.ValidationError{Field: "seat_ids", Message: "seats are out of service", SeatIDs: sorted(inactive)}
	}
	return out, nil
}

func sorted(ids []uint64) []uint64 {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
