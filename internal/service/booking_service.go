package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/movie-reservation/internal/config"
	"github.com/iliyamo/movie-reservation/internal/logger"
	"github.com/iliyamo/movie-reservation/internal/model"
)

// bookingRefAttempts bounds regeneration of colliding booking references.
const bookingRefAttempts = 3

// BookingService drives reservations through their lifecycle.  It never
// locks across a screening; the ledger's unique active-claim key decides
// races, and losing a race surfaces as SeatUnavailableError.
type BookingService struct {
	catalog    *CatalogService
	screenings ScreeningStore
	ledger     LedgerStore
	cache      AvailabilityCache
	seatMaps   CacheInvalidator
	events     EventPublisher
	log        logger.Logger
	cfg        config.BookingConfig
	retry      retryPolicy
	now        func() time.Time
}

type BookingOption func(*BookingService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) BookingOption {
	return func(s *BookingService) { s.now = now }
}

func WithAvailabilityCache(c AvailabilityCache) BookingOption {
	return func(s *BookingService) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithSeatMapCache registers the cached seat map responses to drop after
// each commit that changes a screening's claims.
func WithSeatMapCache(c CacheInvalidator) BookingOption {
	return func(s *BookingService) {
		if c != nil {
			s.seatMaps = c
		}
	}
}

func WithPublisher(p EventPublisher) BookingOption {
	return func(s *BookingService) {
		if p != nil {
			s.events = p
		}
	}
}

func NewBookingService(seats SeatStore, screenings ScreeningStore, ledger LedgerStore, cfg config.BookingConfig, log logger.Logger, opts ...BookingOption) *BookingService {
	s := &BookingService{
		catalog:    NewCatalogService(seats),
		screenings: screenings,
		ledger:     ledger,
		cache:      nopCache{},
		seatMaps:   nopCache{},
		events:     NopPublisher,
		log:        log.With("component", "booking"),
		cfg:        cfg,
		retry:      policyFrom(cfg),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BookRequest asks for a hold on SeatIDs of a screening.
type BookRequest struct {
	UserID      uint64
	ScreeningID uint64
	SeatIDs     []uint64
}

// Book places a hold on every requested seat or on none.  The returned
// reservation is held until now + HoldTTL; payment confirms it later.
func (s *BookingService) Book(ctx context.Context, req BookRequest) (*model.Reservation, error) {
	if err := s.validateSeatList(req.SeatIDs); err != nil {
		return nil, err
	}

	sc, err := withRetry(ctx, s.retry, s.log, "get screening", func() (*model.Screening, error) {
		return s.screenings.GetScreening(ctx, req.ScreeningID)
	})
	if err != nil {
		return nil, err
	}
	seats, err := withRetry(ctx, s.retry, s.log, "resolve seats", func() ([]model.Seat, error) {
		return s.catalog.ResolveForBooking(ctx, sc.AuditoriumID, req.SeatIDs)
	})
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := sc.CheckBookable(now); err != nil {
		return nil, err
	}

	claims := make([]model.SeatClaim, len(seats))
	for i, seat := range seats {
		claims[i] = model.SeatClaim{ScreeningID: sc.ID, SeatID: seat.ID, PriceCents: sc.PriceFor(seat)}
	}
	hold := model.HoldRequest{
		ScreeningID: sc.ID,
		UserID:      req.UserID,
		Claims:      claims,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.HoldTTL),
	}
	r, err := withRetry(ctx, s.retry, s.log, "create hold", func() (*model.Reservation, error) {
		return s.ledger.CreateHold(ctx, hold)
	})
	if err != nil {
		var sue *model.SeatUnavailableError
		if errors.As(err, &sue) {
			s.log.Info("hold refused, seats taken", "screening_id", sc.ID, "user_id", req.UserID, "seat_ids", sue.SeatIDs)
		}
		if errors.Is(err, model.ErrOutcomeUnknown) {
			// the hold may exist; if so the sweeper expires it
			s.log.Warn("hold outcome unknown", "screening_id", sc.ID, "user_id", req.UserID, "error", err)
			ctx := context.WithoutCancel(ctx)
			s.cache.Invalidate(ctx, sc.ID)
			s.seatMaps.Invalidate(ctx, sc.ID)
		}
		return nil, err
	}
	s.log.Info("seats held",
		"reservation_id", r.ID, "screening_id", r.ScreeningID, "user_id", r.UserID,
		"seat_ids", r.SeatIDs(), "total_price_cents", r.TotalPriceCents, "hold_expires_at", r.HoldExpiresAt)
	s.afterCommit(ctx, r, "")
	return r, nil
}

func (s *BookingService) validateSeatList(ids []uint64) error {
	if len(ids) == 0 {
		return &model.ValidationError{Field: "seat_ids", Message: "must not be empty"}
	}
	if len(ids) > s.cfg.MaxSeatsPerBooking {
		return &model.ValidationError{Field: "seat_ids", Message: fmt.Sprintf("at most %d seats per booking", s.cfg.MaxSeatsPerBooking)}
	}
	seen := make(map[uint64]bool, len(ids))
	var dups []uint64
	for _, id := range ids {
		if seen[id] {
			dups = append(dups, id)
		}
		seen[id] = true
	}
	if len(dups) > 0 {
		return &model.ValidationError{Field: "seat_ids", Message: "duplicate seats", SeatIDs: dups}
	}
	return nil
}

// Confirm turns a live hold into a booking with a fresh booking reference.
// A hold whose deadline has passed is refused with InvalidStateError and
// expired on the spot.
func (s *BookingService) Confirm(ctx context.Context, reservationID uint64) (*model.Reservation, error) {
	for i := 0; i < bookingRefAttempts; i++ {
		t := model.Transition{
			ReservationID: reservationID,
			To:            model.StatusBooked,
			At:            s.now().UTC(),
			BookingRef:    model.NewBookingRef(),
		}
		r, err := s.transition(ctx, "confirm", t)
		if errors.Is(err, model.ErrBookingRefTaken) {
			s.log.Warn("booking reference collision, regenerating", "reservation_id", reservationID)
			continue
		}
		if err != nil {
			var ise *model.InvalidStateError
			if errors.As(err, &ise) && ise.Reason == model.ReasonHoldExpired {
				if _, xerr := s.Expire(ctx, reservationID); xerr != nil {
					s.log.Warn("lazy expiry failed", "reservation_id", reservationID, "error", xerr)
				}
			}
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("confirm reservation %d: %w", reservationID, model.ErrBookingRefTaken)
}

// Cancel ends a held or booked reservation and releases its seats.  Only
// the owner or an admin may cancel.
func (s *BookingService) Cancel(ctx context.Context, actor model.Actor, reservationID uint64) (*model.Reservation, error) {
	if _, err := s.Get(ctx, actor, reservationID); err != nil {
		return nil, err
	}
	return s.transition(ctx, "cancel", model.Transition{
		ReservationID: reservationID,
		To:            model.StatusCancelled,
		At:            s.now().UTC(),
	})
}

// Expire moves a held reservation whose deadline has passed to expired.
// It reports false without error when there is nothing to do, so racing
// sweepers and lazy expiry are harmless.
func (s *BookingService) Expire(ctx context.Context, reservationID uint64) (bool, error) {
	return s.finish(ctx, "expire", model.StatusExpired, reservationID)
}

// Complete moves a booking to completed once its screening has ended.
// Like Expire it is a no-op for reservations that do not qualify.
func (s *BookingService) Complete(ctx context.Context, reservationID uint64) (bool, error) {
	return s.finish(ctx, "complete", model.StatusCompleted, reservationID)
}

func (s *BookingService) finish(ctx context.Context, op string, to model.ReservationStatus, reservationID uint64) (bool, error) {
	_, err := s.transition(ctx, op, model.Transition{ReservationID: reservationID, To: to, At: s.now().UTC()})
	if errors.Is(err, model.ErrInvalidState) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the reservation when actor owns it or is an admin.
func (s *BookingService) Get(ctx context.Context, actor model.Actor, reservationID uint64) (*model.Reservation, error) {
	r, err := withRetry(ctx, s.retry, s.log, "get reservation", func() (*model.Reservation, error) {
		return s.ledger.GetReservation(ctx, reservationID)
	})
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(r) {
		return nil, fmt.Errorf("reservation %d: %w", reservationID, model.ErrForbidden)
	}
	return r, nil
}

// ListMine returns the user's reservations, newest first.
func (s *BookingService) ListMine(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	return withRetry(ctx, s.retry, s.log, "list reservations", func() ([]model.Reservation, error) {
		return s.ledger.ListReservationsByUser(ctx, userID)
	})
}

// ExpireDue expires up to limit holds whose deadline has passed at now.
func (s *BookingService) ExpireDue(ctx context.Context, limit int) (done, failed int, err error) {
	ids, err := s.ledger.ListExpiredHolds(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, 0, err
	}
	return s.each(ctx, ids, s.Expire)
}

// CompleteDue completes up to limit bookings whose screening has ended.
func (s *BookingService) CompleteDue(ctx context.Context, limit int) (done, failed int, err error) {
	ids, err := s.ledger.ListFinishedBookings(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, 0, err
	}
	return s.each(ctx, ids, s.Complete)
}

func (s *BookingService) each(ctx context.Context, ids []uint64, fn func(context.Context, uint64) (bool, error)) (done, failed int, err error) {
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return done, failed, err
		}
		changed, err := fn(ctx, id)
		if err != nil {
			failed++
			s.log.Error("reservation transition failed", "reservation_id", id, "error", err)
			continue
		}
		if changed {
			done++
		}
	}
	return done, failed, nil
}

func (s *BookingService) transition(ctx context.Context, op string, t model.Transition) (*model.Reservation, error) {
	type result struct {
		r    *model.Reservation
		prev model.ReservationStatus
	}
	res, err := withRetry(ctx, s.retry, s.log, op, func() (result, error) {
		r, prev, err := s.ledger.ApplyTransition(ctx, t)
		return result{r, prev}, err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("reservation transitioned",
		"reservation_id", res.r.ID, "from", res.prev, "to", res.r.Status, "screening_id", res.r.ScreeningID)
	s.afterCommit(ctx, res.r, res.prev)
	return res.r, nil
}

// afterCommit runs the side effects of a committed change.  Neither step
// can undo the commit, so failures are only logged.
func (s *BookingService) afterCommit(ctx context.Context, r *model.Reservation, from model.ReservationStatus) {
	ctx = context.WithoutCancel(ctx)
	if from == "" || r.Status.IsTerminal() {
		s.cache.Invalidate(ctx, r.ScreeningID)
		s.seatMaps.Invalidate(ctx, r.ScreeningID)
	}
	if err := s.events.PublishStatusChanged(ctx, model.NewStatusChangedEvent(r, from)); err != nil {
		s.log.Warn("publish status change failed", "reservation_id", r.ID, "to", r.Status, "error", err)
	}
}
