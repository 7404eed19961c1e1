package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-reservation/internal/config"
	"github.com/iliyamo/movie-reservation/internal/handler"
	"github.com/iliyamo/movie-reservation/internal/logger"
	"github.com/iliyamo/movie-reservation/internal/model"
	"github.com/iliyamo/movie-reservation/internal/repository/memory"
	"github.com/iliyamo/movie-reservation/internal/router"
	"github.com/iliyamo/movie-reservation/internal/service"
	"github.com/iliyamo/movie-reservation/internal/utils"
)

const secret = "handler-test-secret"

type api struct {
	t         *testing.T
	e         *echo.Echo
	store     *memory.Store
	screening model.Screening
	seats     []model.Seat
}

func newAPI(t *testing.T) *api {
	t.Helper()
	store := memory.New()
	seats, err := store.AddSeats(
		model.Seat{AuditoriumID: 1, RowLabel: "A", SeatNumber: 1, IsActive: true},
		model.Seat{AuditoriumID: 1, RowLabel: "A", SeatNumber: 2, IsActive: true},
		model.Seat{AuditoriumID: 1, RowLabel: "A", SeatNumber: 3, IsActive: true, Class: model.SeatClassPremium},
	)
	require.NoError(t, err)
	sc, err := store.AddScreening(model.Screening{
		MovieID:               1,
		AuditoriumID:          1,
		StartsAt:              time.Now().Add(24 * time.Hour),
		EndsAt:                time.Now().Add(26 * time.Hour),
		BasePriceCents:        1000,
		PremiumSurchargeCents: 500,
	}, time.Now())
	require.NoError(t, err)

	log := logger.NewNop()
	cfg := config.BookingConfig{
		HoldTTL:              10 * time.Minute,
		MaxSeatsPerBooking:   4,
		RetryMaxAttempts:     1,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     time.Millisecond,
	}
	booking := service.NewBookingService(store, store, store, cfg, log)
	inventory := service.NewInventoryService(store, store, nil, log)
	e := router.New(router.Deps{
		Booking:   handler.NewBookingHandler(booking, inventory, log),
		JWTSecret: secret,
		Checks: map[string]handler.Check{
			"store": func(context.Context) error { return nil },
		},
		Log: log,
	})
	return &api{t: t, e: e, store: store, screening: sc, seats: seats}
}

func (a *api) do(method, path string, userID uint64, role, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if userID != 0 {
		tok, err := utils.NewAccessToken(secret, userID, role, time.Hour)
		require.NoError(a.t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *api) book(userID uint64, seatIDs ...uint64) *httptest.ResponseRecorder {
	ids, _ := json.Marshal(seatIDs)
	return a.do(http.MethodPost, fmt.Sprintf("/v1/screenings/%d/reservations", a.screening.ID), userID, model.RoleCustomer, `{"seat_ids":`+string(ids)+`}`)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestBookConfirmFlow(t *testing.T) {
	a := newAPI(t)

	rec := a.book(7, a.seats[0].ID, a.seats[2].ID)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	held := decode[model.Reservation](t, rec)
	assert.Equal(t, model.StatusHeld, held.Status)
	assert.Equal(t, int64(2500), held.TotalPriceCents)

	rec = a.do(http.MethodGet, fmt.Sprintf("/v1/screenings/%d/availability", a.screening.ID), 0, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["available_seats"])

	// customers cannot confirm their own holds
	confirmPath := fmt.Sprintf("/v1/reservations/%d/confirm", held.ID)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, confirmPath, 7, model.RoleCustomer, "").Code)

	rec = a.do(http.MethodPost, confirmPath, 900, model.RolePayments, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	booked := decode[model.Reservation](t, rec)
	assert.Equal(t, model.StatusBooked, booked.Status)
	assert.NotEmpty(t, booked.BookingRef)

	rec = a.do(http.MethodGet, "/v1/my-reservations", 7, model.RoleCustomer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[struct {
		Reservations []model.Reservation `json:"reservations"`
	}](t, rec)
	require.Len(t, mine.Reservations, 1)
	assert.Equal(t, held.ID, mine.Reservations[0].ID)
}

func TestBookConflictReturnsSeatIDs(t *testing.T) {
	a := newAPI(t)
	require.Equal(t, http.StatusCreated, a.book(1, a.seats[1].ID).Code)

	rec := a.book(2, a.seats[0].ID, a.seats[1].ID, a.seats[2].ID)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[struct {
		Error   string   `json:"error"`
		SeatIDs []uint64 `json:"seat_ids"`
	}](t, rec)
	assert.Equal(t, "seat_unavailable", body.Error)
	assert.Equal(t, []uint64{a.seats[1].ID}, body.SeatIDs)
}

func TestBookRejections(t *testing.T) {
	a := newAPI(t)
	path := fmt.Sprintf("/v1/screenings/%d/reservations", a.screening.ID)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, path, 0, "", `{"seat_ids":[1]}`).Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, path, 1, model.RoleAdmin, `{"seat_ids":[1]}`).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, path, 1, model.RoleCustomer, `{"seat_ids":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, path, 1, model.RoleCustomer, `{bad`).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/v1/screenings/x/reservations", 1, model.RoleCustomer, `{"seat_ids":[1]}`).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/v1/screenings/999/reservations", 1, model.RoleCustomer, `{"seat_ids":[1]}`).Code)

	require.NoError(t, a.store.CancelScreening(a.screening.ID))
	rec := a.book(1, a.seats[0].ID)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "screening_not_bookable", decode[map[string]any](t, rec)["error"])
}

func TestReservationAccess(t *testing.T) {
	a := newAPI(t)
	held := decode[model.Reservation](t, a.book(7, a.seats[0].ID))
	get := fmt.Sprintf("/v1/reservations/%d", held.ID)
	cancel := get + "/cancel"

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, get, 7, model.RoleCustomer, "").Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, get, 1, model.RoleAdmin, "").Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, get, 8, model.RoleCustomer, "").Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/reservations/999", 7, model.RoleCustomer, "").Code)

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, cancel, 8, model.RoleCustomer, "").Code)
	rec := a.do(http.MethodPost, cancel, 7, model.RoleCustomer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusCancelled, decode[model.Reservation](t, rec).Status)

	rec = a.do(http.MethodPost, cancel, 7, model.RoleCustomer, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decode[map[string]any](t, rec)["error"])
}

func TestSeatMapAndReconcile(t *testing.T) {
	a := newAPI(t)
	require.Equal(t, http.StatusCreated, a.book(7, a.seats[0].ID).Code)

	rec := a.do(http.MethodGet, fmt.Sprintf("/v1/screenings/%d/seats", a.screening.ID), 0, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[service.SeatMap](t, rec)
	require.Len(t, m.Seats, 3)
	assert.False(t, m.Seats[0].Available)
	assert.True(t, m.Seats[1].Available)
	assert.Equal(t, 2, m.AvailableSeats)

	a.store.SetAvailableSeats(a.screening.ID, 3)
	path := fmt.Sprintf("/v1/screenings/%d/reconcile", a.screening.ID)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, path, 7, model.RoleCustomer, "").Code)
	rec = a.do(http.MethodPost, path, 1, model.RoleAdmin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[service.ReconcileResult](t, rec)
	assert.Equal(t, 3, res.Cached)
	assert.Equal(t, 2, res.Computed)
	assert.True(t, res.Healed)
}

func TestProbes(t *testing.T) {
	a := newAPI(t)
	rec := a.do(http.MethodGet, "/healthz", 0, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/readyz", 0, "", "").Code)

	e := echo.New()
	e.GET("/readyz", handler.Ready(map[string]handler.Check{
		"db": func(context.Context) error { return errors.New("connection refused") },
	}))
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
