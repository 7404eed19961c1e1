package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movie-reservation/internal/logger"
	"github.com/iliyamo/movie-reservation/internal/middleware"
	"github.com/iliyamo/movie-reservation/internal/model"
	"github.com/iliyamo/movie-reservation/internal/service"
)

// BookingHandler exposes the booking engine and the screening inventory
// over HTTP.  Authentication and role checks are done by middleware;
// ownership checks are done by the service.
type BookingHandler struct {
	booking   *service.BookingService
	inventory *service.InventoryService
	log       logger.Logger
}

// NewBookingHandler panics if a dependency is nil.
func NewBookingHandler(booking *service.BookingService, inventory *service.InventoryService, log logger.Logger) *BookingHandler {
	if booking == nil || inventory == nil {
		panic("nil service passed to NewBookingHandler")
	}
	return &BookingHandler{booking: booking, inventory: inventory, log: log.With("component", "http")}
}

type bookBody struct {
	SeatIDs []uint64 `json:"seat_ids"`
}

// Availability handles GET /v1/screenings/:id/availability.
func (h *BookingHandler) Availability(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badID(c)
	}
	n, err := h.inventory.GetAvailableCount(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"screening_id": id, "available_seats": n})
}

// SeatMap handles GET /v1/screenings/:id/seats.
func (h *BookingHandler) SeatMap(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badID(c)
	}
	m, err := h.inventory.SeatMap(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Book handles POST /v1/screenings/:id/reservations with {"seat_ids":[...]}.
// On success the hold is returned with 201; payment confirms it later.
func (h *BookingHandler) Book(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c)
	if !ok {
		return badID(c)
	}
	var body bookBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	r, err := h.booking.Book(c.Request().Context(), service.BookRequest{
		UserID:      actor.UserID,
		ScreeningID: id,
		SeatIDs:     body.SeatIDs,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// Get handles GET /v1/reservations/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	return h.withReservation(c, h.booking.Get)
}

// Cancel handles POST /v1/reservations/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	return h.withReservation(c, h.booking.Cancel)
}

// Confirm handles POST /v1/reservations/:id/confirm, the payment-success
// signal.
func (h *BookingHandler) Confirm(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badID(c)
	}
	r, err := h.booking.Confirm(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// ListMine handles GET /v1/my-reservations.
func (h *BookingHandler) ListMine(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.booking.ListMine(c.Request().Context(), actor.UserID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": list})
}

// Reconcile handles POST /v1/screenings/:id/reconcile.
func (h *BookingHandler) Reconcile(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badID(c)
	}
	res, err := h.inventory.Reconcile(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *BookingHandler) withReservation(c echo.Context, op func(context.Context, model.Actor, uint64) (*model.Reservation, error)) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c)
	if !ok {
		return badID(c)
	}
	r, err := op(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, r)
}

func pathID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func badID(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
}
