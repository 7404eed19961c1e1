package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movie-reservation/internal/logger"
	"github.com/iliyamo/movie-reservation/internal/model"
)

// writeError maps domain errors to HTTP responses.  Anything unrecognised
// is logged and reported as 500 without details.
func writeError(c echo.Context, log logger.Logger, err error) error {
	var (
		sue *model.SeatUnavailableError
		ise *model.InvalidStateError
		nbe *model.ScreeningNotBookableError
		ve  *model.ValidationError
	)
	switch {
	case errors.As(err, &sue):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seat_unavailable", "seat_ids": sue.SeatIDs})
	case errors.As(err, &ise):
		body := echo.Map{"error": "invalid_state", "message": ise.Error(), "status": ise.Current}
		if ise.Reason != "" {
			body["reason"] = ise.Reason
		}
		return c.JSON(http.StatusConflict, body)
	case errors.As(err, &nbe):
		return c.JSON(http.StatusConflict, echo.Map{"error": "screening_not_bookable", "reason": nbe.Reason})
	case errors.As(err, &ve):
		body := echo.Map{"error": "validation_error", "field": ve.Field, "message": ve.Message}
		if len(ve.SeatIDs) > 0 {
			body["seat_ids"] = ve.SeatIDs
		}
		return c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, model.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	case errors.Is(err, model.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, model.ErrUnavailable):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "unavailable", "message": "please retry"})
	}
	log.Error("unhandled error", "method", c.Request().Method, "path", c.Request().URL.Path, "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
}
