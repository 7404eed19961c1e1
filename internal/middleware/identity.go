package middleware

// identity.go holds the context keys JWTAuth fills in and the helpers the
// other middleware and the handlers use to read them back.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movie-reservation/internal/model"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// ActorFrom returns the authenticated caller.  ok is false on routes that
// did not pass through JWTAuth.
func ActorFrom(c echo.Context) (model.Actor, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	if !ok || id == 0 {
		return model.Actor{}, false
	}
	role, _ := c.Get(ctxRole).(string)
	return model.Actor{UserID: id, Role: role}, true
}

// userKey identifies the caller for rate limiting; "anon" when unknown.
func userKey(c echo.Context) string {
	if a, ok := ActorFrom(c); ok {
		return strconv.FormatUint(a.UserID, 10)
	}
	return "anon"
}
