package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/movie-reservation/internal/logger"
)

// RequestLogger logs one line per request: method, path, status, latency
// and the caller when authenticated.  5xx responses are logged at error
// level, 4xx at warn.
func RequestLogger(log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo write the error response so Status is final
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			fields := []interface{}{
				"method", req.Method,
				"path", req.URL.Path,
				"route", c.Path(),
				"status", res.Status,
				"latency", time.Since(start),
				"ip", c.RealIP(),
			}
			if a, ok := ActorFrom(c); ok {
				fields = append(fields, "user_id", a.UserID, "role", a.Role)
			}
			switch {
			case res.Status >= 500:
				log.Error("request", append(fields, "error", err)...)
			case res.Status >= 400:
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}
			return nil
		}
	}
}
