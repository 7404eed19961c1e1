// Package router wires the HTTP surface: public screening reads, customer
// booking, reservation management and the admin reconcile endpoint.
package router

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/movie-reservation/internal/config"
	"github.com/iliyamo/movie-reservation/internal/handler"
	"github.com/iliyamo/movie-reservation/internal/logger"
	"github.com/iliyamo/movie-reservation/internal/middleware"
	"github.com/iliyamo/movie-reservation/internal/model"
)

// Deps bundles what the routes need.  Redis is optional; without it the
// response cache and the rate limiter are disabled.
type Deps struct {
	Booking   *handler.BookingHandler
	JWTSecret string
	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
	Checks    map[string]handler.Check
	Log       logger.Logger
}

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, checks map[string]handler.Check) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(checks))
}

// SeatMapPath is the request path of a screening's seat map, the route
// behind the response cache.
func SeatMapPath(screeningID uint64) string {
	return fmt.Sprintf("/v1/screenings/%d/seats", screeningID)
}

// RegisterPublic registers the read-only screening endpoints.  The seat
// map sits behind the Redis response cache.
func RegisterPublic(e *echo.Echo, d Deps) {
	g := e.Group("/v1/screenings")
	g.GET("/:id/availability", d.Booking.Availability)
	g.GET("/:id/seats", d.Booking.SeatMap, middleware.NewRedisCache(d.Cache, d.Redis, d.Log))
}

// RegisterReservations registers the authenticated endpoints.
func RegisterReservations(e *echo.Echo, d Deps) {
	g := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))

	g.POST("/screenings/:id/reservations", d.Booking.Book,
		middleware.RequireRole(model.RoleCustomer),
		middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log))
	g.GET("/my-reservations", d.Booking.ListMine, middleware.RequireRole(model.RoleCustomer))

	// owner or admin; ownership is checked by the booking service
	g.GET("/reservations/:id", d.Booking.Get)
	g.POST("/reservations/:id/cancel", d.Booking.Cancel)

	g.POST("/reservations/:id/confirm", d.Booking.Confirm, middleware.RequireRole(model.RolePayments, model.RoleAdmin))
	g.POST("/screenings/:id/reconcile", d.Booking.Reconcile, middleware.RequireRole(model.RoleAdmin))
}

// New builds the echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLogger(d.Log))

	RegisterRoutes(e, d.Checks)
	RegisterPublic(e, d)
	RegisterReservations(e, d)
	return e
}
