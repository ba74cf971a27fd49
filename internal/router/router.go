// Package router registers the HTTP routes and the middleware that guards
// them.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/venue-ticketing/internal/config"
	"github.com/iliyamo/venue-ticketing/internal/handler"
	"github.com/iliyamo/venue-ticketing/internal/middleware"
)

// Handlers is every handler the API serves.
type Handlers struct {
	Health        echo.HandlerFunc
	Slots         *handler.SlotHandler
	Bookings      *handler.BookingHandler
	Tickets       *handler.TicketHandler
	Gate          *handler.GateHandler
	Notifications *handler.NotificationHandler
	Memberships   *handler.MembershipHandler
}

// Options carries what the route middleware needs.  A nil Redis client
// turns rate limiting and caching into pass-throughs.
type Options struct {
	JWTSecret string
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
}

// Register wires the whole API.  Every /v1 route requires a staff access
// token; the role decides which desk may call it.
func Register(e *echo.Echo, h Handlers, opt Options) {
	RegisterRoutes(e, h.Health)

	v1 := e.Group("/v1", middleware.JWTAuth(opt.JWTSecret))
	registerCounter(v1, h, opt)
	registerGate(v1, h, opt)
	registerAdmin(v1, h)
}
