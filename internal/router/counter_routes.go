package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-ticketing/internal/middleware"
)

// registerCounter registers the booking and ticket desk endpoints.
// Writes share the "counter" rate-limit bucket; the availability listing
// is cached in Redis and purged by the handlers on every slot change.
func registerCounter(v1 *echo.Group, h Handlers, opt Options) {
	desk := middleware.RequireRole(middleware.RoleCounter, middleware.RoleAdmin)
	limit := middleware.NewTokenBucket(opt.RateLimit, opt.Redis, "counter")
	cache := middleware.NewRedisCache(opt.Cache, opt.Redis)

	v1.GET("/slots", h.Slots.List, desk, cache)
	v1.POST("/slots/reserve", h.Slots.Reserve, desk, limit)

	v1.POST("/bookings", h.Bookings.Create, desk, limit)
	v1.GET("/bookings", h.Bookings.List, desk)
	v1.GET("/bookings/:id", h.Bookings.Get, desk)
	v1.POST("/bookings/:id/cancel", h.Bookings.Cancel, desk, limit)
	v1.PATCH("/bookings/:id/payment", h.Bookings.UpdatePayment, desk)

	v1.POST("/tickets", h.Tickets.Create, desk, limit)
	v1.POST("/tickets/quote", h.Tickets.Quote, desk)
	v1.POST("/tickets/:number/pay", h.Tickets.Pay, desk)

	v1.GET("/memberships/:phone", h.Memberships.Lookup, desk)
	v1.POST("/notifications", h.Notifications.Send, desk, limit)
}
