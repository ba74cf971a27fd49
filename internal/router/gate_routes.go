package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-ticketing/internal/middleware"
)

// registerGate registers the scanner endpoints.  Scans get their own
// bucket so a queue at the gate cannot starve ticket sales.
func registerGate(v1 *echo.Group, h Handlers, opt Options) {
	gate := middleware.RequireRole(middleware.RoleGate, middleware.RoleAdmin)
	anyStaff := middleware.RequireRole(middleware.RoleGate, middleware.RoleCounter, middleware.RoleAdmin)

	v1.POST("/gate/scan", h.Gate.Scan, gate, middleware.NewTokenBucket(opt.RateLimit, opt.Redis, "gate"))
	v1.GET("/tickets/:number", h.Tickets.Get, anyStaff)
	v1.GET("/tickets/:number/gate-logs", h.Gate.Logs, anyStaff)
}

// registerAdmin registers supervisor-only corrections.
func registerAdmin(v1 *echo.Group, h Handlers) {
	admin := middleware.RequireRole(middleware.RoleAdmin)

	v1.POST("/slots/:id/release", h.Slots.Release, admin)
	v1.PATCH("/bookings/:id/status", h.Bookings.UpdateStatus, admin)
	v1.POST("/tickets/:number/cancel", h.Tickets.Cancel, admin)
	v1.GET("/notifications", h.Notifications.List, admin)
}
