package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

// StaffFrom returns the staff identity JWTAuth stored on the context.  The
// zero Staff is returned on unauthenticated routes.
func StaffFrom(c echo.Context) model.Staff {
	if s, ok := c.Get(staffKey).(model.Staff); ok {
		return s
	}
	return model.Staff{}
}

// staffID is the rate-limit identity: the staff ID, or "anon".
func staffID(c echo.Context) string {
	if s := StaffFrom(c); s.ID != "" {
		return s.ID
	}
	return "anon"
}
