package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-ticketing/internal/model"
	"github.com/iliyamo/venue-ticketing/internal/phone"
)

// MembershipFinder is implemented by *repository.MembershipRepo.
type MembershipFinder interface {
	ActiveForPhone(ctx context.Context, phone, date string) (model.Membership, error)
}

// MembershipHandler lets the counter check a guest's discount before
// issuing a ticket.
type MembershipHandler struct {
	Memberships MembershipFinder
	Location    *time.Location
	now         func() time.Time
}

// NewMembershipHandler constructs a MembershipHandler that evaluates
// validity on today's date in loc.
func NewMembershipHandler(m MembershipFinder, loc *time.Location) *MembershipHandler {
	if m == nil {
		panic("nil membership finder passed to NewMembershipHandler")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &MembershipHandler{Memberships: m, Location: loc, now: time.Now}
}

// Lookup handles GET /v1/memberships/:phone.  404 means no membership is
// valid for the number today.
func (h *MembershipHandler) Lookup(c echo.Context) error {
	p := phone.Normalize(c.Param("phone"))
	if !phone.Valid(p) {
		return fail(c, model.Invalid("phone", "must be a Bangladesh mobile number"))
	}
	m, err := h.Memberships.ActiveForPhone(c.Request().Context(), p, model.DateIn(h.now(), h.Location))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, m)
}
