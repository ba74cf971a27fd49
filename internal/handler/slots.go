package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/venue-ticketing/internal/middleware"
	"github.com/iliyamo/venue-ticketing/internal/model"
	"github.com/iliyamo/venue-ticketing/internal/reservation"
)

// SlotRoute is the cached availability route; writes that change slot
// state purge it.
const SlotRoute = "/v1/slots"

// SlotService is the part of reservation.Manager the slot endpoints use.
type SlotService interface {
	Reserve(ctx context.Context, date, timeSlot string) (reservation.Handle, error)
	Availability(ctx context.Context, date string) ([]reservation.Availability, error)
}

// SlotReleaser frees a slot no live booking holds.  *booking.Service
// satisfies it.
type SlotReleaser interface {
	ReleaseSlot(ctx context.Context, slotID uint64, by model.Staff) error
}

// CachePurger drops cached responses for a route.  *middleware.Purger
// satisfies it.
type CachePurger interface {
	Purge(ctx context.Context, route string) error
}

// SlotHandler serves slot reservation and availability.
type SlotHandler struct {
	Slots    SlotService
	Releaser SlotReleaser
	Purger   CachePurger // may be nil
}

// NewSlotHandler constructs a SlotHandler.  slots and releaser must be
// non-nil.
func NewSlotHandler(slots SlotService, releaser SlotReleaser, purger CachePurger) *SlotHandler {
	if slots == nil || releaser == nil {
		panic("nil dependency passed to NewSlotHandler")
	}
	return &SlotHandler{Slots: slots, Releaser: releaser, Purger: purger}
}

type reserveSlotRequest struct {
	Date     string `json:"date" validate:"required,isodate"`
	TimeSlot string `json:"time_slot" validate:"required"`
}

// Reserve handles POST /v1/slots/reserve.  It claims the slot for the given
// date and label and answers 201 with the slot ID, or 409 SLOT_UNAVAILABLE
// when another request got there first.
func (h *SlotHandler) Reserve(c echo.Context) error {
	var req reserveSlotRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	hd, err := h.Slots.Reserve(c.Request().Context(), req.Date, req.TimeSlot)
	if err != nil {
		return fail(c, err)
	}
	h.purge(c)
	return c.JSON(http.StatusCreated, hd)
}

// Release handles POST /v1/slots/:id/release.  Releasing an available slot
// is a no-op; a slot held by a pending or confirmed booking answers 409
// SLOT_IN_USE.
func (h *SlotHandler) Release(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return fail(c, model.Invalid("id", "must be a positive integer"))
	}
	if err := h.Releaser.ReleaseSlot(c.Request().Context(), id, middleware.StaffFrom(c)); err != nil {
		return fail(c, err)
	}
	h.purge(c)
	return c.NoContent(http.StatusNoContent)
}

// List handles GET /v1/slots?date=YYYY-MM-DD.
func (h *SlotHandler) List(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		return fail(c, model.Invalid("date", "is required"))
	}
	slots, err := h.Slots.Availability(c.Request().Context(), date)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"date": date, "slots": slots})
}

func (h *SlotHandler) purge(c echo.Context) {
	purgeSlots(c, h.Purger)
}

func purgeSlots(c echo.Context, p CachePurger) {
	if p == nil {
		return
	}
	if err := p.Purge(c.Request().Context(), SlotRoute); err != nil {
		c.Logger().Warnj(log.JSON{"event": "cache_purge_failed", "route": SlotRoute, "error": err.Error()})
	}
}
