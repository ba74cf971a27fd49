package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-ticketing/internal/booking"
	"github.com/iliyamo/venue-ticketing/internal/middleware"
	"github.com/iliyamo/venue-ticketing/internal/model"
)

// BookingService is implemented by *booking.Service.
type BookingService interface {
	Create(ctx context.Context, req booking.CreateRequest) (model.Booking, error)
	Get(ctx context.Context, id uint64) (model.Booking, error)
	List(ctx context.Context, date string) ([]model.Booking, error)
	Cancel(ctx context.Context, id uint64, refund bool, reason string, by model.Staff) (booking.CancelResult, error)
	UpdateStatus(ctx context.Context, id uint64, to model.BookingStatus, reason string, by model.Staff) (model.Booking, error)
	UpdatePayment(ctx context.Context, id uint64, to model.PaymentStatus, reason string, by model.Staff) (model.Booking, error)
}

// BookingHandler serves the counter and online booking flow.
type BookingHandler struct {
	Bookings BookingService
	Purger   CachePurger // may be nil
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(bookings BookingService, purger CachePurger) *BookingHandler {
	if bookings == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	return &BookingHandler{Bookings: bookings, Purger: purger}
}

type createBookingRequest struct {
	Date         string `json:"date" validate:"required,isodate"`
	TimeSlot     string `json:"time_slot" validate:"required"`
	GuardianName string `json:"guardian_name" validate:"required,max=120"`
	Phone        string `json:"phone" validate:"required,bdphone"`
	Guardians    int    `json:"guardians" validate:"gte=0,lte=50"`
	Children     int    `json:"children" validate:"gte=0,lte=50"`
	Socks        int    `json:"socks" validate:"gte=0,lte=100"`
}

// Create handles POST /v1/bookings.  The slot is claimed as part of the
// booking; a taken slot answers 409 SLOT_UNAVAILABLE.
func (h *BookingHandler) Create(c echo.Context) error {
	var req createBookingRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	b, err := h.Bookings.Create(c.Request().Context(), booking.CreateRequest{
		Date:         req.Date,
		TimeSlot:     req.TimeSlot,
		GuardianName: req.GuardianName,
		Phone:        req.Phone,
		Guardians:    req.Guardians,
		Children:     req.Children,
		Socks:        req.Socks,
	})
	if err != nil {
		return fail(c, err)
	}
	purgeSlots(c, h.Purger)
	return c.JSON(http.StatusCreated, b)
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	b, err := h.Bookings.Get(c.Request().Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// List handles GET /v1/bookings?date=YYYY-MM-DD.
func (h *BookingHandler) List(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		return fail(c, model.Invalid("date", "is required"))
	}
	list, err := h.Bookings.List(c.Request().Context(), date)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"date": date, "bookings": list})
}

type cancelBookingRequest struct {
	Refund bool   `json:"refund"`
	Reason string `json:"reason" validate:"max=500"`
}

// Cancel handles POST /v1/bookings/:id/cancel.  The slot is released even
// when the booking was already cancelled, in which case the answer is 409.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	var req cancelBookingRequest
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return fail(c, err)
		}
	}
	res, err := h.Bookings.Cancel(c.Request().Context(), id, req.Refund, req.Reason, middleware.StaffFrom(c))
	purgeSlots(c, h.Purger)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type bookingStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed"`
	Reason string `json:"reason" validate:"max=500"`
}

// UpdateStatus handles PATCH /v1/bookings/:id/status.
func (h *BookingHandler) UpdateStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	var req bookingStatusRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	b, err := h.Bookings.UpdateStatus(c.Request().Context(), id, model.BookingStatus(req.Status), req.Reason, middleware.StaffFrom(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

type bookingPaymentRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required,oneof=unpaid pending paid refunded"`
	Reason        string `json:"reason" validate:"max=500"`
}

// UpdatePayment handles PATCH /v1/bookings/:id/payment.
func (h *BookingHandler) UpdatePayment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return fail(c, err)
	}
	var req bookingPaymentRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	b, err := h.Bookings.UpdatePayment(c.Request().Context(), id, model.PaymentStatus(req.PaymentStatus), req.Reason, middleware.StaffFrom(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

func pathID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, model.Invalid("id", "must be a positive integer")
	}
	return id, nil
}
