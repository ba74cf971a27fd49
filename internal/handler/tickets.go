package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-ticketing/internal/middleware"
	"github.com/iliyamo/venue-ticketing/internal/model"
	"github.com/iliyamo/venue-ticketing/internal/ticket"
)

// TicketService is implemented by *ticket.Service.
type TicketService interface {
	Quote(ctx context.Context, req ticket.CreateRequest) (model.PriceBreakdown, *model.Membership, []model.RideSelection, error)
	Create(ctx context.Context, req ticket.CreateRequest) (model.Ticket, error)
	Get(ctx context.Context, number string) (model.Ticket, error)
	Cancel(ctx context.Context, number string, by model.Staff) (model.Ticket, error)
	MarkPaid(ctx context.Context, number string) (model.Ticket, error)
}

// TicketHandler serves walk-in and online ticket issuance.
type TicketHandler struct {
	Tickets TicketService
}

// NewTicketHandler constructs a TicketHandler.
func NewTicketHandler(tickets TicketService) *TicketHandler {
	if tickets == nil {
		panic("nil ticket service passed to NewTicketHandler")
	}
	return &TicketHandler{Tickets: tickets}
}

type createTicketRequest struct {
	GuardianName string               `json:"guardian_name" validate:"required,max=120"`
	Phone        string               `json:"phone" validate:"required,bdphone"`
	VisitDate    string               `json:"visit_date" validate:"omitempty,isodate"`
	Guardians    int                  `json:"guardians" validate:"gte=0,lte=50"`
	Children     int                  `json:"children" validate:"gte=0,lte=50"`
	Socks        int                  `json:"socks" validate:"gte=0,lte=100"`
	Rides        []ticket.RideRequest `json:"rides" validate:"omitempty,max=20,dive"`
	PaymentType  string               `json:"payment_type" validate:"omitempty,oneof=cash online"`
	BookingID    *uint64              `json:"booking_id"`
}

func (r createTicketRequest) toService(by model.Staff) ticket.CreateRequest {
	return ticket.CreateRequest{
		GuardianName: r.GuardianName,
		Phone:        r.Phone,
		VisitDate:    r.VisitDate,
		Guardians:    r.Guardians,
		Children:     r.Children,
		Socks:        r.Socks,
		Rides:        r.Rides,
		PaymentType:  model.PaymentType(r.PaymentType),
		BookingID:    r.BookingID,
		IssuedBy:     by,
	}
}

// Create handles POST /v1/tickets.  The issuing staff member is taken from
// the access token.
func (h *TicketHandler) Create(c echo.Context) error {
	var req createTicketRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	t, err := h.Tickets.Create(c.Request().Context(), req.toService(middleware.StaffFrom(c)))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

// Quote handles POST /v1/tickets/quote.  It prices the same body Create
// accepts without issuing a ticket.
func (h *TicketHandler) Quote(c echo.Context) error {
	var req createTicketRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	price, member, rides, err := h.Tickets.Quote(c.Request().Context(), req.toService(middleware.StaffFrom(c)))
	if err != nil {
		return fail(c, err)
	}
	body := echo.Map{"price": price, "rides": rides}
	if member != nil {
		body["membership"] = member
	}
	return c.JSON(http.StatusOK, body)
}

// Get handles GET /v1/tickets/:number.
func (h *TicketHandler) Get(c echo.Context) error {
	t, err := h.Tickets.Get(c.Request().Context(), c.Param("number"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// Cancel handles POST /v1/tickets/:number/cancel.  Only active tickets can
// be cancelled.
func (h *TicketHandler) Cancel(c echo.Context) error {
	t, err := h.Tickets.Cancel(c.Request().Context(), c.Param("number"), middleware.StaffFrom(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// Pay handles POST /v1/tickets/:number/pay for online tickets awaiting
// payment.
func (h *TicketHandler) Pay(c echo.Context) error {
	t, err := h.Tickets.MarkPaid(c.Request().Context(), c.Param("number"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}
