package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-ticketing/internal/gate"
	"github.com/iliyamo/venue-ticketing/internal/middleware"
	"github.com/iliyamo/venue-ticketing/internal/model"
)

// GateService is implemented by *gate.Controller.
type GateService interface {
	Scan(ctx context.Context, req gate.ScanRequest) (gate.Result, error)
	History(ctx context.Context, number string) (model.Ticket, []model.GateLog, gate.State, error)
}

// GateHandler serves the scanners at the venue gates.
type GateHandler struct {
	Gate GateService
}

// NewGateHandler constructs a GateHandler.
func NewGateHandler(g GateService) *GateHandler {
	if g == nil {
		panic("nil gate service passed to NewGateHandler")
	}
	return &GateHandler{Gate: g}
}

type scanRequest struct {
	TicketNumber string  `json:"ticket_number" validate:"required,max=32"`
	GateID       string  `json:"gate_id" validate:"required,max=64"`
	CameraID     *string `json:"camera_id" validate:"omitempty,max=64"`
	Action       string  `json:"action" validate:"required,oneof=entry exit"`
}

// Scan handles POST /v1/gate/scan.  A refused scan answers 409 with a code
// such as ALREADY_INSIDE or TICKET_COMPLETED and writes nothing.
func (h *GateHandler) Scan(c echo.Context) error {
	var req scanRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	res, err := h.Gate.Scan(c.Request().Context(), gate.ScanRequest{
		TicketNumber: req.TicketNumber,
		GateID:       req.GateID,
		CameraID:     req.CameraID,
		Action:       model.EntryType(req.Action),
		Staff:        middleware.StaffFrom(c),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Logs handles GET /v1/tickets/:number/gate-logs: the full scan history of
// a ticket and the state folded from it.
func (h *GateHandler) Logs(c echo.Context) error {
	t, logs, st, err := h.Gate.History(c.Request().Context(), c.Param("number"))
	if err != nil {
		return fail(c, err)
	}
	if logs == nil {
		logs = []model.GateLog{}
	}
	return c.JSON(http.StatusOK, echo.Map{"ticket": t, "logs": logs, "state": st})
}
