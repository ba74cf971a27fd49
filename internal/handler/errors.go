package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/venue-ticketing/internal/booking"
	"github.com/iliyamo/venue-ticketing/internal/gate"
	"github.com/iliyamo/venue-ticketing/internal/model"
	"github.com/iliyamo/venue-ticketing/internal/repository"
	"github.com/iliyamo/venue-ticketing/internal/reservation"
	"github.com/iliyamo/venue-ticketing/internal/ticket"
)

// bind decodes the request body into dst and validates it.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return &model.ValidationError{Message: "invalid request body"}
	}
	return c.Validate(dst)
}

// fail writes the JSON error response for err.  Every handler funnels its
// errors through here so status codes stay consistent.
func fail(c echo.Context, err error) error {
	var (
		ve *model.ValidationError
		se *gate.ScanError
	)
	switch {
	case errors.As(err, &ve):
		body := echo.Map{"error": ve.Message}
		if ve.Field != "" {
			body["field"] = ve.Field
		}
		return c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &se):
		status := http.StatusConflict
		if se.Code == gate.CodeTicketNotFound {
			status = http.StatusNotFound
		}
		return c.JSON(status, echo.Map{"error": "scan refused", "code": se.Code})
	case errors.Is(err, reservation.ErrSlotUnavailable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "slot unavailable", "code": "SLOT_UNAVAILABLE"})
	case errors.Is(err, booking.ErrSlotInUse):
		return c.JSON(http.StatusConflict, echo.Map{"error": "slot held by a live booking", "code": "SLOT_IN_USE"})
	case errors.Is(err, booking.ErrAlreadyCancelled):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking already cancelled", "code": "ALREADY_CANCELLED"})
	case errors.Is(err, ticket.ErrNotCancellable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "ticket is not active", "code": "TICKET_NOT_ACTIVE"})
	case errors.Is(err, ticket.ErrNotPayable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "ticket has no pending payment", "code": "NOT_PAYABLE"})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict"})
	case errors.Is(err, repository.ErrTimeout):
		c.Logger().Warnj(log.JSON{"event": "store_timeout", "path": c.Path(), "error": err.Error()})
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "store timeout"})
	case errors.Is(err, gate.ErrInvariant):
		c.Logger().Errorj(log.JSON{"event": "invariant_violation", "path": c.Path(), "error": err.Error()})
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "gate log inconsistent", "code": "INVARIANT_VIOLATION"})
	}
	c.Logger().Errorj(log.JSON{"event": "internal_error", "path": c.Path(), "error": err.Error()})
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
