package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-ticketing/internal/model"
	"github.com/iliyamo/venue-ticketing/internal/notify"
)

// Notifier is implemented by *notify.Dispatcher.
type Notifier interface {
	Send(ctx context.Context, req notify.Request) ([]notify.ChannelResult, error)
}

// NotificationHistory lists delivery attempts for a domain record.
type NotificationHistory interface {
	ListByReference(ctx context.Context, ref model.Reference) ([]model.NotificationLog, error)
}

// NotificationHandler serves manual sends and the delivery ledger.
type NotificationHandler struct {
	Notifier       Notifier
	History        NotificationHistory
	DefaultChannel model.Channel // used when the request names none
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(n Notifier, history NotificationHistory, defaultChannel model.Channel) *NotificationHandler {
	if n == nil || history == nil {
		panic("nil dependency passed to NewNotificationHandler")
	}
	if defaultChannel == "" {
		defaultChannel = model.ChannelSMS
	}
	return &NotificationHandler{Notifier: n, History: history, DefaultChannel: defaultChannel}
}

type referenceBody struct {
	Type string `json:"type" validate:"required,max=32"`
	ID   string `json:"id" validate:"required,max=64"`
}

type sendNotificationRequest struct {
	Phone     string         `json:"phone" validate:"required,bdphone"`
	Message   string         `json:"message" validate:"required,max=1000"`
	Channel   string         `json:"channel" validate:"omitempty,oneof=sms whatsapp both"`
	Reference *referenceBody `json:"reference" validate:"omitempty"`
}

// Send handles POST /v1/notifications.  The response lists the outcome per
// channel; a channel that already delivered for the same reference reports
// duplicate instead of sending again.  Delivery failures are reported in
// the body, not as an HTTP error.
func (h *NotificationHandler) Send(c echo.Context) error {
	var req sendNotificationRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	nr := notify.Request{
		Phone:   req.Phone,
		Message: req.Message,
		Channel: model.Channel(req.Channel),
	}
	if nr.Channel == "" {
		nr.Channel = h.DefaultChannel
	}
	if req.Reference != nil {
		nr.Reference = &model.Reference{Type: req.Reference.Type, ID: req.Reference.ID}
	}
	results, err := h.Notifier.Send(c.Request().Context(), nr)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"results": results})
}

// List handles GET /v1/notifications?reference_type=&reference_id=.
func (h *NotificationHandler) List(c echo.Context) error {
	ref := model.Reference{Type: c.QueryParam("reference_type"), ID: c.QueryParam("reference_id")}
	if ref.Type == "" {
		return fail(c, model.Invalid("reference_type", "is required"))
	}
	if ref.ID == "" {
		return fail(c, model.Invalid("reference_id", "is required"))
	}
	logs, err := h.History.ListByReference(c.Request().Context(), ref)
	if err != nil {
		return fail(c, err)
	}
	if logs == nil {
		logs = []model.NotificationLog{}
	}
	return c.JSON(http.StatusOK, echo.Map{"reference": ref, "notifications": logs})
}
