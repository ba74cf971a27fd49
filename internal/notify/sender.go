package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"

	"github.com/iliyamo/venue-ticketing/internal/phone"
)

// Sender delivers one message over one channel.  An error means the
// gateway did not accept the message.
type Sender interface {
	Send(ctx context.Context, to, message string) error
}

// GatewayError is a non-2xx answer from a messaging gateway.
type GatewayError struct {
	Channel string
	Status  int
	Body    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s gateway returned %d: %s", e.Channel, e.Status, e.Body)
}

// HTTPSender posts JSON to a messaging gateway.  Sends are throttled by a
// token bucket so a burst of confirmations does not trip the provider's
// own limits.
type HTTPSender struct {
	channel string
	url     string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	payload func(to, message string) any
}

func newHTTPSender(channel, url, token string, timeout time.Duration, perSecond float64, burst int, payload func(to, message string) any) *HTTPSender {
	return &HTTPSender{
		channel: channel,
		url:     url,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		payload: payload,
	}
}

// NewSMSSender returns a Sender for a bulk SMS gateway that accepts
// {"to", "message", "sender_id"}.
func NewSMSSender(url, token, senderID string, timeout time.Duration, perSecond float64, burst int) *HTTPSender {
	return newHTTPSender("sms", url, token, timeout, perSecond, burst, func(to, message string) any {
		return map[string]string{"to": phone.International(to), "message": message, "sender_id": senderID}
	})
}

// NewWhatsAppSender returns a Sender for the WhatsApp Cloud API messages
// endpoint.
func NewWhatsAppSender(url, token string, timeout time.Duration, perSecond float64, burst int) *HTTPSender {
	return newHTTPSender("whatsapp", url, token, timeout, perSecond, burst, func(to, message string) any {
		return map[string]any{
			"messaging_product": "whatsapp",
			"to":                phone.International(to),
			"type":              "text",
			"text":              map[string]string{"body": message},
		}
	})
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, to, message string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s throttle: %w", s.channel, err)
	}
	body, err := json.Marshal(s.payload(to, message))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", s.channel, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &GatewayError{Channel: s.channel, Status: resp.StatusCode, Body: string(snippet)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// LogSender writes messages to the log instead of sending them.  It is used
// when a channel has no gateway configured.
type LogSender struct {
	Channel string
	Logger  *log.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, to, message string) error {
	s.Logger.Infoj(log.JSON{"event": "message_not_sent", "channel": s.Channel, "recipient": phone.Mask(to), "message": message})
	return nil
}
