// Package notify delivers guest messages over SMS and WhatsApp at most once
// per (reference, channel).  The notification log is both the audit trail
// and the idempotency ledger: a sent row for a reference and channel turns
// every later request for the same pair into a reported duplicate.  A claim
// row keyed by the same pair serializes concurrent senders, so only one of
// them reaches the gateway while the others report pending.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/venue-ticketing/internal/model"
	"github.com/iliyamo/venue-ticketing/internal/phone"
)

// Ledger is the notification log plus the per-reference delivery claims.
// Claim reports false while another sender holds the pair or after it was
// settled as sent.  Settle marks the claim sent or gives it up.
type Ledger interface {
	Append(ctx context.Context, l *model.NotificationLog) error
	HasSent(ctx context.Context, ref model.Reference, channel model.Channel) (bool, error)
	Claim(ctx context.Context, ref model.Reference, channel model.Channel) (bool, error)
	Settle(ctx context.Context, ref model.Reference, channel model.Channel, sent bool) error
}

// Request is one message to deliver.
type Request struct {
	Phone     string
	Message   string
	Channel   model.Channel
	Reference *model.Reference
}

// ChannelResult is the outcome on one channel.
type ChannelResult struct {
	Channel   model.Channel            `json:"channel"`
	Status    model.NotificationStatus `json:"status"`
	Duplicate bool                     `json:"duplicate"`
	Attempts  int                      `json:"attempts"`
	Error     string                   `json:"error,omitempty"`
}

// Dispatcher sends messages through the configured channel senders.
type Dispatcher struct {
	senders   map[model.Channel]Sender
	ledger    Ledger
	templates Templates
	retryWait time.Duration
	logger    *log.Logger
}

// NewDispatcher returns a Dispatcher.  senders must hold an entry for each
// channel that may be requested.
func NewDispatcher(senders map[model.Channel]Sender, ledger Ledger, templates Templates) *Dispatcher {
	return &Dispatcher{
		senders:   senders,
		ledger:    ledger,
		templates: templates,
		retryWait: 500 * time.Millisecond,
		logger:    log.New("notify"),
	}
}

// Logger exposes the component logger.
func (d *Dispatcher) Logger() *log.Logger { return d.logger }

// Templates returns the renderer used by Notify.
func (d *Dispatcher) Templates() Templates { return d.templates }

func channelsFor(c model.Channel) ([]model.Channel, error) {
	switch c {
	case model.ChannelSMS, model.ChannelWhatsApp:
		return []model.Channel{c}, nil
	case model.ChannelBoth:
		return []model.Channel{model.ChannelSMS, model.ChannelWhatsApp}, nil
	}
	return nil, model.Invalid("channel", "must be sms, whatsapp or both")
}

// Send delivers req on the requested channels.  With ChannelBoth the two
// channels are handled independently and concurrently; a failure on one
// does not affect the other.  Transport failures are retried once and are
// reported in the result, never as the returned error, which is reserved
// for invalid requests.
func (d *Dispatcher) Send(ctx context.Context, req Request) ([]ChannelResult, error) {
	req.Phone = phone.Normalize(req.Phone)
	if !phone.Valid(req.Phone) {
		return nil, model.Invalid("phone", "must be a Bangladesh mobile number")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, model.Invalid("message", "is required")
	}
	if req.Reference != nil && (req.Reference.Type == "" || req.Reference.ID == "") {
		return nil, model.Invalid("reference", "type and id are both required")
	}
	channels, err := channelsFor(req.Channel)
	if err != nil {
		return nil, err
	}

	results := make([]ChannelResult, len(channels))
	var g errgroup.Group
	for i, ch := range channels {
		g.Go(func() error {
			results[i] = d.deliver(ctx, req, ch)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// Notify renders the template for kind and sends it.
func (d *Dispatcher) Notify(ctx context.Context, kind string, vars map[string]string, to string, channel model.Channel, ref *model.Reference) ([]ChannelResult, error) {
	msg, err := d.templates.Render(kind, vars)
	if err != nil {
		return nil, err
	}
	return d.Send(ctx, Request{Phone: to, Message: msg, Channel: channel, Reference: ref})
}

func (d *Dispatcher) deliver(ctx context.Context, req Request, ch model.Channel) (res ChannelResult) {
	res = ChannelResult{Channel: ch}
	masked := phone.Mask(req.Phone)

	if req.Reference != nil {
		sent, err := d.ledger.HasSent(ctx, *req.Reference, ch)
		if err != nil {
			// Without the ledger a send could repeat a delivered message.
			res.Status = model.NotificationFailed
			res.Error = fmt.Sprintf("idempotency check: %v", err)
			d.logger.Errorj(log.JSON{"event": "ledger_unavailable", "channel": ch, "error": err.Error()})
			return res
		}
		if sent {
			res.Status = model.NotificationSent
			res.Duplicate = true
			d.logger.Infoj(log.JSON{"event": "duplicate_skipped", "channel": ch, "reference": *req.Reference})
			return res
		}
	}

	sender, ok := d.senders[ch]
	if !ok {
		res.Status = model.NotificationFailed
		res.Error = "channel not configured"
		d.record(ctx, ch, masked, req, res.Status, res.Error)
		return res
	}

	if req.Reference != nil {
		claimed, err := d.ledger.Claim(ctx, *req.Reference, ch)
		if err != nil {
			res.Status = model.NotificationFailed
			res.Error = fmt.Sprintf("idempotency claim: %v", err)
			d.logger.Errorj(log.JSON{"event": "ledger_unavailable", "channel": ch, "error": err.Error()})
			return res
		}
		if !claimed {
			res.Status = model.NotificationPending
			res.Duplicate = true
			d.logger.Infoj(log.JSON{"event": "duplicate_in_flight", "channel": ch, "reference": *req.Reference})
			return res
		}
		defer func() {
			sent := res.Status == model.NotificationSent
			if err := d.ledger.Settle(context.WithoutCancel(ctx), *req.Reference, ch, sent); err != nil {
				d.logger.Errorj(log.JSON{"event": "claim_settle_failed", "channel": ch, "sent": sent, "error": err.Error()})
			}
		}()
	}

	for attempt := 1; attempt <= 2; attempt++ {
		res.Attempts = attempt
		err := sender.Send(ctx, req.Phone, req.Message)
		if err == nil {
			res.Status = model.NotificationSent
			res.Error = ""
			d.record(ctx, ch, masked, req, res.Status, "")
			return res
		}
		res.Status = model.NotificationFailed
		res.Error = err.Error()
		d.record(ctx, ch, masked, req, res.Status, res.Error)
		d.logger.Warnj(log.JSON{"event": "send_failed", "channel": ch, "attempt": attempt, "recipient": masked, "error": err.Error()})
		if attempt == 1 {
			select {
			case <-ctx.Done():
				return res
			case <-time.After(d.retryWait):
			}
		}
	}
	return res
}

func (d *Dispatcher) record(ctx context.Context, ch model.Channel, masked string, req Request, status model.NotificationStatus, errText string) {
	entry := &model.NotificationLog{
		Channel:   ch,
		Recipient: masked,
		Message:   req.Message,
		Status:    status,
		Reference: req.Reference,
	}
	if errText != "" {
		entry.Error = &errText
	}
	if err := d.ledger.Append(ctx, entry); err != nil {
		d.logger.Errorj(log.JSON{"event": "ledger_write_failed", "channel": ch, "status": status, "error": err.Error()})
	}
}
