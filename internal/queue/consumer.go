package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/venue-ticketing/internal/model"
	"github.com/iliyamo/venue-ticketing/internal/notify"
)

// Notifier renders and sends one notification.  *notify.Dispatcher
// satisfies it.
type Notifier interface {
	Notify(ctx context.Context, kind string, vars map[string]string, to string, channel model.Channel, ref *model.Reference) ([]notify.ChannelResult, error)
}

// Consumer turns domain events into guest notifications.  Delivery happens
// off the request path, so a slow gateway never delays a booking or a
// gate scan.
type Consumer struct {
	url      string
	notifier Notifier
	fallback model.Channel
	logger   *log.Logger
}

// NewConsumer returns a Consumer.  fallback is used for events that do not
// name a channel.
func NewConsumer(url string, notifier Notifier, fallback model.Channel) *Consumer {
	return &Consumer{url: url, notifier: notifier, fallback: fallback, logger: log.New("queue")}
}

// Logger exposes the component logger.
func (c *Consumer) Logger() *log.Logger { return c.logger }

// Run connects to RabbitMQ, declares the event queues (durable) and
// consumes until ctx is cancelled.  Broker failures are retried with
// exponential backoff; Run only returns once ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warnf("failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warnf("consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.logger.Warnf("set QoS failed: %v", err)
	}

	merged := make(chan amqp.Delivery)
	done := make(chan struct{})
	defer close(done)
	for _, q := range []string{BookingConfirmedQueue, BookingCancelledQueue, TicketIssuedQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		go func() {
			for d := range msgs {
				select {
				case merged <- d:
				case <-done:
					return
				}
			}
		}()
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cerr := <-closed:
			if cerr == nil {
				return errors.New("connection closed")
			}
			return cerr
		case d := <-merged:
			if err := c.handle(ctx, d.RoutingKey, d.Body); err != nil {
				c.logger.Errorj(log.JSON{"event": "handle_failed", "queue": d.RoutingKey, "message_id": d.MessageId, "error": err.Error()})
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// handle sends the notification for one event.  A returned error means the
// message itself is unusable; gateway failures are recorded by the
// dispatcher and do not fail the message.
func (c *Consumer) handle(ctx context.Context, queue string, body []byte) error {
	var (
		kind    string
		to      string
		channel string
		vars    map[string]string
		ref     *model.Reference
	)
	switch queue {
	case BookingConfirmedQueue:
		var ev BookingConfirmedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		kind, to, channel = notify.TypeBookingConfirmed, ev.Phone, ev.Channel
		id := strconv.FormatUint(ev.BookingID, 10)
		vars = map[string]string{"name": ev.GuardianName, "booking_id": id, "date": ev.Date, "time_slot": ev.TimeSlot, "total": notify.Taka(ev.TotalAmount)}
		ref = &model.Reference{Type: "booking_confirmed", ID: id}
	case BookingCancelledQueue:
		var ev BookingCancelledEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		kind, to, channel = notify.TypeBookingCancelled, ev.Phone, ev.Channel
		id := strconv.FormatUint(ev.BookingID, 10)
		vars = map[string]string{"name": ev.GuardianName, "booking_id": id, "date": ev.Date, "time_slot": ev.TimeSlot, "refund": notify.Taka(ev.Refund)}
		ref = &model.Reference{Type: "booking_cancelled", ID: id}
	case TicketIssuedQueue:
		var ev TicketIssuedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		kind, to, channel = notify.TypeTicketIssued, ev.Phone, ev.Channel
		vars = map[string]string{
			"name": ev.GuardianName, "ticket_number": ev.TicketNumber, "date": ev.VisitDate,
			"guardians": strconv.Itoa(ev.Guardians), "children": strconv.Itoa(ev.Children), "total": notify.Taka(ev.Total),
		}
		ref = &model.Reference{Type: "ticket", ID: ev.TicketNumber}
	default:
		return fmt.Errorf("unexpected queue %q", queue)
	}

	ch := model.Channel(channel)
	if ch == "" {
		ch = c.fallback
	}
	results, err := c.notifier.Notify(ctx, kind, vars, to, ch, ref)
	if err != nil {
		return err
	}
	for _, r := range results {
		c.logger.Infoj(log.JSON{"event": "notified", "kind": kind, "channel": r.Channel, "status": r.Status, "duplicate": r.Duplicate, "reference": ref.ID})
	}
	return nil
}
