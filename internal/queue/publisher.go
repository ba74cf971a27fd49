package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

// Publisher sends domain events to RabbitMQ.  It keeps one connection and
// channel open and redials lazily after a failure.  Messages are
// persistent and carry a unique MessageId for tracing through the
// consumer's logs.
type Publisher struct {
	url     string
	channel model.Channel
	logger  *log.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// NewPublisher returns a Publisher for url.  channel is the delivery
// channel requested for guest notifications.
func NewPublisher(url string, channel model.Channel) *Publisher {
	return &Publisher{url: url, channel: channel, logger: log.New("queue"), declared: map[string]bool{}}
}

// PublishBookingConfirmed implements booking.Publisher.
func (p *Publisher) PublishBookingConfirmed(ctx context.Context, b model.Booking) error {
	return p.publish(ctx, BookingConfirmedQueue, BookingConfirmedEvent{
		BookingID:    b.ID,
		GuardianName: b.GuardianName,
		Phone:        b.Phone,
		Date:         b.Date,
		TimeSlot:     b.TimeSlot,
		TotalAmount:  b.TotalAmount,
		Channel:      string(p.channel),
		ConfirmedAt:  stamp(time.Now()),
	})
}

// PublishBookingCancelled implements booking.Publisher.
func (p *Publisher) PublishBookingCancelled(ctx context.Context, b model.Booking, refund int64) error {
	return p.publish(ctx, BookingCancelledQueue, BookingCancelledEvent{
		BookingID:    b.ID,
		GuardianName: b.GuardianName,
		Phone:        b.Phone,
		Date:         b.Date,
		TimeSlot:     b.TimeSlot,
		Refund:       refund,
		Channel:      string(p.channel),
		CancelledAt:  stamp(time.Now()),
	})
}

// PublishTicketIssued implements ticket.Publisher.
func (p *Publisher) PublishTicketIssued(ctx context.Context, t model.Ticket) error {
	return p.publish(ctx, TicketIssuedQueue, TicketIssuedEvent{
		TicketNumber: t.TicketNumber,
		GuardianName: t.GuardianName,
		Phone:        t.Phone,
		VisitDate:    t.VisitDate,
		Guardians:    t.Guardians,
		Children:     t.Children,
		Total:        t.Price.Total,
		Channel:      string(p.channel),
		IssuedAt:     stamp(time.Now()),
	})
}

func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", queue, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked(queue)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         queue,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false, // mandatory
		false, // immediate
		pub,
	); err != nil {
		p.resetLocked()
		return fmt.Errorf("publish %s: %w", queue, err)
	}
	p.logger.Debugj(log.JSON{"event": "published", "queue": queue, "message_id": pub.MessageId})
	return nil
}

// channelLocked returns an open channel with queue declared, dialing if
// needed.  p.mu must be held.
func (p *Publisher) channelLocked(queue string) (*amqp.Channel, error) {
	if p.ch == nil || p.ch.IsClosed() || p.conn == nil || p.conn.IsClosed() {
		p.resetLocked()
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq dial: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("rabbitmq channel: %w", err)
		}
		p.conn, p.ch = conn, ch
	}
	if !p.declared[queue] {
		// Durable so messages survive broker restarts.
		if _, err := p.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			p.resetLocked()
			return nil, fmt.Errorf("queue declare %s: %w", queue, err)
		}
		p.declared[queue] = true
	}
	return p.ch, nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
	p.declared = map[string]bool{}
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.ch, p.conn = nil, nil
	return errors.Join(errs...)
}
