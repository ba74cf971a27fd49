// Package queue defines message payloads exchanged over the message broker.
package queue

import "time"

// Queue names.  Each event type has its own durable queue; the routing key
// is the queue name on the default exchange.
const (
	BookingConfirmedQueue = "booking.confirmed"
	BookingCancelledQueue = "booking.cancelled"
	TicketIssuedQueue     = "ticket.issued"
)

// BookingConfirmedEvent is published when a booking has claimed its slot.
// It carries everything the confirmation message needs so the consumer
// does not query the primary database.
type BookingConfirmedEvent struct {
	BookingID    uint64 `json:"booking_id"`
	GuardianName string `json:"guardian_name"`
	Phone        string `json:"phone"`
	Date         string `json:"date"`
	TimeSlot     string `json:"time_slot"`
	TotalAmount  int64  `json:"total_amount"`
	Channel      string `json:"channel"`
	ConfirmedAt  string `json:"confirmed_at"`
}

// BookingCancelledEvent is published when a booking is cancelled.  Refund
// is zero when nothing was refunded.
type BookingCancelledEvent struct {
	BookingID    uint64 `json:"booking_id"`
	GuardianName string `json:"guardian_name"`
	Phone        string `json:"phone"`
	Date         string `json:"date"`
	TimeSlot     string `json:"time_slot"`
	Refund       int64  `json:"refund"`
	Channel      string `json:"channel"`
	CancelledAt  string `json:"cancelled_at"`
}

// TicketIssuedEvent is published when a ticket is issued and paid.
type TicketIssuedEvent struct {
	TicketNumber string `json:"ticket_number"`
	GuardianName string `json:"guardian_name"`
	Phone        string `json:"phone"`
	VisitDate    string `json:"visit_date"`
	Guardians    int    `json:"guardians"`
	Children     int    `json:"children"`
	Total        int64  `json:"total"`
	Channel      string `json:"channel"`
	IssuedAt     string `json:"issued_at"`
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }
