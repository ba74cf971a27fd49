package model

import "time"

// Channel is a delivery channel for guest messages.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	// ChannelBoth is a request-level selector; it is never stored.
	ChannelBoth Channel = "both"
)

// NotificationStatus is the outcome of a single send attempt.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Reference ties a notification to the domain record it is about.
type Reference struct {
	Type string `json:"type"` // "booking" or "ticket"
	ID   string `json:"id"`
}

// NotificationLog is an append-only record of one send attempt.  Recipient
// is always stored masked.  A sent row for (reference, channel) is what makes
// later sends of the same message a duplicate.
type NotificationLog struct {
	ID        uint64             `json:"id"`
	Channel   Channel            `json:"channel"`
	Recipient string             `json:"recipient"`
	Message   string             `json:"message"`
	Status    NotificationStatus `json:"status"`
	Reference *Reference         `json:"reference,omitempty"`
	Error     *string            `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}
