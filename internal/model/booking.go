package model

import "time"

// BookingStatus is the administrative state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// PaymentStatus values shared by bookings and tickets.  Tickets only ever
// use pending and paid.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Booking is a scheduled visit tied to a Slot.  Bookings are never deleted;
// cancellation is a status change and every administrative action is
// appended to Notes.
type Booking struct {
	ID            uint64        `json:"id"`
	SlotID        uint64        `json:"slot_id"`
	Date          string        `json:"date"`
	TimeSlot      string        `json:"time_slot"`
	GuardianName  string        `json:"guardian_name"`
	Phone         string        `json:"phone"`
	Guardians     int           `json:"guardians"`
	Children      int           `json:"children"`
	Socks         int           `json:"socks"`
	TotalAmount   int64         `json:"total_amount"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Notes         string        `json:"notes"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
