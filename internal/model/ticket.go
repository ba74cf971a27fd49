package model

import "time"

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
	TicketExpired   TicketStatus = "expired"
)

// PaymentType is how a ticket was paid for.
type PaymentType string

const (
	PaymentCash   PaymentType = "cash"
	PaymentOnline PaymentType = "online"
)

// PriceBreakdown is the itemized price captured when a ticket or booking is
// issued.  All amounts are in the smallest currency unit.
type PriceBreakdown struct {
	EntryPrice int64 `json:"entry_price"`
	SocksPrice int64 `json:"socks_price"`
	RidesPrice int64 `json:"rides_price"`
	Subtotal   int64 `json:"subtotal"`
	Discount   int64 `json:"discount"`
	Total      int64 `json:"total"`
}

// RideSelection is a purchased ride add-on.  UnitPrice is the price at the
// moment the ride was selected and is never looked up again.
type RideSelection struct {
	RideID    uint64 `json:"ride_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

// Ride is a catalogue entry for a ride add-on.
type Ride struct {
	ID       uint64 `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	IsActive bool   `json:"is_active"`
}

// Ticket is a pass for same-day venue entry.  BookingID is nil for walk-in
// tickets.  Status and InsideVenue change only through gate scans,
// cancellation and the expiry sweep.
type Ticket struct {
	ID            uint64          `json:"id"`
	TicketNumber  string          `json:"ticket_number"`
	BookingID     *uint64         `json:"booking_id,omitempty"`
	GuardianName  string          `json:"guardian_name"`
	Phone         string          `json:"phone"`
	VisitDate     string          `json:"visit_date"`
	Guardians     int             `json:"guardians"`
	Children      int             `json:"children"`
	Socks         int             `json:"socks"`
	Price         PriceBreakdown  `json:"price"`
	Rides         []RideSelection `json:"rides,omitempty"`
	PaymentType   PaymentType     `json:"payment_type"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Status        TicketStatus    `json:"status"`
	InsideVenue   bool            `json:"inside_venue"`
	MembershipID  *uint64         `json:"membership_id,omitempty"`
	IssuedBy      string          `json:"issued_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
