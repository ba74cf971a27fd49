package model

import "time"

// DateLayout is the wire and storage format for calendar dates.  Dates are
// kept as strings so that the venue's local calendar day never shifts when
// it crosses a time zone boundary.
const DateLayout = "2006-01-02"

// SlotStatus is the availability state of a bookable slot.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
)

// Slot is a (date, time range) unit of capacity.  A row is created lazily
// the first time someone tries to book the pair and is then flipped between
// available and booked with conditional updates.
//
// Fields:
//  ID        – primary key identifier.
//  Date      – visit date (YYYY-MM-DD).
//  Label     – time range label, e.g. "10:00-12:00".
//  Status    – available or booked.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Slot struct {
	ID        uint64     `json:"id"`         // slots.id
	Date      string     `json:"date"`       // slots.slot_date
	Label     string     `json:"time_slot"`  // slots.label
	Status    SlotStatus `json:"status"`     // slots.status
	CreatedAt time.Time  `json:"created_at"` // slots.created_at
	UpdatedAt time.Time  `json:"updated_at"` // slots.updated_at
}

// DateIn returns the calendar date of t in loc, formatted with DateLayout.
func DateIn(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// ValidateVisitDate checks that date is well formed and not before today.
func ValidateVisitDate(date, today string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return Invalid("date", "must be YYYY-MM-DD")
	}
	if date < today {
		return Invalid("date", "%s is in the past", date)
	}
	return nil
}
