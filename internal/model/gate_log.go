package model

import "time"

// EntryType is the direction of a gate scan.
type EntryType string

const (
	EntryIn  EntryType = "entry"
	EntryOut EntryType = "exit"
)

// Staff is the authenticated staff identity supplied by the auth service.
// It is recorded, never verified, by the core.
type Staff struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GateLog is one immutable scan record.  Rows are inserted once and never
// updated or deleted; ticket gate state is re-derived from them.
type GateLog struct {
	ID        uint64    `json:"id"`
	TicketID  uint64    `json:"ticket_id"`
	EntryType EntryType `json:"entry_type"`
	GateID    string    `json:"gate_id"`
	CameraID  *string   `json:"camera_id,omitempty"`
	StaffID   string    `json:"staff_id"`
	StaffName string    `json:"staff_name"`
	ScannedAt time.Time `json:"scanned_at"`
}
