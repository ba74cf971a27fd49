package gate

import (
	"time"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

// State is what a ticket's gate log says about it.
type State struct {
	Entries   int       `json:"entries"`
	Exits     int       `json:"exits"`
	Inside    bool      `json:"inside"`
	Completed bool      `json:"completed"`
	LastScan  time.Time `json:"last_scan,omitempty"`
	// Violation is set when the log holds a sequence the controller never
	// writes, such as an exit before any entry.
	Violation string `json:"violation,omitempty"`
}

// Fold replays logs in order and derives the gate state.  Inside is true
// exactly when the last record is an entry; Completed once an entry has
// been followed by an exit.  Repeated entries or exits in a row are
// tolerated since two racing scans can both be accepted.
func Fold(logs []model.GateLog) State {
	var s State
	for _, l := range logs {
		switch l.EntryType {
		case model.EntryIn:
			s.Entries++
			s.Inside = true
		case model.EntryOut:
			if s.Entries == 0 {
				if s.Violation == "" {
					s.Violation = "exit recorded before any entry"
				}
				s.Exits++
				continue
			}
			s.Exits++
			s.Inside = false
			s.Completed = true
		default:
			if s.Violation == "" {
				s.Violation = "unknown entry type " + string(l.EntryType)
			}
		}
		s.LastScan = l.ScannedAt
	}
	return s
}
