// Package gate turns ticket scans at the venue gates into entry and exit
// transitions.  The gate log is the source of truth: every scan folds the
// ticket's full log before deciding, and an accepted scan is logged before
// the ticket row is touched.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/venue-ticketing/internal/model"
	"github.com/iliyamo/venue-ticketing/internal/repository"
)

// Code is the typed reason a scan was refused.
type Code string

const (
	CodeAlreadyInside   Code = "ALREADY_INSIDE"
	CodeTicketCancelled Code = "TICKET_CANCELLED"
	CodeTicketExpired   Code = "TICKET_EXPIRED"
	CodeTicketCompleted Code = "TICKET_COMPLETED"
	CodeNotInside       Code = "NOT_INSIDE"
	CodeTicketNotFound  Code = "TICKET_NOT_FOUND"
)

// ScanError is a refused scan.  No gate log row was written.
type ScanError struct {
	Code         Code
	TicketNumber string
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan refused for %s: %s", e.TicketNumber, e.Code)
}

// ErrInvariant means the stored gate log is inconsistent.  The scan is
// aborted and nothing is repaired.
var ErrInvariant = errors.New("gate log invariant violated")

// TicketStore reads tickets and writes the derived gate state.
type TicketStore interface {
	GetByNumber(ctx context.Context, number string) (model.Ticket, error)
	UpdateGateState(ctx context.Context, id uint64, status model.TicketStatus, inside bool) error
}

// LogStore is the append-only gate log.
type LogStore interface {
	Append(ctx context.Context, l *model.GateLog) error
	ListByTicket(ctx context.Context, ticketID uint64) ([]model.GateLog, error)
}

// ScanRequest is one scan at a gate.
type ScanRequest struct {
	TicketNumber string
	GateID       string
	CameraID     *string
	Action       model.EntryType
	Staff        model.Staff
}

// Result is an accepted scan.
type Result struct {
	Ticket model.Ticket  `json:"ticket"`
	Log    model.GateLog `json:"log"`
	State  State         `json:"state"`
}

// Controller decides and records gate scans.
type Controller struct {
	tickets      TicketStore
	logs         LogStore
	allowReentry bool
	loc          *time.Location
	now          func() time.Time
	logger       *log.Logger
}

// NewController returns a Controller.  When allowReentry is false a ticket
// that has entered and left cannot enter again.
func NewController(tickets TicketStore, logs LogStore, allowReentry bool, loc *time.Location) *Controller {
	return &Controller{
		tickets:      tickets,
		logs:         logs,
		allowReentry: allowReentry,
		loc:          loc,
		now:          time.Now,
		logger:       log.New("gate"),
	}
}

// Logger exposes the component logger.
func (c *Controller) Logger() *log.Logger { return c.logger }

func (r ScanRequest) validate() error {
	if strings.TrimSpace(r.TicketNumber) == "" {
		return model.Invalid("ticket_number", "is required")
	}
	if strings.TrimSpace(r.GateID) == "" {
		return model.Invalid("gate_id", "is required")
	}
	if r.Action != model.EntryIn && r.Action != model.EntryOut {
		return model.Invalid("action", "must be entry or exit")
	}
	return nil
}

// Scan applies one entry or exit scan.  Refusals come back as *ScanError.
func (c *Controller) Scan(ctx context.Context, req ScanRequest) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	t, st, err := c.load(ctx, req.TicketNumber)
	if err != nil {
		return Result{}, err
	}
	t = c.reconcile(ctx, t, st)

	var (
		status model.TicketStatus
		inside bool
	)
	switch req.Action {
	case model.EntryIn:
		if code := c.refuseEntry(t, st); code != "" {
			return Result{}, &ScanError{Code: code, TicketNumber: t.TicketNumber}
		}
		status, inside = model.TicketUsed, true
	case model.EntryOut:
		if !st.Inside {
			return Result{}, &ScanError{Code: CodeNotInside, TicketNumber: t.TicketNumber}
		}
		// A guest whose ticket was cancelled while inside may still leave.
		status, inside = t.Status, false
		if status == model.TicketActive {
			status = model.TicketUsed
		}
	}

	entry := model.GateLog{
		TicketID:  t.ID,
		EntryType: req.Action,
		GateID:    req.GateID,
		CameraID:  req.CameraID,
		StaffID:   req.Staff.ID,
		StaffName: req.Staff.Name,
		ScannedAt: c.now().UTC(),
	}
	if err := c.logs.Append(ctx, &entry); err != nil {
		return Result{}, fmt.Errorf("append gate log: %w", err)
	}
	if err := c.tickets.UpdateGateState(ctx, t.ID, status, inside); err != nil {
		// The log row is committed; the next scan folds it and the ticket
		// row catches up then.
		c.logger.Errorj(log.JSON{"event": "ticket_state_lag", "ticket": t.TicketNumber, "error": err.Error()})
	}
	t.Status, t.InsideVenue = status, inside

	if logs, err := c.logs.ListByTicket(ctx, t.ID); err == nil {
		st = Fold(logs)
	} else {
		st.Inside = inside
	}
	c.logger.Infoj(log.JSON{
		"event": "gate_" + string(req.Action), "ticket": t.TicketNumber, "gate": req.GateID,
		"staff_id": req.Staff.ID, "inside": inside,
	})
	return Result{Ticket: t, Log: entry, State: st}, nil
}

// reconcile rewrites a ticket row that lags its gate log, whether or not
// the scan goes on to be accepted.  A failed rewrite is logged and the
// stale row is returned.
func (c *Controller) reconcile(ctx context.Context, t model.Ticket, st State) model.Ticket {
	status := t.Status
	if st.Entries > 0 && status == model.TicketActive {
		status = model.TicketUsed
	}
	if status == t.Status && st.Inside == t.InsideVenue {
		return t
	}
	if err := c.tickets.UpdateGateState(ctx, t.ID, status, st.Inside); err != nil {
		c.logger.Errorj(log.JSON{"event": "ticket_state_lag", "ticket": t.TicketNumber, "error": err.Error()})
		return t
	}
	c.logger.Warnj(log.JSON{"event": "ticket_state_healed", "ticket": t.TicketNumber, "status": status, "inside": st.Inside})
	t.Status, t.InsideVenue = status, st.Inside
	return t
}

func (c *Controller) refuseEntry(t model.Ticket, st State) Code {
	switch {
	case t.Status == model.TicketCancelled:
		return CodeTicketCancelled
	case t.Status == model.TicketExpired:
		return CodeTicketExpired
	case t.VisitDate < model.DateIn(c.now(), c.loc) && !st.Inside:
		// The sweep has not reached this ticket yet.
		return CodeTicketExpired
	case st.Inside:
		return CodeAlreadyInside
	case st.Completed && !c.allowReentry:
		return CodeTicketCompleted
	}
	return ""
}

// History returns a ticket together with its gate log and folded state.
func (c *Controller) History(ctx context.Context, number string) (model.Ticket, []model.GateLog, State, error) {
	t, err := c.tickets.GetByNumber(ctx, number)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Ticket{}, nil, State{}, &ScanError{Code: CodeTicketNotFound, TicketNumber: number}
	}
	if err != nil {
		return model.Ticket{}, nil, State{}, fmt.Errorf("load ticket: %w", err)
	}
	logs, err := c.logs.ListByTicket(ctx, t.ID)
	if err != nil {
		return model.Ticket{}, nil, State{}, fmt.Errorf("load gate log: %w", err)
	}
	return t, logs, Fold(logs), nil
}

func (c *Controller) load(ctx context.Context, number string) (model.Ticket, State, error) {
	t, logs, st, err := c.History(ctx, number)
	if err != nil {
		return model.Ticket{}, State{}, err
	}
	if st.Violation != "" {
		c.logger.Errorj(log.JSON{"event": "gate_invariant", "ticket": number, "violation": st.Violation, "records": len(logs)})
		return model.Ticket{}, State{}, fmt.Errorf("%w: ticket %s: %s", ErrInvariant, number, st.Violation)
	}
	return t, st, nil
}
