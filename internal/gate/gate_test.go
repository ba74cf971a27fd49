package gate

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/venue-ticketing/internal/model"
	"github.com/iliyamo/venue-ticketing/internal/repository"
)

type fakeStore struct {
	mu      sync.Mutex
	tickets map[string]*model.Ticket
	logs    []model.GateLog
	failUpd error
}

func newFakeStore(tickets ...model.Ticket) *fakeStore {
	f := &fakeStore{tickets: map[string]*model.Ticket{}}
	for i := range tickets {
		t := tickets[i]
		f.tickets[t.TicketNumber] = &t
	}
	return f
}

func (f *fakeStore) GetByNumber(_ context.Context, number string) (model.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[number]
	if !ok {
		return model.Ticket{}, repository.ErrNotFound
	}
	return *t, nil
}

func (f *fakeStore) UpdateGateState(_ context.Context, id uint64, status model.TicketStatus, inside bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpd != nil {
		return f.failUpd
	}
	for _, t := range f.tickets {
		if t.ID == id {
			t.Status, t.InsideVenue = status, inside
		}
	}
	return nil
}

func (f *fakeStore) Append(_ context.Context, l *model.GateLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l.ID = uint64(len(f.logs) + 1)
	f.logs = append(f.logs, *l)
	return nil
}

func (f *fakeStore) ListByTicket(_ context.Context, ticketID uint64) ([]model.GateLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.GateLog
	for _, l := range f.logs {
		if l.TicketID == ticketID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) logCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logs)
}

var today = time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)

func ticket(number string, status model.TicketStatus) model.Ticket {
	return model.Ticket{ID: uint64(len(number)), TicketNumber: number, VisitDate: "2025-03-01", Status: status}
}

func newTestController(store *fakeStore, allowReentry bool) *Controller {
	c := NewController(store, store, allowReentry, time.UTC)
	c.now = func() time.Time { return today }
	c.Logger().SetOutput(io.Discard)
	return c
}

func scan(number string, action model.EntryType) ScanRequest {
	return ScanRequest{TicketNumber: number, GateID: "G1", Action: action, Staff: model.Staff{ID: "7", Name: "Karim"}}
}

func codeOf(err error) Code {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func TestFold(t *testing.T) {
	in := model.GateLog{EntryType: model.EntryIn}
	out := model.GateLog{EntryType: model.EntryOut}
	tests := []struct {
		name      string
		logs      []model.GateLog
		inside    bool
		completed bool
		violation bool
	}{
		{"empty", nil, false, false, false},
		{"entered", []model.GateLog{in}, true, false, false},
		{"entered and left", []model.GateLog{in, out}, false, true, false},
		{"re-entered", []model.GateLog{in, out, in}, true, true, false},
		{"duplicate entry race", []model.GateLog{in, in}, true, false, false},
		{"duplicate exit race", []model.GateLog{in, out, out}, false, true, false},
		{"exit first", []model.GateLog{out, in}, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Fold(tt.logs)
			if s.Inside != tt.inside || s.Completed != tt.completed || (s.Violation != "") != tt.violation {
				t.Errorf("Fold = %+v, want inside=%v completed=%v violation=%v", s, tt.inside, tt.completed, tt.violation)
			}
		})
	}
}

func TestScanTransitions(t *testing.T) {
	store := newFakeStore(ticket("TK100", model.TicketActive))
	c := newTestController(store, false)
	ctx := context.Background()

	steps := []struct {
		action model.EntryType
		code   Code
		inside bool
	}{
		{model.EntryOut, CodeNotInside, false},
		{model.EntryIn, "", true},
		{model.EntryIn, CodeAlreadyInside, true},
		{model.EntryOut, "", false},
		{model.EntryOut, CodeNotInside, false},
		{model.EntryIn, CodeTicketCompleted, false},
	}
	for i, st := range steps {
		before := store.logCount()
		res, err := c.Scan(ctx, scan("TK100", st.action))
		if got := codeOf(err); got != st.code {
			t.Fatalf("step %d (%s): code = %q, want %q (err %v)", i, st.action, got, st.code, err)
		}
		if st.code != "" {
			if store.logCount() != before {
				t.Fatalf("step %d: refused scan wrote a log row", i)
			}
			continue
		}
		if store.logCount() != before+1 {
			t.Fatalf("step %d: accepted scan must write exactly one log row", i)
		}
		if res.Ticket.InsideVenue != st.inside || res.State.Inside != st.inside {
			t.Errorf("step %d: inside = %v/%v, want %v", i, res.Ticket.InsideVenue, res.State.Inside, st.inside)
		}
		if res.Ticket.Status != model.TicketUsed {
			t.Errorf("step %d: status = %s, want used", i, res.Ticket.Status)
		}
	}
}

func TestScanReentryAllowed(t *testing.T) {
	store := newFakeStore(ticket("TK200", model.TicketActive))
	c := newTestController(store, true)
	ctx := context.Background()
	for _, a := range []model.EntryType{model.EntryIn, model.EntryOut, model.EntryIn} {
		if _, err := c.Scan(ctx, scan("TK200", a)); err != nil {
			t.Fatalf("%s: %v", a, err)
		}
	}
}

func TestScanRefusals(t *testing.T) {
	past := ticket("TK300", model.TicketActive)
	past.VisitDate = "2025-02-28"
	store := newFakeStore(
		ticket("TKC", model.TicketCancelled),
		ticket("TKEX", model.TicketExpired),
		past,
	)
	c := newTestController(store, false)
	tests := []struct {
		number string
		code   Code
	}{
		{"TKC", CodeTicketCancelled},
		{"TKEX", CodeTicketExpired},
		{"TK300", CodeTicketExpired},
		{"NOPE", CodeTicketNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.number, func(t *testing.T) {
			_, err := c.Scan(context.Background(), scan(tt.number, model.EntryIn))
			if got := codeOf(err); got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}
	if store.logCount() != 0 {
		t.Errorf("refusals wrote %d log rows", store.logCount())
	}
}

func TestExitAfterCancellationWhileInside(t *testing.T) {
	store := newFakeStore(ticket("TK400", model.TicketActive))
	c := newTestController(store, false)
	ctx := context.Background()
	if _, err := c.Scan(ctx, scan("TK400", model.EntryIn)); err != nil {
		t.Fatal(err)
	}
	store.tickets["TK400"].Status = model.TicketCancelled

	if _, err := c.Scan(ctx, scan("TK400", model.EntryIn)); codeOf(err) != CodeTicketCancelled {
		t.Fatalf("entry on cancelled: %v", err)
	}
	res, err := c.Scan(ctx, scan("TK400", model.EntryOut))
	if err != nil {
		t.Fatalf("exit on cancelled ticket inside venue: %v", err)
	}
	if res.Ticket.Status != model.TicketCancelled || res.Ticket.InsideVenue {
		t.Errorf("got %s/%v, want cancelled/false", res.Ticket.Status, res.Ticket.InsideVenue)
	}
}

func TestScanSelfHealsStaleTicketRow(t *testing.T) {
	store := newFakeStore(ticket("TK500", model.TicketActive))
	store.failUpd = errors.New("connection reset")
	c := newTestController(store, false)
	ctx := context.Background()

	if _, err := c.Scan(ctx, scan("TK500", model.EntryIn)); err != nil {
		t.Fatalf("entry: %v", err)
	}
	// The ticket row still says active/outside but the log says inside.
	if store.tickets["TK500"].InsideVenue {
		t.Fatal("fake should have dropped the update")
	}
	store.failUpd = nil
	logs := store.logCount()
	if _, err := c.Scan(ctx, scan("TK500", model.EntryIn)); codeOf(err) != CodeAlreadyInside {
		t.Fatalf("second entry: got %v, want ALREADY_INSIDE", err)
	}
	// The refused scan rewrites the row from the log without logging.
	if tk := store.tickets["TK500"]; tk.Status != model.TicketUsed || !tk.InsideVenue {
		t.Errorf("refused scan left row stale: %+v", tk)
	}
	if n := store.logCount(); n != logs {
		t.Errorf("refused scan logged: %d rows, want %d", n, logs)
	}
	if _, err := c.Scan(ctx, scan("TK500", model.EntryOut)); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if tk := store.tickets["TK500"]; tk.Status != model.TicketUsed || tk.InsideVenue {
		t.Errorf("ticket row not healed: %+v", tk)
	}
}

func TestScanInvariantViolation(t *testing.T) {
	store := newFakeStore(ticket("TK600", model.TicketActive))
	store.logs = []model.GateLog{{ID: 1, TicketID: 5, EntryType: model.EntryOut}}
	c := newTestController(store, false)

	_, err := c.Scan(context.Background(), scan("TK600", model.EntryIn))
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("got %v, want ErrInvariant", err)
	}
	if store.logCount() != 1 {
		t.Errorf("invariant violation must not write")
	}
}

func TestScanValidation(t *testing.T) {
	c := newTestController(newFakeStore(), false)
	tests := []ScanRequest{
		{GateID: "G1", Action: model.EntryIn},
		{TicketNumber: "TK1", Action: model.EntryIn},
		{TicketNumber: "TK1", GateID: "G1", Action: "sideways"},
	}
	for _, req := range tests {
		_, err := c.Scan(context.Background(), req)
		var ve *model.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Scan(%+v) = %v, want ValidationError", req, err)
		}
	}
}
