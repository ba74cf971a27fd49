package reservation

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

type fakeSlots struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[string]*model.Slot
	failOn error
}

func newFakeSlots() *fakeSlots {
	return &fakeSlots{rows: map[string]*model.Slot{}}
}

func (f *fakeSlots) GetOrCreate(_ context.Context, date, label string) (model.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != nil {
		return model.Slot{}, f.failOn
	}
	k := date + "|" + label
	s, ok := f.rows[k]
	if !ok {
		f.nextID++
		s = &model.Slot{ID: f.nextID, Date: date, Label: label, Status: model.SlotAvailable}
		f.rows[k] = s
	}
	return *s, nil
}

func (f *fakeSlots) CompareAndSwapStatus(_ context.Context, id uint64, from, to model.SlotStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.rows {
		if s.ID == id {
			if s.Status != from {
				return false, nil
			}
			s.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSlots) ListByDate(_ context.Context, date string) ([]model.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Slot
	for _, s := range f.rows {
		if s.Date == date {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSlots) status(date, label string) model.SlotStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[date+"|"+label]; ok {
		return s.Status
	}
	return ""
}

var labels = []string{"10:00-12:00", "12:00-14:00"}

func newTestManager(store SlotStore) *Manager {
	m := NewManager(store, labels, time.UTC)
	m.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	m.Logger().SetOutput(io.Discard)
	return m
}

func TestReserveExactlyOnceUnderContention(t *testing.T) {
	store := newFakeSlots()
	m := newTestManager(store)

	const callers = 64
	var (
		wg      sync.WaitGroup
		won     atomic.Int32
		lost    atomic.Int32
		unknown atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := m.Reserve(context.Background(), "2025-03-02", "10:00-12:00")
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, ErrSlotUnavailable):
				lost.Add(1)
			default:
				unknown.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if won.Load() != 1 {
		t.Fatalf("winners = %d, want 1", won.Load())
	}
	if lost.Load() != callers-1 || unknown.Load() != 0 {
		t.Errorf("lost = %d unknown = %d", lost.Load(), unknown.Load())
	}
}

func TestReserveValidation(t *testing.T) {
	m := newTestManager(newFakeSlots())
	tests := []struct {
		name, date, slot string
	}{
		{"past date", "2025-02-28", "10:00-12:00"},
		{"malformed date", "02/03/2025", "10:00-12:00"},
		{"unknown slot", "2025-03-02", "08:00-09:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Reserve(context.Background(), tt.date, tt.slot)
			var ve *model.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("got %v, want ValidationError", err)
			}
		})
	}
}

func TestReserveTodayAllowed(t *testing.T) {
	m := newTestManager(newFakeSlots())
	if _, err := m.Reserve(context.Background(), "2025-03-01", "12:00-14:00"); err != nil {
		t.Fatalf("Reserve today: %v", err)
	}
}

func TestWithReservationRollsBack(t *testing.T) {
	store := newFakeSlots()
	m := newTestManager(store)
	boom := errors.New("insert booking failed")

	_, err := m.WithReservation(context.Background(), "2025-03-02", "10:00-12:00", func(Handle) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
	if got := store.status("2025-03-02", "10:00-12:00"); got != model.SlotAvailable {
		t.Fatalf("status after rollback = %q, want available", got)
	}
	if _, err := m.Reserve(context.Background(), "2025-03-02", "10:00-12:00"); err != nil {
		t.Fatalf("slot not re-bookable after rollback: %v", err)
	}
}

func TestReleaseMakesSlotBookable(t *testing.T) {
	store := newFakeSlots()
	m := newTestManager(store)
	h, err := m.Reserve(context.Background(), "2025-03-02", "12:00-14:00")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Reserve(context.Background(), "2025-03-02", "12:00-14:00"); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("second reserve: got %v, want ErrSlotUnavailable", err)
	}
	if err := m.Release(context.Background(), h.SlotID); err != nil {
		t.Fatal(err)
	}
	if err := m.Release(context.Background(), h.SlotID); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}
	if _, err := m.Reserve(context.Background(), "2025-03-02", "12:00-14:00"); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
}

func TestReserveStoreError(t *testing.T) {
	store := newFakeSlots()
	store.failOn = errors.New("store timeout")
	m := newTestManager(store)
	_, err := m.Reserve(context.Background(), "2025-03-02", "10:00-12:00")
	if !errors.Is(err, store.failOn) {
		t.Fatalf("got %v", err)
	}
}

func TestAvailability(t *testing.T) {
	store := newFakeSlots()
	m := newTestManager(store)
	if _, err := m.Reserve(context.Background(), "2025-03-02", "12:00-14:00"); err != nil {
		t.Fatal(err)
	}
	got, err := m.Availability(context.Background(), "2025-03-02")
	if err != nil {
		t.Fatal(err)
	}
	want := []Availability{
		{TimeSlot: "10:00-12:00", Status: model.SlotAvailable},
		{TimeSlot: "12:00-14:00", Status: model.SlotBooked},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %v, want %v", i, got[i], want[i])
		}
	}
}
