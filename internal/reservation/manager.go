// Package reservation claims (date, time slot) pairs exactly once.  The
// only synchronization is the store's conditional update on the slot
// status; there are no in-process locks, so any number of server
// instances can run side by side.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

// ErrSlotUnavailable is returned when the slot is already booked.  It is
// never retried automatically; the caller picks another slot.
var ErrSlotUnavailable = errors.New("slot unavailable")

// SlotStore is the persistence the manager needs.  *repository.SlotRepo
// satisfies it.
type SlotStore interface {
	GetOrCreate(ctx context.Context, date, label string) (model.Slot, error)
	CompareAndSwapStatus(ctx context.Context, id uint64, from, to model.SlotStatus) (bool, error)
	ListByDate(ctx context.Context, date string) ([]model.Slot, error)
}

// Handle identifies a slot that the caller now holds.
type Handle struct {
	SlotID   uint64 `json:"slot_id"`
	Date     string `json:"date"`
	TimeSlot string `json:"time_slot"`
}

// Availability is one row of the daily slot listing.
type Availability struct {
	TimeSlot string           `json:"time_slot"`
	Status   model.SlotStatus `json:"status"`
}

// Manager reserves and releases slots.
type Manager struct {
	store  SlotStore
	labels []string
	known  map[string]bool
	loc    *time.Location
	now    func() time.Time
	logger *log.Logger
}

// NewManager returns a Manager that accepts the given time slot labels.
// Dates are judged against the calendar in loc.
func NewManager(store SlotStore, labels []string, loc *time.Location) *Manager {
	known := make(map[string]bool, len(labels))
	for _, l := range labels {
		known[l] = true
	}
	return &Manager{
		store:  store,
		labels: labels,
		known:  known,
		loc:    loc,
		now:    time.Now,
		logger: log.New("slots"),
	}
}

// Logger exposes the component logger so callers can redirect it.
func (m *Manager) Logger() *log.Logger { return m.logger }

func (m *Manager) validate(date, timeSlot string) error {
	if err := model.ValidateVisitDate(date, model.DateIn(m.now(), m.loc)); err != nil {
		return err
	}
	if !m.known[timeSlot] {
		return model.Invalid("time_slot", "unknown time slot %q", timeSlot)
	}
	return nil
}

// Reserve claims the slot for (date, timeSlot).  The row is created on
// first use.  Exactly one of any number of concurrent callers for the same
// pair gets a Handle; the rest get ErrSlotUnavailable.
func (m *Manager) Reserve(ctx context.Context, date, timeSlot string) (Handle, error) {
	if err := m.validate(date, timeSlot); err != nil {
		return Handle{}, err
	}
	slot, err := m.store.GetOrCreate(ctx, date, timeSlot)
	if err != nil {
		return Handle{}, fmt.Errorf("load slot: %w", err)
	}
	if slot.Status == model.SlotBooked {
		return Handle{}, ErrSlotUnavailable
	}
	ok, err := m.store.CompareAndSwapStatus(ctx, slot.ID, model.SlotAvailable, model.SlotBooked)
	if err != nil {
		return Handle{}, fmt.Errorf("claim slot: %w", err)
	}
	if !ok {
		return Handle{}, ErrSlotUnavailable
	}
	m.logger.Infoj(log.JSON{"event": "slot_reserved", "slot_id": slot.ID, "date": date, "time_slot": timeSlot})
	return Handle{SlotID: slot.ID, Date: date, TimeSlot: timeSlot}, nil
}

// Release returns a booked slot to available.  Releasing a slot that is
// already available is not an error.
func (m *Manager) Release(ctx context.Context, slotID uint64) error {
	ok, err := m.store.CompareAndSwapStatus(ctx, slotID, model.SlotBooked, model.SlotAvailable)
	if err != nil {
		return fmt.Errorf("release slot %d: %w", slotID, err)
	}
	if !ok {
		m.logger.Warnj(log.JSON{"event": "slot_release_noop", "slot_id": slotID})
		return nil
	}
	m.logger.Infoj(log.JSON{"event": "slot_released", "slot_id": slotID})
	return nil
}

// WithReservation reserves the slot, then runs fn.  If fn fails the slot is
// released before the error is returned, so it is immediately bookable
// again.
func (m *Manager) WithReservation(ctx context.Context, date, timeSlot string, fn func(Handle) error) (Handle, error) {
	h, err := m.Reserve(ctx, date, timeSlot)
	if err != nil {
		return Handle{}, err
	}
	if err := fn(h); err != nil {
		// A fresh context: the request one may be what just expired.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := m.Release(rctx, h.SlotID); rerr != nil {
			m.logger.Errorj(log.JSON{"event": "slot_rollback_failed", "slot_id": h.SlotID, "error": rerr.Error()})
			return Handle{}, errors.Join(err, rerr)
		}
		m.logger.Warnj(log.JSON{"event": "slot_rolled_back", "slot_id": h.SlotID, "cause": err.Error()})
		return Handle{}, err
	}
	return h, nil
}

// Availability lists every configured time slot for date with its status.
// Slots never booked have no row and are reported available.
func (m *Manager) Availability(ctx context.Context, date string) ([]Availability, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, model.Invalid("date", "must be YYYY-MM-DD")
	}
	rows, err := m.store.ListByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	status := make(map[string]model.SlotStatus, len(rows))
	for _, s := range rows {
		status[s.Label] = s.Status
	}
	out := make([]Availability, 0, len(m.labels))
	for _, l := range m.labels {
		st, ok := status[l]
		if !ok {
			st = model.SlotAvailable
		}
		out = append(out, Availability{TimeSlot: l, Status: st})
	}
	return out, nil
}
