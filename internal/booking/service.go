// Package booking schedules slot-based visits.  A booking holds exactly one
// slot; creating it claims the slot and cancelling it gives the slot back.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/venue-ticketing/internal/model"
	"github.com/iliyamo/venue-ticketing/internal/phone"
	"github.com/iliyamo/venue-ticketing/internal/pricing"
	"github.com/iliyamo/venue-ticketing/internal/repository"
	"github.com/iliyamo/venue-ticketing/internal/reservation"
)

// ErrAlreadyCancelled is returned when cancelling or changing a booking
// that is already cancelled.
var ErrAlreadyCancelled = errors.New("booking already cancelled")

// ErrSlotInUse is returned when releasing a slot that a live booking holds.
var ErrSlotInUse = errors.New("slot held by a live booking")

// Store is the booking persistence the service needs.
type Store interface {
	Create(ctx context.Context, b *model.Booking) error
	GetByID(ctx context.Context, id uint64) (model.Booking, error)
	ListByDate(ctx context.Context, date string) ([]model.Booking, error)
	UpdateStatus(ctx context.Context, id uint64, from, to model.BookingStatus, note string) error
	UpdatePayment(ctx context.Context, id uint64, to model.PaymentStatus, note string) error
	Cancel(ctx context.Context, id uint64, payment model.PaymentStatus, note string) error
	HasLiveForSlot(ctx context.Context, slotID uint64) (bool, error)
}

// Slots reserves and releases the slot behind a booking.
type Slots interface {
	WithReservation(ctx context.Context, date, timeSlot string, fn func(reservation.Handle) error) (reservation.Handle, error)
	Release(ctx context.Context, slotID uint64) error
}

// MembershipFinder returns the membership valid for a phone on a date.
type MembershipFinder interface {
	ActiveForPhone(ctx context.Context, phone, date string) (model.Membership, error)
}

// Publisher announces booking events for guest notification.
type Publisher interface {
	PublishBookingConfirmed(ctx context.Context, b model.Booking) error
	PublishBookingCancelled(ctx context.Context, b model.Booking, refund int64) error
}

// CreateRequest describes a booking.
type CreateRequest struct {
	Date         string
	TimeSlot     string
	GuardianName string
	Phone        string
	Guardians    int
	Children     int
	Socks        int
}

// RefundInfo is returned when cancelling a paid booking with a refund.
type RefundInfo struct {
	Amount int64               `json:"amount"`
	Status model.PaymentStatus `json:"status"`
}

// CancelResult is the cancelled booking and, when one was issued, the
// refund.
type CancelResult struct {
	Booking model.Booking `json:"booking"`
	Refund  *RefundInfo   `json:"refund,omitempty"`
}

// Service creates and administers bookings.
type Service struct {
	store       Store
	slots       Slots
	memberships MembershipFinder
	publisher   Publisher
	rates       pricing.Rates
	now         func() time.Time
	logger      *log.Logger
}

// NewService returns a booking Service.  memberships and publisher may be
// nil.
func NewService(store Store, slots Slots, memberships MembershipFinder, publisher Publisher, rates pricing.Rates) *Service {
	return &Service{
		store:       store,
		slots:       slots,
		memberships: memberships,
		publisher:   publisher,
		rates:       rates,
		now:         time.Now,
		logger:      log.New("bookings"),
	}
}

// Logger exposes the component logger.
func (s *Service) Logger() *log.Logger { return s.logger }

func (req *CreateRequest) normalize() error {
	req.GuardianName = strings.TrimSpace(req.GuardianName)
	if req.GuardianName == "" {
		return model.Invalid("guardian_name", "is required")
	}
	req.Phone = phone.Normalize(req.Phone)
	if !phone.Valid(req.Phone) {
		return model.Invalid("phone", "must be a Bangladesh mobile number")
	}
	if req.Guardians == 0 {
		req.Guardians = 1
	}
	if req.Children == 0 {
		req.Children = 1
	}
	if req.Guardians < 1 || req.Children < 1 {
		return model.Invalid("composition", "guardians and children must be at least 1")
	}
	if req.Socks < 0 {
		return model.Invalid("socks", "must not be negative")
	}
	return nil
}

// Create validates req, claims its slot and stores the booking.  If the
// insert fails the slot is released again.
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.Booking, error) {
	if err := req.normalize(); err != nil {
		return model.Booking{}, err
	}
	member, err := s.membership(ctx, req.Phone, req.Date)
	if err != nil {
		return model.Booking{}, err
	}
	price := pricing.Price(s.rates, pricing.Input{
		Guardians:  req.Guardians,
		Children:   req.Children,
		Socks:      req.Socks,
		Phone:      req.Phone,
		Date:       req.Date,
		Membership: member,
	})

	var b model.Booking
	_, err = s.slots.WithReservation(ctx, req.Date, req.TimeSlot, func(h reservation.Handle) error {
		b = model.Booking{
			SlotID:        h.SlotID,
			GuardianName:  req.GuardianName,
			Phone:         req.Phone,
			Guardians:     req.Guardians,
			Children:      req.Children,
			Socks:         req.Socks,
			TotalAmount:   price.Total,
			Status:        model.BookingConfirmed,
			PaymentStatus: model.PaymentUnpaid,
			Notes:         s.note("created", "", ""),
		}
		return s.store.Create(ctx, &b)
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.logger.Infoj(log.JSON{"event": "booking_created", "booking_id": b.ID, "slot_id": b.SlotID, "total": b.TotalAmount})
	if s.publisher != nil {
		pctx, cancel := detached(ctx)
		defer cancel()
		if err := s.publisher.PublishBookingConfirmed(pctx, b); err != nil {
			s.logger.Warnj(log.JSON{"event": "publish_failed", "booking_id": b.ID, "error": err.Error()})
		}
	}
	return b, nil
}

func (s *Service) membership(ctx context.Context, ph, date string) (*model.Membership, error) {
	if s.memberships == nil {
		return nil, nil
	}
	m, err := s.memberships.ActiveForPhone(ctx, ph, date)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("membership lookup: %w", err)
	}
	return &m, nil
}

// Get returns a booking by ID.
func (s *Service) Get(ctx context.Context, id uint64) (model.Booking, error) {
	return s.store.GetByID(ctx, id)
}

// List returns the bookings for a date.
func (s *Service) List(ctx context.Context, date string) ([]model.Booking, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, model.Invalid("date", "must be YYYY-MM-DD")
	}
	return s.store.ListByDate(ctx, date)
}

// Cancel cancels a booking and releases its slot.  When refund is set and
// the booking was paid, the payment becomes refunded and the refund is
// reported.  An already cancelled booking no longer owns its slot, which a
// later booking may hold, so it is left alone and ErrAlreadyCancelled is
// returned.
func (s *Service) Cancel(ctx context.Context, id uint64, refund bool, reason string, by model.Staff) (CancelResult, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return CancelResult{}, err
	}
	if b.Status == model.BookingCancelled {
		return CancelResult{}, ErrAlreadyCancelled
	}

	var info *RefundInfo
	payment := b.PaymentStatus
	detail := reason
	if refund && payment == model.PaymentPaid {
		payment = model.PaymentRefunded
		info = &RefundInfo{Amount: b.TotalAmount, Status: payment}
		detail = strings.TrimSpace(fmt.Sprintf("%s; refund %d", reason, b.TotalAmount))
	}
	if err := s.store.Cancel(ctx, id, payment, s.note("cancelled", detail, staffLabel(by))); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return CancelResult{}, ErrAlreadyCancelled
		}
		return CancelResult{}, err
	}
	if err := s.slots.Release(ctx, b.SlotID); err != nil {
		return CancelResult{}, fmt.Errorf("booking %d cancelled but slot not released: %w", id, err)
	}
	b.Status = model.BookingCancelled
	b.PaymentStatus = payment
	s.logger.Infoj(log.JSON{"event": "booking_cancelled", "booking_id": id, "refund": info != nil, "by": by.ID})

	if s.publisher != nil {
		var amount int64
		if info != nil {
			amount = info.Amount
		}
		pctx, cancel := detached(ctx)
		defer cancel()
		if err := s.publisher.PublishBookingCancelled(pctx, b, amount); err != nil {
			s.logger.Warnj(log.JSON{"event": "publish_failed", "booking_id": id, "error": err.Error()})
		}
	}
	return CancelResult{Booking: b, Refund: info}, nil
}

// ReleaseSlot frees a slot left booked without a live booking, such as a
// standalone reservation or a cancel whose release failed.  A slot held by
// a pending or confirmed booking is refused with ErrSlotInUse; cancel the
// booking instead.
func (s *Service) ReleaseSlot(ctx context.Context, slotID uint64, by model.Staff) error {
	live, err := s.store.HasLiveForSlot(ctx, slotID)
	if err != nil {
		return fmt.Errorf("check slot %d: %w", slotID, err)
	}
	if live {
		return ErrSlotInUse
	}
	if err := s.slots.Release(ctx, slotID); err != nil {
		return err
	}
	s.logger.Infoj(log.JSON{"event": "slot_released_by_staff", "slot_id": slotID, "by": by.ID})
	return nil
}

// UpdateStatus moves a booking between pending and confirmed.
// Cancellation goes through Cancel so the slot is released.
func (s *Service) UpdateStatus(ctx context.Context, id uint64, to model.BookingStatus, reason string, by model.Staff) (model.Booking, error) {
	if to != model.BookingPending && to != model.BookingConfirmed {
		return model.Booking{}, model.Invalid("status", "must be pending or confirmed")
	}
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status == model.BookingCancelled {
		return model.Booking{}, ErrAlreadyCancelled
	}
	if b.Status == to {
		return b, nil
	}
	if err := s.store.UpdateStatus(ctx, id, b.Status, to, s.note("status "+string(to), reason, staffLabel(by))); err != nil {
		return model.Booking{}, err
	}
	return s.store.GetByID(ctx, id)
}

// UpdatePayment records a payment status change on a live booking.
func (s *Service) UpdatePayment(ctx context.Context, id uint64, to model.PaymentStatus, reason string, by model.Staff) (model.Booking, error) {
	switch to {
	case model.PaymentUnpaid, model.PaymentPending, model.PaymentPaid, model.PaymentRefunded:
	default:
		return model.Booking{}, model.Invalid("payment_status", "unknown payment status %q", to)
	}
	if err := s.store.UpdatePayment(ctx, id, to, s.note("payment "+string(to), reason, staffLabel(by))); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Booking{}, ErrAlreadyCancelled
		}
		return model.Booking{}, err
	}
	return s.store.GetByID(ctx, id)
}

// note formats one audit line.  Lines are appended, never rewritten.
func (s *Service) note(action, detail, who string) string {
	line := fmt.Sprintf("[%s] %s", s.now().UTC().Format(time.RFC3339), action)
	if who != "" {
		line += " by " + who
	}
	if detail != "" {
		line += ": " + detail
	}
	return line + "\n"
}

func staffLabel(st model.Staff) string {
	switch {
	case st.ID == "" && st.Name == "":
		return ""
	case st.Name == "":
		return "staff " + st.ID
	}
	return fmt.Sprintf("staff %s (%s)", st.ID, st.Name)
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}
