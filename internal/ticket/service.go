// Package ticket issues entry tickets and manages their lifecycle outside
// the gate: cancellation, payment and the daily expiry sweep.  Gate
// transitions live in package gate.
package ticket

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
)

// ValidationError is the error returned for rejected ticket requests.
type ValidationError = model.ValidationError

var (
	// ErrNotCancellable is returned when the ticket is no longer active.
	ErrNotCancellable = errors.New("ticket is not active")
	// ErrNotPayable is returned when the ticket has no pending payment.
	ErrNotPayable = errors.New("ticket has no pending payment")
)

const maxNumberAttempts = 5

// Store is the ticket persistence the service needs.
type Store interface {
	Create(ctx context.Context, t *model.Ticket) error
	GetByNumber(ctx context.Context, number string) (model.Ticket, error)
	CompareAndSwapStatus(ctx context.Context, id uint64, from, to model.TicketStatus) error
	MarkPaid(ctx context.Context, id uint64) error
	ExpireBefore(ctx context.Context, date string) (int64, error)
}

// RideCatalog resolves ride IDs to their current price.
type RideCatalog interface {
	ActiveByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Ride, error)
}

// MembershipFinder returns the membership valid for a phone on a date, or
// repository.ErrNotFound.
type MembershipFinder interface {
	ActiveForPhone(ctx context.Context, phone, date string) (model.Membership, error)
}

// Publisher announces issued tickets so the guest can be notified.
type Publisher interface {
	PublishTicketIssued(ctx context.Context, t model.Ticket) error
}

// RideRequest selects a ride add-on.
type RideRequest struct {
	RideID   uint64 `json:"ride_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
}

// CreateRequest describes a ticket to issue.  Zero guardian and child
// counts mean one; an empty VisitDate means today; an empty PaymentType
// means cash.
type CreateRequest struct {
	GuardianName string
	Phone        string
	VisitDate    string
	Guardians    int
	Children     int
	Socks        int
	Rides        []RideRequest
	PaymentType  model.PaymentType
	BookingID    *uint64
	IssuedBy     model.Staff
}

// Service issues and manages tickets.
type Service struct {
	store       Store
	rides       RideCatalog
	memberships MembershipFinder
	publisher   Publisher
	rates       pricing.Rates
	loc         *time.Location
	now         func() time.Time
	logger      *log.Logger
}

// NewService returns a ticket Service.  publisher may be nil.
func NewService(store Store, rides RideCatalog, memberships MembershipFinder, publisher Publisher, rates pricing.Rates, loc *time.Location) *Service {
	return &Service{
		store:       store,
		rides:       rides,
		memberships: memberships,
		publisher:   publisher,
		rates:       rates,
		loc:         loc,
		now:         time.Now,
		logger:      log.New("tickets"),
	}
}

// Logger exposes the component logger.
func (s *Service) Logger() *log.Logger { return s.logger }

// Today is the current venue date.
func (s *Service) Today() string { return model.DateIn(s.now(), s.loc) }

func (s *Service) normalize(req *CreateRequest) error {
	req.GuardianName = strings.TrimSpace(req.GuardianName)
	if req.GuardianName == "" {
		return model.Invalid("guardian_name", "is required")
	}
	req.Phone = phone.Normalize(req.Phone)
	if !phone.Valid(req.Phone) {
		return model.Invalid("phone", "must be a Bangladesh mobile number")
	}
	if req.VisitDate == "" {
		req.VisitDate = s.Today()
	}
	if err := model.ValidateVisitDate(req.VisitDate, s.Today()); err != nil {
		return err
	}
	if req.Guardians == 0 {
		req.Guardians = 1
	}
	if req.Children == 0 {
		req.Children = 1
	}
	if req.Guardians < 1 {
		return model.Invalid("guardians", "must be at least 1")
	}
	if req.Children < 1 {
		return model.Invalid("children", "must be at least 1")
	}
	if req.Socks < 0 {
		return model.Invalid("socks", "must not be negative")
	}
	switch req.PaymentType {
	case "":
		req.PaymentType = model.PaymentCash
	case model.PaymentCash, model.PaymentOnline:
	default:
		return model.Invalid("payment_type", "must be cash or online")
	}
	for _, r := range req.Rides {
		if r.Quantity < 1 {
			return model.Invalid("rides", "quantity for ride %d must be at least 1", r.RideID)
		}
	}
	return nil
}

// resolveRides captures the current catalogue price of each requested
// ride.  Repeated IDs are merged.
func (s *Service) resolveRides(ctx context.Context, reqs []RideRequest) ([]model.RideSelection, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	qty := map[uint64]int{}
	var order []uint64
	for _, r := range reqs {
		if _, seen := qty[r.RideID]; !seen {
			order = append(order, r.RideID)
		}
		qty[r.RideID] += r.Quantity
	}
	catalog, err := s.rides.ActiveByIDs(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("load rides: %w", err)
	}
	out := make([]model.RideSelection, 0, len(order))
	for _, id := range order {
		rd, ok := catalog[id]
		if !ok {
			return nil, model.Invalid("rides", "ride %d is not available", id)
		}
		out = append(out, model.RideSelection{RideID: id, Name: rd.Name, Quantity: qty[id], UnitPrice: rd.Price})
	}
	return out, nil
}

// Quote validates req and prices it without issuing anything.
func (s *Service) Quote(ctx context.Context, req CreateRequest) (model.PriceBreakdown, *model.Membership, []model.RideSelection, error) {
	if err := s.normalize(&req); err != nil {
		return model.PriceBreakdown{}, nil, nil, err
	}
	return s.quote(ctx, req)
}

func (s *Service) quote(ctx context.Context, req CreateRequest) (model.PriceBreakdown, *model.Membership, []model.RideSelection, error) {
	rides, err := s.resolveRides(ctx, req.Rides)
	if err != nil {
		return model.PriceBreakdown{}, nil, nil, err
	}
	var member *model.Membership
	if s.memberships != nil {
		m, err := s.memberships.ActiveForPhone(ctx, req.Phone, req.VisitDate)
		switch {
		case err == nil:
			member = &m
		case errors.Is(err, repository.ErrNotFound):
		default:
			return model.PriceBreakdown{}, nil, nil, fmt.Errorf("membership lookup: %w", err)
		}
	}
	b := pricing.Price(s.rates, pricing.Input{
		Guardians:  req.Guardians,
		Children:   req.Children,
		Socks:      req.Socks,
		Rides:      rides,
		Phone:      req.Phone,
		Date:       req.VisitDate,
		Membership: member,
	})
	if !pricing.MembershipApplies(member, req.Phone, req.VisitDate) {
		member = nil
	}
	return b, member, rides, nil
}

// Create validates req, prices it and stores the ticket.  The price is
// computed once here and never recomputed.  Cash tickets are paid at
// issuance; online tickets start pending.
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.Ticket, error) {
	if err := s.normalize(&req); err != nil {
		return model.Ticket{}, err
	}
	price, member, rides, err := s.quote(ctx, req)
	if err != nil {
		return model.Ticket{}, err
	}
	t := model.Ticket{
		BookingID:     req.BookingID,
		GuardianName:  req.GuardianName,
		Phone:         req.Phone,
		VisitDate:     req.VisitDate,
		Guardians:     req.Guardians,
		Children:      req.Children,
		Socks:         req.Socks,
		Price:         price,
		Rides:         rides,
		PaymentType:   req.PaymentType,
		PaymentStatus: model.PaymentPaid,
		Status:        model.TicketActive,
		IssuedBy:      req.IssuedBy.ID,
	}
	if req.PaymentType == model.PaymentOnline {
		t.PaymentStatus = model.PaymentPending
	}
	if member != nil {
		id := member.ID
		t.MembershipID = &id
	}

	for attempt := 1; ; attempt++ {
		t.TicketNumber = NewNumber(s.now())
		err = s.store.Create(ctx, &t)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt == maxNumberAttempts {
			return model.Ticket{}, fmt.Errorf("create ticket: %w", err)
		}
	}
	s.logger.Infoj(log.JSON{
		"event": "ticket_issued", "ticket": t.TicketNumber, "total": t.Price.Total,
		"payment": t.PaymentType, "recipient": phone.Mask(t.Phone), "issued_by": t.IssuedBy,
	})
	if t.PaymentStatus == model.PaymentPaid {
		s.publish(ctx, t)
	}
	return t, nil
}

// Get returns a ticket by number.
func (s *Service) Get(ctx context.Context, number string) (model.Ticket, error) {
	return s.store.GetByNumber(ctx, number)
}

// Cancel moves an active ticket to cancelled.
func (s *Service) Cancel(ctx context.Context, number string, by model.Staff) (model.Ticket, error) {
	t, err := s.store.GetByNumber(ctx, number)
	if err != nil {
		return model.Ticket{}, err
	}
	if err := s.store.CompareAndSwapStatus(ctx, t.ID, model.TicketActive, model.TicketCancelled); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Ticket{}, ErrNotCancellable
		}
		return model.Ticket{}, err
	}
	t.Status = model.TicketCancelled
	s.logger.Infoj(log.JSON{"event": "ticket_cancelled", "ticket": t.TicketNumber, "by": by.ID})
	return t, nil
}

// MarkPaid records payment for an online ticket and announces it.
func (s *Service) MarkPaid(ctx context.Context, number string) (model.Ticket, error) {
	t, err := s.store.GetByNumber(ctx, number)
	if err != nil {
		return model.Ticket{}, err
	}
	if err := s.store.MarkPaid(ctx, t.ID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Ticket{}, ErrNotPayable
		}
		return model.Ticket{}, err
	}
	t.PaymentStatus = model.PaymentPaid
	s.publish(ctx, t)
	return t, nil
}

// ExpireStale marks active tickets for past visit dates as expired.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireBefore(ctx, s.Today())
	if err != nil {
		return 0, fmt.Errorf("expire tickets: %w", err)
	}
	return n, nil
}

func (s *Service) publish(ctx context.Context, t model.Ticket) {
	if s.publisher == nil {
		return
	}
	// The ticket is already committed; a broker outage only costs the
	// confirmation message.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.publisher.PublishTicketIssued(pctx, t); err != nil {
		s.logger.Warnj(log.JSON{"event": "publish_failed", "ticket": t.TicketNumber, "error": err.Error()})
	}
}
