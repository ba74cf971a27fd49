package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

// BookingRepo provides data access to the bookings table.  Bookings are
// never deleted; status and payment changes are conditional updates that
// also append a line to the notes column, which acts as the audit trail
// of administrative actions.
type BookingRepo struct {
	base
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB, timeout time.Duration) *BookingRepo {
	return &BookingRepo{base: newBase(db, timeout)}
}

const bookingSelect = `SELECT b.id, b.slot_id, DATE_FORMAT(s.slot_date, '%Y-%m-%d'), s.label,
                              b.guardian_name, b.phone, b.guardians, b.children, b.socks, b.total_amount,
                              b.status, b.payment_status, COALESCE(b.notes, ''), b.created_at, b.updated_at
                       FROM bookings b
                       JOIN slots s ON s.id = b.slot_id`

func scanBooking(row interface{ Scan(...any) error }) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.SlotID, &b.Date, &b.TimeSlot,
		&b.GuardianName, &b.Phone, &b.Guardians, &b.Children, &b.Socks, &b.TotalAmount,
		&b.Status, &b.PaymentStatus, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// Create inserts a booking and populates its generated ID and timestamps.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const q = `INSERT INTO bookings (slot_id, guardian_name, phone, guardians, children, socks, total_amount, status, payment_status, notes)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, b.SlotID, b.GuardianName, b.Phone, b.Guardians, b.Children, b.Socks,
		b.TotalAmount, b.Status, b.PaymentStatus, b.Notes)
	if err != nil {
		return classify(ctx, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return classify(ctx, err)
	}
	fresh, err := scanBooking(r.db.QueryRowContext(ctx, bookingSelect+` WHERE b.id = ?`, id))
	if err != nil {
		return classify(ctx, err)
	}
	*b = fresh
	return nil
}

// GetByID fetches a booking together with its slot date and label.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	b, err := scanBooking(r.db.QueryRowContext(ctx, bookingSelect+` WHERE b.id = ?`, id))
	return b, classify(ctx, err)
}

// ListByDate returns bookings for a visit date, newest first.
func (r *BookingRepo) ListByDate(ctx context.Context, date string) ([]model.Booking, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, bookingSelect+` WHERE s.slot_date = ? ORDER BY b.id DESC`, date)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, classify(ctx, err)
		}
		out = append(out, b)
	}
	return out, classify(ctx, rows.Err())
}

// UpdateStatus moves a booking from one status to another and appends note
// to its audit trail.  It returns ErrConflict when the booking is no longer
// in status `from` and ErrNotFound when it does not exist.
func (r *BookingRepo) UpdateStatus(ctx context.Context, id uint64, from, to model.BookingStatus, note string) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const q = `UPDATE bookings
               SET status = ?, notes = CONCAT(COALESCE(notes, ''), ?), updated_at = CURRENT_TIMESTAMP
               WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, to, note, id, from)
	return r.settle(ctx, res, err, `SELECT 1 FROM bookings WHERE id = ? LIMIT 1`, id)
}

// UpdatePayment sets the payment status of a non-cancelled booking and
// appends note to its audit trail.
func (r *BookingRepo) UpdatePayment(ctx context.Context, id uint64, to model.PaymentStatus, note string) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const q = `UPDATE bookings
               SET payment_status = ?, notes = CONCAT(COALESCE(notes, ''), ?), updated_at = CURRENT_TIMESTAMP
               WHERE id = ? AND status <> 'cancelled'`
	res, err := r.db.ExecContext(ctx, q, to, note, id)
	return r.settle(ctx, res, err, `SELECT 1 FROM bookings WHERE id = ? LIMIT 1`, id)
}

// Cancel marks a booking cancelled, sets its payment status and appends
// note.  Only bookings that are not already cancelled are changed.
func (r *BookingRepo) Cancel(ctx context.Context, id uint64, payment model.PaymentStatus, note string) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const q = `UPDATE bookings
               SET status = 'cancelled', payment_status = ?, notes = CONCAT(COALESCE(notes, ''), ?), updated_at = CURRENT_TIMESTAMP
               WHERE id = ? AND status <> 'cancelled'`
	res, err := r.db.ExecContext(ctx, q, payment, note, id)
	return r.settle(ctx, res, err, `SELECT 1 FROM bookings WHERE id = ? LIMIT 1`, id)
}


// HasLiveForSlot reports whether a pending or confirmed booking references
// the slot.
func (r *BookingRepo) HasLiveForSlot(ctx context.Context, slotID uint64) (bool, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const q = `SELECT EXISTS(SELECT 1 FROM bookings WHERE slot_id = ? AND status <> 'cancelled')`
	var live bool
	if err := r.db.QueryRowContext(ctx, q, slotID).Scan(&live); err != nil {
		return false, classify(ctx, err)
	}
	return live, nil
}
