package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

// TicketRepo provides data access to tickets and their ride add-ons.  The
// price columns are written once at insert time and never updated.
type TicketRepo struct {
	base
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB, timeout time.Duration) *TicketRepo {
	return &TicketRepo{base: newBase(db, timeout)}
}

const ticketSelect = `SELECT id, ticket_number, booking_id, guardian_name, phone, DATE_FORMAT(visit_date, '%Y-%m-%d'),
                             guardians, children, socks,
                             entry_price, socks_price, rides_price, subtotal, discount, total,
                             payment_type, payment_status, status, inside_venue, membership_id, issued_by,
                             created_at, updated_at
                      FROM tickets`

func scanTicket(row interface{ Scan(...any) error }) (model.Ticket, error) {
	var (
		t            model.Ticket
		bookingID    sql.NullInt64
		membershipID sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.TicketNumber, &bookingID, &t.GuardianName, &t.Phone, &t.VisitDate,
		&t.Guardians, &t.Children, &t.Socks,
		&t.Price.EntryPrice, &t.Price.SocksPrice, &t.Price.RidesPrice, &t.Price.Subtotal, &t.Price.Discount, &t.Price.Total,
		&t.PaymentType, &t.PaymentStatus, &t.Status, &t.InsideVenue, &membershipID, &t.IssuedBy,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if bookingID.Valid {
		id := uint64(bookingID.Int64)
		t.BookingID = &id
	}
	if membershipID.Valid {
		id := uint64(membershipID.Int64)
		t.MembershipID = &id
	}
	return t, nil
}

// Create inserts the ticket and its ride selections in one transaction and
// populates the generated ID and timestamps.  A ticket number collision is
// reported as ErrDuplicate so the caller can pick a new number.
func (r *TicketRepo) Create(ctx context.Context, t *model.Ticket) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(ctx, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	const q = `INSERT INTO tickets (ticket_number, booking_id, guardian_name, phone, visit_date,
                                    guardians, children, socks,
                                    entry_price, socks_price, rides_price, subtotal, discount, total,
                                    payment_type, payment_status, status, inside_venue, membership_id, issued_by)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, t.TicketNumber, t.BookingID, t.GuardianName, t.Phone, t.VisitDate,
		t.Guardians, t.Children, t.Socks,
		t.Price.EntryPrice, t.Price.SocksPrice, t.Price.RidesPrice, t.Price.Subtotal, t.Price.Discount, t.Price.Total,
		t.PaymentType, t.PaymentStatus, t.Status, t.InsideVenue, t.MembershipID, t.IssuedBy)
	if err != nil {
		return classify(ctx, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return classify(ctx, err)
	}
	if len(t.Rides) > 0 {
		query := `INSERT INTO ticket_rides (ticket_id, ride_id, ride_name, quantity, unit_price) VALUES `
		args := make([]interface{}, 0, len(t.Rides)*5)
		for i, rd := range t.Rides {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?, ?)"
			args = append(args, id, rd.RideID, rd.Name, rd.Quantity, rd.UnitPrice)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return classify(ctx, err)
		}
	}
	fresh, err := scanTicket(tx.QueryRowContext(ctx, ticketSelect+` WHERE id = ?`, id))
	if err != nil {
		return classify(ctx, err)
	}
	if err := tx.Commit(); err != nil {
		return classify(ctx, err)
	}
	committed = true
	fresh.Rides = t.Rides
	*t = fresh
	return nil
}

// GetByNumber fetches a ticket and its rides by ticket number.
func (r *TicketRepo) GetByNumber(ctx context.Context, number string) (model.Ticket, error) {
	return r.getOne(ctx, ticketSelect+` WHERE ticket_number = ?`, number)
}

// GetByID fetches a ticket and its rides by primary key.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (model.Ticket, error) {
	return r.getOne(ctx, ticketSelect+` WHERE id = ?`, id)
}

func (r *TicketRepo) getOne(ctx context.Context, q string, arg any) (model.Ticket, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	t, err := scanTicket(r.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		return model.Ticket{}, classify(ctx, err)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT ride_id, ride_name, quantity, unit_price FROM ticket_rides WHERE ticket_id = ? ORDER BY id`, t.ID)
	if err != nil {
		return model.Ticket{}, classify(ctx, err)
	}
	defer rows.Close()
	for rows.Next() {
		var rd model.RideSelection
		if err := rows.Scan(&rd.RideID, &rd.Name, &rd.Quantity, &rd.UnitPrice); err != nil {
			return model.Ticket{}, classify(ctx, err)
		}
		t.Rides = append(t.Rides, rd)
	}
	return t, classify(ctx, rows.Err())
}

// UpdateGateState writes the status and inside_venue flag derived from the
// gate log.  It is a plain overwrite; the log, not this row, is the source
// of truth.
func (r *TicketRepo) UpdateGateState(ctx context.Context, id uint64, status model.TicketStatus, inside bool) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const q = `UPDATE tickets SET status = ?, inside_venue = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := r.db.ExecContext(ctx, q, status, inside, id)
	return classify(ctx, err)
}

// CompareAndSwapStatus changes the ticket status only if it currently
// equals `from`.  It returns ErrConflict when the status differs and
// ErrNotFound when the ticket does not exist.
func (r *TicketRepo) CompareAndSwapStatus(ctx context.Context, id uint64, from, to model.TicketStatus) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const q = `UPDATE tickets SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, to, id, from)
	return r.settle(ctx, res, err, `SELECT 1 FROM tickets WHERE id = ? LIMIT 1`, id)
}

// MarkPaid flips payment_status from pending to paid.
func (r *TicketRepo) MarkPaid(ctx context.Context, id uint64) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const q = `UPDATE tickets SET payment_status = 'paid', updated_at = CURRENT_TIMESTAMP
               WHERE id = ? AND payment_status = 'pending' AND status <> 'cancelled'`
	res, err := r.db.ExecContext(ctx, q, id)
	return r.settle(ctx, res, err, `SELECT 1 FROM tickets WHERE id = ? LIMIT 1`, id)
}

// ExpireBefore marks every active ticket whose visit date is earlier than
// date as expired and returns how many rows changed.
func (r *TicketRepo) ExpireBefore(ctx context.Context, date string) (int64, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const q = `UPDATE tickets SET status = 'expired', updated_at = CURRENT_TIMESTAMP
               WHERE status = 'active' AND visit_date < ?`
	res, err := r.db.ExecContext(ctx, q, date)
	if err != nil {
		return 0, classify(ctx, err)
	}
	n, err := res.RowsAffected()
	return n, classify(ctx, err)
}

