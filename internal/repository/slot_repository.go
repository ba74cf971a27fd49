package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

// SlotRepo provides data access to the slots table.  The table carries a
// unique key on (slot_date, label) so that exactly one row exists per
// bookable pair; exclusive claims are made with conditional updates on
// the status column rather than row locks.
type SlotRepo struct {
	base
}

// NewSlotRepo returns a new SlotRepo bound to the provided database.  A
// zero timeout selects DefaultTimeout.
func NewSlotRepo(db *sql.DB, timeout time.Duration) *SlotRepo {
	return &SlotRepo{base: newBase(db, timeout)}
}

const slotColumns = `id, DATE_FORMAT(slot_date, '%Y-%m-%d'), label, status, created_at, updated_at`

func scanSlot(row interface{ Scan(...any) error }) (model.Slot, error) {
	var s model.Slot
	err := row.Scan(&s.ID, &s.Date, &s.Label, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// GetOrCreate returns the slot for (date, label), inserting an available
// row first when none exists.  Concurrent callers racing on the insert all
// end up reading the same row.
func (r *SlotRepo) GetOrCreate(ctx context.Context, date, label string) (model.Slot, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const ins = `INSERT INTO slots (slot_date, label, status) VALUES (?, ?, 'available')
                 ON DUPLICATE KEY UPDATE id = id`
	if _, err := r.db.ExecContext(ctx, ins, date, label); err != nil {
		return model.Slot{}, classify(ctx, err)
	}
	const sel = `SELECT ` + slotColumns + ` FROM slots WHERE slot_date = ? AND label = ?`
	s, err := scanSlot(r.db.QueryRowContext(ctx, sel, date, label))
	return s, classify(ctx, err)
}

// GetByID fetches a slot by its primary key.
func (r *SlotRepo) GetByID(ctx context.Context, id uint64) (model.Slot, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const sel = `SELECT ` + slotColumns + ` FROM slots WHERE id = ?`
	s, err := scanSlot(r.db.QueryRowContext(ctx, sel, id))
	return s, classify(ctx, err)
}

// CompareAndSwapStatus sets the slot status to `to` only if it is currently
// `from`.  It reports whether the row was changed.  A false result with a
// nil error means another caller changed the status first.
func (r *SlotRepo) CompareAndSwapStatus(ctx context.Context, id uint64, from, to model.SlotStatus) (bool, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const q = `UPDATE slots SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, q, to, id, from)
	if err != nil {
		return false, classify(ctx, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(ctx, err)
	}
	return n == 1, nil
}

// ListByDate returns every slot row that exists for the given date.  Labels
// that were never booked have no row yet and are not returned.
func (r *SlotRepo) ListByDate(ctx context.Context, date string) ([]model.Slot, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const sel = `SELECT ` + slotColumns + ` FROM slots WHERE slot_date = ? ORDER BY label`
	rows, err := r.db.QueryContext(ctx, sel, date)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()
	var out []model.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, classify(ctx, err)
		}
		out = append(out, s)
	}
	return out, classify(ctx, rows.Err())
}
