package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

// GateLogRepo is the insert-only store for gate scans.  There is no update
// or delete path; ticket gate state is folded from these rows.
type GateLogRepo struct {
	base
}

// NewGateLogRepo returns a new GateLogRepo bound to the given database.
func NewGateLogRepo(db *sql.DB, timeout time.Duration) *GateLogRepo {
	return &GateLogRepo{base: newBase(db, timeout)}
}

// Append inserts one scan record and populates its ID and timestamp.
func (r *GateLogRepo) Append(ctx context.Context, l *model.GateLog) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	if l.ScannedAt.IsZero() {
		l.ScannedAt = time.Now().UTC()
	}
	const q = `INSERT INTO gate_logs (ticket_id, entry_type, gate_id, camera_id, staff_id, staff_name, scanned_at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, l.TicketID, l.EntryType, l.GateID, l.CameraID, l.StaffID, l.StaffName, l.ScannedAt)
	if err != nil {
		return classify(ctx, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return classify(ctx, err)
	}
	l.ID = uint64(id)
	return nil
}

// ListByTicket returns every scan for a ticket in insertion order.
func (r *GateLogRepo) ListByTicket(ctx context.Context, ticketID uint64) ([]model.GateLog, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const q = `SELECT id, ticket_id, entry_type, gate_id, camera_id, staff_id, staff_name, scanned_at
               FROM gate_logs WHERE ticket_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, ticketID)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()
	var out []model.GateLog
	for rows.Next() {
		var (
			l      model.GateLog
			camera sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.TicketID, &l.EntryType, &l.GateID, &camera, &l.StaffID, &l.StaffName, &l.ScannedAt); err != nil {
			return nil, classify(ctx, err)
		}
		if camera.Valid {
			c := camera.String
			l.CameraID = &c
		}
		out = append(out, l)
	}
	return out, classify(ctx, rows.Err())
}
