package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

// MembershipRepo looks up discount memberships by phone number.
type MembershipRepo struct {
	base
}

// NewMembershipRepo returns a new MembershipRepo bound to the given database.
func NewMembershipRepo(db *sql.DB, timeout time.Duration) *MembershipRepo {
	return &MembershipRepo{base: newBase(db, timeout)}
}

// ActiveForPhone returns the active membership for phone whose validity
// window contains date.  When several match, the one valid the longest
// wins.  ErrNotFound means the guest has no usable membership.
func (r *MembershipRepo) ActiveForPhone(ctx context.Context, phone, date string) (model.Membership, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const q = `SELECT id, phone, holder_name, discount_percent,
                      DATE_FORMAT(valid_from, '%Y-%m-%d'), DATE_FORMAT(valid_until, '%Y-%m-%d'), status
               FROM memberships
               WHERE phone = ? AND status = 'active' AND valid_from <= ? AND valid_until >= ?
               ORDER BY valid_until DESC
               LIMIT 1`
	var m model.Membership
	err := r.db.QueryRowContext(ctx, q, phone, date, date).Scan(
		&m.ID, &m.Phone, &m.HolderName, &m.DiscountPercent, &m.ValidFrom, &m.ValidUntil, &m.Status)
	return m, classify(ctx, err)
}
