package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

// NotificationLogRepo is the insert-only store for notification attempts.
// It doubles as the idempotency ledger for the dispatcher.
type NotificationLogRepo struct {
	base
}

// NewNotificationLogRepo returns a new NotificationLogRepo bound to the given database.
func NewNotificationLogRepo(db *sql.DB, timeout time.Duration) *NotificationLogRepo {
	return &NotificationLogRepo{base: newBase(db, timeout)}
}

// Append inserts one attempt record and populates its ID.
func (r *NotificationLogRepo) Append(ctx context.Context, l *model.NotificationLog) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	var refType, refID sql.NullString
	if l.Reference != nil {
		refType = sql.NullString{String: l.Reference.Type, Valid: true}
		refID = sql.NullString{String: l.Reference.ID, Valid: true}
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO notification_logs (channel, recipient, message, status, reference_type, reference_id, error, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, l.Channel, l.Recipient, l.Message, l.Status, refType, refID, l.Error, l.CreatedAt)
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

// HasSent reports whether a sent record exists for the reference on channel.
func (r *NotificationLogRepo) HasSent(ctx context.Context, ref model.Reference, channel model.Channel) (bool, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const q = `SELECT 1 FROM notification_logs
               WHERE reference_type = ? AND reference_id = ? AND channel = ? AND status = 'sent'
               LIMIT 1`
	var one int
	err := r.db.QueryRowContext(ctx, q, ref.Type, ref.ID, channel).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, classify(ctx, err)
	}
	return true, nil
}

// claimTTL is how long an unsettled claim blocks other senders.  A sender
// that died mid-delivery leaves its claim behind; after this it can be
// taken over.
const claimTTL = 5 * time.Minute

// Claim takes the delivery claim for (ref, channel).  It reports true when
// the caller now owns the claim: the row was new, or its previous holder
// never settled it within claimTTL.  A claim settled as sent is never
// handed out again.
func (r *NotificationLogRepo) Claim(ctx context.Context, ref model.Reference, channel model.Channel) (bool, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	now := time.Now().UTC()
	const q = `INSERT INTO notification_claims (reference_type, reference_id, channel, sent, claimed_at)
               VALUES (?, ?, ?, 0, ?)
               ON DUPLICATE KEY UPDATE claimed_at = IF(sent = 0 AND claimed_at < ?, VALUES(claimed_at), claimed_at)`
	res, err := r.db.ExecContext(ctx, q, ref.Type, ref.ID, channel, now, now.Add(-claimTTL))
	if err != nil {
		return false, classify(ctx, err)
	}
	// 1 for an insert, 2 for a takeover, 0 when the row was left as is.
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(ctx, err)
	}
	return n > 0, nil
}

// Settle marks a held claim sent, or deletes it so a later request can try
// again.
func (r *NotificationLogRepo) Settle(ctx context.Context, ref model.Reference, channel model.Channel, sent bool) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	q := `DELETE FROM notification_claims WHERE reference_type = ? AND reference_id = ? AND channel = ? AND sent = 0`
	if sent {
		q = `UPDATE notification_claims SET sent = 1 WHERE reference_type = ? AND reference_id = ? AND channel = ?`
	}
	if _, err := r.db.ExecContext(ctx, q, ref.Type, ref.ID, channel); err != nil {
		return classify(ctx, err)
	}
	return nil
}

// ListByReference returns all attempts for a reference, oldest first.
func (r *NotificationLogRepo) ListByReference(ctx context.Context, ref model.Reference) ([]model.NotificationLog, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	const q = `SELECT id, channel, recipient, message, status, reference_type, reference_id, error, created_at
               FROM notification_logs WHERE reference_type = ? AND reference_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, ref.Type, ref.ID)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()
	var out []model.NotificationLog
	for rows.Next() {
		var (
			l              model.NotificationLog
			refType, refID sql.NullString
			errText        sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.Channel, &l.Recipient, &l.Message, &l.Status, &refType, &refID, &errText, &l.CreatedAt); err != nil {
			return nil, classify(ctx, err)
		}
		if refType.Valid {
			l.Reference = &model.Reference{Type: refType.String, ID: refID.String}
		}
		if errText.Valid {
			e := errText.String
			l.Error = &e
		}
		out = append(out, l)
	}
	return out, classify(ctx, rows.Err())
}
