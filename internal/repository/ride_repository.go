package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/venue-ticketing/internal/model"
)

// RideRepo reads the ride add-on catalogue.  Prices read here are copied
// into ticket_rides at issuance and never consulted again for that ticket.
type RideRepo struct {
	base
}

// NewRideRepo returns a new RideRepo bound to the given database.
func NewRideRepo(db *sql.DB, timeout time.Duration) *RideRepo {
	return &RideRepo{base: newBase(db, timeout)}
}

// ActiveByIDs returns the active rides among ids keyed by ID.  Unknown or
// inactive IDs are simply absent from the map.
func (r *RideRepo) ActiveByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Ride, error) {
	out := make(map[uint64]model.Ride, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	q := `SELECT id, name, price, is_active FROM rides WHERE is_active = 1 AND id IN (` + placeholders + `)`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()
	for rows.Next() {
		var rd model.Ride
		if err := rows.Scan(&rd.ID, &rd.Name, &rd.Price, &rd.IsActive); err != nil {
			return nil, classify(ctx, err)
		}
		out[rd.ID] = rd
	}
	return out, classify(ctx, rows.Err())
}
