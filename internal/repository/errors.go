// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios.  ErrNotFound means the referenced row does not exist,
// ErrConflict signals that a conditional update found the row in an
// unexpected state, and ErrTimeout marks a store call that did not finish
// within its deadline.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.  Handlers
// should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update affected no rows
// because the row was no longer in the expected state.  Handlers should
// translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrTimeout is returned when a store call exceeds its deadline.  It is
// kept distinct from other failures so callers can answer 504 instead of
// hanging or reporting a generic error.
var ErrTimeout = errors.New("store timeout")

// ErrDuplicate is returned when an insert violates a unique key.
var ErrDuplicate = errors.New("duplicate entry")

// DefaultTimeout bounds every store call when a repository is constructed
// with a zero timeout.
const DefaultTimeout = 3 * time.Second

// base carries the DB handle and the per-call deadline shared by every
// repository in this package.
type base struct {
	db      *sql.DB
	timeout time.Duration
}

func newBase(db *sql.DB, timeout time.Duration) base {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return base{db: db, timeout: timeout}
}

// bounded derives a context that expires after the repository timeout.
func (b base) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

// classify maps driver and context errors onto the package sentinels.  A
// call whose bounded context has expired is a timeout whatever the driver
// reported.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return fmt.Errorf("%w: %s", ErrDuplicate, me.Message)
	}
	return err
}

// settle turns the outcome of a conditional update into nil, ErrConflict
// or ErrNotFound.  When nothing changed, existsQuery (which must select one
// row by id) tells a missing row apart from one in the wrong state.
func (b base) settle(ctx context.Context, res sql.Result, err error, existsQuery string, id uint64) error {
	if err != nil {
		return classify(ctx, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var one int
	if err := b.db.QueryRowContext(ctx, existsQuery, id).Scan(&one); err != nil {
		return classify(ctx, err)
	}
	return ErrConflict
}
