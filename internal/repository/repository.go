package repository

import (
	"context"
	"time"
)

// Repository provides database operations
type Repository struct {
	q    Querier
	db   *DB
	inTx bool
	now  func() time.Time
}

// NewRepository initializes a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{
		q:   db,
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for timestamps
func (r *Repository) SetClock(now func() time.Time) {
	r.now = func() time.Time { return now().UTC() }
}

// Now returns the repository's current time
func (r *Repository) Now() time.Time {
	return r.now()
}

// InTx runs fn with a repository bound to a single transaction.
// Calls nested inside an open transaction reuse it.
func (r *Repository) InTx(ctx context.Context, fn func(tx *Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.db.WithTx(ctx, func(q Querier) error {
		return fn(&Repository{q: q, db: r.db, inTx: true, now: r.now})
	})
}

// forUpdate returns the row-locking suffix for the active backend.
// SQLite serialises writers, so it needs none.
func (r *Repository) forUpdate() string {
	if r.db.DriverName() == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
