package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a query matched no row
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique constraint
	ErrDuplicate = errors.New("duplicate record")
)

// Result describes the outcome of a statement
type Result struct {
	RowsAffected int64
	InsertedID   int64 // Zero when the driver cannot report it; use RETURNING instead
}

// Querier is the set of primitives the rest of the service builds on.
// Statements are written with '?' placeholders and rebound per driver.
type Querier interface {
	Execute(ctx context.Context, query string, args ...any) (Result, error)
	QueryMany(ctx context.Context, dest any, query string, args ...any) error
	QueryOne(ctx context.Context, dest any, query string, args ...any) error
}

// DB wraps a pooled connection to either backend
type DB struct {
	x *sqlx.DB
	runner
}

// Open connects to the database identified by driver ("postgres" or "sqlite3")
func Open(driver, dsn string) (*DB, error) {
	x, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		// One writer at a time; transactions must not wait on a second connection.
		x.SetMaxOpenConns(1)
	}
	return NewDB(x), nil
}

// NewDB wraps an existing sqlx handle
func NewDB(x *sqlx.DB) *DB {
	return &DB{x: x, runner: runner{ext: x}}
}

// DriverName returns the driver the handle was opened with
func (d *DB) DriverName() string {
	return d.x.DriverName()
}

// Ping verifies the connection
func (d *DB) Ping(ctx context.Context) error {
	return d.x.PingContext(ctx)
}

// Close releases the pool
func (d *DB) Close() error {
	return d.x.Close()
}

// WithTx runs fn inside a transaction. Any error or panic rolls it back.
func (d *DB) WithTx(ctx context.Context, fn func(Querier) error) (err error) {
	tx, err := d.x.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(runner{ext: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type runner struct {
	ext sqlx.ExtContext
}

func (r runner) Execute(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := r.ext.ExecContext(ctx, r.ext.Rebind(query), args...)
	if err != nil {
		return Result{}, translate(err)
	}
	var out Result
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.InsertedID = id
	}
	return out, nil
}

func (r runner) QueryMany(ctx context.Context, dest any, query string, args ...any) error {
	if err := sqlx.SelectContext(ctx, r.ext, dest, r.ext.Rebind(query), args...); err != nil {
		return translate(err)
	}
	return nil
}

func (r runner) QueryOne(ctx context.Context, dest any, query string, args ...any) error {
	if err := sqlx.GetContext(ctx, r.ext, dest, r.ext.Rebind(query), args...); err != nil {
		return translate(err)
	}
	return nil
}

func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
