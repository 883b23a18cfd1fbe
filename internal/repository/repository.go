// Package repository provides database access layer.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"
)

// PostgreSQL error codes checked by the repository.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// ErrReferenceNotFound is returned when an insert points at a missing parent row.
var ErrReferenceNotFound = errors.New("referenced record not found")

// ErrDuplicate is returned when an insert collides with an existing primary key.
var ErrDuplicate = errors.New("duplicate record")

// ErrConstraintViolation is returned when a row fails a CHECK constraint.
var ErrConstraintViolation = errors.New("constraint violation")

// ErrUnknownTable is returned by CountRows for tables outside the schema.
var ErrUnknownTable = errors.New("unknown table")

// Tables managed by this repository.
const (
	TableUsers    = "users"
	TableProjects = "projects"
	TableAPIKeys  = "api_keys"
	TableBudgets  = "budgets"
)

var knownTables = map[string]bool{
	TableUsers:    true,
	TableProjects: true,
	TableAPIKeys:  true,
	TableBudgets:  true,
}

// Repository provides database access methods.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New creates a new Repository with a connection pool.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{pool: pool, now: time.Now}, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// CheckConnection runs a trivial query to prove the database answers queries,
// not only that a connection can be opened.
func (r *Repository) CheckConnection(ctx context.Context) error {
	var one int
	if err := r.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("failed to query database: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool.
// Use sparingly - prefer adding methods to Repository.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// CountRows returns the number of rows in one of the managed tables.
func (r *Repository) CountRows(ctx context.Context, table string) (int64, error) {
	if !knownTables[table] {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	var count int64
	query := "SELECT count(*) FROM " + pq.QuoteIdentifier(table)
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

// newID returns a new sortable identifier for an inserted row.
func newID() string {
	return ulid.Make().String()
}

// timestamp returns the current time truncated to the precision PostgreSQL stores.
func (r *Repository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// pgErrorCode extracts the SQLSTATE code from a PostgreSQL error.
func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// mapWriteError converts constraint errors into repository sentinels.
func mapWriteError(err error, op string) error {
	switch pgErrorCode(err) {
	case pgUniqueViolation:
		return fmt.Errorf("%s: %w", op, ErrDuplicate)
	case pgForeignKeyViolation:
		return fmt.Errorf("%s: %w", op, ErrReferenceNotFound)
	case pgCheckViolation:
		return fmt.Errorf("%s: %w", op, ErrConstraintViolation)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}
