package repository

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

const migrationsTable = "schema_migrations"

// Migration is a single numbered schema change.
type Migration struct {
	Version string
	UpSQL   string
}

// LoadMigrations reads every *.up.sql file from fsys, ordered by file name.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, Migration{
			Version: strings.TrimSuffix(name, ".up.sql"),
			UpSQL:   string(data),
		})
	}

	return migrations, nil
}

// Migrate applies pending up migrations from fsys in order.
// Each migration runs in its own transaction together with its bookkeeping row,
// so a failed migration leaves no partial record.
func (r *Repository) Migrate(ctx context.Context, fsys fs.FS) ([]string, error) {
	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return nil, err
	}

	table := pq.QuoteIdentifier(migrationsTable)
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version     TEXT PRIMARY KEY,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, table)
	if _, err := r.pool.Exec(ctx, createTable); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := r.appliedVersions(ctx, table)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO "+table+" (version) VALUES ($1)", m.Version)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
		ran = append(ran, m.Version)
	}

	return ran, nil
}

func (r *Repository) appliedVersions(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, "SELECT version FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}

	return applied, nil
}
