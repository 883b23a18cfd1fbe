//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lensai/lensai/migrations"
)

// ============================================================================
// Migration Integration Tests
// ============================================================================

func TestIntegrationMigration_ApplyAllTables(t *testing.T) {
	ctx, repo := newTestEnv(t)

	for _, table := range []string{TableUsers, TableProjects, TableAPIKeys, TableBudgets} {
		t.Run(table, func(t *testing.T) {
			exists, err := tableExists(ctx, repo.Pool(), table)
			if err != nil {
				t.Fatalf("tableExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Table %q should exist after migrations", table)
			}
		})
	}
}

func TestIntegrationMigration_MigrateIsIdempotent(t *testing.T) {
	ctx, repo := newTestEnv(t)

	// ResetSchema applied the SQL directly; the runner records every version once.
	first, err := repo.Migrate(ctx, migrations.FS)
	if err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}
	if len(first) != 4 {
		t.Errorf("expected 4 versions recorded on first run, got %v", first)
	}

	second, err := repo.Migrate(ctx, migrations.FS)
	if err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("expected no migrations on second run, got %v", second)
	}
}

func TestIntegrationMigration_BudgetsSchema(t *testing.T) {
	ctx, repo := newTestEnv(t)

	for _, col := range []string{"id", "project_id", "limit_usd", "period", "hard_stop", "created_at", "updated_at"} {
		t.Run(col, func(t *testing.T) {
			exists, err := columnExists(ctx, repo.Pool(), TableBudgets, col)
			if err != nil {
				t.Fatalf("columnExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Column %q should exist in budgets table", col)
			}
		})
	}
}

func TestIntegrationMigration_BudgetConstraints(t *testing.T) {
	ctx, repo := newTestEnv(t)
	projectID := newTestProject(t, ctx, repo)

	_, err := repo.Pool().Exec(ctx, `
		INSERT INTO budgets (id, project_id, limit_usd, period, hard_stop)
		VALUES ('b1', $1, 10, 'yearly', false)
	`, projectID)
	if err == nil {
		t.Error("Expected check constraint violation for unknown period")
	}

	_, err = repo.Pool().Exec(ctx, `
		INSERT INTO budgets (id, project_id, limit_usd, period, hard_stop)
		VALUES ('b2', $1, -1, 'monthly', false)
	`, projectID)
	if err == nil {
		t.Error("Expected check constraint violation for negative limit")
	}
}

func TestIntegrationMigration_EmailNotUnique(t *testing.T) {
	ctx, repo := newTestEnv(t)

	for _, id := range []string{"u1", "u2"} {
		_, err := repo.Pool().Exec(ctx, `INSERT INTO users (id, email) VALUES ($1, 'dup@lensai.dev')`, id)
		if err != nil {
			t.Fatalf("insert %s failed: %v", id, err)
		}
	}
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, tableName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`, tableName).Scan(&exists)
	return exists, err
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		)
	`, tableName, columnName).Scan(&exists)
	return exists, err
}

