package testutil

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/lensai/lensai/internal/model"
	"github.com/lensai/lensai/migrations"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 424242

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema drops every table by applying the down migrations in reverse
// order, clears migration bookkeeping, then applies the up migrations.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	downs, err := migrationFiles("*.down.sql")
	if err != nil {
		return err
	}
	for i := len(downs) - 1; i >= 0; i-- {
		if _, err := pool.Exec(ctx, downs[i].sql); err != nil {
			return fmt.Errorf("apply down migration %s: %w", downs[i].name, err)
		}
	}

	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+pq.QuoteIdentifier("schema_migrations")); err != nil {
		return fmt.Errorf("drop migrations table: %w", err)
	}

	ups, err := migrationFiles("*.up.sql")
	if err != nil {
		return err
	}
	for _, up := range ups {
		if _, err := pool.Exec(ctx, up.sql); err != nil {
			return fmt.Errorf("apply up migration %s: %w", up.name, err)
		}
	}

	return nil
}

// TruncateTables empties the given tables, cascading to dependents.
func TruncateTables(ctx context.Context, pool *pgxpool.Pool, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(tables))
	for _, table := range tables {
		quoted = append(quoted, pq.QuoteIdentifier(table))
	}
	_, err := pool.Exec(ctx, "TRUNCATE "+strings.Join(quoted, ", ")+" CASCADE")
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

type migrationFile struct {
	name string
	sql  string
}

func migrationFiles(pattern string) ([]migrationFile, error) {
	names, err := fs.Glob(migrations.FS, pattern)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	files := make([]migrationFile, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		files = append(files, migrationFile{name: name, sql: string(data)})
	}
	return files, nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestUser creates a test user with a unique email.
func NewTestUser(t testing.TB) *model.User {
	t.Helper()
	return &model.User{
		Email: UniqueID("user") + "@lensai.test",
	}
}

// NewTestProject creates a test project owned by ownerID.
func NewTestProject(t testing.TB, ownerID string) *model.Project {
	t.Helper()
	return &model.Project{
		OwnerID: ownerID,
		Name:    UniqueID("project"),
	}
}

// NewTestAPIKey creates a test API key with sensible defaults.
func NewTestAPIKey(t testing.TB, projectID string) *model.APIKey {
	t.Helper()
	now := time.Now().UTC()
	expires := now.Add(24 * time.Hour)
	return &model.APIKey{
		ProjectID: projectID,
		Name:      "Test Key",
		Prefix:    "a1b2c3",
		Hash:      fmt.Sprintf("hash-%d", now.UnixNano()),
		ExpiresAt: &expires,
	}
}

// NewTestBudget creates a monthly hard-stop budget for projectID.
func NewTestBudget(t testing.TB, projectID string, limit float64) *model.Budget {
	t.Helper()
	return &model.Budget{
		ProjectID: projectID,
		LimitUSD:  limit,
		Period:    model.PeriodMonthly,
		HardStop:  true,
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
