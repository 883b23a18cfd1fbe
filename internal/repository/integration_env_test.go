//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/lensai/lensai/internal/testutil"
)

// newTestEnv connects to DATABASE_URL, serializes access with an advisory
// lock and rebuilds the schema from the embedded migrations.
func newTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, repo
}

// newTestProject inserts a user and a project owned by it.
func newTestProject(t *testing.T, ctx context.Context, repo *Repository) string {
	t.Helper()

	user := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	project := testutil.NewTestProject(t, user.ID)
	if err := repo.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	return project.ID
}
