//go:build integration

package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/lensai/lensai/internal/testutil"
)

// ============================================================================
// API Key Repository Integration Tests
// ============================================================================

func TestIntegrationAPIKeyRepository_CreateAPIKey(t *testing.T) {
	ctx, repo := newTestEnv(t)
	projectID := newTestProject(t, ctx, repo)

	key := testutil.NewTestAPIKey(t, projectID)
	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	if key.ID == "" {
		t.Fatal("expected storage layer to assign an ID")
	}

	retrieved, err := repo.GetAPIKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKeyByID failed: %v", err)
	}

	if retrieved.ProjectID != projectID {
		t.Errorf("ProjectID mismatch: got %q, want %q", retrieved.ProjectID, projectID)
	}
	if retrieved.Hash != key.Hash {
		t.Errorf("Hash mismatch: got %q, want %q", retrieved.Hash, key.Hash)
	}
	if retrieved.Prefix != key.Prefix {
		t.Errorf("Prefix mismatch: got %q, want %q", retrieved.Prefix, key.Prefix)
	}
	if retrieved.ExpiresAt == nil {
		t.Error("expected expires_at to round-trip")
	}
}

func TestIntegrationAPIKeyRepository_CreateAPIKey_UnknownProject(t *testing.T) {
	ctx, repo := newTestEnv(t)

	key := testutil.NewTestAPIKey(t, "missing-project")
	err := repo.CreateAPIKey(ctx, key)
	if !errors.Is(err, ErrReferenceNotFound) {
		t.Errorf("Expected ErrReferenceNotFound, got: %v", err)
	}
}

func TestIntegrationAPIKeyRepository_GetByID_NotFound(t *testing.T) {
	ctx, repo := newTestEnv(t)

	_, err := repo.GetAPIKeyByID(ctx, "nonexistent-key-id")
	if !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("Expected ErrAPIKeyNotFound, got: %v", err)
	}
}

func TestIntegrationAPIKeyRepository_GetActiveByPrefix(t *testing.T) {
	ctx, repo := newTestEnv(t)
	projectID := newTestProject(t, ctx, repo)

	active := testutil.NewTestAPIKey(t, projectID)
	active.Prefix = "abc123"

	past := time.Now().Add(-time.Hour)
	expired := testutil.NewTestAPIKey(t, projectID)
	expired.Prefix = "abc123"
	expired.ExpiresAt = &past

	revoked := testutil.NewTestAPIKey(t, projectID)
	revoked.Prefix = "abc123"

	other := testutil.NewTestAPIKey(t, projectID)
	other.Prefix = "ffffff"

	if err := repo.CreateAPIKey(ctx, active); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}
	if err := repo.CreateAPIKey(ctx, expired); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}
	if err := repo.CreateAPIKey(ctx, revoked); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}
	if err := repo.CreateAPIKey(ctx, other); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}
	if err := repo.RevokeAPIKey(ctx, revoked.ID); err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}

	keys, err := repo.GetActiveAPIKeysByPrefix(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetActiveAPIKeysByPrefix failed: %v", err)
	}

	if len(keys) != 1 {
		t.Fatalf("expected 1 active key, got %d", len(keys))
	}
	if keys[0].ID != active.ID {
		t.Errorf("expected active key %q, got %q", active.ID, keys[0].ID)
	}
}

func TestIntegrationAPIKeyRepository_ListByProject(t *testing.T) {
	ctx, repo := newTestEnv(t)
	projectID := newTestProject(t, ctx, repo)
	otherProjectID := newTestProject(t, ctx, repo)

	for i := 0; i < 3; i++ {
		if err := repo.CreateAPIKey(ctx, testutil.NewTestAPIKey(t, projectID)); err != nil {
			t.Fatalf("CreateAPIKey failed: %v", err)
		}
	}
	if err := repo.CreateAPIKey(ctx, testutil.NewTestAPIKey(t, otherProjectID)); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	keys, err := repo.ListAPIKeysByProject(ctx, projectID)
	if err != nil {
		t.Fatalf("ListAPIKeysByProject failed: %v", err)
	}
	if len(keys) != 3 {
		t.Errorf("expected 3 keys, got %d", len(keys))
	}
}

func TestIntegrationAPIKeyRepository_Revoke(t *testing.T) {
	ctx, repo := newTestEnv(t)
	projectID := newTestProject(t, ctx, repo)

	key := testutil.NewTestAPIKey(t, projectID)
	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	if err := repo.RevokeAPIKey(ctx, key.ID); err != nil {
		t.Fatalf("RevokeAPIKey failed: %v", err)
	}

	retrieved, err := repo.GetAPIKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKeyByID failed: %v", err)
	}
	if !retrieved.IsRevoked() {
		t.Error("key should be revoked")
	}

	// Revoking twice reports not found
	if err := repo.RevokeAPIKey(ctx, key.ID); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Errorf("Expected ErrAPIKeyNotFound on second revoke, got: %v", err)
	}
}

func TestIntegrationAPIKeyRepository_UpdateLastUsed(t *testing.T) {
	ctx, repo := newTestEnv(t)
	projectID := newTestProject(t, ctx, repo)

	key := testutil.NewTestAPIKey(t, projectID)
	if err := repo.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey failed: %v", err)
	}

	if err := repo.UpdateAPIKeyLastUsed(ctx, key.ID); err != nil {
		t.Fatalf("UpdateAPIKeyLastUsed failed: %v", err)
	}

	retrieved, err := repo.GetAPIKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKeyByID failed: %v", err)
	}
	if retrieved.LastUsedAt == nil {
		t.Error("last_used_at should be set")
	}
}
