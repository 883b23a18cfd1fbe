package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lensai/lensai/internal/model"
)

// Common errors for API key repository operations.
var (
	ErrAPIKeyNotFound = errors.New("API key not found")
)

const apiKeyColumns = `id, project_id, name, prefix, hash, created_at, expires_at, revoked_at, last_used_at`

// CreateAPIKey inserts a new API key into the database.
func (r *Repository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	if key.ID == "" {
		key.ID = newID()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = r.timestamp()
	}

	query := `
		INSERT INTO api_keys (id, project_id, name, prefix, hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		key.ID,
		key.ProjectID,
		key.Name,
		key.Prefix,
		key.Hash,
		key.CreatedAt,
		key.ExpiresAt,
	)
	if err != nil {
		return mapWriteError(err, "create API key")
	}

	return nil
}

// GetAPIKeyByID retrieves an API key by its ID.
func (r *Repository) GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	key, err := scanAPIKey(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	return key, nil
}

// GetActiveAPIKeysByPrefix retrieves unrevoked, unexpired API keys matching a prefix.
// Used during authentication to find candidate keys for verification.
func (r *Repository) GetActiveAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE prefix = $1
		  AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $2)
	`

	return r.queryAPIKeys(ctx, query, prefix, r.timestamp())
}

// ListAPIKeysByProject retrieves all API keys for a project, newest first.
func (r *Repository) ListAPIKeysByProject(ctx context.Context, projectID string) ([]*model.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE project_id = $1
		ORDER BY created_at DESC
	`

	return r.queryAPIKeys(ctx, query, projectID)
}

// RevokeAPIKey revokes an API key by setting revoked_at.
func (r *Repository) RevokeAPIKey(ctx context.Context, id string) error {
	query := `
		UPDATE api_keys
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, id, r.timestamp())
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}

	return nil
}

// UpdateAPIKeyLastUsed updates the last_used_at timestamp.
// Should be called asynchronously after successful authentication.
func (r *Repository) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	query := `
		UPDATE api_keys
		SET last_used_at = $2
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, id, r.timestamp())
	if err != nil {
		return fmt.Errorf("failed to update API key last used: %w", err)
	}

	return nil
}

func (r *Repository) queryAPIKeys(ctx context.Context, query string, args ...any) ([]*model.APIKey, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}
	defer rows.Close()

	keys := make([]*model.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API keys: %w", err)
	}

	return keys, nil
}

// scanAPIKey scans a single row into an APIKey model.
// pgx.Rows satisfies pgx.Row, so this serves both QueryRow and Query.
func scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var key model.APIKey

	err := row.Scan(
		&key.ID,
		&key.ProjectID,
		&key.Name,
		&key.Prefix,
		&key.Hash,
		&key.CreatedAt,
		&key.ExpiresAt,
		&key.RevokedAt,
		&key.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}

	return &key, nil
}
