package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lensai/lensai/internal/model"
)

// Common errors for project repository operations.
var (
	ErrProjectNotFound = errors.New("project not found")
)

// CreateProject inserts a new project. The owner must exist.
func (r *Repository) CreateProject(ctx context.Context, project *model.Project) error {
	if project.ID == "" {
		project.ID = newID()
	}
	now := r.timestamp()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	if project.UpdatedAt.IsZero() {
		project.UpdatedAt = now
	}

	query := `
		INSERT INTO projects (id, owner_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		project.ID,
		project.OwnerID,
		project.Name,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "create project")
	}

	return nil
}

// GetProjectByID retrieves a project by its ID.
func (r *Repository) GetProjectByID(ctx context.Context, id string) (*model.Project, error) {
	query := `
		SELECT id, owner_id, name, created_at, updated_at
		FROM projects
		WHERE id = $1
	`

	var project model.Project
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&project.ID,
		&project.OwnerID,
		&project.Name,
		&project.CreatedAt,
		&project.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project by ID: %w", err)
	}

	return &project, nil
}
