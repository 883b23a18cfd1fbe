package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/lensai/lensai/internal/model"
)

// ErrInvalidBudget is returned for budgets that fail basic checks before hitting the database.
var ErrInvalidBudget = errors.New("invalid budget")

// CreateBudget inserts a new budget for a project.
func (r *Repository) CreateBudget(ctx context.Context, budget *model.Budget) error {
	if !budget.Period.IsValid() {
		return fmt.Errorf("%w: unknown period %q", ErrInvalidBudget, budget.Period)
	}
	if budget.LimitUSD < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidBudget)
	}

	if budget.ID == "" {
		budget.ID = newID()
	}
	now := r.timestamp()
	if budget.CreatedAt.IsZero() {
		budget.CreatedAt = now
	}
	if budget.UpdatedAt.IsZero() {
		budget.UpdatedAt = now
	}

	query := `
		INSERT INTO budgets (id, project_id, limit_usd, period, hard_stop, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		budget.ID,
		budget.ProjectID,
		budget.LimitUSD,
		string(budget.Period),
		budget.HardStop,
		budget.CreatedAt,
		budget.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, "create budget")
	}

	return nil
}

// ListBudgetsByProject retrieves all budgets for a project, oldest first.
func (r *Repository) ListBudgetsByProject(ctx context.Context, projectID string) ([]*model.Budget, error) {
	query := `
		SELECT id, project_id, limit_usd::float8, period, hard_stop, created_at, updated_at
		FROM budgets
		WHERE project_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	budgets := make([]*model.Budget, 0)
	for rows.Next() {
		var b model.Budget
		var period string
		if err := rows.Scan(
			&b.ID,
			&b.ProjectID,
			&b.LimitUSD,
			&period,
			&b.HardStop,
			&b.CreatedAt,
			&b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		b.Period = model.BudgetPeriod(period)
		budgets = append(budgets, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating budgets: %w", err)
	}

	return budgets, nil
}
