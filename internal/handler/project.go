package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lensai/lensai/internal/model"
	"github.com/lensai/lensai/internal/repository"
)

// ProjectStore reads projects and their budgets.
type ProjectStore interface {
	GetProjectByID(ctx context.Context, id string) (*model.Project, error)
	ListBudgetsByProject(ctx context.Context, projectID string) ([]*model.Budget, error)
}

// ProjectHandler serves read-only project endpoints.
type ProjectHandler struct {
	store  ProjectStore
	logger *slog.Logger
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(store ProjectStore, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{
		store:  store,
		logger: logger,
	}
}

// Get handles GET /v1/projects/{project_id}.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	project, err := h.store.GetProjectByID(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			writeErrorJSON(w, http.StatusNotFound, "NOT_FOUND", "Project not found")
			return
		}
		h.logger.Error("failed to get project", slog.String("error", err.Error()))
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get project")
		return
	}

	writeJSON(w, http.StatusOK, project)
}

// ListBudgets handles GET /v1/projects/{project_id}/budgets.
func (h *ProjectHandler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := h.store.ListBudgetsByProject(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		h.logger.Error("failed to list budgets", slog.String("error", err.Error()))
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list budgets")
		return
	}
	if budgets == nil {
		budgets = []*model.Budget{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"budgets": budgets})
}
