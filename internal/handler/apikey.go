package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lensai/lensai/internal/auth"
	"github.com/lensai/lensai/internal/metrics"
	"github.com/lensai/lensai/internal/model"
	"github.com/lensai/lensai/internal/repository"
)

// APIKeyStore persists API keys.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error)
	ListAPIKeysByProject(ctx context.Context, projectID string) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// KeyInvalidator drops cached auth contexts of a key.
type KeyInvalidator interface {
	InvalidateKey(ctx context.Context, keyID string) error
}

// APIKeyHandler handles API key management endpoints.
type APIKeyHandler struct {
	logger   *slog.Logger
	store    APIKeyStore
	cache    KeyInvalidator
	metrics  metrics.Recorder
	validate *validator.Validate
	keyEnv   string
	now      func() time.Time
}

// NewAPIKeyHandler creates a new APIKeyHandler. Keys are minted for keyEnv (live or test).
func NewAPIKeyHandler(logger *slog.Logger, store APIKeyStore, cache KeyInvalidator, recorder metrics.Recorder, keyEnv string) *APIKeyHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		return name
	})

	return &APIKeyHandler{
		logger:   logger,
		store:    store,
		cache:    cache,
		metrics:  recorder,
		validate: validate,
		keyEnv:   keyEnv,
		now:      time.Now,
	}
}

// Create handles POST /v1/projects/{project_id}/api-keys.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "project_id")

	var req model.APIKeyCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "VALIDATION_ERROR", validationMessage(err))
		return
	}

	generated, err := auth.GenerateAPIKey(h.keyEnv)
	if err != nil {
		h.logger.Error("failed to generate API key", slog.String("error", err.Error()))
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate API key")
		return
	}

	key := &model.APIKey{
		ProjectID: projectID,
		Name:      req.Name,
		Prefix:    generated.Prefix,
		Hash:      generated.Hash,
		CreatedAt: h.now().UTC().Truncate(time.Microsecond),
	}
	if req.ExpiresInDays != nil {
		expires := key.CreatedAt.AddDate(0, 0, *req.ExpiresInDays)
		key.ExpiresAt = &expires
	}

	if err := h.store.CreateAPIKey(ctx, key); err != nil {
		h.logger.Error("failed to create API key", slog.String("error", err.Error()))
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create API key")
		return
	}
	h.metrics.IncAPIKeyCreated()

	h.logger.Info("API key created",
		slog.String("key_id", key.ID),
		slog.String("key_prefix", key.Prefix),
		slog.String("project_id", projectID),
	)

	writeJSON(w, http.StatusCreated, model.APIKeyCreateResponse{
		ID:        key.ID,
		Key:       generated.Plaintext,
		Name:      key.Name,
		Prefix:    key.Prefix,
		CreatedAt: key.CreatedAt,
		ExpiresAt: key.ExpiresAt,
	})
}

// List handles GET /v1/projects/{project_id}/api-keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeysByProject(r.Context(), chi.URLParam(r, "project_id"))
	if err != nil {
		h.logger.Error("failed to list API keys", slog.String("error", err.Error()))
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list API keys")
		return
	}

	responses := make([]model.APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		responses = append(responses, key.ToResponse())
	}

	writeJSON(w, http.StatusOK, map[string]any{"keys": responses})
}

// Revoke handles DELETE /v1/projects/{project_id}/api-keys/{key_id}.
// Unknown, foreign and already revoked keys all answer 404.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "project_id")
	keyID := chi.URLParam(r, "key_id")

	key, err := h.store.GetAPIKeyByID(ctx, keyID)
	if err != nil && !errors.Is(err, repository.ErrAPIKeyNotFound) {
		h.logger.Error("failed to get API key", slog.String("error", err.Error()))
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke API key")
		return
	}
	if key == nil || key.ProjectID != projectID || key.IsRevoked() {
		writeErrorJSON(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found or already revoked")
		return
	}

	if err := h.store.RevokeAPIKey(ctx, keyID); err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			writeErrorJSON(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found or already revoked")
			return
		}
		h.logger.Error("failed to revoke API key", slog.String("error", err.Error()))
		writeErrorJSON(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke API key")
		return
	}
	h.metrics.IncAPIKeyRevoked()

	if h.cache != nil {
		if err := h.cache.InvalidateKey(ctx, keyID); err != nil {
			// Cached contexts still expire with their TTL.
			h.logger.Warn("failed to invalidate cached key", slog.String("key_id", keyID), slog.String("error", err.Error()))
		}
	}

	h.logger.Info("API key revoked",
		slog.String("key_id", keyID),
		slog.String("project_id", projectID),
	)

	w.WriteHeader(http.StatusNoContent)
}

// validationMessage reports the first failing field.
func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "Invalid request"
	}
	fe := ve[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
