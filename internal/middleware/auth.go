package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lensai/lensai/internal/auth"
	"github.com/lensai/lensai/internal/model"
)

const (
	// minAuthDuration pads every auth attempt to hide lookup timing.
	minAuthDuration = 200 * time.Millisecond
	lastUsedTimeout = 5 * time.Second
)

// KeyStore is the subset of the repository the auth middleware needs.
type KeyStore interface {
	GetActiveAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
}

// AuthCache caches resolved auth contexts by a hash of the presented key.
type AuthCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger *slog.Logger
	Keys   KeyStore
	Cache  AuthCache
	// MinDuration overrides minAuthDuration when positive.
	MinDuration time.Duration
}

// Auth authenticates requests by API key and injects the key's AuthContext.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	minDuration := cfg.MinDuration
	if minDuration <= 0 {
		minDuration = minAuthDuration
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			logger := cfg.Logger.With(
				slog.String("ip", r.RemoteAddr),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			authCtx, cacheHit, reason := authenticate(r, cfg)

			if elapsed := time.Since(startTime); elapsed < minDuration {
				time.Sleep(minDuration - elapsed)
			}

			if authCtx == nil {
				logger.Warn("authentication failed", slog.String("reason", reason))
				writeAuthError(w)
				return
			}

			logger.Info("authentication successful",
				slog.String("key_id", authCtx.KeyID),
				slog.String("key_prefix", authCtx.KeyPrefix),
				slog.String("project_id", authCtx.ProjectID),
				slog.Bool("cache_hit", cacheHit),
			)

			next.ServeHTTP(w, r.WithContext(auth.ContextWithAuth(r.Context(), authCtx)))
		})
	}
}

// authenticate resolves the request's key. On failure it returns a reason for the log.
func authenticate(r *http.Request, cfg AuthConfig) (*model.AuthContext, bool, string) {
	ctx := r.Context()

	key := extractAPIKey(r)
	if key == "" {
		return nil, false, "missing_key"
	}

	parsed, err := auth.ParseAPIKey(key)
	if err != nil {
		return nil, false, "invalid_format"
	}

	cacheKey := auth.CacheKey(key)
	if cfg.Cache != nil {
		if cached, _ := cfg.Cache.GetAuthContext(ctx, cacheKey); cached != nil {
			if cached.IsExpired(time.Now()) {
				return nil, true, "expired_key"
			}
			return cached, true, ""
		}
	}

	keys, err := cfg.Keys.GetActiveAPIKeysByPrefix(ctx, parsed.Prefix)
	if err != nil {
		cfg.Logger.Error("database error during auth",
			slog.String("error", err.Error()),
			slog.String("request_id", GetRequestID(ctx)),
		)
		return nil, false, "lookup_failed"
	}

	// Several keys may share a prefix.
	var matched *model.APIKey
	for _, k := range keys {
		if ok, err := auth.VerifyKey(key, k.Hash); err == nil && ok {
			matched = k
			break
		}
	}
	if matched == nil {
		return nil, false, "invalid_key"
	}

	authCtx := &model.AuthContext{
		KeyID:     matched.ID,
		KeyPrefix: matched.Prefix,
		ProjectID: matched.ProjectID,
		ExpiresAt: matched.ExpiresAt,
	}

	if cfg.Cache != nil {
		_ = cfg.Cache.SetAuthContext(ctx, cacheKey, authCtx)
	}

	go func(id string) {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), lastUsedTimeout)
		defer cancel()
		if err := cfg.Keys.UpdateAPIKeyLastUsed(bg, id); err != nil {
			cfg.Logger.Warn("failed to update key last_used_at",
				slog.String("key_id", id),
				slog.String("error", err.Error()),
			)
		}
	}(matched.ID)

	return authCtx, false, ""
}

// extractAPIKey reads "Authorization: Bearer <key>", falling back to X-API-Key.
func extractAPIKey(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// writeAuthError writes the same 401 body for every failure to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	writeErrorEnvelope(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing API key")
}

// writeErrorEnvelope writes {"error":{"code","message"}}.
func writeErrorEnvelope(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"code":"` + code + `","message":"` + message + `"}}`))
}
