package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lensai/lensai/internal/auth"
	"github.com/lensai/lensai/internal/cache"
)

// RateLimiter is implemented by *cache.Cache.
type RateLimiter interface {
	CheckAPIRateLimit(ctx context.Context, keyID string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter RateLimiter

	// Per API key
	APIEnabled bool
	APIRPM     int
	APIBurst   int

	// Per client IP, for unauthenticated ingest
	IPEnabled bool
	IPRPS     int
	IPBurst   int
}

// RateLimitAPI limits requests per API key. Must be applied after Auth.
func RateLimitAPI(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.AuthFromContext(r.Context())
			if !cfg.APIEnabled || cfg.APIRPM <= 0 || authCtx == nil {
				next.ServeHTTP(w, r)
				return
			}

			result, err := cfg.Limiter.CheckAPIRateLimit(r.Context(), authCtx.KeyID, cfg.APIRPM, cfg.APIBurst)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("key_id", authCtx.KeyID),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, cfg.APIRPM, result.Remaining, result.ResetAt)

			if !result.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("key_id", authCtx.KeyID),
					slog.String("type", "api"),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int64("retry_after_seconds", int64(result.RetryAfter.Seconds())),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeRateLimitError(w, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitIP limits requests per client IP.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.IPEnabled || cfg.IPRPS <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ip := getClientIP(r)

			result, err := cfg.Limiter.CheckIPRateLimit(r.Context(), ip, cfg.IPRPS, cfg.IPBurst)
			if err != nil {
				cfg.Logger.Error("IP rate limit check failed", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("type", "ip"),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int64("retry_after_seconds", int64(result.RetryAfter.Seconds())),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeRateLimitError(w, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, remaining int64, resetAt time.Time) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

// writeRateLimitError writes a 429 with Retry-After.
func writeRateLimitError(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeErrorEnvelope(w, http.StatusTooManyRequests, "RATE_LIMITED",
		fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", seconds))
}

// getClientIP returns the peer address without port. Forwarding headers are
// applied earlier by RealIP, and only for trusted proxies.
func getClientIP(r *http.Request) string {
	return remoteHost(r.RemoteAddr)
}
