// Package middleware provides HTTP middleware for the LensAI API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// Wildcard in AllowedMethods or AllowedHeaders allows anything the browser asks for.
const Wildcard = "*"

// CORSConfig holds CORS configuration options.
type CORSConfig struct {
	// AllowedOrigins lists exact origins, or "*.example.com" subdomain patterns.
	// Never "*" when credentials are allowed.
	AllowedOrigins []string

	// AllowedMethods is the preflight method list. Wildcard echoes
	// Access-Control-Request-Method.
	AllowedMethods []string

	// AllowedHeaders is the preflight header list. Wildcard echoes
	// Access-Control-Request-Headers.
	AllowedHeaders []string

	// ExposedHeaders lists response headers readable by the browser.
	ExposedHeaders []string

	AllowCredentials bool

	// MaxAge is the Access-Control-Max-Age value in seconds.
	MaxAge int
}

// DefaultCORSConfig allows the dashboard origin with any method and header, with credentials.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{Wildcard},
		AllowedHeaders: []string{Wildcard},
		ExposedHeaders: []string{
			"X-Request-ID",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		AllowCredentials: true,
		MaxAge:           600,
	}
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing,
// including preflight OPTIONS requests.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	anyMethod := containsWildcard(cfg.AllowedMethods)
	anyHeader := containsWildcard(cfg.AllowedHeaders)
	methodsStr := strings.Join(cfg.AllowedMethods, ", ")
	headersStr := strings.Join(cfg.AllowedHeaders, ", ")
	exposedStr := strings.Join(cfg.ExposedHeaders, ", ")
	maxAgeStr := ""
	if cfg.MaxAge > 0 {
		maxAgeStr = strconv.Itoa(cfg.MaxAge)
	}

	originMap := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		originMap[strings.ToLower(origin)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if !isOriginAllowed(origin, originMap, cfg.AllowedOrigins) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				// Browser blocks the response without CORS headers.
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if !preflight {
				if exposedStr != "" {
					w.Header().Set("Access-Control-Expose-Headers", exposedStr)
				}
				next.ServeHTTP(w, r)
				return
			}

			if anyMethod {
				w.Header().Set("Access-Control-Allow-Methods", r.Header.Get("Access-Control-Request-Method"))
			} else {
				w.Header().Set("Access-Control-Allow-Methods", methodsStr)
			}

			if anyHeader {
				if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
					w.Header().Set("Access-Control-Allow-Headers", requested)
				}
			} else if headersStr != "" {
				w.Header().Set("Access-Control-Allow-Headers", headersStr)
			}

			if maxAgeStr != "" {
				w.Header().Set("Access-Control-Max-Age", maxAgeStr)
			}

			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func containsWildcard(values []string) bool {
	for _, v := range values {
		if v == Wildcard {
			return true
		}
	}
	return false
}

// isOriginAllowed checks origin against exact entries and "*.domain" patterns.
func isOriginAllowed(origin string, originMap map[string]bool, allowedOrigins []string) bool {
	if len(allowedOrigins) == 0 {
		return false
	}

	normalized := strings.ToLower(origin)
	if originMap[normalized] {
		return true
	}

	for _, allowed := range allowedOrigins {
		if !strings.HasPrefix(allowed, "*.") {
			continue
		}
		suffix := strings.ToLower(strings.TrimPrefix(allowed, "*"))
		if !strings.HasSuffix(normalized, suffix) {
			continue
		}
		// "*.example.com" matches "https://a.example.com", not "https://notexample.com".
		prefix := strings.TrimSuffix(normalized, suffix)
		if prefix != "" && !strings.HasSuffix(prefix, "://") {
			return true
		}
	}

	return false
}
