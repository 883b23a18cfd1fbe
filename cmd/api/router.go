package main

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"

	"github.com/lensai/lensai/internal/config"
	"github.com/lensai/lensai/internal/handler"
	"github.com/lensai/lensai/internal/middleware"
)

// routerDeps holds the router's collaborators. Nil handlers leave their
// routes unregistered, so the shell still serves / and /health when
// PostgreSQL or Redis is unavailable.
type routerDeps struct {
	cfg            *config.Config
	logger         *slog.Logger
	trustedProxies []netip.Prefix

	root     *handler.Handler
	health   *handler.HealthHandler
	projects *handler.ProjectHandler
	apiKeys  *handler.APIKeyHandler
	events   *handler.EventHandler

	keys      middleware.KeyStore
	authCache middleware.AuthCache
	limiter   middleware.RateLimiter
	metrics   http.Handler
}

// newRouter configures the chi router with all routes and middleware.
func newRouter(d routerDeps) *chi.Mux {
	cfg := d.cfg
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	corsCfg.AllowCredentials = cfg.CORSAllowCredentials

	// Global middleware
	r.Use(middleware.RealIP(d.trustedProxies))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recoverer(d.logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/", d.root.Root)
	r.Get("/health", d.health.Health)
	r.Get("/readyz", d.health.Readyz)
	if d.metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.metrics)
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:     d.logger,
		Limiter:    d.limiter,
		APIEnabled: cfg.RateLimitAPIEnabled,
		APIRPM:     cfg.RateLimitAPIRPM,
		APIBurst:   cfg.RateLimitAPIBurst,
		IPEnabled:  cfg.RateLimitIngestEnabled,
		IPRPS:      cfg.RateLimitIngestRPS,
		IPBurst:    cfg.RateLimitIngestBurst,
	}

	r.Route("/v1", func(r chi.Router) {
		// Signed by the producer, no API key.
		if d.events != nil {
			r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/events", d.events.Ingest)
		}

		if d.projects == nil || d.apiKeys == nil {
			return
		}
		r.Route("/projects/{"+middleware.ProjectIDParam+"}", func(r chi.Router) {
			r.Use(middleware.Auth(middleware.AuthConfig{
				Logger: d.logger,
				Keys:   d.keys,
				Cache:  d.authCache,
			}))
			r.Use(middleware.RateLimitAPI(rateLimitCfg))
			r.Use(middleware.RequireProject)

			r.Get("/", d.projects.Get)
			r.Get("/budgets", d.projects.ListBudgets)

			r.Route("/api-keys", func(r chi.Router) {
				r.Get("/", d.apiKeys.List)
				r.Post("/", d.apiKeys.Create)
				r.Delete("/{key_id}", d.apiKeys.Revoke)
			})
		})
	})

	// 404 and 405 handlers
	r.NotFound(d.root.NotFound)
	r.MethodNotAllowed(d.root.MethodNotAllowed)

	return r
}
