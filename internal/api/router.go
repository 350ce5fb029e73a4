package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sixwire/sixwire/internal/api/middleware"
	"github.com/sixwire/sixwire/internal/config"
	"github.com/sixwire/sixwire/internal/core"
	"github.com/sixwire/sixwire/internal/handlers"
	"github.com/sixwire/sixwire/internal/store"
)

// NewRouter creates and configures the HTTP router. redisStore may be nil,
// which disables rate limiting.
func NewRouter(logger zerolog.Logger, db store.DataStore, redisStore *store.RedisStore, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Sender fingerprint (after RealIP so the hash sees the forwarded IP)
	r.Use(middleware.Fingerprint)

	// Rate limiting (only when Redis is configured)
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore, logger, middleware.RateLimiterConfig{
			Whitelist: cfg.RateLimitWhitelist,
		})
		r.Use(limiter.Middleware)
	}

	// CORS - allow all origins (anonymous clients call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Core services share the store; it is their only synchronization point.
	allocator := core.NewAllocator(db)
	relay := core.NewRelay(db)
	lifecycle := core.NewLifecycle(db, logger, cfg.InactivityThreshold, cfg.GraceWindow)

	h := handlers.NewHandler(db, redisStore, allocator, relay, lifecycle)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// Identity lifecycle
	r.Post("/identity", h.GenerateIdentity)
	r.Post("/identity/{code}", h.ReserveIdentity)
	r.Get("/identity/{code}", h.IdentityExists)
	r.Get("/identity/{code}/available", h.CheckAvailability)
	r.Post("/identity/{code}/heartbeat", h.Heartbeat)
	r.Delete("/identity/{code}", h.DeleteIdentity)

	// Message relay
	r.Post("/messages", h.SendMessage)
	r.Get("/messages/{code}", h.ReceiveMessages)
	r.Post("/messages/{code}/read", h.MarkMessagesRead)

	return r
}
