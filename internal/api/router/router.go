// Package router wires the HTTP surface: session lifecycle, the tool-call
// endpoints the voice layer invokes, and operational endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tsclabs/salon-voice-ai/internal/http/handlers"
	httpmiddleware "github.com/tsclabs/salon-voice-ai/internal/http/middleware"
	"github.com/tsclabs/salon-voice-ai/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Sessions       *handlers.SessionsHandler
	MetricsHandler http.Handler

	// RateLimitPerSecond caps tool-call throughput per client IP.
	// Zero disables rate limiting (tests, local runs).
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public operational endpoints
	r.Group(func(public chi.Router) {
		public.Get("/healthz", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Session + tool-call API
	r.Route("/v1/sessions", func(api chi.Router) {
		if cfg.RateLimitPerSecond > 0 {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
		}
		api.Post("/", cfg.Sessions.CreateSession)
		api.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", cfg.Sessions.GetSession)
			r.Delete("/", cfg.Sessions.DeleteSession)
			r.Get("/idle-prompt", cfg.Sessions.IdlePrompt)
			r.Get("/transcript", cfg.Sessions.GetTranscript)
			r.Post("/tools/{tool}", cfg.Sessions.CallTool)
		})
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
