package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/wolfman30/medspa-booking/internal/http/middleware"
	"github.com/wolfman30/medspa-booking/internal/sessions"
	"github.com/wolfman30/medspa-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Sessions           *sessions.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// ActorSecret verifies optional bearer tokens; empty means anonymous only.
	ActorSecret string
	RateLimiter *httpmiddleware.RateLimiter

	// Ready reports dependency health for /health; nil means always healthy.
	Ready func() error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.Ready))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	if cfg.Sessions != nil {
		r.Route("/v1", func(api chi.Router) {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			api.Use(httpmiddleware.Actor(cfg.ActorSecret))
			api.Mount("/sessions", cfg.Sessions.Routes())
		})
	}

	return r
}

func healthHandler(ready func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, body := http.StatusOK, map[string]string{"status": "ok"}
		if ready != nil {
			if err := ready(); err != nil {
				status, body = http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
