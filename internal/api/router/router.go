package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/wa-retell-relay/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/wa-retell-relay/internal/http/middleware"
	"github.com/wolfman30/wa-retell-relay/pkg/logging"
)

const defaultWebhookPath = "/webhook"

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	WebhookPath    string
	Webhook        *handlers.EvolutionWebhookHandler
	AdminSessions  *handlers.AdminSessionsHandler
	AdminJWTSecret string
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Webhook == nil {
		panic("router: webhook handler cannot be nil")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	webhookPath := cfg.WebhookPath
	if webhookPath == "" {
		webhookPath = defaultWebhookPath
	}

	r.Get("/", handlers.Root)
	r.Get("/health", handlers.HealthCheck)
	r.Post(webhookPath, cfg.Webhook.Handle)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.AdminSessions != nil {
		r.Group(func(admin chi.Router) {
			// Open when no secret is configured.
			if cfg.AdminJWTSecret != "" {
				admin.Use(httpmiddleware.AdminJWT(cfg.AdminJWTSecret))
			}
			admin.Post("/clear-sessions", cfg.AdminSessions.ClearSessions)
		})
	}

	return r
}
