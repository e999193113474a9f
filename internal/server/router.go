package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cargo-relay/internal/database"
	"cargo-relay/internal/handlers"
	"cargo-relay/internal/metrics"
)

// Dependencies are the services the HTTP surface is built on
type Dependencies struct {
	DB          *database.DB
	Processor   handlers.WebhookProcessor
	Sender      handlers.MessageSender
	Tracker     handlers.Tracker
	Metrics     *metrics.Metrics
	VerifyToken string
	AdminAPIKey string
	// DisableAdminAuth leaves the admin routes open, for local development
	DisableAdminAuth bool
	Logger           *slog.Logger
}

// NewRouter builds the chi router with middleware and all routes
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var observer HTTPObserver
	if deps.Metrics != nil {
		observer = deps.Metrics
	}

	health := handlers.NewHealthHandler(deps.DB)
	messages := handlers.NewMessageHandler(deps.DB, deps.Sender, logger)
	automations := handlers.NewAutomationHandler(deps.DB, logger)
	track := handlers.NewTrackingHandler(deps.Tracker, logger)
	webhook := handlers.NewWebhookHandler(deps.VerifyToken, deps.Processor, logger)

	r := chi.NewRouter()
	r.Use(
		LoggingMiddleware(logger, observer),
		RecoveryMiddleware(logger),
		CORSMiddleware,
		SecurityMiddleware,
	)

	r.Get("/webhook", webhook.Verify)
	r.Post("/webhook", webhook.Receive)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", health.HealthCheck)
		r.Get("/messages", messages.GetMessages)
		r.Get("/track/{number}", track.Track)

		r.Group(func(r chi.Router) {
			if !deps.DisableAdminAuth {
				r.Use(AuthMiddleware(deps.AdminAPIKey, logger))
			} else {
				logger.Warn("Admin authentication is disabled")
			}

			r.Post("/send_message", messages.SendMessage)

			r.Get("/automations", automations.GetAutomations)
			r.Post("/automations", automations.CreateAutomation)
			r.Get("/automations/{id}", automations.GetAutomation)
			r.Put("/automations/{id}", automations.UpdateAutomation)
			r.Delete("/automations/{id}", automations.DeleteAutomation)
		})
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	return r
}
