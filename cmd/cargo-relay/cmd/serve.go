package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"cargo-relay/internal/cache"
	"cargo-relay/internal/config"
	"cargo-relay/internal/database"
	"cargo-relay/internal/metrics"
	"cargo-relay/internal/ratelimit"
	"cargo-relay/internal/relay"
	"cargo-relay/internal/server"
	"cargo-relay/internal/tracking"
	"cargo-relay/internal/whatsapp"
)

const (
	metricsNamespace = "cargo_relay"
	shutdownTimeout  = 30 * time.Second
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and admin API server",
		Long: `Start the HTTP server. It verifies and receives WhatsApp webhooks, answers
TRACK commands and keyword automations, and serves the admin API under /api.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("Starting cargo relay", "version", Version)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	app := newApplication(cfg, db, nil, logger)
	defer app.Close()

	srv := &http.Server{
		Addr:    cfg.Address(),
		Handler: app.Handler(),
		// a provider lookup may take the full tracker timeout
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.TrackerTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("Server listening",
		"address", srv.Addr,
		"whatsapp_configured", cfg.WhatsAppConfigured(),
		"cache_enabled", !cfg.DisableCache,
		"rate_limit_enabled", !cfg.DisableRateLimit,
		"metrics_enabled", cfg.MetricsEnabled)
	if !cfg.WhatsAppConfigured() {
		logger.Warn("WhatsApp credentials are missing; replies will not be delivered")
	}

	if err := server.HandleSignals(ctx, srv, shutdownTimeout, logger); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// application is the wired set of services behind the HTTP server
type application struct {
	config    *config.Config
	db        *database.DB
	cache     *cache.Manager
	metrics   *metrics.Metrics
	tracker   *tracking.Tracker
	processor *relay.Processor
	logger    *slog.Logger
}

// newApplication builds the services. A nil registry registers metrics with
// the default Prometheus registry.
func newApplication(cfg *config.Config, db *database.DB, reg *prometheus.Registry, logger *slog.Logger) *application {
	app := &application{config: cfg, db: db, logger: logger}

	app.cache = cache.NewManager(db.TrackingCache, cfg.DisableCache, cfg.CacheTTL, logger)

	trackerOpts := []tracking.TrackerOption{
		tracking.WithCache(app.cache),
		tracking.WithTrackerLogger(logger),
	}
	recorderOpts := []relay.Option{}
	if cfg.MetricsEnabled {
		app.metrics = metrics.New(metricsNamespace, reg)
		trackerOpts = append(trackerOpts, tracking.WithObserver(app.metrics))
		recorderOpts = append(recorderOpts, relay.WithRecorder(app.metrics))
	}

	app.tracker = tracking.NewTracker(newFetcher(cfg, logger), nil, nil, trackerOpts...)

	sender := whatsapp.NewClient(whatsapp.Config{
		BaseURL:       cfg.WhatsAppBaseURL,
		APIVersion:    cfg.WhatsAppAPIVersion,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		AccessToken:   cfg.WhatsAppAccessToken,
		VerifyToken:   cfg.WhatsAppVerifyToken,
	}, nil, logger)

	processorOpts := append([]relay.Option{
		relay.WithLimiter(ratelimit.New(cfg)),
		relay.WithLogger(logger),
	}, recorderOpts...)
	app.processor = relay.NewProcessor(db, sender, app.tracker, processorOpts...)

	return app
}

// Handler returns the router with all routes mounted
func (a *application) Handler() http.Handler {
	return server.NewRouter(server.Dependencies{
		DB:               a.db,
		Processor:        a.processor,
		Sender:           a.processor,
		Tracker:          a.tracker,
		Metrics:          a.metrics,
		VerifyToken:      a.config.WhatsAppVerifyToken,
		AdminAPIKey:      a.config.AdminAPIKey,
		DisableAdminAuth: a.config.DisableAdminAuth,
		Logger:           a.logger,
	})
}

// Close stops background cache maintenance
func (a *application) Close() {
	a.cache.Close()
}

// newFetcher builds the provider fetcher from the tracker settings
func newFetcher(cfg *config.Config, logger *slog.Logger) *tracking.Fetcher {
	fetcherConfig := tracking.DefaultFetcherConfig()
	fetcherConfig.LandingURL = cfg.TrackerLandingURL
	fetcherConfig.QueryURL = cfg.TrackerQueryURL
	fetcherConfig.FormField = cfg.TrackerFormField
	fetcherConfig.Timeout = cfg.TrackerTimeout
	fetcherConfig.DumpDir = cfg.TrackerDumpDir
	if cfg.TrackerUserAgent != "" {
		fetcherConfig.UserAgent = cfg.TrackerUserAgent
	}
	if origin, err := originOf(cfg.TrackerQueryURL); err == nil {
		fetcherConfig.Origin = origin
	}
	return tracking.NewFetcher(fetcherConfig, tracking.WithFetcherLogger(logger))
}

func originOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + u.Host, nil
}
