package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// SignalHandler manages graceful shutdown of the HTTP server
type SignalHandler struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler(server *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) *SignalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalHandler{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// Shutdown drains in-flight requests, giving up after the shutdown timeout
func (sh *SignalHandler) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), sh.shutdownTimeout)
	defer cancel()

	if err := sh.server.Shutdown(ctx); err != nil {
		sh.logger.Error("Server forced to shutdown due to timeout", "error", err)
		return err
	}
	sh.logger.Info("Server gracefully shut down")
	return nil
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully. A listener failure is returned immediately.
func (sh *SignalHandler) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		sh.logger.Info("Starting server", "addr", sh.server.Addr)
		if err := sh.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		sh.logger.Info("Initiating graceful shutdown", "cause", context.Cause(ctx))
	}

	return sh.Shutdown()
}

// HandleSignals starts server and blocks until it has shut down
func HandleSignals(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger *slog.Logger) error {
	return NewSignalHandler(server, shutdownTimeout, logger).Run(ctx)
}
