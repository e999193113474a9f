package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cargo-relay/internal/tracking"
)

// Tracker resolves tracking numbers
type Tracker interface {
	Track(ctx context.Context, query string) (*tracking.Result, string, error)
}

// TrackingHandler exposes tracking lookups over HTTP
type TrackingHandler struct {
	tracker Tracker
	logger  *slog.Logger
}

func NewTrackingHandler(tracker Tracker, logger *slog.Logger) *TrackingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackingHandler{tracker: tracker, logger: logger}
}

// TrackResponse carries the structured result and the chat rendering
type TrackResponse struct {
	Result  *tracking.Result `json:"result"`
	Message string           `json:"message"`
}

// Track handles GET /api/track/{number}
func (h *TrackingHandler) Track(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimSpace(chi.URLParam(r, "number"))
	if number == "" {
		writeError(w, http.StatusBadRequest, "Tracking number is required")
		return
	}

	result, message, err := h.tracker.Track(r.Context(), number)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := http.StatusOK
	if result.Kind == tracking.KindTransportError {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, TrackResponse{Result: result, Message: message})
}
