package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"cargo-relay/internal/relay"
	"cargo-relay/internal/whatsapp"
)

const maxWebhookBody = 1 << 20

// WebhookProcessor handles decoded webhook deliveries
type WebhookProcessor interface {
	Process(ctx context.Context, payload *relay.Payload) (relay.Summary, error)
}

// WebhookHandler receives WhatsApp Cloud API callbacks
type WebhookHandler struct {
	verifyToken string
	processor   WebhookProcessor
	logger      *slog.Logger
}

func NewWebhookHandler(verifyToken string, processor WebhookProcessor, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{verifyToken: verifyToken, processor: processor, logger: logger}
}

// Verify handles GET /webhook subscription handshakes
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := whatsapp.VerifyWebhook(h.verifyToken, q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if !ok {
		h.logger.Warn("Webhook verification failed", "mode", q.Get("hub.mode"))
		http.Error(w, "Verification failed", http.StatusForbidden)
		return
	}

	h.logger.Info("Webhook verified")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, challenge)
}

type webhookResponse struct {
	Success bool `json:"success"`
	relay.Summary
}

// Receive handles POST /webhook deliveries
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload relay.Payload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&payload); err != nil {
		h.logger.Warn("Invalid webhook payload", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	summary, err := h.processor.Process(r.Context(), &payload)
	if err != nil {
		h.logger.Error("Error processing webhook", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Success: true, Summary: summary})
}
