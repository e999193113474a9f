package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"cargo-relay/internal/database"
	"cargo-relay/internal/whatsapp"
)

const (
	defaultMessageLimit = 5
	maxMessageLimit     = 200
)

// MessageSender delivers a manual message and records it
type MessageSender interface {
	SendTo(ctx context.Context, phone, text string) (*database.Message, error)
}

// MessageHandler serves the message log and manual sends
type MessageHandler struct {
	db     *database.DB
	sender MessageSender
	logger *slog.Logger
}

func NewMessageHandler(db *database.DB, sender MessageSender, logger *slog.Logger) *MessageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHandler{db: db, sender: sender, logger: logger}
}

// GetMessages handles GET /api/messages?limit=N
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxMessageLimit)
	}

	messages, err := h.db.Messages.Recent(limit)
	if err != nil {
		h.logger.Error("Failed to get messages", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get messages")
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// SendMessageRequest is the body of POST /api/send_message
type SendMessageRequest struct {
	Phone   string `json:"phone" validate:"required,max=20"`
	Message string `json:"message" validate:"required,max=4096"`
}

type sendMessageResponse struct {
	Success bool              `json:"success"`
	Message *database.Message `json:"message"`
}

// SendMessage handles POST /api/send_message
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	req.Phone = strings.TrimSpace(req.Phone)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing phone or message parameter")
		return
	}

	msg, err := h.sender.SendTo(r.Context(), req.Phone, req.Message)
	if err != nil {
		h.logger.Error("Error sending message", "phone", req.Phone, "error", err)
		status := http.StatusInternalServerError
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) || errors.Is(err, whatsapp.ErrNotConfigured) {
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sendMessageResponse{Success: true, Message: msg})
}
