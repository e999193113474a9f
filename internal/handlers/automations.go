package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"cargo-relay/internal/database"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AutomationRequest is the body of automation create and update calls
type AutomationRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	TriggerType  string `json:"trigger_type" validate:"required,oneof=keyword time new_contact"`
	TriggerValue string `json:"trigger_value" validate:"required,max=255"`
	ResponseText string `json:"response_text" validate:"required"`
	IsActive     *bool  `json:"is_active"`
}

func (req *AutomationRequest) toAutomation() *database.Automation {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &database.Automation{
		Name:         req.Name,
		TriggerType:  req.TriggerType,
		TriggerValue: req.TriggerValue,
		ResponseText: req.ResponseText,
		IsActive:     active,
	}
}

// AutomationHandler handles automation CRUD
type AutomationHandler struct {
	db     *database.DB
	logger *slog.Logger
}

func NewAutomationHandler(db *database.DB, logger *slog.Logger) *AutomationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutomationHandler{db: db, logger: logger}
}

// GetAutomations handles GET /api/automations
func (h *AutomationHandler) GetAutomations(w http.ResponseWriter, r *http.Request) {
	automations, err := h.db.Automations.GetAll()
	if err != nil {
		h.logger.Error("Failed to get automations", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get automations")
		return
	}
	writeJSON(w, http.StatusOK, automations)
}

// GetAutomation handles GET /api/automations/{id}
func (h *AutomationHandler) GetAutomation(w http.ResponseWriter, r *http.Request) {
	id, ok := automationID(w, r)
	if !ok {
		return
	}

	automation, err := h.db.Automations.GetByID(id)
	if err != nil {
		h.storeError(w, "get", id, err)
		return
	}
	writeJSON(w, http.StatusOK, automation)
}

// CreateAutomation handles POST /api/automations
func (h *AutomationHandler) CreateAutomation(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAutomation(w, r)
	if !ok {
		return
	}

	automation := req.toAutomation()
	if err := h.db.Automations.Create(automation); err != nil {
		h.logger.Error("Failed to create automation", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create automation")
		return
	}

	h.logger.Info("Automation created", "id", automation.ID, "name", automation.Name)
	writeJSON(w, http.StatusCreated, automation)
}

// UpdateAutomation handles PUT /api/automations/{id}
func (h *AutomationHandler) UpdateAutomation(w http.ResponseWriter, r *http.Request) {
	id, ok := automationID(w, r)
	if !ok {
		return
	}
	req, ok := decodeAutomation(w, r)
	if !ok {
		return
	}

	automation := req.toAutomation()
	if err := h.db.Automations.Update(id, automation); err != nil {
		h.storeError(w, "update", id, err)
		return
	}
	writeJSON(w, http.StatusOK, automation)
}

// DeleteAutomation handles DELETE /api/automations/{id}
func (h *AutomationHandler) DeleteAutomation(w http.ResponseWriter, r *http.Request) {
	id, ok := automationID(w, r)
	if !ok {
		return
	}

	if err := h.db.Automations.Delete(id); err != nil {
		h.storeError(w, "delete", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AutomationHandler) storeError(w http.ResponseWriter, op string, id int, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Automation not found")
		return
	}
	h.logger.Error("Automation store failure", "op", op, "id", id, "error", err)
	writeError(w, http.StatusInternalServerError, "Failed to "+op+" automation")
}

func automationID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "Invalid automation ID")
		return 0, false
	}
	return id, true
}

func decodeAutomation(w http.ResponseWriter, r *http.Request) (*AutomationRequest, bool) {
	var req AutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return nil, false
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return nil, false
	}
	return &req, true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return "invalid " + fe.Field() + ": failed " + fe.Tag() + " check"
	}
	return err.Error()
}
