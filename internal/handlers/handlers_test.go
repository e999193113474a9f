package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cargo-relay/internal/database"
	"cargo-relay/internal/relay"
	"cargo-relay/internal/tracking"
	"cargo-relay/internal/whatsapp"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type stubSender struct {
	phone string
	text  string
	err   error
}

func (s *stubSender) SendTo(ctx context.Context, phone, text string) (*database.Message, error) {
	s.phone, s.text = phone, text
	if s.err != nil {
		return nil, s.err
	}
	return &database.Message{MessageID: "wamid.1", Content: text, Direction: database.DirectionOutgoing}, nil
}

type stubTracker struct {
	result *tracking.Result
	text   string
	err    error
}

func (s *stubTracker) Track(ctx context.Context, query string) (*tracking.Result, string, error) {
	return s.result, s.text, s.err
}

type stubProcessor struct {
	payload *relay.Payload
	summary relay.Summary
	err     error
}

func (s *stubProcessor) Process(ctx context.Context, payload *relay.Payload) (relay.Summary, error) {
	s.payload = payload
	return s.summary, s.err
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestHealthCheck(t *testing.T) {
	t.Run("HealthyDatabase", func(t *testing.T) {
		handler := NewHealthHandler(setupTestDB(t))
		w := httptest.NewRecorder()

		handler.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var response HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, HealthResponse{Status: "healthy", Database: "ok"}, response)
	})

	t.Run("UnhealthyDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		db.Close()
		handler := NewHealthHandler(db)
		w := httptest.NewRecorder()

		handler.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		var response HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "unhealthy", response.Status)
		assert.Equal(t, "error", response.Database)
		assert.NotEmpty(t, response.Message)
	})
}

func TestGetMessages(t *testing.T) {
	db := setupTestDB(t)
	contact, err := db.Contacts.Upsert("919800000001", "Asha", time.Now())
	require.NoError(t, err)
	base := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		require.NoError(t, db.Messages.Create(&database.Message{
			ContactID: contact.ID,
			Content:   "message",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Direction: database.DirectionIncoming,
			Status:    "received",
		}))
	}
	handler := NewMessageHandler(db, &stubSender{}, nil)

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"default limit", "", http.StatusOK, 5},
		{"explicit limit", "?limit=2", http.StatusOK, 2},
		{"limit above total", "?limit=50", http.StatusOK, 7},
		{"invalid limit", "?limit=abc", http.StatusBadRequest, 0},
		{"zero limit", "?limit=0", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.GetMessages(w, httptest.NewRequest(http.MethodGet, "/api/messages"+tt.query, nil))

			require.Equal(t, tt.status, w.Code)
			if tt.status != http.StatusOK {
				return
			}
			var messages []database.Message
			require.NoError(t, json.NewDecoder(w.Body).Decode(&messages))
			assert.Len(t, messages, tt.count)
			assert.True(t, messages[0].Timestamp.After(messages[len(messages)-1].Timestamp) || len(messages) == 1)
			assert.Equal(t, "919800000001", messages[0].PhoneNumber)
		})
	}
}

func TestSendMessage(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		sender := &stubSender{}
		handler := NewMessageHandler(setupTestDB(t), sender, nil)
		w := httptest.NewRecorder()

		handler.SendMessage(w, httptest.NewRequest(http.MethodPost, "/api/send_message",
			jsonBody(t, map[string]string{"phone": " 919800000001 ", "message": "Your parcel has shipped"})))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "919800000001", sender.phone)
		assert.Equal(t, "Your parcel has shipped", sender.text)
		assert.Contains(t, w.Body.String(), `"success":true`)
	})

	t.Run("MissingFields", func(t *testing.T) {
		handler := NewMessageHandler(setupTestDB(t), &stubSender{}, nil)
		w := httptest.NewRecorder()

		handler.SendMessage(w, httptest.NewRequest(http.MethodPost, "/api/send_message",
			jsonBody(t, map[string]string{"phone": "1"})))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Missing phone or message parameter"}`, w.Body.String())
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		handler := NewMessageHandler(setupTestDB(t), &stubSender{}, nil)
		w := httptest.NewRecorder()

		handler.SendMessage(w, httptest.NewRequest(http.MethodPost, "/api/send_message", bytes.NewBufferString("{")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("ProviderRejects", func(t *testing.T) {
		sender := &stubSender{err: &whatsapp.APIError{StatusCode: 401, Message: "bad token"}}
		handler := NewMessageHandler(setupTestDB(t), sender, nil)
		w := httptest.NewRecorder()

		handler.SendMessage(w, httptest.NewRequest(http.MethodPost, "/api/send_message",
			jsonBody(t, map[string]string{"phone": "1", "message": "hi"})))

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("StorageFailure", func(t *testing.T) {
		sender := &stubSender{err: errors.New("disk full")}
		handler := NewMessageHandler(setupTestDB(t), sender, nil)
		w := httptest.NewRecorder()

		handler.SendMessage(w, httptest.NewRequest(http.MethodPost, "/api/send_message",
			jsonBody(t, map[string]string{"phone": "1", "message": "hi"})))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"disk full"}`, w.Body.String())
	})
}

func automationRouter(handler *AutomationHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/automations", handler.GetAutomations)
	r.Post("/api/automations", handler.CreateAutomation)
	r.Get("/api/automations/{id}", handler.GetAutomation)
	r.Put("/api/automations/{id}", handler.UpdateAutomation)
	r.Delete("/api/automations/{id}", handler.DeleteAutomation)
	return r
}

func TestAutomationCRUD(t *testing.T) {
	router := automationRouter(NewAutomationHandler(setupTestDB(t), nil))

	// create
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/automations", jsonBody(t, map[string]any{
		"name":          "Greeting",
		"trigger_type":  "keyword",
		"trigger_value": "hello,hi",
		"response_text": "Hi there!",
	})))
	require.Equal(t, http.StatusCreated, w.Code)
	var created database.Automation
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.NotZero(t, created.ID)
	assert.True(t, created.IsActive)

	// list
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/automations", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var all []database.Automation
	require.NoError(t, json.NewDecoder(w.Body).Decode(&all))
	assert.Len(t, all, 1)

	// update
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/automations/1", jsonBody(t, map[string]any{
		"name":          "Greeting",
		"trigger_type":  "keyword",
		"trigger_value": "hello",
		"response_text": "Hello!",
		"is_active":     false,
	})))
	require.Equal(t, http.StatusOK, w.Code)
	var updated database.Automation
	require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
	assert.Equal(t, "Hello!", updated.ResponseText)
	assert.False(t, updated.IsActive)

	// get
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/automations/1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// delete
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/automations/1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/automations/1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAutomationValidation(t *testing.T) {
	router := automationRouter(NewAutomationHandler(setupTestDB(t), nil))

	tests := []struct {
		name   string
		method string
		path   string
		body   map[string]any
		status int
	}{
		{"missing name", http.MethodPost, "/api/automations", map[string]any{
			"trigger_type": "keyword", "trigger_value": "x", "response_text": "y",
		}, http.StatusBadRequest},
		{"unknown trigger type", http.MethodPost, "/api/automations", map[string]any{
			"name": "n", "trigger_type": "regex", "trigger_value": "x", "response_text": "y",
		}, http.StatusBadRequest},
		{"non numeric id", http.MethodPut, "/api/automations/abc", map[string]any{
			"name": "n", "trigger_type": "keyword", "trigger_value": "x", "response_text": "y",
		}, http.StatusBadRequest},
		{"update missing", http.MethodPut, "/api/automations/99", map[string]any{
			"name": "n", "trigger_type": "keyword", "trigger_value": "x", "response_text": "y",
		}, http.StatusNotFound},
		{"delete missing", http.MethodDelete, "/api/automations/99", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *bytes.Reader
			if tt.body != nil {
				body = jsonBody(t, tt.body)
			} else {
				body = bytes.NewReader(nil)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, body))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestTrackingHandler(t *testing.T) {
	trackRouter := func(tracker Tracker) http.Handler {
		r := chi.NewRouter()
		r.Get("/api/track/{number}", NewTrackingHandler(tracker, nil).Track)
		return r
	}

	t.Run("Success", func(t *testing.T) {
		fields := tracking.NewFieldMap()
		fields.Set(tracking.ReferenceLabel, "1234567890")
		fields.Set("Status", "Delivered")
		tracker := &stubTracker{result: tracking.FieldsResult("1234567890", fields), text: "rendered"}
		w := httptest.NewRecorder()

		trackRouter(tracker).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/track/1234567890", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Result  map[string]any `json:"result"`
			Message string         `json:"message"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "rendered", response.Message)
		assert.Equal(t, "fields", response.Result["kind"])
	})

	t.Run("TransportError", func(t *testing.T) {
		tracker := &stubTracker{result: tracking.TransportErrorResult("1", "Error connecting to ACPL tracking: query: HTTP error 503"), text: "❌"}
		w := httptest.NewRecorder()

		trackRouter(tracker).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/track/1", nil))

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("EmptyQuery", func(t *testing.T) {
		tracker := &stubTracker{err: tracking.ErrEmptyQuery}
		w := httptest.NewRecorder()

		trackRouter(tracker).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/track/%20", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWebhookVerify(t *testing.T) {
	handler := NewWebhookHandler("verify-me", &stubProcessor{}, nil)

	tests := []struct {
		name   string
		query  string
		status int
		body   string
	}{
		{"valid", "?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", http.StatusOK, "42"},
		{"wrong token", "?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", http.StatusForbidden, ""},
		{"missing mode", "?hub.verify_token=verify-me&hub.challenge=42", http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.Verify(w, httptest.NewRequest(http.MethodGet, "/webhook"+tt.query, nil))
			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestWebhookReceive(t *testing.T) {
	t.Run("Processed", func(t *testing.T) {
		processor := &stubProcessor{summary: relay.Summary{Processed: 1}}
		handler := NewWebhookHandler("v", processor, nil)
		body := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"messages":[{"id":"m1","from":"1","timestamp":"1","type":"text","text":{"body":"hi"}}]}}]}]}`
		w := httptest.NewRecorder()

		handler.Receive(w, httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body)))

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"processed":1,"duplicates":0}`, w.Body.String())
		require.NotNil(t, processor.payload)
		require.Len(t, processor.payload.Entry, 1)
		assert.Equal(t, "hi", processor.payload.Entry[0].Changes[0].Value.Messages[0].Content())
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		handler := NewWebhookHandler("v", &stubProcessor{}, nil)
		w := httptest.NewRecorder()

		handler.Receive(w, httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString("not json")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("ProcessingError", func(t *testing.T) {
		handler := NewWebhookHandler("v", &stubProcessor{err: errors.New("database is locked")}, nil)
		w := httptest.NewRecorder()

		handler.Receive(w, httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{}`)))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"database is locked"}`, w.Body.String())
	})
}
