// Package whatsapp sends messages through the WhatsApp Cloud API and
// verifies webhook subscriptions.
package whatsapp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v16.0"
)

// ErrNotConfigured is returned when sending without credentials
var ErrNotConfigured = errors.New("whatsapp client is not configured")

// Config holds the Cloud API credentials
type Config struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
	VerifyToken   string
	Timeout       time.Duration
}

// APIError is a non-2xx response from the Cloud API
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("whatsapp api error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("whatsapp api error %d: %s", e.StatusCode, e.Body)
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

// SendResponse is the Cloud API reply to a send request
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the provider ID of the sent message, if any
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// Client talks to the Cloud API
type Client struct {
	config Config
	http   *resty.Client
	logger *slog.Logger
}

// NewClient creates a client. httpClient may be nil.
func NewClient(config Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	var rc *resty.Client
	if httpClient != nil {
		rc = resty.NewWithClient(httpClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{config: config, http: rc, logger: logger}
}

// SendText sends a plain text message to a phone number in international
// format. A leading '+' is stripped.
func (c *Client) SendText(ctx context.Context, to, body string) (*SendResponse, error) {
	if c.config.PhoneNumberID == "" || c.config.AccessToken == "" {
		return nil, ErrNotConfigured
	}
	to = strings.TrimPrefix(strings.TrimSpace(to), "+")

	payload := sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             textBody{PreviewURL: false, Body: body},
	}

	var result SendResponse
	var apiErr graphError
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.config.AccessToken).
		SetBody(payload).
		SetResult(&result).
		SetError(&apiErr).
		Post(fmt.Sprintf("/%s/%s/messages", c.config.APIVersion, c.config.PhoneNumberID))
	if err != nil {
		c.logger.Error("Error sending WhatsApp message", "to", to, "error", err)
		return nil, fmt.Errorf("failed to send whatsapp message: %w", err)
	}

	if resp.IsError() {
		e := &APIError{
			StatusCode: resp.StatusCode(),
			Code:       apiErr.Error.Code,
			Message:    apiErr.Error.Message,
			Body:       resp.String(),
		}
		c.logger.Error("WhatsApp API rejected message", "to", to, "status", e.StatusCode, "response", e.Body)
		return nil, e
	}

	c.logger.Debug("Sent WhatsApp message", "to", to, "message_id", result.MessageID())
	return &result, nil
}

// VerifyWebhook checks a subscription handshake and returns the challenge to
// echo when it is valid
func (c *Client) VerifyWebhook(mode, token, challenge string) (string, bool) {
	return VerifyWebhook(c.config.VerifyToken, mode, token, challenge)
}

// VerifyWebhook checks a subscription handshake against expected
func VerifyWebhook(expected, mode, token, challenge string) (string, bool) {
	if mode != "subscribe" || expected == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return "", false
	}
	return challenge, true
}
