package cli

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"cargo-relay/internal/database"
	"cargo-relay/internal/tracking"
)

// Client talks to a running relay's REST API
type Client struct {
	http *resty.Client
}

// NewClient creates an API client from config
func NewClient(config *Config) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimSuffix(config.ServerURL, "/")).
		SetTimeout(config.RequestTimeout).
		SetHeader("Accept", "application/json")
	if config.APIKey != "" {
		rc.SetAuthToken(config.APIKey)
	}
	return &Client{http: rc}
}

// APIError represents an error from the API
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// TrackResponse mirrors GET /api/track/{number}
type TrackResponse struct {
	Result  *tracking.Result `json:"result"`
	Message string           `json:"message"`
}

type sendMessageResponse struct {
	Success bool              `json:"success"`
	Message *database.Message `json:"message"`
}

func (c *Client) do(req *resty.Request, method, path string) error {
	var apiErr APIError
	resp, err := req.SetError(&apiErr).Execute(method, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		apiErr.Code = resp.StatusCode()
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(resp.String())
		}
		return &apiErr
	}
	return nil
}

// Track looks up a tracking number through the server. Provider failures
// come back as a transport_error result, not an error.
func (c *Client) Track(ctx context.Context, number string) (*TrackResponse, error) {
	var out TrackResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get("/api/track/" + url.PathEscape(number))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if out.Result == nil {
		return nil, &APIError{Code: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
	}
	return &out, nil
}

// RecentMessages returns the latest stored messages
func (c *Client) RecentMessages(ctx context.Context, limit int) ([]database.Message, error) {
	var out []database.Message
	req := c.http.R().SetContext(ctx).SetResult(&out).
		SetQueryParam("limit", strconv.Itoa(limit))
	if err := c.do(req, "GET", "/api/messages"); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage sends a manual WhatsApp message through the server
func (c *Client) SendMessage(ctx context.Context, phone, text string) (*database.Message, error) {
	var out sendMessageResponse
	req := c.http.R().SetContext(ctx).SetResult(&out).
		SetBody(map[string]string{"phone": phone, "message": text})
	if err := c.do(req, "POST", "/api/send_message"); err != nil {
		return nil, err
	}
	return out.Message, nil
}
