package config

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerPort string
	ServerHost string

	// Database configuration
	DBPath string

	// Logging
	LogLevel string

	// WhatsApp Cloud API
	WhatsAppBaseURL       string
	WhatsAppAPIVersion    string
	WhatsAppPhoneNumberID string
	WhatsAppAccessToken   string
	WhatsAppVerifyToken   string

	// Tracking provider
	TrackerLandingURL string
	TrackerQueryURL   string
	TrackerFormField  string
	TrackerUserAgent  string
	TrackerTimeout    time.Duration
	TrackerDumpDir    string

	// Result cache
	CacheTTL     time.Duration
	DisableCache bool

	// TRACK command throttling
	RateLimitPerMinute int
	RateLimitBurst     int
	DisableRateLimit   bool

	// Admin API
	AdminAPIKey      string
	DisableAdminAuth bool

	// Metrics
	MetricsEnabled bool
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.ServerPort == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if _, err := strconv.Atoi(c.ServerPort); err != nil {
		return fmt.Errorf("invalid server port: %s", c.ServerPort)
	}

	if c.DBPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	for name, raw := range map[string]string{
		"tracker landing URL": c.TrackerLandingURL,
		"tracker query URL":   c.TrackerQueryURL,
		"whatsapp base URL":   c.WhatsAppBaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}
	if c.TrackerFormField == "" {
		return fmt.Errorf("tracker form field cannot be empty")
	}
	if c.TrackerTimeout <= 0 {
		return fmt.Errorf("tracker timeout must be positive")
	}

	if !c.DisableCache && c.CacheTTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.RateLimitPerMinute < 1 {
		return fmt.Errorf("rate limit per minute must be at least 1")
	}
	if c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1")
	}

	return nil
}

// ValidateServer checks the settings only the HTTP server needs
func (c *Config) ValidateServer() error {
	if !c.DisableAdminAuth && c.AdminAPIKey == "" {
		return fmt.Errorf("admin API key is required unless admin auth is disabled")
	}
	if c.WhatsAppVerifyToken == "" {
		return fmt.Errorf("whatsapp verify token cannot be empty")
	}
	return nil
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.ServerHost + ":" + c.ServerPort
}

// WhatsAppConfigured reports whether outbound messaging has credentials
func (c *Config) WhatsAppConfigured() bool {
	return c.WhatsAppPhoneNumberID != "" && c.WhatsAppAccessToken != ""
}

// GetDisableRateLimit returns the rate limit disable flag
func (c *Config) GetDisableRateLimit() bool {
	return c.DisableRateLimit
}

func (c *Config) GetRateLimitPerMinute() int {
	return c.RateLimitPerMinute
}

func (c *Config) GetRateLimitBurst() int {
	return c.RateLimitBurst
}

// GetDisableCache returns the cache disable flag
func (c *Config) GetDisableCache() bool {
	return c.DisableCache
}
