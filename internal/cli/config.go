package cli

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

// Config holds CLI output and remote API settings
type Config struct {
	ServerURL      string
	APIKey         string
	Format         string
	Quiet          bool
	NoColor        bool
	RequestTimeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ServerURL:      "http://localhost:5000",
		Format:         "text",
		RequestTimeout: 60 * time.Second,
	}
}

// Flags are the command-line overrides; zero values leave the setting alone
type Flags struct {
	ServerURL string
	Format    string
	Quiet     bool
	NoColor   bool
}

// LoadConfig layers environment variables and flags over the defaults
func LoadConfig(flags Flags) (*Config, error) {
	config := DefaultConfig()
	config.loadFromEnv()

	if flags.ServerURL != "" {
		config.ServerURL = flags.ServerURL
	}
	if flags.Format != "" {
		config.Format = flags.Format
	}
	if flags.Quiet {
		config.Quiet = true
	}
	if flags.NoColor {
		config.NoColor = true
	}

	return config, config.validate()
}

func (c *Config) loadFromEnv() {
	if serverURL := os.Getenv("CARGO_RELAY_SERVER"); serverURL != "" {
		c.ServerURL = serverURL
	}
	if apiKey := os.Getenv("CARGO_RELAY_ADMIN_API_KEY"); apiKey != "" {
		c.APIKey = apiKey
	}
	if format := os.Getenv("CARGO_RELAY_FORMAT"); format != "" {
		c.Format = format
	}
	if os.Getenv("CARGO_RELAY_QUIET") == "true" {
		c.Quiet = true
	}
	// https://no-color.org
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		c.NoColor = true
	}
	if timeout := os.Getenv("CARGO_RELAY_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			c.RequestTimeout = d
		}
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return fmt.Errorf("server URL cannot be empty")
	}
	if !slices.Contains([]string{"text", "json"}, c.Format) {
		return fmt.Errorf("invalid format: %s (must be one of: text, json)", c.Format)
	}
	return nil
}
