package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CARGO_RELAY"

// LoadWithViper loads configuration from defaults, an optional config file
// and the environment
func LoadWithViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	setupEnvBinding(v)

	if err := loadConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := &Config{}
	if err := unmarshalConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.host", "0.0.0.0")

	v.SetDefault("database.path", "./whatsapp.db")

	v.SetDefault("logging.level", "info")

	v.SetDefault("whatsapp.base_url", "https://graph.facebook.com")
	v.SetDefault("whatsapp.api_version", "v16.0")
	v.SetDefault("whatsapp.phone_number_id", "")
	v.SetDefault("whatsapp.access_token", "")
	v.SetDefault("whatsapp.verify_token", "")

	v.SetDefault("tracker.landing_url", "https://acplcargo.com/GCTRACKING.php")
	v.SetDefault("tracker.query_url", "https://acplcargo.com/poc.php")
	v.SetDefault("tracker.form_field", "gcnumber")
	v.SetDefault("tracker.user_agent", "")
	v.SetDefault("tracker.timeout", "30s")
	v.SetDefault("tracker.dump_dir", "")

	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.disabled", false)

	v.SetDefault("rate_limit.per_minute", 6)
	v.SetDefault("rate_limit.burst", 2)
	v.SetDefault("rate_limit.disabled", false)

	v.SetDefault("admin.auth_disabled", false)
	v.SetDefault("admin.api_key", "")

	v.SetDefault("metrics.enabled", true)
}

func setupEnvBinding(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	envBindings := map[string]string{
		"server.port":              "SERVER_PORT",
		"server.host":              "SERVER_HOST",
		"database.path":            "DATABASE_PATH",
		"logging.level":            "LOGGING_LEVEL",
		"whatsapp.base_url":        "WHATSAPP_BASE_URL",
		"whatsapp.api_version":     "WHATSAPP_API_VERSION",
		"whatsapp.phone_number_id": "WHATSAPP_PHONE_NUMBER_ID",
		"whatsapp.access_token":    "WHATSAPP_ACCESS_TOKEN",
		"whatsapp.verify_token":    "WHATSAPP_VERIFY_TOKEN",
		"tracker.landing_url":      "TRACKER_LANDING_URL",
		"tracker.query_url":        "TRACKER_QUERY_URL",
		"tracker.form_field":       "TRACKER_FORM_FIELD",
		"tracker.user_agent":       "TRACKER_USER_AGENT",
		"tracker.timeout":          "TRACKER_TIMEOUT",
		"tracker.dump_dir":         "TRACKER_DUMP_DIR",
		"cache.ttl":                "CACHE_TTL",
		"cache.disabled":           "CACHE_DISABLED",
		"rate_limit.per_minute":    "RATE_LIMIT_PER_MINUTE",
		"rate_limit.burst":         "RATE_LIMIT_BURST",
		"rate_limit.disabled":      "RATE_LIMIT_DISABLED",
		"admin.api_key":            "ADMIN_API_KEY",
		"admin.auth_disabled":      "ADMIN_AUTH_DISABLED",
		"metrics.enabled":          "METRICS_ENABLED",
	}
	for configKey, envSuffix := range envBindings {
		v.BindEnv(configKey, envPrefix+"_"+envSuffix)
	}

	// variable names used by existing deployments
	legacyBindings := map[string]string{
		"database.path":            "DB_PATH",
		"whatsapp.phone_number_id": "WHATSAPP_PHONE_NUMBER_ID",
		"whatsapp.access_token":    "WHATSAPP_ACCESS_TOKEN",
		"whatsapp.verify_token":    "WHATSAPP_VERIFY_TOKEN",
		"whatsapp.api_version":     "WHATSAPP_API_VERSION",
	}
	for configKey, envVar := range legacyBindings {
		v.BindEnv(configKey, envPrefix+"_"+envBindings[configKey], envVar)
	}
}

func loadConfigFile(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.cargo-relay")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	return nil
}

func unmarshalConfig(v *viper.Viper, config *Config) error {
	config.ServerPort = v.GetString("server.port")
	config.ServerHost = v.GetString("server.host")
	config.DBPath = v.GetString("database.path")
	config.LogLevel = v.GetString("logging.level")

	config.WhatsAppBaseURL = v.GetString("whatsapp.base_url")
	config.WhatsAppAPIVersion = v.GetString("whatsapp.api_version")
	config.WhatsAppPhoneNumberID = v.GetString("whatsapp.phone_number_id")
	config.WhatsAppAccessToken = v.GetString("whatsapp.access_token")
	config.WhatsAppVerifyToken = v.GetString("whatsapp.verify_token")

	config.TrackerLandingURL = v.GetString("tracker.landing_url")
	config.TrackerQueryURL = v.GetString("tracker.query_url")
	config.TrackerFormField = v.GetString("tracker.form_field")
	config.TrackerUserAgent = v.GetString("tracker.user_agent")
	config.TrackerDumpDir = v.GetString("tracker.dump_dir")

	var err error
	config.TrackerTimeout, err = time.ParseDuration(v.GetString("tracker.timeout"))
	if err != nil {
		return fmt.Errorf("invalid tracker timeout: %w", err)
	}

	config.CacheTTL, err = time.ParseDuration(v.GetString("cache.ttl"))
	if err != nil {
		return fmt.Errorf("invalid cache TTL: %w", err)
	}
	config.DisableCache = v.GetBool("cache.disabled")

	config.RateLimitPerMinute = v.GetInt("rate_limit.per_minute")
	config.RateLimitBurst = v.GetInt("rate_limit.burst")
	config.DisableRateLimit = v.GetBool("rate_limit.disabled")

	config.AdminAPIKey = v.GetString("admin.api_key")
	config.DisableAdminAuth = v.GetBool("admin.auth_disabled")

	config.MetricsEnabled = v.GetBool("metrics.enabled")

	return nil
}

// LoadEnvFile loads variables from a dotenv file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(filename string) error {
	if err := godotenv.Load(filename); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Load reads .env (or envFile when set) and then loads configuration
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := LoadEnvFile(envFile); err != nil {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return LoadWithViper(viper.New())
}

// LoadWithFile loads configuration from a specific config file
func LoadWithFile(configFile, envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := LoadEnvFile(envFile); err != nil {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	v := viper.New()
	v.SetConfigFile(configFile)
	return LoadWithViper(v)
}
