package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"invoicechat/internal/logger"
)

type Config struct {
	// Invoicing backend
	BackendURL string

	// OpenAI Configuration (text rewrite service)
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Rendering
	TemplatePath string // file path or http(s) URL; empty uses the embedded template

	// Client-local state
	SessionFile         string
	EditFreshnessWindow time.Duration
	OfflineFallback     bool

	// Optional: Google Sheets export
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	window, err := time.ParseDuration(getEnv("EDIT_FRESHNESS_WINDOW", "10m"))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: EDIT_FRESHNESS_WINDOW: %w", err)
	}

	offline, err := strconv.ParseBool(getEnv("OFFLINE_FALLBACK", "true"))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: OFFLINE_FALLBACK: %w", err)
	}

	config := &Config{
		BackendURL:           getEnv("BACKEND_URL", "http://localhost:8000"),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),
		TemplatePath:         getEnv("TEMPLATE_PATH", ""),
		SessionFile:          getEnv("SESSION_FILE", defaultSessionFile()),
		EditFreshnessWindow:  window,
		OfflineFallback:      offline,
		GoogleSheetURL:       getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet: getEnv("GOOGLE_SHEET_WORKSHEET", "Fatture"),
		LogLevel:             getEnv("LOG_LEVEL", "warn"),
		LogFormat:            getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:        getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:            getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.BackendURL)
	}
	if c.EditFreshnessWindow <= 0 {
		return fmt.Errorf("EDIT_FRESHNESS_WINDOW must be positive")
	}
	if c.SessionFile == "" {
		return fmt.Errorf("SESSION_FILE is required")
	}
	return nil
}

// RequireOpenAI reports a configuration error when the rewrite service is not configured.
func (c *Config) RequireOpenAI() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return nil
}

// RequireSheets reports a configuration error when Google Sheets export is not configured.
func (c *Config) RequireSheets() error {
	if c.GoogleSheetURL == "" {
		return fmt.Errorf("GOOGLE_SHEET_URL is required")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".invoicechat-session.json"
	}
	return filepath.Join(dir, "invoicechat", "session.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
