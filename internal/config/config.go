package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validatorInstance = validator.New()

// Config holds all configuration for the chat client.
type Config struct {
	// APIBaseURL is the REST endpoint messages and history are fetched from.
	APIBaseURL string `validate:"required,url"`
	// WSURL is the websocket endpoint for live event delivery.
	WSURL string `validate:"required,url"`
	// Token is the bearer credential. Optional here; the CLI falls back to
	// the saved credential file when unset.
	Token string
	// UserID identifies the authenticated user.
	UserID string
	// ConfigDir is where the credential file lives.
	ConfigDir string
	// LogFormat selects "text" or "json" output.
	LogFormat string
	// LogLevel selects the minimum level: "debug", "info", "warn", "error".
	LogLevel string
}

// New loads configuration from environment variables. A .env file in the
// working directory is honored when present.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL: os.Getenv("CHATKIT_API_URL"),
		WSURL:      os.Getenv("CHATKIT_WS_URL"),
		Token:      os.Getenv("CHATKIT_TOKEN"),
		UserID:     os.Getenv("CHATKIT_USER_ID"),
		ConfigDir:  os.Getenv("CHATKIT_CONFIG_DIR"),
		LogFormat:  os.Getenv("LOG_FORMAT"),
		LogLevel:   os.Getenv("LOG_LEVEL"),
	}
	if cfg.ConfigDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.ConfigDir = filepath.Join(home, ".chatkit")
		} else {
			cfg.ConfigDir = ".chatkit"
		}
	}

	if err := validatorInstance.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
