// Package config loads WapiDaktari settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/BTreeMap/WapiDaktari/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for WapiDaktari state data
	DefaultStateDir = "/var/lib/wapidaktari"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "wapidaktari.db"
)

// Dataset backends.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
)

// Config holds environment configuration.
type Config struct {
	StateDir    string `env:"WAPI_STATE_DIR" envDefault:"/var/lib/wapidaktari"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Dataset and model artifacts
	DatasetPath    string `env:"WAPI_DATASET_PATH" envDefault:"data/hospital_data.csv"`
	ModelsPath     string `env:"WAPI_MODELS_PATH" envDefault:"models/ensemble.yaml"`
	DatasetBackend string `env:"WAPI_DATASET_BACKEND" envDefault:"memory"`

	// HTTP service
	APIAddr        string        `env:"API_ADDR" envDefault:":8080"`
	RequestTimeout time.Duration `env:"WAPI_REQUEST_TIMEOUT" envDefault:"10s"`

	LogLevel string `env:"WAPI_LOG_LEVEL" envDefault:"info"`
	Timezone string `env:"WAPI_TIMEZONE" envDefault:"Africa/Nairobi"`

	// Turn log retention
	TurnRetention time.Duration `env:"WAPI_TURN_RETENTION" envDefault:"720h"`
	PurgeSchedule string        `env:"WAPI_PURGE_SCHEDULE" envDefault:"0 3 * * *"`

	// SMS follow-up
	SMSFollowUp      util.Switch `env:"WAPI_SMS_FOLLOWUP" envDefault:"false"`
	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `env:"TWILIO_FROM_NUMBER"`
}

// Load reads .env (if present) and then the process environment. It does not
// validate; callers apply flag overrides first and then call Validate.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	slog.Debug("environment variables loaded",
		"WAPI_STATE_DIR", cfg.StateDir,
		"DATABASE_URL_SET", cfg.DatabaseURL != "",
		"WAPI_DATASET_PATH", cfg.DatasetPath,
		"WAPI_MODELS_PATH", cfg.ModelsPath,
		"WAPI_DATASET_BACKEND", cfg.DatasetBackend,
		"API_ADDR", cfg.APIAddr,
		"WAPI_TIMEZONE", cfg.Timezone,
		"WAPI_SMS_FOLLOWUP", cfg.SMSFollowUp,
		"TWILIO_ACCOUNT_SID_SET", cfg.TwilioAccountSID != "")
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	switch c.DatasetBackend {
	case BackendMemory, BackendSQL:
	default:
		errs = append(errs, fmt.Errorf("WAPI_DATASET_BACKEND must be %q or %q, got %q", BackendMemory, BackendSQL, c.DatasetBackend))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WAPI_REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout))
	}
	return errors.Join(errs...)
}

// DSN returns DATABASE_URL, or an SQLite file in the state directory when it is unset.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(c.StateDir, DefaultDBFileName)
}

// Location resolves the configured timezone used to decide what "today" is.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid WAPI_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SMSEnabled reports whether follow-up SMS can be sent.
func (c *Config) SMSEnabled() bool {
	return bool(c.SMSFollowUp) && c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

// ParseLogLevel maps WAPI_LOG_LEVEL to a slog level. Unknown values fall back to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EnsureStateDir creates the directory of a file-based DSN.
func EnsureStateDir(dsn string) error {
	if strings.Contains(dsn, "postgres://") || strings.Contains(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", dir)
		return err
	}
	return nil
}
