package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"WAPI_STATE_DIR", "DATABASE_URL", "WAPI_DATASET_PATH", "WAPI_MODELS_PATH",
	"WAPI_DATASET_BACKEND", "API_ADDR", "WAPI_REQUEST_TIMEOUT", "WAPI_LOG_LEVEL",
	"WAPI_TIMEZONE", "WAPI_TURN_RETENTION", "WAPI_PURGE_SCHEDULE", "WAPI_SMS_FOLLOWUP",
	"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER",
}

// clearEnv isolates a test from the host environment and any .env file.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultStateDir, cfg.StateDir)
	assert.Equal(t, filepath.Join(DefaultStateDir, DefaultDBFileName), cfg.DSN())
	assert.Equal(t, BackendMemory, cfg.DatasetBackend)
	assert.Equal(t, ":8080", cfg.APIAddr)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 720*time.Hour, cfg.TurnRetention)
	assert.Equal(t, "0 3 * * *", cfg.PurgeSchedule)
	assert.False(t, bool(cfg.SMSFollowUp))
	assert.False(t, cfg.SMSEnabled())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Africa/Nairobi", loc.String())
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/wapi")
	t.Setenv("WAPI_DATASET_BACKEND", "sql")
	t.Setenv("WAPI_REQUEST_TIMEOUT", "3s")
	t.Setenv("WAPI_SMS_FOLLOWUP", "yes")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_FROM_NUMBER", "+15005550006")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/wapi", cfg.DSN())
	assert.Equal(t, BackendSQL, cfg.DatasetBackend)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.SMSEnabled())
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte("API_ADDR=:9090\nWAPI_TIMEZONE=UTC\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("API_ADDR")
		os.Unsetenv("WAPI_TIMEZONE")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.APIAddr)
	assert.Equal(t, "UTC", cfg.Timezone)
}

func TestLoadRejectsUnparsableValues(t *testing.T) {
	tests := map[string]string{
		"WAPI_REQUEST_TIMEOUT": "soon",
		"WAPI_SMS_FOLLOWUP":    "maybe",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"WAPI_DATASET_BACKEND": "redis",
		"WAPI_TIMEZONE":        "Mars/Olympus",
		"WAPI_REQUEST_TIMEOUT": "0s",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			cfg, err := Load()
			require.NoError(t, err, "Load leaves semantic checks to Validate")
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAfterOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("WAPI_TIMEZONE", "Mars/Olympus")
	cfg, err := Load()
	require.NoError(t, err)
	require.Error(t, cfg.Validate())

	cfg.Timezone = "UTC"
	assert.NoError(t, cfg.Validate())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("nonsense"))
}

func TestEnsureStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureStateDir(filepath.Join(dir, DefaultDBFileName)))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	assert.NoError(t, EnsureStateDir("postgres://localhost/db"))
}
