package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/WapiDaktari/internal/api"
	"github.com/BTreeMap/WapiDaktari/internal/besttime"
	"github.com/BTreeMap/WapiDaktari/internal/config"
	"github.com/BTreeMap/WapiDaktari/internal/dataset"
	"github.com/BTreeMap/WapiDaktari/internal/models"
	"github.com/BTreeMap/WapiDaktari/internal/predict"
	"github.com/BTreeMap/WapiDaktari/internal/sms"
	"github.com/BTreeMap/WapiDaktari/internal/store"
	"github.com/BTreeMap/WapiDaktari/internal/ussd"
)

func main() {
	initializeLogger(slog.LevelInfo)
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Flags holds command line flag values. Empty values keep the environment setting.
type Flags struct {
	stateDir    string
	dbDSN       string
	datasetPath string
	modelsPath  string
	backend     string
	apiAddr     string
	logLevel    string
	timezone    string
}

func newRootCmd() *cobra.Command {
	var flags Flags
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:           "WapiDaktari",
		Short:         "USSD service that predicts the best time to visit a hospital department",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadEnvironmentConfig()
			if err != nil {
				return err
			}
			applyFlags(loaded, flags)
			if err := loaded.Validate(); err != nil {
				return err
			}
			initializeLogger(config.ParseLogLevel(loaded.LogLevel))
			*cfg = *loaded
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.stateDir, "state-dir", "", "state directory for WapiDaktari data (overrides $WAPI_STATE_DIR)")
	pf.StringVar(&flags.dbDSN, "db-dsn", "", "database DSN, SQLite path or Postgres URL (overrides $DATABASE_URL)")
	pf.StringVar(&flags.datasetPath, "dataset", "", "feature dataset CSV (overrides $WAPI_DATASET_PATH)")
	pf.StringVar(&flags.modelsPath, "models", "", "model bundle YAML (overrides $WAPI_MODELS_PATH)")
	pf.StringVar(&flags.backend, "dataset-backend", "", "dataset backend, memory or sql (overrides $WAPI_DATASET_BACKEND)")
	pf.StringVar(&flags.apiAddr, "api-addr", "", "API server address (overrides $API_ADDR)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides $WAPI_LOG_LEVEL)")
	pf.StringVar(&flags.timezone, "timezone", "", "timezone used for today (overrides $WAPI_TIMEZONE)")

	root.AddCommand(newServeCmd(cfg))
	root.AddCommand(newUSSDCmd(cfg))
	root.AddCommand(newBestTimeCmd(cfg))
	root.AddCommand(newImportCmd(cfg))
	return root
}

// initializeLogger sets up structured logging at the given level
func initializeLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return nil, err
	}
	return cfg, nil
}

// applyFlags overrides environment values with explicitly set flags.
func applyFlags(cfg *config.Config, flags Flags) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.StateDir, flags.stateDir)
	set(&cfg.DatabaseURL, flags.dbDSN)
	set(&cfg.DatasetPath, flags.datasetPath)
	set(&cfg.ModelsPath, flags.modelsPath)
	set(&cfg.DatasetBackend, flags.backend)
	set(&cfg.APIAddr, flags.apiAddr)
	set(&cfg.LogLevel, flags.logLevel)
	set(&cfg.Timezone, flags.timezone)
	slog.Debug("flags applied",
		"stateDir", cfg.StateDir,
		"dbDSN_set", cfg.DatabaseURL != "",
		"datasetPath", cfg.DatasetPath,
		"modelsPath", cfg.ModelsPath,
		"backend", cfg.DatasetBackend,
		"apiAddr", cfg.APIAddr)
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(dsn string) []store.Option {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return []store.Option{store.WithPostgresDSN(dsn)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", dsn)
	return []store.Option{store.WithSQLiteDSN(dsn)}
}

// sqlStore is what both SQL backends provide.
type sqlStore interface {
	store.Store
	store.FeatureStore
}

// openStore opens the configured SQL store, creating the state directory for SQLite.
func openStore(cfg *config.Config) (sqlStore, error) {
	dsn := cfg.DSN()
	opts := buildStoreOptions(dsn)
	if store.DetectDSNType(dsn) == "postgres" {
		return store.NewPostgresStore(opts...)
	}
	if err := config.EnsureStateDir(dsn); err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(opts...)
}

// featureSource serves both feature lookups and the menu catalog.
type featureSource interface {
	besttime.FeatureLookup
	ussd.Catalog
}

// lockFunc takes the state directory lock and returns its release.
type lockFunc func() (func(), error)

// alreadyLocked is used by callers that hold the state lock for their lifetime.
func alreadyLocked() (func(), error) { return func() {}, nil }

// loadFeatureSource returns the dataset for the configured backend. The SQL
// backend imports the CSV on first use, under lock, re-checking the count
// once the lock is held.
func loadFeatureSource(ctx context.Context, cfg *config.Config, st store.FeatureStore, lock lockFunc) (featureSource, error) {
	if cfg.DatasetBackend == config.BackendSQL {
		n, err := st.CountFeatureRows(ctx)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			if err := importIfEmpty(ctx, cfg, st, lock); err != nil {
				return nil, err
			}
		}
		return st, nil
	}
	rows, err := dataset.LoadCSV(cfg.DatasetPath)
	if err != nil {
		return nil, err
	}
	slog.Info("Dataset loaded into memory", "path", cfg.DatasetPath, "rows", len(rows))
	return dataset.NewTable(rows), nil
}

func importIfEmpty(ctx context.Context, cfg *config.Config, st store.FeatureStore, lock lockFunc) error {
	release, err := lock()
	if err != nil {
		return err
	}
	defer release()
	n, err := st.CountFeatureRows(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	slog.Info("Feature table empty, importing dataset", "path", cfg.DatasetPath)
	_, err = importDataset(ctx, cfg.DatasetPath, st, false)
	return err
}

// importDataset loads the CSV into st, replacing the current rows when replace is set.
func importDataset(ctx context.Context, path string, st store.FeatureStore, replace bool) (int, error) {
	rows, err := dataset.LoadCSV(path)
	if err != nil {
		return 0, err
	}
	if replace {
		return st.ReplaceFeatureRows(ctx, rows)
	}
	return st.ImportFeatureRows(ctx, rows)
}

// engine is the prediction path shared by every subcommand.
type engine struct {
	source    featureSource
	artifacts *predict.Artifacts
	selector  *besttime.Selector
	machine   *ussd.Machine
	loc       *time.Location
}

func buildEngine(ctx context.Context, cfg *config.Config, st store.FeatureStore, lock lockFunc) (*engine, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	source, err := loadFeatureSource(ctx, cfg, st, lock)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	arts, err := predict.LoadArtifacts(cfg.ModelsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	selector := besttime.NewSelector(source, arts.Preprocessor, arts.Ensemble)
	machine := ussd.NewMachine(source, selector, ussd.WithClock(func() time.Time { return time.Now().In(loc) }))
	return &engine{source: source, artifacts: arts, selector: selector, machine: machine, loc: loc}, nil
}

// buildSMSSender returns nil when follow-up SMS is disabled.
func buildSMSSender(cfg *config.Config) sms.Sender {
	if !cfg.SMSEnabled() {
		slog.Debug("SMS follow-up disabled")
		return nil
	}
	client, err := sms.NewClient(
		sms.WithAccountSID(cfg.TwilioAccountSID),
		sms.WithAuthToken(cfg.TwilioAuthToken),
		sms.WithFromNumber(cfg.TwilioFromNumber),
		sms.WithTimeout(api.DefaultSMSTimeout),
	)
	if err != nil {
		slog.Warn("SMS follow-up disabled, Twilio client unavailable", "error", err)
		return nil
	}
	return client
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(cfg *config.Config, loc *time.Location, sender sms.Sender) []api.Option {
	apiOpts := []api.Option{
		api.WithRequestTimeout(cfg.RequestTimeout),
		api.WithLocation(loc),
	}
	if cfg.APIAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(cfg.APIAddr))
	}
	if sender != nil {
		apiOpts = append(apiOpts, api.WithSMSFollowUp(sender, api.DefaultSMSTimeout))
	}
	return apiOpts
}

// parseDate resolves "today", "tomorrow" or a YYYY-MM-DD date in loc.
func parseDate(raw string, loc *time.Location) (time.Time, error) {
	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	switch raw {
	case "", "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	}
	d, err := time.ParseInLocation(models.DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", models.ErrInvalidDate, raw)
	}
	return d, nil
}
