// Package store provides storage backends for WapiDaktari.
//
// This file implements a PostgreSQL-backed store for the turn log and the
// imported feature dataset.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/WapiDaktari/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	sqlTables
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{sqlTables{db: db, postgres: true, name: "PostgresStore"}}, nil
}

func (s *PostgresStore) RecordTurn(t models.Turn) error {
	if err := s.recordTurn(t); err != nil {
		slog.Error("PostgresStore RecordTurn failed", "error", err, "sessionID", t.SessionID)
		return err
	}
	slog.Debug("PostgresStore RecordTurn succeeded", "sessionID", t.SessionID, "step", t.Step)
	return nil
}

func (s *PostgresStore) GetTurns() ([]models.Turn, error) {
	turns, err := s.getTurns()
	if err != nil {
		slog.Error("PostgresStore GetTurns failed", "error", err)
		return nil, err
	}
	slog.Debug("PostgresStore GetTurns succeeded", "count", len(turns))
	return turns, nil
}

func (s *PostgresStore) PurgeTurnsBefore(cutoff time.Time) (int64, error) {
	n, err := s.purgeTurnsBefore(cutoff)
	if err != nil {
		slog.Error("PostgresStore PurgeTurnsBefore failed", "error", err)
		return 0, err
	}
	slog.Debug("PostgresStore PurgeTurnsBefore succeeded", "removed", n)
	return n, nil
}

func (s *PostgresStore) ImportFeatureRows(ctx context.Context, rows []models.FeatureRow) (int, error) {
	n, err := s.importFeatureRows(ctx, rows, false)
	if err != nil {
		slog.Error("PostgresStore ImportFeatureRows failed", "error", err)
		return 0, err
	}
	slog.Info("PostgresStore ImportFeatureRows succeeded", "count", n)
	return n, nil
}

func (s *PostgresStore) ReplaceFeatureRows(ctx context.Context, rows []models.FeatureRow) (int, error) {
	n, err := s.importFeatureRows(ctx, rows, true)
	if err != nil {
		slog.Error("PostgresStore ReplaceFeatureRows failed", "error", err)
		return 0, err
	}
	slog.Info("PostgresStore ReplaceFeatureRows succeeded", "count", n)
	return n, nil
}

func (s *PostgresStore) CountFeatureRows(ctx context.Context) (int, error) {
	return s.countFeatureRows(ctx)
}

func (s *PostgresStore) FindFeatureRow(ctx context.Context, key models.FeatureKey) (models.FeatureRow, error) {
	return s.findFeatureRow(ctx, key)
}

func (s *PostgresStore) Hospitals(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, hospitalsQuery)
}

func (s *PostgresStore) Departments(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, departmentsQuery)
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
