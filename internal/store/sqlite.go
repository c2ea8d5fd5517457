// Package store provides storage backends for WapiDaktari.
//
// This file implements an SQLite-backed store for the turn log and the
// imported feature dataset.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/WapiDaktari/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	sqlTables
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{sqlTables{db: db, name: "SQLiteStore"}}, nil
}

func (s *SQLiteStore) RecordTurn(t models.Turn) error {
	if err := s.recordTurn(t); err != nil {
		slog.Error("SQLiteStore RecordTurn failed", "error", err, "sessionID", t.SessionID)
		return err
	}
	slog.Debug("SQLiteStore RecordTurn succeeded", "sessionID", t.SessionID, "step", t.Step)
	return nil
}

func (s *SQLiteStore) GetTurns() ([]models.Turn, error) {
	turns, err := s.getTurns()
	if err != nil {
		slog.Error("SQLiteStore GetTurns failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore GetTurns succeeded", "count", len(turns))
	return turns, nil
}

func (s *SQLiteStore) PurgeTurnsBefore(cutoff time.Time) (int64, error) {
	n, err := s.purgeTurnsBefore(cutoff)
	if err != nil {
		slog.Error("SQLiteStore PurgeTurnsBefore failed", "error", err)
		return 0, err
	}
	slog.Debug("SQLiteStore PurgeTurnsBefore succeeded", "removed", n)
	return n, nil
}

// ImportFeatureRows appends rows to the feature table in one transaction.
func (s *SQLiteStore) ImportFeatureRows(ctx context.Context, rows []models.FeatureRow) (int, error) {
	n, err := s.importFeatureRows(ctx, rows, false)
	if err != nil {
		slog.Error("SQLiteStore ImportFeatureRows failed", "error", err)
		return 0, err
	}
	slog.Info("SQLiteStore ImportFeatureRows succeeded", "count", n)
	return n, nil
}

func (s *SQLiteStore) ReplaceFeatureRows(ctx context.Context, rows []models.FeatureRow) (int, error) {
	n, err := s.importFeatureRows(ctx, rows, true)
	if err != nil {
		slog.Error("SQLiteStore ReplaceFeatureRows failed", "error", err)
		return 0, err
	}
	slog.Info("SQLiteStore ReplaceFeatureRows succeeded", "count", n)
	return n, nil
}

func (s *SQLiteStore) CountFeatureRows(ctx context.Context) (int, error) {
	return s.countFeatureRows(ctx)
}

// FindFeatureRow returns the earliest imported row matching key.
func (s *SQLiteStore) FindFeatureRow(ctx context.Context, key models.FeatureKey) (models.FeatureRow, error) {
	return s.findFeatureRow(ctx, key)
}

// Hospitals returns the distinct hospitals in import order.
func (s *SQLiteStore) Hospitals(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, hospitalsQuery)
}

// Departments returns the distinct departments in import order.
func (s *SQLiteStore) Departments(ctx context.Context) ([]string, error) {
	return s.distinct(ctx, departmentsQuery)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
