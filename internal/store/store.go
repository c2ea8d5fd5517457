// Package store provides storage backends for WapiDaktari.
//
// Every backend keeps the USSD turn log. The SQL backends can also hold an
// imported copy of the feature dataset and serve feature lookups from it.
package store

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/WapiDaktari/internal/models"
)

// Store is the turn log shared by all backends.
type Store interface {
	RecordTurn(t models.Turn) error
	GetTurns() ([]models.Turn, error)
	// PurgeTurnsBefore deletes turns recorded before cutoff and returns how many were removed.
	PurgeTurnsBefore(cutoff time.Time) (int64, error)
	Close() error
}

// FeatureStore serves the feature dataset from a database.
type FeatureStore interface {
	ImportFeatureRows(ctx context.Context, rows []models.FeatureRow) (int, error)
	// ReplaceFeatureRows swaps the whole feature table for rows atomically.
	ReplaceFeatureRows(ctx context.Context, rows []models.FeatureRow) (int, error)
	CountFeatureRows(ctx context.Context) (int, error)
	FindFeatureRow(ctx context.Context, key models.FeatureKey) (models.FeatureRow, error)
	Hospitals(ctx context.Context) ([]string, error)
	Departments(ctx context.Context) ([]string, error)
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string // database connection string or file path
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithPostgresDSN sets the DSN for a PostgreSQL store.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the database file path for an SQLite store.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL URLs and keyword DSNs and
// "sqlite" for everything else.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a turn log that lives for the lifetime of the process.
type InMemoryStore struct {
	mu    sync.RWMutex
	turns []models.Turn
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) RecordTurn(t models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
	return nil
}

func (s *InMemoryStore) GetTurns() ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Turn(nil), s.turns...), nil
}

func (s *InMemoryStore) PurgeTurnsBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.turns[:0]
	var removed int64
	for _, t := range s.turns {
		if t.Time.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.turns = kept
	slog.Debug("InMemoryStore PurgeTurnsBefore succeeded", "removed", removed)
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
