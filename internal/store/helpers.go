package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/WapiDaktari/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func rebind(query string, postgres bool) string {
	if !postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	insertTurnQuery = `INSERT INTO ussd_turns (session_id, phone_number, service_code, step, terminal, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	selectTurnsQuery = `SELECT session_id, phone_number, service_code, step, terminal, created_at FROM ussd_turns ORDER BY id`
	purgeTurnsQuery  = `DELETE FROM ussd_turns WHERE created_at < ?`

	insertFeatureQuery = `INSERT INTO feature_rows (hospital_name, department, date, time_block, features_json) VALUES (?, ?, ?, ?, ?)`
	countFeatureQuery  = `SELECT COUNT(*) FROM feature_rows`
	clearFeatureQuery  = `DELETE FROM feature_rows`
	findFeatureQuery   = `SELECT features_json FROM feature_rows WHERE hospital_name = ? AND department = ? AND date = ? AND time_block = ? ORDER BY id LIMIT 1`
	hospitalsQuery     = `SELECT hospital_name FROM feature_rows GROUP BY hospital_name ORDER BY MIN(id)`
	departmentsQuery   = `SELECT department FROM feature_rows GROUP BY department ORDER BY MIN(id)`
)

// sqlTables implements the turn log and feature queries over a database/sql
// handle. Both SQL backends embed it.
type sqlTables struct {
	db       *sql.DB
	postgres bool
	name     string
}

func (s sqlTables) q(query string) string { return rebind(query, s.postgres) }

func (s sqlTables) recordTurn(t models.Turn) error {
	_, err := s.db.Exec(s.q(insertTurnQuery),
		t.SessionID, nilIfEmpty(t.PhoneNumber), nilIfEmpty(t.ServiceCode), t.Step, t.Terminal, t.Time.UTC())
	if err != nil {
		return fmt.Errorf("%s: insert turn failed: %w", s.name, err)
	}
	return nil
}

func (s sqlTables) getTurns() ([]models.Turn, error) {
	rows, err := s.db.Query(s.q(selectTurnsQuery))
	if err != nil {
		return nil, fmt.Errorf("%s: query turns failed: %w", s.name, err)
	}
	defer rows.Close()
	var turns []models.Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s sqlTables) purgeTurnsBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(s.q(purgeTurnsQuery), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: purge turns failed: %w", s.name, err)
	}
	return res.RowsAffected()
}

// importFeatureRows inserts rows in one transaction. With replace the
// existing rows are deleted in the same transaction, so readers never see an
// empty or mixed table.
func (s sqlTables) importFeatureRows(ctx context.Context, rows []models.FeatureRow, replace bool) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin import failed: %w", s.name, err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, clearFeatureQuery); err != nil {
			return 0, fmt.Errorf("%s: clear feature rows failed: %w", s.name, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, s.q(insertFeatureQuery))
	if err != nil {
		return 0, fmt.Errorf("%s: prepare import failed: %w", s.name, err)
	}
	defer stmt.Close()

	for i, r := range rows {
		values, err := json.Marshal(r.Values)
		if err != nil {
			return 0, fmt.Errorf("%s: encode row %d failed: %w", s.name, i, err)
		}
		if _, err := stmt.ExecContext(ctx, r.Key.Hospital, r.Key.Department, r.Key.Date, string(r.Key.TimeBlock), string(values)); err != nil {
			return 0, fmt.Errorf("%s: insert row %d failed: %w", s.name, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit import failed: %w", s.name, err)
	}
	return len(rows), nil
}

func (s sqlTables) countFeatureRows(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countFeatureQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: count feature rows failed: %w", s.name, err)
	}
	return n, nil
}

func (s sqlTables) findFeatureRow(ctx context.Context, key models.FeatureKey) (models.FeatureRow, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.q(findFeatureQuery),
		key.Hospital, key.Department, key.Date, string(key.TimeBlock)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FeatureRow{}, fmt.Errorf("%w: %s", models.ErrFeatureRowNotFound, key)
	}
	if err != nil {
		return models.FeatureRow{}, fmt.Errorf("%s: find feature row failed: %w", s.name, err)
	}
	return decodeFeatureRow(key, raw)
}

func (s sqlTables) distinct(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: query catalog failed: %w", s.name, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%s: scan catalog failed: %w", s.name, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// scanTurn scans a Turn from sql.Rows.
func scanTurn(rows *sql.Rows) (models.Turn, error) {
	var t models.Turn
	var phone, service sql.NullString
	err := rows.Scan(&t.SessionID, &phone, &service, &t.Step, &t.Terminal, &t.Time)
	if err != nil {
		return t, fmt.Errorf("scan turn failed: %w", err)
	}
	t.PhoneNumber = phone.String
	t.ServiceCode = service.String
	return t, nil
}

// decodeFeatureRow rebuilds a row from its stored attribute JSON.
func decodeFeatureRow(key models.FeatureKey, raw string) (models.FeatureRow, error) {
	values := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return models.FeatureRow{}, fmt.Errorf("decode feature row %s failed: %w", key, err)
	}
	return models.FeatureRow{Key: key, Values: values}, nil
}
