// Package dataset loads the hospital feature dataset and serves exact-match
// feature lookups from memory.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BTreeMap/WapiDaktari/internal/models"
)

// requiredColumns are the lookup keys every dataset must carry.
var requiredColumns = []string{
	models.ColumnHospital,
	models.ColumnDepartment,
	models.ColumnDate,
	models.ColumnTimeBlock,
}

// ReadCSV parses a dataset with a header row into feature rows, preserving file order.
func ReadCSV(r io.Reader) ([]models.FeatureRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("dataset is empty")
		}
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("dataset missing required column %q", col)
		}
	}

	var rows []models.FeatureRow
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset line %d: %w", line, err)
		}
		values := make(map[string]string, len(header))
		for i, name := range header {
			values[name] = record[i]
		}
		date, err := normalizeDate(values[models.ColumnDate])
		if err != nil {
			return nil, fmt.Errorf("dataset line %d: %w", line, err)
		}
		values[models.ColumnDate] = date
		rows = append(rows, models.FeatureRow{
			Key: models.FeatureKey{
				Hospital:   values[models.ColumnHospital],
				Department: values[models.ColumnDepartment],
				Date:       date,
				TimeBlock:  models.TimeBlock(values[models.ColumnTimeBlock]),
			},
			Values: values,
		})
	}
	return rows, nil
}

// LoadCSV reads a dataset file from disk.
func LoadCSV(path string) ([]models.FeatureRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer f.Close()

	rows, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", path, err)
	}
	slog.Debug("dataset.LoadCSV: dataset loaded", "path", path, "rows", len(rows))
	return rows, nil
}

// normalizeDate accepts plain dates and the "YYYY-MM-DD HH:MM:SS" form pandas
// writes for datetime columns, returning YYYY-MM-DD.
func normalizeDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{models.DateLayout, "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(models.DateLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q", models.ErrInvalidDate, raw)
}
