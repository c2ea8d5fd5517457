package dataset

import (
	"context"
	"fmt"

	"github.com/BTreeMap/WapiDaktari/internal/models"
)

// Table is an immutable in-memory feature dataset. It is safe for concurrent
// use once built.
type Table struct {
	rows        []models.FeatureRow
	index       map[models.FeatureKey]int
	hospitals   []string
	departments []string
}

// NewTable indexes rows for exact-match lookup. When several rows share a key
// the first one wins.
func NewTable(rows []models.FeatureRow) *Table {
	t := &Table{
		rows:  rows,
		index: make(map[models.FeatureKey]int, len(rows)),
	}
	seenHospital := make(map[string]bool)
	seenDepartment := make(map[string]bool)
	for i, r := range rows {
		if _, ok := t.index[r.Key]; !ok {
			t.index[r.Key] = i
		}
		if !seenHospital[r.Key.Hospital] {
			seenHospital[r.Key.Hospital] = true
			t.hospitals = append(t.hospitals, r.Key.Hospital)
		}
		if !seenDepartment[r.Key.Department] {
			seenDepartment[r.Key.Department] = true
			t.departments = append(t.departments, r.Key.Department)
		}
	}
	return t
}

// FindFeatureRow returns the first row matching key or models.ErrFeatureRowNotFound.
func (t *Table) FindFeatureRow(ctx context.Context, key models.FeatureKey) (models.FeatureRow, error) {
	i, ok := t.index[key]
	if !ok {
		return models.FeatureRow{}, fmt.Errorf("%w: %s", models.ErrFeatureRowNotFound, key)
	}
	return t.rows[i], nil
}

// Hospitals returns the distinct hospitals in order of first appearance.
func (t *Table) Hospitals(ctx context.Context) ([]string, error) {
	return append([]string(nil), t.hospitals...), nil
}

// Departments returns the distinct departments in order of first appearance.
func (t *Table) Departments(ctx context.Context) ([]string, error) {
	return append([]string(nil), t.departments...), nil
}

// Len reports the number of rows in the table.
func (t *Table) Len() int {
	return len(t.rows)
}
