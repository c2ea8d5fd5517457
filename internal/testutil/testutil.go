// Package testutil provides common test fixtures and helpers for WapiDaktari tests.
//
// The fixture dataset covers two hospitals and two departments on a handful of
// days. Its model bundle makes the afternoon block the cheapest everywhere.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/WapiDaktari/internal/dataset"
	"github.com/BTreeMap/WapiDaktari/internal/models"
	"github.com/BTreeMap/WapiDaktari/internal/predict"
)

// Fixture hospitals and departments, in dataset order.
var (
	Hospitals   = []string{"KNH", "Mbagathi"}
	Departments = []string{"General", "Pediatrics"}
)

// FixtureDates are the days covered by the fixture dataset.
var FixtureDates = []string{"2024-01-01", "2025-03-10", "2025-03-11", "2025-03-12"}

// Today is the clock value tests use; it is the second fixture date.
var Today = time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)

// Clock returns Today.
func Clock() time.Time { return Today }

// blockFeatures gives each block its doctors_on_shift and actual_patients.
// Predicted waits: Morning 80, Afternoon 50, Evening 70 minutes.
var blockFeatures = map[models.TimeBlock][2]int{
	models.TimeBlockMorning:   {1, 85},
	models.TimeBlockAfternoon: {4, 45},
	models.TimeBlockEvening:   {2, 60},
}

// ModelsYAML is the fixture model bundle.
const ModelsYAML = `
preprocessor:
  numeric:
    - {name: doctors_on_shift, mean: 0, scale: 1}
    - {name: actual_patients, mean: 60, scale: 10}
  categorical:
    - name: department
      categories: [General, Pediatrics]
label_encoder:
  classes: [High, Low, Medium]
models:
  - name: random_forest
    regressor:
      intercept: 90
      coefficients: [-10, 0, 0, 0]
    classifier:
      classes: [0, 1, 2]
      intercepts: [0, 0, 0]
      coefficients:
        - [0, 1, 0, 0]
        - [0, -1, 0, 0]
        - [0, 0, 0, 0]
  - name: xgboost
    regressor:
      intercept: 95
      coefficients: [-10, 0, 0, 0]
    classifier:
      classes: [2]
      intercepts: [0]
      coefficients:
        - [0, 0, 0, 0]
  - name: hybrid
    regressor:
      intercept: 85
      coefficients: [-10, 0, 0, 0]
    classifier:
      classes: [1]
      intercepts: [0]
      coefficients:
        - [0, 0, 0, 0]
`

// FixtureCSV renders the fixture dataset as CSV.
func FixtureCSV() string {
	var sb strings.Builder
	sb.WriteString("hospital_name,date,department,time_block,doctors_on_shift,actual_patients,is_weekend\n")
	for _, date := range FixtureDates {
		for _, h := range Hospitals {
			for _, d := range Departments {
				for _, b := range models.TimeBlocks() {
					f := blockFeatures[b]
					fmt.Fprintf(&sb, "%s,%s,%s,%s,%d,%d,False\n", h, date, d, b, f[0], f[1])
				}
			}
		}
	}
	return sb.String()
}

// Rows parses FixtureCSV.
func Rows(t *testing.T) []models.FeatureRow {
	t.Helper()
	rows, err := dataset.ReadCSV(strings.NewReader(FixtureCSV()))
	if err != nil {
		t.Fatalf("failed to parse fixture dataset: %v", err)
	}
	return rows
}

// Table returns the fixture dataset as an in-memory table.
func Table(t *testing.T) *dataset.Table {
	t.Helper()
	return dataset.NewTable(Rows(t))
}

// Artifacts returns the fixture model bundle.
func Artifacts(t *testing.T) *predict.Artifacts {
	t.Helper()
	a, err := predict.ParseArtifacts([]byte(ModelsYAML))
	if err != nil {
		t.Fatalf("failed to parse fixture models: %v", err)
	}
	return a
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON envelope and validates its status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) models.APIResponse {
	t.Helper()
	var response models.APIResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if response.Status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s' (message %q)", expectedStatus, response.Status, response.Message)
	}
	return response
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
