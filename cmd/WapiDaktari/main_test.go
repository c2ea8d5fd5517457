package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/WapiDaktari/internal/config"
	"github.com/BTreeMap/WapiDaktari/internal/lockfile"
	"github.com/BTreeMap/WapiDaktari/internal/models"
	"github.com/BTreeMap/WapiDaktari/internal/testutil"
)

// setupFixtures writes the fixture dataset and models and points the environment at them.
func setupFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "hospital_data.csv")
	modelsPath := filepath.Join(dir, "ensemble.yaml")
	require.NoError(t, os.WriteFile(csvPath, []byte(testutil.FixtureCSV()), 0o644))
	require.NoError(t, os.WriteFile(modelsPath, []byte(testutil.ModelsYAML), 0o644))

	t.Setenv("WAPI_STATE_DIR", filepath.Join(dir, "state"))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("WAPI_DATASET_PATH", csvPath)
	t.Setenv("WAPI_MODELS_PATH", modelsPath)
	t.Setenv("WAPI_DATASET_BACKEND", "memory")
	t.Setenv("WAPI_TIMEZONE", "UTC")
	t.Setenv("WAPI_LOG_LEVEL", "error")
	t.Setenv("WAPI_SMS_FOLLOWUP", "false")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestUSSDCommand(t *testing.T) {
	setupFixtures(t)

	out, err := execute(t, "ussd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "CON Welcome to Wapi Daktari"))

	out, err = execute(t, "ussd", "1*1*1*1*4*2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, "END Best time at KNH (General) on 2025-03-10: Afternoon\nExpected wait: 50 minutes\nCongestion: Low\n", out)
}

func TestBestTimeCommand(t *testing.T) {
	setupFixtures(t)

	out, err := execute(t, "besttime", "--hospital", "Mbagathi", "--department", "Pediatrics", "--date", "2025-03-12")
	require.NoError(t, err)
	var result models.BestTime
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, models.TimeBlockAfternoon, result.TimeBlock)
	assert.Equal(t, 50.0, result.WaitMinutes)
	assert.Len(t, result.Auxiliary, 2)

	_, err = execute(t, "besttime", "--hospital", "KNH")
	assert.Error(t, err)

	_, err = execute(t, "besttime", "--hospital", "KNH", "--department", "General", "--date", "2031-01-01")
	assert.ErrorIs(t, err, models.ErrNoPrediction)

	_, err = execute(t, "besttime", "--hospital", "KNH", "--department", "General", "--date", "12/03/2025")
	assert.ErrorIs(t, err, models.ErrInvalidDate)
}

func TestImportAndSQLBackend(t *testing.T) {
	dir := setupFixtures(t)

	out, err := execute(t, "import")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 48 rows")
	_, err = os.Stat(filepath.Join(dir, "state", config.DefaultDBFileName))
	require.NoError(t, err)

	out, err = execute(t, "import")
	require.NoError(t, err)
	assert.Contains(t, out, "skipping")

	out, err = execute(t, "--dataset-backend", "sql", "ussd", "1*1*1*2*4*2025-03-11")
	require.NoError(t, err)
	assert.Equal(t, "END Best time at KNH (Pediatrics) on 2025-03-11: Afternoon\nExpected wait: 50 minutes\nCongestion: Low\n", out)
}

func TestImportForceReplacesDataset(t *testing.T) {
	dir := setupFixtures(t)

	_, err := execute(t, "import")
	require.NoError(t, err)

	renamed := filepath.Join(dir, "renamed.csv")
	require.NoError(t, os.WriteFile(renamed, []byte(strings.ReplaceAll(testutil.FixtureCSV(), "KNH", "Kenyatta")), 0o644))

	out, err := execute(t, "--dataset", renamed, "import", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "replaced 48 rows with 48 rows")

	out, err = execute(t, "--dataset-backend", "sql", "ussd", "1*1")
	require.NoError(t, err)
	assert.Contains(t, out, "1. Kenyatta\n2. Mbagathi")
	assert.NotContains(t, out, "KNH")

	out, err = execute(t, "--dataset-backend", "sql", "ussd", "1*1*1*1*4*2025-03-10")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "END Best time at Kenyatta (General)"), out)
}

func TestFirstUseImportTakesStateLock(t *testing.T) {
	dir := setupFixtures(t)
	lock, err := lockfile.AcquireLock(filepath.Join(dir, "state"))
	require.NoError(t, err)

	_, err = execute(t, "--dataset-backend", "sql", "ussd", "1*1")
	assert.ErrorIs(t, err, lockfile.ErrLocked)

	lock.Release()
	out, err := execute(t, "--dataset-backend", "sql", "ussd", "1*1")
	require.NoError(t, err)
	assert.Contains(t, out, "1. KNH")
}

func TestFlagFixesInvalidEnvironment(t *testing.T) {
	setupFixtures(t)
	t.Setenv("WAPI_TIMEZONE", "Mars/Olympus")

	_, err := execute(t, "ussd")
	assert.Error(t, err)

	out, err := execute(t, "--timezone", "UTC", "ussd")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "CON "))
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	setupFixtures(t)
	_, err := execute(t, "--dataset-backend", "redis", "ussd")
	assert.Error(t, err)

	_, err = execute(t, "--models", "/nonexistent/models.yaml", "ussd")
	assert.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	cfg := &config.Config{APIAddr: ":8080", StateDir: "/var/lib/wapidaktari"}
	applyFlags(cfg, Flags{apiAddr: ":9000", dbDSN: "postgres://localhost/wapi"})
	assert.Equal(t, ":9000", cfg.APIAddr)
	assert.Equal(t, "/var/lib/wapidaktari", cfg.StateDir)
	assert.Equal(t, "postgres://localhost/wapi", cfg.DSN())
}

func TestBuildStoreOptions(t *testing.T) {
	assert.Len(t, buildStoreOptions("postgres://localhost/wapi"), 1)
	assert.Len(t, buildStoreOptions("/tmp/wapi.db"), 1)
}

func TestParseDate(t *testing.T) {
	loc := time.UTC
	now := time.Now().In(loc)
	today, err := parseDate("today", loc)
	require.NoError(t, err)
	assert.Equal(t, now.Format(models.DateLayout), today.Format(models.DateLayout))

	tomorrow, err := parseDate("tomorrow", loc)
	require.NoError(t, err)
	assert.Equal(t, today.AddDate(0, 0, 1), tomorrow)

	d, err := parseDate("2025-03-10", loc)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", d.Format(models.DateLayout))

	_, err = parseDate("March 10", loc)
	assert.ErrorIs(t, err, models.ErrInvalidDate)
}

func TestBuildSMSSenderDisabled(t *testing.T) {
	assert.Nil(t, buildSMSSender(&config.Config{SMSFollowUp: false}))
	assert.Nil(t, buildSMSSender(&config.Config{SMSFollowUp: true}))
	assert.NotNil(t, buildSMSSender(&config.Config{
		SMSFollowUp:      true,
		TwilioAccountSID: "AC1",
		TwilioAuthToken:  "tok",
		TwilioFromNumber: "+15005550006",
	}))
}
