package ussd

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/WapiDaktari/internal/besttime"
	"github.com/BTreeMap/WapiDaktari/internal/models"
	"github.com/BTreeMap/WapiDaktari/internal/testutil"
)

func newFixtureMachine(t *testing.T) *Machine {
	t.Helper()
	table := testutil.Table(t)
	a := testutil.Artifacts(t)
	selector := besttime.NewSelector(table, a.Preprocessor, a.Ensemble)
	return NewMachine(table, selector, WithClock(testutil.Clock))
}

// recordingPredictor captures the arguments of the last call.
type recordingPredictor struct {
	calls      int
	hospital   string
	department string
	date       time.Time
	result     models.BestTime
	err        error
}

func (p *recordingPredictor) Select(ctx context.Context, hospital, department string, date time.Time) (models.BestTime, error) {
	p.calls++
	p.hospital, p.department, p.date = hospital, department, date
	if p.err != nil {
		return models.BestTime{}, p.err
	}
	r := p.result
	r.Hospital, r.Department, r.Date = hospital, department, date.Format(models.DateLayout)
	return r, nil
}

type staticCatalog struct {
	hospitals   []string
	departments []string
	err         error
	calls       int
}

func (c *staticCatalog) Hospitals(ctx context.Context) ([]string, error) {
	c.calls++
	return c.hospitals, c.err
}

func (c *staticCatalog) Departments(ctx context.Context) ([]string, error) {
	c.calls++
	return c.departments, c.err
}

var answerPattern = regexp.MustCompile(`(?s)^END Best time at .+ on \d{4}-\d{2}-\d{2}: (Morning|Afternoon|Evening)\nExpected wait: \d+ minutes\nCongestion: (Low|Medium|High)$`)

func TestParseTrail(t *testing.T) {
	tests := []struct {
		raw    string
		step   int
		last   string
		isBack bool
	}{
		{"", 0, "", false},
		{"   ", 0, "", false},
		{"1", 1, "1", false},
		{"1*1*0", 3, "0", true},
		{" 1*2 ", 2, "2", false},
		{"1**3", 3, "3", false},
		{"1*1*1*1*4*2024-01-01", 6, "2024-01-01", false},
	}
	for _, tt := range tests {
		trail := ParseTrail(tt.raw)
		assert.Equal(t, tt.step, trail.Step(), "step for %q", tt.raw)
		assert.Equal(t, tt.last, trail.Last(), "last for %q", tt.raw)
		assert.Equal(t, tt.isBack, trail.IsBack(), "back for %q", tt.raw)
	}
}

func TestEmptyTrailIsAlwaysLanguageScreen(t *testing.T) {
	m := newFixtureMachine(t)
	first := m.Respond(context.Background(), "")
	// render a deep trail in between; nothing may leak into the next fresh session
	m.Respond(context.Background(), "2*1*1*1*1")
	second := m.Respond(context.Background(), "")

	for _, s := range []Screen{first, second} {
		assert.False(t, s.End)
		assert.Equal(t, MarkerContinue+languageScreen, s.String())
	}
}

func TestLanguageSelection(t *testing.T) {
	m := newFixtureMachine(t)
	ctx := context.Background()

	assert.Equal(t, "CON "+catalogs[LocaleEnglish].mainMenu, m.Respond(ctx, "1").String())
	assert.Equal(t, "CON "+catalogs[LocaleSwahili].mainMenu, m.Respond(ctx, "2").String())

	for _, raw := range []string{"3", "0", "x", "01", "3*9"} {
		assert.Equal(t, "CON "+languageScreen, m.Respond(ctx, raw).String(), "invalid locale %q re-prompts", raw)
	}
	// a rejected attempt does not poison the rest of the session
	assert.Equal(t, "CON "+catalogs[LocaleSwahili].mainMenu, m.Respond(ctx, "7*2").String())
}

func TestChangeLanguage(t *testing.T) {
	m := newFixtureMachine(t)
	ctx := context.Background()

	s := m.Respond(ctx, "1*2")
	assert.False(t, s.End)
	assert.Equal(t, catalogs[LocaleSwahili].mainMenu, s.Text)

	s = m.Respond(ctx, "2*2")
	assert.False(t, s.End)
	assert.Equal(t, catalogs[LocaleEnglish].mainMenu, s.Text)

	s = m.Respond(ctx, "1*2*1")
	assert.True(t, strings.HasPrefix(s.Text, catalogs[LocaleSwahili].selectHospital))
}

func TestMenuDrillDown(t *testing.T) {
	m := newFixtureMachine(t)
	ctx := context.Background()

	hospitals := m.Respond(ctx, "1*1")
	assert.False(t, hospitals.End)
	assert.Equal(t, "Select hospital:\n1. KNH\n2. Mbagathi\n0. Back", hospitals.Text)

	departments := m.Respond(ctx, "1*1*2")
	assert.Equal(t, "Select department:\n1. General\n2. Pediatrics\n0. Back", departments.Text)

	dates := m.Respond(ctx, "1*1*2*2")
	assert.Equal(t, catalogs[LocaleEnglish].dateMenu+"\n0. Back", dates.Text)
	assert.False(t, dates.End)

	entry := m.Respond(ctx, "1*1*2*2*4")
	assert.Equal(t, "Enter date (YYYY-MM-DD):\n0. Back", entry.Text)
	assert.False(t, entry.End)
}

func TestEndToEndToday(t *testing.T) {
	m := newFixtureMachine(t)
	s := m.Respond(context.Background(), "1*1*1*1*1")

	require.True(t, s.End)
	assert.Regexp(t, answerPattern, s.String())
	assert.Contains(t, s.Text, "KNH (General) on 2025-03-10: Afternoon")
	assert.Contains(t, s.Text, "Expected wait: 50 minutes")
	assert.Contains(t, s.Text, "Congestion: Low")
	require.NotNil(t, s.Result)
	assert.GreaterOrEqual(t, s.Result.WaitMinutes, 0.0)
	assert.Equal(t, "Wapi Daktari: "+s.Text, s.FollowUp)
}

func TestEndToEndExplicitDate(t *testing.T) {
	m := newFixtureMachine(t)
	s := m.Respond(context.Background(), "1*1*1*1*4*2024-01-01")

	require.True(t, s.End)
	assert.Regexp(t, answerPattern, s.String())
	assert.Contains(t, s.Text, "on 2024-01-01")
	require.NotNil(t, s.Result)
	assert.Equal(t, "2024-01-01", s.Result.Date)
}

func TestCannedDates(t *testing.T) {
	p := &recordingPredictor{result: models.BestTime{TimeBlock: models.TimeBlockMorning, WaitMinutes: 12, Congestion: "High"}}
	m := NewMachine(&staticCatalog{hospitals: []string{"KNH"}, departments: []string{"General"}}, p, WithClock(testutil.Clock))

	want := map[string]string{"1": "2025-03-10", "2": "2025-03-11", "3": "2025-03-12"}
	for tok, date := range want {
		s := m.Respond(context.Background(), "1*1*1*1*"+tok)
		require.True(t, s.End)
		assert.Equal(t, date, p.date.Format(models.DateLayout), "date option %s", tok)
		assert.Equal(t, "KNH", p.hospital)
		assert.Equal(t, "General", p.department)
	}
}

func TestSwahiliAnswer(t *testing.T) {
	m := newFixtureMachine(t)
	s := m.Respond(context.Background(), "2*1*2*2*1")
	require.True(t, s.End)
	assert.Equal(t, "Wakati bora Mbagathi (Pediatrics) tarehe 2025-03-10: Mchana\nMuda wa kusubiri: dakika 50\nMsongamano: Chini", s.Text)
}

func TestBackNavigation(t *testing.T) {
	m := newFixtureMachine(t)
	ctx := context.Background()

	// "0" at step N re-renders the screen the earlier tokens lead to.
	prefixes := []string{"1", "1*1", "1*1*1", "1*1*1*1"}
	for _, prefix := range prefixes {
		want := m.Respond(ctx, prefix)
		got := m.Respond(ctx, prefix+"*0")
		assert.Equal(t, want, got, "back after %q", prefix)
		assert.False(t, got.End)
	}

	// back from the literal date prompt returns to the date menu
	dateMenu := m.Respond(ctx, "1*1*1*1")
	assert.Equal(t, dateMenu, m.Respond(ctx, "1*1*1*1*4*0"))
	assert.Equal(t, dateMenu, m.Respond(ctx, "1*1*1*1*0"))

	// the session carries on after going back
	s := m.Respond(ctx, "1*1*1*1*4*0*1")
	require.True(t, s.End)
	assert.Contains(t, s.Text, "on 2025-03-10")
}

func TestInvalidInputs(t *testing.T) {
	m := newFixtureMachine(t)
	ctx := context.Background()
	invalid := "END " + catalogs[LocaleEnglish].invalidInput

	// main menu, hospital out of range, no integer parsing, negative code,
	// department, date menu, input after the answer, back after the answer,
	// and a Swahili date menu
	for _, raw := range []string{
		"1*3",
		"1*1*9",
		"1*1*01",
		"1*1*-1",
		"1*1*1*x",
		"1*1*1*1*5",
		"1*1*1*1*1*1",
		"1*1*1*1*1*0",
		"2*1*1*1*7",
	} {
		s := m.Respond(ctx, raw)
		assert.True(t, s.End, "trail %q should end", raw)
		if !strings.HasPrefix(raw, "2") {
			assert.Equal(t, invalid, s.String(), "trail %q", raw)
		} else {
			assert.Equal(t, "END "+catalogs[LocaleSwahili].invalidInput, s.String())
		}
	}
}

func TestInvalidLiteralDate(t *testing.T) {
	m := newFixtureMachine(t)
	for _, raw := range []string{"1*1*1*1*4*tomorrow", "1*1*1*1*4*2024-13-01", "1*1*1*1*4*01-01-2024"} {
		s := m.Respond(context.Background(), raw)
		assert.True(t, s.End)
		assert.Equal(t, catalogs[LocaleEnglish].invalidDate, s.Text, "trail %q", raw)
	}
}

func TestPredictionFailuresAreTerminal(t *testing.T) {
	ctx := context.Background()
	catalog := &staticCatalog{hospitals: []string{"KNH"}, departments: []string{"General"}}

	noPrediction := NewMachine(catalog, &recordingPredictor{err: models.ErrNoPrediction}, WithClock(testutil.Clock))
	s := noPrediction.Respond(ctx, "1*1*1*1*1")
	assert.True(t, s.End)
	assert.Equal(t, catalogs[LocaleEnglish].noPrediction, s.Text)
	assert.Nil(t, s.Result)

	broken := NewMachine(catalog, &recordingPredictor{err: errors.New("model exploded")}, WithClock(testutil.Clock))
	s = broken.Respond(ctx, "2*1*1*1*4*2024-01-01")
	assert.True(t, s.End)
	assert.Equal(t, catalogs[LocaleSwahili].unavailable, s.Text)
	assert.Empty(t, s.FollowUp)
}

func TestNoPredictionForUncoveredDay(t *testing.T) {
	m := newFixtureMachine(t)
	s := m.Respond(context.Background(), "1*1*1*1*4*2031-05-05")
	assert.True(t, s.End)
	assert.Equal(t, catalogs[LocaleEnglish].noPrediction, s.Text)
}

func TestCatalogFailure(t *testing.T) {
	catalog := &staticCatalog{err: errors.New("db down")}
	m := NewMachine(catalog, &recordingPredictor{}, WithClock(testutil.Clock))

	s := m.Respond(context.Background(), "1*1")
	assert.True(t, s.End)
	assert.Equal(t, catalogs[LocaleEnglish].unavailable, s.Text)

	catalog.calls = 0
	s = m.Respond(context.Background(), "1*1*1*1")
	assert.True(t, s.End)
	assert.Equal(t, 1, catalog.calls, "catalog failure stops the replay")
}

func TestAnswerUsesRawLabelWhenUndecodable(t *testing.T) {
	p := &recordingPredictor{result: models.BestTime{TimeBlock: models.TimeBlockEvening, WaitMinutes: 33, Congestion: "5"}}
	m := NewMachine(&staticCatalog{hospitals: []string{"KNH"}, departments: []string{"General"}}, p, WithClock(testutil.Clock))

	s := m.Respond(context.Background(), "2*1*1*1*1")
	require.True(t, s.End)
	assert.Contains(t, s.Text, "Jioni")
	assert.Contains(t, s.Text, "Msongamano: 5")
}

func TestRenderIsDeterministic(t *testing.T) {
	m := newFixtureMachine(t)
	trails := []string{"", "1", "1*1", "1*1*2", "1*1*2*1", "1*1*2*1*2", "1*1*2*1*4*2025-03-11", "1*1*0*1*0"}
	for _, raw := range trails {
		assert.Equal(t, m.Respond(context.Background(), raw), m.Respond(context.Background(), raw), "trail %q", raw)
	}
}
