package ussd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/WapiDaktari/internal/models"
)

// Screen framing markers understood by USSD gateways.
const (
	MarkerContinue = "CON "
	MarkerEnd      = "END "
)

// Screen is one rendered menu page.
type Screen struct {
	Text string
	// End closes the session.
	End bool
	// Result is set on a successful best-time answer.
	Result *models.BestTime
	// FollowUp is a plain-text copy of the answer suitable for SMS.
	FollowUp string
}

func continueScreen(text string) Screen { return Screen{Text: text} }
func endScreen(text string) Screen      { return Screen{Text: text, End: true} }

// String frames the screen for the gateway.
func (s Screen) String() string {
	if s.End {
		return MarkerEnd + s.Text
	}
	return MarkerContinue + s.Text
}

// Catalog lists the hospitals and departments offered in the menu.
type Catalog interface {
	Hospitals(ctx context.Context) ([]string, error)
	Departments(ctx context.Context) ([]string, error)
}

// Predictor answers the best-time question.
type Predictor interface {
	Select(ctx context.Context, hospital, department string, date time.Time) (models.BestTime, error)
}

// Machine renders screens from trails. It keeps no per-session state and is
// safe for concurrent use.
type Machine struct {
	catalog   Catalog
	predictor Predictor
	now       func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock sets the clock used to resolve "today".
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates a menu machine.
func NewMachine(catalog Catalog, predictor Predictor, opts ...Option) *Machine {
	m := &Machine{catalog: catalog, predictor: predictor, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Respond parses a raw trail and renders its screen.
func (m *Machine) Respond(ctx context.Context, raw string) Screen {
	return m.Render(ctx, ParseTrail(raw))
}

// Render replays the trail from the language menu and renders where it ends.
func (m *Machine) Render(ctx context.Context, trail Trail) Screen {
	env := &session{machine: m, now: m.now()}
	var s state = languageMenu{}
	for _, tok := range trail.Tokens {
		s = s.next(ctx, env, tok)
	}
	screen := s.render(ctx, env)
	slog.Debug("Machine.Render: screen rendered", "step", trail.Step(), "state", fmt.Sprintf("%T", s), "end", screen.End)
	return screen
}

// session carries per-request lookups so a replay queries the catalog at most once.
type session struct {
	machine     *Machine
	now         time.Time
	hospitalsV  []string
	hospitalsE  error
	hospitalsOK bool
	deptsV      []string
	deptsE      error
	deptsOK     bool
}

func (e *session) today() time.Time {
	y, mo, d := e.now.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, e.now.Location())
}

func (e *session) hospitals(ctx context.Context) ([]string, error) {
	if !e.hospitalsOK {
		e.hospitalsV, e.hospitalsE = e.machine.catalog.Hospitals(ctx)
		e.hospitalsOK = true
		if e.hospitalsE != nil {
			slog.Error("Machine.Render: failed to list hospitals", "error", e.hospitalsE)
		}
	}
	return e.hospitalsV, e.hospitalsE
}

func (e *session) departments(ctx context.Context) ([]string, error) {
	if !e.deptsOK {
		e.deptsV, e.deptsE = e.machine.catalog.Departments(ctx)
		e.deptsOK = true
		if e.deptsE != nil {
			slog.Error("Machine.Render: failed to list departments", "error", e.deptsE)
		}
	}
	return e.deptsV, e.deptsE
}

// answer runs the prediction and turns every failure into a terminal screen.
func (e *session) answer(ctx context.Context, a answer) Screen {
	c := a.locale.text()
	result, err := e.machine.predictor.Select(ctx, a.hospital, a.department, a.date)
	if err != nil {
		if errors.Is(err, models.ErrNoPrediction) {
			slog.Info("Machine.Render: no prediction available", "hospital", a.hospital, "department", a.department, "date", a.date.Format(models.DateLayout))
			return endScreen(c.noPrediction)
		}
		slog.Error("Machine.Render: prediction failed", "error", err, "hospital", a.hospital, "department", a.department)
		return endScreen(c.unavailable)
	}
	text := fmt.Sprintf(c.answer,
		result.Hospital,
		result.Department,
		result.Date,
		c.blockName(result.TimeBlock),
		result.WaitMinutes,
		c.congestionName(result.Congestion),
	)
	screen := endScreen(text)
	screen.Result = &result
	screen.FollowUp = c.smsPrefix + text
	return screen
}
