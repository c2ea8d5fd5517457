package ussd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/WapiDaktari/internal/models"
)

// state is one node of the menu tree. The trail is replayed as a fold of
// next over its tokens, starting from languageMenu.
type state interface {
	// next consumes one token.
	next(ctx context.Context, env *session, tok string) state
	// render produces the screen for this node.
	render(ctx context.Context, env *session) Screen
}

type languageMenu struct{}

type mainMenu struct {
	locale Locale
}

type hospitalMenu struct {
	locale Locale
}

type departmentMenu struct {
	locale   Locale
	hospital string
}

type dateMenu struct {
	locale     Locale
	hospital   string
	department string
}

type dateEntry struct {
	locale     Locale
	hospital   string
	department string
}

// answer is terminal; rendering it runs the prediction.
type answer struct {
	locale     Locale
	hospital   string
	department string
	date       time.Time
}

// failure is a terminal error screen. message selects the catalog entry.
type failure struct {
	locale  Locale
	message func(catalog) string
}

func invalidInput(l Locale) state { return failure{locale: l, message: func(c catalog) string { return c.invalidInput }} }
func invalidDate(l Locale) state  { return failure{locale: l, message: func(c catalog) string { return c.invalidDate }} }
func unavailable(l Locale) state  { return failure{locale: l, message: func(c catalog) string { return c.unavailable }} }

// Unrecognized language choices re-prompt and are otherwise ignored.
func (s languageMenu) next(ctx context.Context, env *session, tok string) state {
	if l, ok := localeFromToken(tok); ok {
		return mainMenu{locale: l}
	}
	return s
}

func (s languageMenu) render(ctx context.Context, env *session) Screen {
	return continueScreen(languageScreen)
}

func (s mainMenu) next(ctx context.Context, env *session, tok string) state {
	switch tok {
	case "1":
		return hospitalMenu{locale: s.locale}
	case "2":
		return mainMenu{locale: s.locale.Toggle()}
	case BackToken:
		return s
	}
	return invalidInput(s.locale)
}

func (s mainMenu) render(ctx context.Context, env *session) Screen {
	return continueScreen(s.locale.text().mainMenu)
}

func (s hospitalMenu) next(ctx context.Context, env *session, tok string) state {
	if tok == BackToken {
		return s
	}
	hospitals, err := env.hospitals(ctx)
	if err != nil {
		return unavailable(s.locale)
	}
	name, ok := pick(hospitals, tok)
	if !ok {
		return invalidInput(s.locale)
	}
	return departmentMenu{locale: s.locale, hospital: name}
}

func (s hospitalMenu) render(ctx context.Context, env *session) Screen {
	hospitals, err := env.hospitals(ctx)
	if err != nil {
		return unavailable(s.locale).render(ctx, env)
	}
	c := s.locale.text()
	return continueScreen(listing(c.selectHospital, hospitals, c.back))
}

func (s departmentMenu) next(ctx context.Context, env *session, tok string) state {
	if tok == BackToken {
		return s
	}
	departments, err := env.departments(ctx)
	if err != nil {
		return unavailable(s.locale)
	}
	name, ok := pick(departments, tok)
	if !ok {
		return invalidInput(s.locale)
	}
	return dateMenu{locale: s.locale, hospital: s.hospital, department: name}
}

func (s departmentMenu) render(ctx context.Context, env *session) Screen {
	departments, err := env.departments(ctx)
	if err != nil {
		return unavailable(s.locale).render(ctx, env)
	}
	c := s.locale.text()
	return continueScreen(listing(c.selectDept, departments, c.back))
}

func (s dateMenu) next(ctx context.Context, env *session, tok string) state {
	today := env.today()
	switch tok {
	case "1":
		return answer{locale: s.locale, hospital: s.hospital, department: s.department, date: today}
	case "2":
		return answer{locale: s.locale, hospital: s.hospital, department: s.department, date: today.AddDate(0, 0, 1)}
	case "3":
		return answer{locale: s.locale, hospital: s.hospital, department: s.department, date: today.AddDate(0, 0, 2)}
	case "4":
		return dateEntry{locale: s.locale, hospital: s.hospital, department: s.department}
	case BackToken:
		return s
	}
	return invalidInput(s.locale)
}

func (s dateMenu) render(ctx context.Context, env *session) Screen {
	c := s.locale.text()
	return continueScreen(c.dateMenu + "\n" + c.back)
}

func (s dateEntry) next(ctx context.Context, env *session, tok string) state {
	if tok == BackToken {
		return dateMenu{locale: s.locale, hospital: s.hospital, department: s.department}
	}
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(tok))
	if err != nil {
		return invalidDate(s.locale)
	}
	return answer{locale: s.locale, hospital: s.hospital, department: s.department, date: date}
}

func (s dateEntry) render(ctx context.Context, env *session) Screen {
	c := s.locale.text()
	return continueScreen(c.dateEntry + "\n" + c.back)
}

// The session ends at an answer; anything typed after it is invalid.
func (s answer) next(ctx context.Context, env *session, tok string) state {
	return invalidInput(s.locale)
}

func (s answer) render(ctx context.Context, env *session) Screen {
	return env.answer(ctx, s)
}

func (s failure) next(ctx context.Context, env *session, tok string) state {
	return s
}

func (s failure) render(ctx context.Context, env *session) Screen {
	return endScreen(s.message(s.locale.text()))
}

// pick resolves a 1-based option code by exact string comparison.
func pick(options []string, tok string) (string, bool) {
	for i, opt := range options {
		if tok == strconv.Itoa(i+1) {
			return opt, true
		}
	}
	return "", false
}

func listing(title string, options []string, back string) string {
	var sb strings.Builder
	sb.WriteString(title)
	for i, opt := range options {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, opt)
	}
	sb.WriteString("\n")
	sb.WriteString(back)
	return sb.String()
}
