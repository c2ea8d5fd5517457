// Package ussd implements the stateless USSD menu. Every request carries the
// caller's full keystroke trail and the current screen is rebuilt from it.
package ussd

import "strings"

const (
	// Delimiter separates the tokens of a trail.
	Delimiter = "*"
	// BackToken asks for the previous screen.
	BackToken = "0"
)

// Trail is the parsed keystroke history of one session.
type Trail struct {
	Raw    string
	Tokens []string
}

// ParseTrail splits a raw trail. The empty string is a fresh session with no tokens.
func ParseTrail(raw string) Trail {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Trail{}
	}
	return Trail{Raw: raw, Tokens: strings.Split(raw, Delimiter)}
}

// Step is the number of tokens entered so far.
func (t Trail) Step() int {
	return len(t.Tokens)
}

// Last returns the most recent token, or "" for a fresh session.
func (t Trail) Last() string {
	if len(t.Tokens) == 0 {
		return ""
	}
	return t.Tokens[len(t.Tokens)-1]
}

// IsBack reports whether the most recent token is the back token.
func (t Trail) IsBack() bool {
	return t.Step() > 0 && t.Last() == BackToken
}
