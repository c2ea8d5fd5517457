// Package util holds small helpers shared by the WapiDaktari packages.
package util

import (
	"fmt"
	"strings"
)

// ParseBool reads the boolean spellings found in env files and the dataset
// (true/1/yes/on, false/0/no/off, any case). ok is false for anything else.
func ParseBool(raw string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	}
	return false, false
}

// FormatBool renders b the way the dataset CSV does.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Switch is a bool that decodes every ParseBool spelling; empty is false. It
// implements encoding.TextUnmarshaler so env tags can target it.
type Switch bool

func (s *Switch) UnmarshalText(text []byte) error {
	if strings.TrimSpace(string(text)) == "" {
		*s = false
		return nil
	}
	v, ok := ParseBool(string(text))
	if !ok {
		return fmt.Errorf("invalid boolean %q", string(text))
	}
	*s = Switch(v)
	return nil
}
