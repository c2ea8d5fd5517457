package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBool(t *testing.T) {
	tests := []struct {
		raw    string
		want   bool
		wantOK bool
	}{
		{"True", true, true},
		{"False", false, true},
		{" yes ", true, true},
		{"0", false, true},
		{"OFF", false, true},
		{"maybe", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		got, ok := ParseBool(tt.raw)
		assert.Equal(t, tt.wantOK, ok, "ok for %q", tt.raw)
		assert.Equal(t, tt.want, got, "value for %q", tt.raw)
	}
}

func TestFormatBoolRoundTrips(t *testing.T) {
	for _, b := range []bool{true, false} {
		got, ok := ParseBool(FormatBool(b))
		assert.True(t, ok)
		assert.Equal(t, b, got)
	}
	assert.Equal(t, "True", FormatBool(true))
}

func TestSwitchUnmarshalText(t *testing.T) {
	var s Switch
	assert.NoError(t, s.UnmarshalText([]byte("on")))
	assert.True(t, bool(s))
	assert.NoError(t, s.UnmarshalText([]byte("No")))
	assert.False(t, bool(s))
	assert.NoError(t, s.UnmarshalText([]byte("")))
	assert.False(t, bool(s))
	assert.Error(t, s.UnmarshalText([]byte("maybe")))
}
