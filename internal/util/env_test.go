package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value string
		def   bool
		want  bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"No", true, false},
		{"off", true, false},
		{"", true, true},
		{"", false, false},
		{"banana", true, true},
		{"banana", false, false},
		{" true ", false, true},
	}
	for _, c := range cases {
		t.Setenv("TEST_BOOL_ENV", c.value)
		if got := ParseBoolEnv("TEST_BOOL_ENV", c.def); got != c.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", c.value, c.def, got, c.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("TEST_DURATION_ENV", "15s")
	if got := ParseDurationEnv("TEST_DURATION_ENV", 20*time.Second); got != 15*time.Second {
		t.Errorf("ParseDurationEnv = %v, want 15s", got)
	}

	t.Setenv("TEST_DURATION_ENV", "")
	if got := ParseDurationEnv("TEST_DURATION_ENV", 20*time.Second); got != 20*time.Second {
		t.Errorf("ParseDurationEnv empty = %v, want default", got)
	}

	t.Setenv("TEST_DURATION_ENV", "soon")
	if got := ParseDurationEnv("TEST_DURATION_ENV", 20*time.Second); got != 20*time.Second {
		t.Errorf("ParseDurationEnv invalid = %v, want default", got)
	}
}

func TestParseFloatEnv(t *testing.T) {
	t.Setenv("TEST_FLOAT_ENV", "0.75")
	if got := ParseFloatEnv("TEST_FLOAT_ENV", 0.6); got != 0.75 {
		t.Errorf("ParseFloatEnv = %v, want 0.75", got)
	}

	t.Setenv("TEST_FLOAT_ENV", "")
	if got := ParseFloatEnv("TEST_FLOAT_ENV", 0.6); got != 0.6 {
		t.Errorf("ParseFloatEnv empty = %v, want default", got)
	}

	t.Setenv("TEST_FLOAT_ENV", "high")
	if got := ParseFloatEnv("TEST_FLOAT_ENV", 0.6); got != 0.6 {
		t.Errorf("ParseFloatEnv invalid = %v, want default", got)
	}
}
