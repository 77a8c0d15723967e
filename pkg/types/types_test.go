package types

import (
	"testing"
	"time"
)

func TestQuestionTimeLimit(t *testing.T) {
	t.Run("explicit limit", func(t *testing.T) {
		q := Question{TimeLimitSec: 90}
		if got := q.TimeLimit(); got != 90*time.Second {
			t.Errorf("TimeLimit() = %s, want 90s", got)
		}
	})

	t.Run("zero falls back to default", func(t *testing.T) {
		q := Question{}
		if got := q.TimeLimit(); got != DefaultTimeLimit {
			t.Errorf("TimeLimit() = %s, want %s", got, DefaultTimeLimit)
		}
	})

	t.Run("negative falls back to default", func(t *testing.T) {
		q := Question{TimeLimitSec: -5}
		if got := q.TimeLimit(); got != DefaultTimeLimit {
			t.Errorf("TimeLimit() = %s, want %s", got, DefaultTimeLimit)
		}
	})
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseOnboarding, "onboarding"},
		{PhaseAwaitingStart, "awaiting-start"},
		{PhaseInProgress, "in-progress"},
		{PhaseComplete, "complete"},
		{Phase(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00"},
		{59 * time.Second, "00:59"},
		{60 * time.Second, "01:00"},
		{2 * time.Minute, "02:00"},
		{119 * time.Second, "01:59"},
		{-3 * time.Second, "00:00"},
		{10 * time.Minute, "10:00"},
	}
	for _, tt := range tests {
		if got := FormatClock(tt.d); got != tt.want {
			t.Errorf("FormatClock(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
