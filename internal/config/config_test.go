package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromReader(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		yml := `
server:
  listen_addr: ":9090"
  log_level: debug
  cors_origins: ["https://hr.example.com"]
backend:
  base_url: "https://api.example.com"
  timeout: 5s
interview:
  total_questions: 5
  default_time_limit: 90s
speech:
  language: "en-GB"
  narration_enabled: false
  rate: 1.1
proctor:
  photo_interval: 30s
localstore:
  path: ":memory:"
`
		cfg, err := LoadFromReader(strings.NewReader(yml))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.ListenAddr != ":9090" {
			t.Errorf("listen_addr = %q, want :9090", cfg.Server.ListenAddr)
		}
		if cfg.Interview.TotalQuestions != 5 {
			t.Errorf("total_questions = %d, want 5", cfg.Interview.TotalQuestions)
		}
		if cfg.Interview.DefaultTimeLimit != 90*time.Second {
			t.Errorf("default_time_limit = %s, want 90s", cfg.Interview.DefaultTimeLimit)
		}
		if cfg.Speech.NarrationEnabledOrDefault() {
			t.Error("narration should be disabled")
		}
		if cfg.Speech.Rate != 1.1 {
			t.Errorf("rate = %v, want 1.1", cfg.Speech.Rate)
		}
	})

	t.Run("defaults fill zero values", func(t *testing.T) {
		cfg, err := LoadFromReader(strings.NewReader(`
backend:
  base_url: "https://api.example.com"
`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.ListenAddr != DefaultListenAddr {
			t.Errorf("listen_addr = %q, want default", cfg.Server.ListenAddr)
		}
		if cfg.Interview.TotalQuestions != DefaultTotalQuestions {
			t.Errorf("total_questions = %d, want %d", cfg.Interview.TotalQuestions, DefaultTotalQuestions)
		}
		if cfg.Interview.DefaultTimeLimit != DefaultTimeLimit {
			t.Errorf("default_time_limit = %s, want %s", cfg.Interview.DefaultTimeLimit, DefaultTimeLimit)
		}
		if !cfg.Speech.NarrationEnabledOrDefault() {
			t.Error("narration should default to enabled")
		}
		if !cfg.Proctor.PhotoEnabledOrDefault() {
			t.Error("photo loop should default to enabled")
		}
		if cfg.Speech.Language != DefaultLanguage {
			t.Errorf("language = %q, want %q", cfg.Speech.Language, DefaultLanguage)
		}
	})

	t.Run("missing backend url fails validation", func(t *testing.T) {
		_, err := LoadFromReader(strings.NewReader(`
server:
  listen_addr: ":8080"
`))
		if err == nil {
			t.Fatal("expected validation error for missing backend.base_url")
		}
		if !strings.Contains(err.Error(), "backend.base_url") {
			t.Errorf("error should name backend.base_url, got: %v", err)
		}
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		_, err := LoadFromReader(strings.NewReader(`
backend:
  base_url: "https://api.example.com"
  retries: 3
`))
		if err == nil {
			t.Fatal("expected error for unknown field")
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		_, err := LoadFromReader(strings.NewReader(`
server:
  log_level: verbose
backend:
  base_url: "https://api.example.com"
`))
		if err == nil {
			t.Fatal("expected error for invalid log level")
		}
	})

	t.Run("narration rate out of range", func(t *testing.T) {
		_, err := LoadFromReader(strings.NewReader(`
backend:
  base_url: "https://api.example.com"
speech:
  rate: 3.5
`))
		if err == nil {
			t.Fatal("expected error for out-of-range rate")
		}
	})
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("INTERVOX_BACKEND_URL", "https://staging.example.com")
	t.Setenv("INTERVOX_LISTEN_ADDR", ":7070")

	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Backend.BaseURL = "https://api.example.com"
	ApplyEnvOverrides(cfg)

	if cfg.Backend.BaseURL != "https://staging.example.com" {
		t.Errorf("base_url = %q, want env override", cfg.Backend.BaseURL)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("listen_addr = %q, want env override", cfg.Server.ListenAddr)
	}
}

func TestLogLevelIsValid(t *testing.T) {
	for _, l := range []LogLevel{LogDebug, LogInfo, LogWarn, LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if LogLevel("trace").IsValid() {
		t.Error("trace should not be valid")
	}
}
