// Package config provides the configuration schema and loader for the
// Intervox interview session server.
package config

import "time"

// LogLevel controls log verbosity for the Intervox server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Intervox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Interview  InterviewConfig  `yaml:"interview"`
	Speech     SpeechConfig     `yaml:"speech"`
	Proctor    ProctorConfig    `yaml:"proctor"`
	LocalStore LocalStoreConfig `yaml:"localstore"`
}

// ServerConfig holds network and logging settings for the gateway server.
type ServerConfig struct {
	// ListenAddr is the TCP address the gateway listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// CORSOrigins lists origins allowed to call the control plane. An empty
	// list allows all origins (development default).
	CORSOrigins []string `yaml:"cors_origins"`
}

// BackendConfig describes the platform REST backend this engine submits
// questions, answers, photos, and session finalization to.
type BackendConfig struct {
	// BaseURL is the backend root (e.g., "https://api.example.com").
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each backend request. Zero means 10s.
	Timeout time.Duration `yaml:"timeout"`
}

// InterviewConfig holds the Q&A session policy.
type InterviewConfig struct {
	// SessionID is the HR document id of the interview this process serves.
	// Empty means a random id is generated at startup.
	SessionID string `yaml:"session_id"`

	// TotalQuestions is the fixed question quota per session. Zero means 10.
	TotalQuestions int `yaml:"total_questions"`

	// DefaultTimeLimit applies to questions that do not carry their own
	// time limit. Zero means 120 seconds.
	DefaultTimeLimit time.Duration `yaml:"default_time_limit"`
}

// SpeechConfig holds capture and narration settings.
type SpeechConfig struct {
	// Language is the BCP-47 recognition locale. Empty means "en-US".
	Language string `yaml:"language"`

	// NarrationEnabled controls whether questions are read aloud. When false
	// the capture window opens immediately on each question.
	NarrationEnabled *bool `yaml:"narration_enabled"`

	// Rate adjusts narration speaking rate (0.5–2.0). Zero means 0.8.
	Rate float64 `yaml:"rate"`
}

// ProctorConfig holds passive proctoring settings.
type ProctorConfig struct {
	// PhotoInterval is the period between camera captures. Zero means 60s.
	PhotoInterval time.Duration `yaml:"photo_interval"`

	// PhotoEnabled controls the camera capture loop. When nil, defaults to
	// true.
	PhotoEnabled *bool `yaml:"photo_enabled"`
}

// LocalStoreConfig describes the local best-effort mirror database.
type LocalStoreConfig struct {
	// Path is the SQLite file path. Empty means "intervox.db". Use ":memory:"
	// for an ephemeral store.
	Path string `yaml:"path"`
}

// NarrationEnabledOrDefault returns the effective narration switch (default true).
func (s SpeechConfig) NarrationEnabledOrDefault() bool {
	if s.NarrationEnabled == nil {
		return true
	}
	return *s.NarrationEnabled
}

// PhotoEnabledOrDefault returns the effective photo loop switch (default true).
func (p ProctorConfig) PhotoEnabledOrDefault() bool {
	if p.PhotoEnabled == nil {
		return true
	}
	return *p.PhotoEnabled
}
