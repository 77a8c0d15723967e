package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults] when fields are left zero.
const (
	DefaultListenAddr     = ":8080"
	DefaultBackendTimeout = 10 * time.Second
	DefaultTotalQuestions = 10
	DefaultTimeLimit      = 120 * time.Second
	DefaultLanguage       = "en-US"
	DefaultNarrationRate  = 0.8
	DefaultPhotoInterval  = 60 * time.Second
	DefaultStorePath      = "intervox.db"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. A .env file in the working directory, when
// present, is loaded into the process environment first so that
// [ApplyEnvOverrides] can pick it up.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	ApplyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-value fields with the package defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = DefaultBackendTimeout
	}
	if cfg.Interview.TotalQuestions <= 0 {
		cfg.Interview.TotalQuestions = DefaultTotalQuestions
	}
	if cfg.Interview.DefaultTimeLimit <= 0 {
		cfg.Interview.DefaultTimeLimit = DefaultTimeLimit
	}
	if cfg.Speech.Language == "" {
		cfg.Speech.Language = DefaultLanguage
	}
	if cfg.Speech.Rate == 0 {
		cfg.Speech.Rate = DefaultNarrationRate
	}
	if cfg.Proctor.PhotoInterval <= 0 {
		cfg.Proctor.PhotoInterval = DefaultPhotoInterval
	}
	if cfg.LocalStore.Path == "" {
		cfg.LocalStore.Path = DefaultStorePath
	}
}

// ApplyEnvOverrides overlays selected environment variables onto cfg. Only
// deployment-dependent values are overridable; session policy stays in YAML.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INTERVOX_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("INTERVOX_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("INTERVOX_SESSION_ID"); v != "" {
		cfg.Interview.SessionID = v
	}
	if v := os.Getenv("INTERVOX_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
	if v := os.Getenv("INTERVOX_STORE_PATH"); v != "" {
		cfg.LocalStore.Path = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	}

	if cfg.Interview.TotalQuestions < 1 {
		errs = append(errs, fmt.Errorf("interview.total_questions %d must be at least 1", cfg.Interview.TotalQuestions))
	}
	if cfg.Interview.DefaultTimeLimit < time.Second {
		errs = append(errs, fmt.Errorf("interview.default_time_limit %s must be at least 1s", cfg.Interview.DefaultTimeLimit))
	}

	if cfg.Speech.Rate != 0 && (cfg.Speech.Rate < 0.5 || cfg.Speech.Rate > 2.0) {
		errs = append(errs, fmt.Errorf("speech.rate %.2f is out of range [0.5, 2.0]", cfg.Speech.Rate))
	}

	if cfg.Proctor.PhotoInterval < time.Second {
		errs = append(errs, fmt.Errorf("proctor.photo_interval %s must be at least 1s", cfg.Proctor.PhotoInterval))
	}

	return errors.Join(errs...)
}
