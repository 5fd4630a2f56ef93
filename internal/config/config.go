package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all configurable gtm settings.
type Config struct {
	// IdleThreshold is the longest gap still counted as work.
	IdleThreshold Duration `json:"idle_threshold"`
	// MinDuration is the per-file noise floor. Nil inherits, 0 disables it.
	MinDuration          *Duration `json:"min_duration,omitempty"`
	LockTimeout          Duration  `json:"lock_timeout"`
	LockRetry            Duration  `json:"lock_retry"`
	StaleAfter           Duration  `json:"stale_after"` // age of an abandoned in-flight segment
	ArchiveConsumed      *bool     `json:"archive_consumed,omitempty"`
	FailureWarnThreshold int       `json:"failure_warn_threshold"`
	IgnorePatterns       []string  `json:"ignore_patterns"`
	Debug                bool      `json:"debug"`
}

// Duration is a time.Duration that reads from JSON as either a Go duration
// string ("2m") or a number of seconds. Negative values are rejected.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		return d.set(v)
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	return d.set(time.Duration(secs * float64(time.Second)))
}

func (d *Duration) set(v time.Duration) error {
	if v < 0 {
		return fmt.Errorf("negative duration %v", v)
	}
	d.Duration = v
	return nil
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	archive := false
	return Config{
		IdleThreshold:        Duration{2 * time.Minute},
		MinDuration:          &Duration{0},
		LockTimeout:          Duration{300 * time.Millisecond},
		LockRetry:            Duration{10 * time.Millisecond},
		StaleAfter:           Duration{5 * time.Minute},
		ArchiveConsumed:      &archive,
		FailureWarnThreshold: 3,
		IgnorePatterns:       []string{},
	}
}

// GlobalPath returns the path of the user-level config file:
// $XDG_CONFIG_HOME/gtm/config.json or ~/.config/gtm/config.json.
func GlobalPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "gtm", "config.json"), nil
}

// LoadGlobal reads the user-level config file.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads .gtmconfig in the repository root.
// Returns nil (no error) if the file is absent.
func LoadProject(root string) (*Config, error) {
	return loadFile(filepath.Join(root, ".gtmconfig"), false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	apply(&result, global)
	apply(&result, project)
	return result
}

func apply(dst *Config, src *Config) {
	if src == nil {
		return
	}
	if src.IdleThreshold.Duration > 0 {
		dst.IdleThreshold = src.IdleThreshold
	}
	if src.MinDuration != nil {
		v := *src.MinDuration
		dst.MinDuration = &v
	}
	if src.LockTimeout.Duration > 0 {
		dst.LockTimeout = src.LockTimeout
	}
	if src.LockRetry.Duration > 0 {
		dst.LockRetry = src.LockRetry
	}
	if src.StaleAfter.Duration > 0 {
		dst.StaleAfter = src.StaleAfter
	}
	if src.ArchiveConsumed != nil {
		v := *src.ArchiveConsumed
		dst.ArchiveConsumed = &v
	}
	if src.FailureWarnThreshold > 0 {
		dst.FailureWarnThreshold = src.FailureWarnThreshold
	}
	if len(src.IgnorePatterns) > 0 {
		dst.IgnorePatterns = src.IgnorePatterns
	}
	if src.Debug {
		dst.Debug = true
	}
}

// ApplyEnv overrides cfg with GTM_* environment variables.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("GTM_IDLE_THRESHOLD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing GTM_IDLE_THRESHOLD: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("GTM_IDLE_THRESHOLD must be positive, got %v", d)
		}
		cfg.IdleThreshold.Duration = d
	}
	if v := os.Getenv("GTM_MIN_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing GTM_MIN_DURATION: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("GTM_MIN_DURATION must not be negative, got %v", d)
		}
		cfg.MinDuration = &Duration{d}
	}
	if v := os.Getenv("GTM_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing GTM_DEBUG: %w", err)
		}
		cfg.Debug = debug
	}
	return nil
}

// NoiseFloor returns the per-file minimum duration.
func (c Config) NoiseFloor() time.Duration {
	if c.MinDuration == nil {
		return 0
	}
	return c.MinDuration.Duration
}

// Archive reports whether consumed event segments are archived.
func (c Config) Archive() bool {
	return c.ArchiveConsumed != nil && *c.ArchiveConsumed
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
