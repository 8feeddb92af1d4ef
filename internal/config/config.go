// Package config holds harness configuration: defaults, YAML file loading,
// environment overrides, and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full harness configuration.
type Config struct {
	// Root is the harness data directory (sessions, index, reports)
	Root string `yaml:"root"`

	Logger    LoggerConfig    `yaml:"logger"`
	Intercept InterceptConfig `yaml:"intercept"`
	State     StateConfig     `yaml:"state"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Retention RetentionConfig `yaml:"retention"`
}

// LoggerConfig configures the structured logger and its pattern detectors.
type LoggerConfig struct {
	// BufferCap is the in-memory ring buffer capacity
	// Default: 1000
	BufferCap int `yaml:"buffer_cap"`

	// TrimBatch is how many entries over capacity accumulate before the
	// buffer is trimmed in one bulk pass
	// Default: 100
	TrimBatch int `yaml:"trim_batch"`

	// RotateBytes is the per-file size threshold for log rotation
	// Default: 50 MB
	RotateBytes int64 `yaml:"rotate_bytes"`

	// GapWindowSeconds is the lookback window for the success/failure gap
	// detector. The window and keyword lists are heuristic, not load-bearing.
	// Default: 5
	GapWindowSeconds int `yaml:"gap_window_seconds"`

	// SuccessKeywords mark an INFO entry as a textual success claim
	SuccessKeywords []string `yaml:"success_keywords"`
}

// InterceptConfig configures the console interceptor.
type InterceptConfig struct {
	// Forward controls whether captured calls pass through to the host
	// Default: true
	Forward bool `yaml:"forward"`

	// MaxDepth bounds serialization recursion. Default: 3
	MaxDepth int `yaml:"max_depth"`
	// MaxKeys bounds serialized object keys. Default: 20
	MaxKeys int `yaml:"max_keys"`
	// MaxElems bounds serialized array elements. Default: 10
	MaxElems int `yaml:"max_elems"`

	// CaptureStacks enables call-stack capture. Default: false
	CaptureStacks bool `yaml:"capture_stacks"`
	// StackDepth is the number of frames kept after stripping the
	// interceptor's own frames. Default: 8
	StackDepth int `yaml:"stack_depth"`
}

// StateConfig configures the state monitor.
type StateConfig struct {
	// IntervalMS is the periodic capture interval in milliseconds
	// Default: 1000
	IntervalMS int `yaml:"interval_ms"`

	// HistoryCap bounds the retained capture history. Default: 100
	HistoryCap int `yaml:"history_cap"`

	// NoiseBytes is the document byte-size change below which a capture is
	// insignificant. Default: 256
	NoiseBytes int `yaml:"noise_bytes"`

	// TextDeltaChars is the textual length change threshold. Default: 50
	TextDeltaChars int `yaml:"text_delta_chars"`

	// MutationRatePerSec throttles mutation-triggered captures. Default: 10
	MutationRatePerSec float64 `yaml:"mutation_rate_per_sec"`
	// MutationBurst is the limiter burst. Default: 5
	MutationBurst int `yaml:"mutation_burst"`
}

// WorkflowConfig configures the workflow health monitors.
type WorkflowConfig struct {
	// TimeoutSeconds is the stall timeout for in-flight workflows
	// Default: 30
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// CleanupSeconds drops in-flight entries that were never resolved
	// Default: 300
	CleanupSeconds int `yaml:"cleanup_seconds"`

	// WindowSize is the number of recent checks the health score covers
	// Default: 20
	WindowSize int `yaml:"window_size"`

	// PollIntervalMS is the probe/sweep interval in milliseconds
	// Default: 1000
	PollIntervalMS int `yaml:"poll_interval_ms"`

	// FailureHistoryCap bounds each monitor's failure list. Default: 200
	FailureHistoryCap int `yaml:"failure_history_cap"`

	// FailureWindowSeconds is how far back report aggregation reaches for
	// each monitor's recent failures. Default: 600
	FailureWindowSeconds int `yaml:"failure_window_seconds"`
}

// RetentionConfig configures session retention. The three limits apply in
// order: age, then count, then total bytes.
type RetentionConfig struct {
	// MaxAgeDays deletes sessions older than this. Default: 7
	MaxAgeDays int `yaml:"max_age_days"`

	// MaxSessions caps the session count, oldest deleted first. Default: 50
	MaxSessions int `yaml:"max_sessions"`

	// MaxTotalBytes caps combined session storage, oldest deleted first.
	// Default: 500 MB
	MaxTotalBytes int64 `yaml:"max_total_bytes"`
}

// Default returns the default harness configuration.
func Default() Config {
	return Config{
		Root: ".stagewatch",
		Logger: LoggerConfig{
			BufferCap:        1000,
			TrimBatch:        100,
			RotateBytes:      50 * 1024 * 1024,
			GapWindowSeconds: 5,
			SuccessKeywords:  []string{"success", "succeeded", "completed successfully", "applied"},
		},
		Intercept: InterceptConfig{
			Forward:       true,
			MaxDepth:      3,
			MaxKeys:       20,
			MaxElems:      10,
			CaptureStacks: false,
			StackDepth:    8,
		},
		State: StateConfig{
			IntervalMS:         1000,
			HistoryCap:         100,
			NoiseBytes:         256,
			TextDeltaChars:     50,
			MutationRatePerSec: 10,
			MutationBurst:      5,
		},
		Workflow: WorkflowConfig{
			TimeoutSeconds:       30,
			CleanupSeconds:       300,
			WindowSize:           20,
			PollIntervalMS:       1000,
			FailureHistoryCap:    200,
			FailureWindowSeconds: 600,
		},
		Retention: RetentionConfig{
			MaxAgeDays:    7,
			MaxSessions:   50,
			MaxTotalBytes: 500 * 1024 * 1024,
		},
	}
}

// GapWindow returns the gap detector window as a duration.
func (c LoggerConfig) GapWindow() time.Duration {
	return time.Duration(c.GapWindowSeconds) * time.Second
}

// Interval returns the capture interval as a duration.
func (c StateConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// Timeout returns the stall timeout as a duration.
func (c WorkflowConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CleanupAge returns the in-flight cleanup threshold as a duration.
func (c WorkflowConfig) CleanupAge() time.Duration {
	return time.Duration(c.CleanupSeconds) * time.Second
}

// PollInterval returns the sweep interval as a duration.
func (c WorkflowConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// FailureWindow returns the recent-failure reporting window as a duration.
func (c WorkflowConfig) FailureWindow() time.Duration {
	return time.Duration(c.FailureWindowSeconds) * time.Second
}

// MaxAge returns the retention age limit as a duration.
func (c RetentionConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

// Validate checks that the configuration has usable values.
func (c Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root directory is required")
	}
	if c.Logger.BufferCap < 10 {
		return fmt.Errorf("logger.buffer_cap must be at least 10 (got %d)", c.Logger.BufferCap)
	}
	if c.Logger.TrimBatch < 1 || c.Logger.TrimBatch > c.Logger.BufferCap {
		return fmt.Errorf("logger.trim_batch must be in [1, buffer_cap] (got %d)", c.Logger.TrimBatch)
	}
	if c.Logger.RotateBytes < 1024 {
		return fmt.Errorf("logger.rotate_bytes must be at least 1024 (got %d)", c.Logger.RotateBytes)
	}
	if c.Logger.GapWindowSeconds < 1 || c.Logger.GapWindowSeconds > 60 {
		return fmt.Errorf("logger.gap_window_seconds must be between 1 and 60 (got %d)", c.Logger.GapWindowSeconds)
	}
	if c.Intercept.MaxDepth < 1 {
		return fmt.Errorf("intercept.max_depth must be at least 1 (got %d)", c.Intercept.MaxDepth)
	}
	if c.Intercept.MaxKeys < 1 || c.Intercept.MaxElems < 1 {
		return fmt.Errorf("intercept.max_keys and intercept.max_elems must be at least 1")
	}
	if c.Intercept.StackDepth < 1 || c.Intercept.StackDepth > 64 {
		return fmt.Errorf("intercept.stack_depth must be between 1 and 64 (got %d)", c.Intercept.StackDepth)
	}
	if c.State.IntervalMS < 100 {
		return fmt.Errorf("state.interval_ms must be at least 100 (got %d)", c.State.IntervalMS)
	}
	if c.State.HistoryCap < 1 {
		return fmt.Errorf("state.history_cap must be at least 1 (got %d)", c.State.HistoryCap)
	}
	if c.State.MutationRatePerSec <= 0 || c.State.MutationBurst < 1 {
		return fmt.Errorf("state.mutation_rate_per_sec and state.mutation_burst must be positive")
	}
	if c.Workflow.TimeoutSeconds < 1 {
		return fmt.Errorf("workflow.timeout_seconds must be at least 1 (got %d)", c.Workflow.TimeoutSeconds)
	}
	if c.Workflow.CleanupSeconds < c.Workflow.TimeoutSeconds {
		return fmt.Errorf("workflow.cleanup_seconds (%d) must be >= workflow.timeout_seconds (%d)",
			c.Workflow.CleanupSeconds, c.Workflow.TimeoutSeconds)
	}
	if c.Workflow.WindowSize < 1 || c.Workflow.WindowSize > 1000 {
		return fmt.Errorf("workflow.window_size must be between 1 and 1000 (got %d)", c.Workflow.WindowSize)
	}
	if c.Workflow.PollIntervalMS < 100 {
		return fmt.Errorf("workflow.poll_interval_ms must be at least 100 (got %d)", c.Workflow.PollIntervalMS)
	}
	if c.Workflow.FailureHistoryCap < 10 {
		return fmt.Errorf("workflow.failure_history_cap must be at least 10 (got %d)", c.Workflow.FailureHistoryCap)
	}
	if c.Workflow.FailureWindowSeconds < 60 {
		return fmt.Errorf("workflow.failure_window_seconds must be at least 60 (got %d)", c.Workflow.FailureWindowSeconds)
	}
	if c.Retention.MaxAgeDays < 1 || c.Retention.MaxAgeDays > 365 {
		return fmt.Errorf("retention.max_age_days must be between 1 and 365 (got %d)", c.Retention.MaxAgeDays)
	}
	if c.Retention.MaxSessions < 1 {
		return fmt.Errorf("retention.max_sessions must be at least 1 (got %d)", c.Retention.MaxSessions)
	}
	if c.Retention.MaxTotalBytes < 1024 {
		return fmt.Errorf("retention.max_total_bytes must be at least 1024 (got %d)", c.Retention.MaxTotalBytes)
	}
	return nil
}

// Load reads a YAML config file, applies environment overrides, and
// validates the result. An empty path loads defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays STAGEWATCH_* environment variables onto cfg.
func applyEnv(cfg *Config) error {
	if err := parseEnvString("STAGEWATCH_ROOT", &cfg.Root); err != nil {
		return err
	}
	if err := parseEnvInt("STAGEWATCH_BUFFER_CAP", &cfg.Logger.BufferCap); err != nil {
		return err
	}
	if err := parseEnvInt64("STAGEWATCH_ROTATE_BYTES", &cfg.Logger.RotateBytes); err != nil {
		return err
	}
	if err := parseEnvInt("STAGEWATCH_GAP_WINDOW_SECONDS", &cfg.Logger.GapWindowSeconds); err != nil {
		return err
	}
	if err := parseEnvBool("STAGEWATCH_FORWARD_CONSOLE", &cfg.Intercept.Forward); err != nil {
		return err
	}
	if err := parseEnvInt("STAGEWATCH_STATE_INTERVAL_MS", &cfg.State.IntervalMS); err != nil {
		return err
	}
	if err := parseEnvInt("STAGEWATCH_WORKFLOW_TIMEOUT_SECONDS", &cfg.Workflow.TimeoutSeconds); err != nil {
		return err
	}
	if err := parseEnvInt("STAGEWATCH_RETENTION_MAX_AGE_DAYS", &cfg.Retention.MaxAgeDays); err != nil {
		return err
	}
	if err := parseEnvInt("STAGEWATCH_RETENTION_MAX_SESSIONS", &cfg.Retention.MaxSessions); err != nil {
		return err
	}
	if err := parseEnvInt64("STAGEWATCH_RETENTION_MAX_TOTAL_BYTES", &cfg.Retention.MaxTotalBytes); err != nil {
		return err
	}
	return nil
}

// parseEnvInt parses an int from an environment variable.
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt64 parses an int64 from an environment variable.
func parseEnvInt64(key string, dest *int64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable.
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable.
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}
