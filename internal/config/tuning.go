package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/timscan/internal/scan"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for acquisition tuning.
// The schema matches the /api/scan/params endpoint so the same JSON can be
// used for both startup configuration and runtime inspection.
type TuningConfig struct {
	// Acquisition params
	Preset           *string `json:"preset,omitempty"`             // "0.33", "0.5" or "1.0"
	MaxTelegramBytes *int    `json:"max_telegram_bytes,omitempty"` // framing resync bound
	RetryPause       *string `json:"retry_pause,omitempty"`        // duration string like "100ms"
	SettleDelay      *string `json:"settle_delay,omitempty"`       // duration string like "200ms"

	// Reporting params
	StatsInterval *string `json:"stats_interval,omitempty"` // duration string like "10s"
	RollupPeriod  *string `json:"rollup_period,omitempty"`  // duration string like "60s"
	LogTailLines  *int    `json:"log_tail_lines,omitempty"`

	// Serial transport params
	BaudRate *int `json:"baud_rate,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// DefaultTuningConfig returns a TuningConfig populated with the built-in
// defaults, matching config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		Preset:           ptrString("0.5"),
		MaxTelegramBytes: ptrInt(8192),
		RetryPause:       ptrString("100ms"),
		SettleDelay:      ptrString("200ms"),
		StatsInterval:    ptrString("10s"),
		RollupPeriod:     ptrString("60s"),
		LogTailLines:     ptrInt(256),
		BaudRate:         ptrInt(115200),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into an empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.Preset != nil && *c.Preset != "" {
		if _, err := scan.PresetByName(*c.Preset); err != nil {
			return fmt.Errorf("invalid preset: %w", err)
		}
	}

	if c.MaxTelegramBytes != nil && *c.MaxTelegramBytes <= 0 {
		return fmt.Errorf("max_telegram_bytes must be positive, got %d", *c.MaxTelegramBytes)
	}

	for _, d := range []struct {
		name  string
		value *string
	}{
		{"retry_pause", c.RetryPause},
		{"settle_delay", c.SettleDelay},
		{"stats_interval", c.StatsInterval},
		{"rollup_period", c.RollupPeriod},
	} {
		if d.value != nil && *d.value != "" {
			if _, err := time.ParseDuration(*d.value); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", d.name, *d.value, err)
			}
		}
	}

	if c.LogTailLines != nil && *c.LogTailLines < 0 {
		return fmt.Errorf("log_tail_lines must be non-negative, got %d", *c.LogTailLines)
	}

	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}

	return nil
}

// GetPreset returns the configured preset name or the default.
func (c *TuningConfig) GetPreset() string {
	if c.Preset == nil || *c.Preset == "" {
		return scan.DefaultPreset.Name
	}
	return *c.Preset
}

// GetMaxTelegramBytes returns the max_telegram_bytes value or the default.
func (c *TuningConfig) GetMaxTelegramBytes() int {
	if c.MaxTelegramBytes == nil || *c.MaxTelegramBytes <= 0 {
		return 8192 // default
	}
	return *c.MaxTelegramBytes
}

// GetRetryPause parses and returns the RetryPause as a time.Duration.
func (c *TuningConfig) GetRetryPause() time.Duration {
	if c.RetryPause == nil || *c.RetryPause == "" {
		return 100 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.RetryPause)
	if err != nil {
		return 100 * time.Millisecond // default on parse error
	}
	return d
}

// GetSettleDelay parses and returns the SettleDelay as a time.Duration.
func (c *TuningConfig) GetSettleDelay() time.Duration {
	if c.SettleDelay == nil || *c.SettleDelay == "" {
		return 200 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.SettleDelay)
	if err != nil {
		return 200 * time.Millisecond // default on parse error
	}
	return d
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *TuningConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return 10 * time.Second // default on parse error
	}
	return d
}

// GetRollupPeriod parses and returns the RollupPeriod as a time.Duration.
func (c *TuningConfig) GetRollupPeriod() time.Duration {
	if c.RollupPeriod == nil || *c.RollupPeriod == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.RollupPeriod)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// GetLogTailLines returns the log_tail_lines value or the default.
func (c *TuningConfig) GetLogTailLines() int {
	if c.LogTailLines == nil || *c.LogTailLines < 0 {
		return 256 // default
	}
	return *c.LogTailLines
}

// GetBaudRate returns the baud_rate value or the default.
func (c *TuningConfig) GetBaudRate() int {
	if c.BaudRate == nil || *c.BaudRate <= 0 {
		return 115200 // default
	}
	return *c.BaudRate
}
