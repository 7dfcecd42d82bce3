package main

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/banshee-data/timscan/internal/scan"
	"github.com/banshee-data/timscan/internal/units"
)

// Config holds the viewer's settings. Flags override anything set here.
type Config struct {
	Sensor SensorConfig `toml:"sensor"`
	View   ViewConfig   `toml:"view"`
}

// SensorConfig says where scans come from: a device to dial directly, or a
// running daemon's HTTP API to attach to.
type SensorConfig struct {
	Device string `toml:"device"`
	Preset string `toml:"preset"`
	API    string `toml:"api"`
}

// ViewConfig holds display settings.
type ViewConfig struct {
	Poll      string  `toml:"poll"`        // refresh interval, duration string
	MaxRangeM float64 `toml:"max_range_m"` // scope edge distance
	Units     string  `toml:"units"`       // display units: m, cm, ft or in
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() Config {
	return Config{
		Sensor: SensorConfig{
			Device: "192.168.0.1:2112",
			Preset: scan.DefaultPreset.Name,
		},
		View: ViewConfig{
			Poll:      "100ms",
			MaxRangeM: 10,
			Units:     units.M,
		},
	}
}

// LoadConfig reads the TOML config at path, layered over the defaults. An
// empty path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	conf := DefaultConfig()
	if path == "" {
		return conf, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	if err := toml.Unmarshal(data, &conf); err != nil {
		return conf, err
	}
	return conf, nil
}

// PollInterval parses the poll setting, falling back to the default when it
// is missing or malformed.
func (c Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.View.Poll)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}
