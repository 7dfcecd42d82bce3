// Package scan holds the domain types for a 2D scanning rangefinder: the
// decoded sweep, the sensor's angular resolution presets, and the single-slot
// latest-scan buffer shared between the acquisition goroutine and consumers.
package scan

import (
	"fmt"
	"time"
)

// The sensor sweeps a fixed 270 degree field of view, reported from -135 to
// +135 degrees relative to straight ahead.
const (
	FieldOfViewDeg = 270.0
	AngleMinDeg    = -135.0
	AngleMaxDeg    = 135.0
)

// Preset describes one of the sensor's angular resolution modes. Higher
// sample density trades away scan rate. FreqCode is the value sent in the
// scan configuration command to select the mode.
type Preset struct {
	Name          string  `json:"name"`
	ResolutionDeg float64 `json:"resolution_deg"`
	Samples       int     `json:"samples"`
	ScanRateHz    int     `json:"scan_rate_hz"`
	FreqCode      int     `json:"freq_code"`
}

var (
	// PresetFine is 0.33 degree resolution, 810 samples per sweep at 15 Hz.
	PresetFine = Preset{Name: "0.33", ResolutionDeg: 0.33, Samples: 810, ScanRateHz: 15, FreqCode: 1}

	// PresetMedium is 0.5 degree resolution, 540 samples per sweep at 25 Hz.
	PresetMedium = Preset{Name: "0.5", ResolutionDeg: 0.5, Samples: 540, ScanRateHz: 25, FreqCode: 2}

	// PresetCoarse is 1.0 degree resolution, 270 samples per sweep at 50 Hz.
	PresetCoarse = Preset{Name: "1.0", ResolutionDeg: 1.0, Samples: 270, ScanRateHz: 50, FreqCode: 3}
)

// Presets lists the supported modes in increasing resolution order.
var Presets = []Preset{PresetFine, PresetMedium, PresetCoarse}

// DefaultPreset is the mode used when none is configured.
var DefaultPreset = PresetMedium

// PresetByName resolves a preset from its name ("0.33", "0.5", "1.0").
func PresetByName(name string) (Preset, error) {
	for _, p := range Presets {
		if p.Name == name {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("unknown resolution preset %q: supported values are 0.33, 0.5, 1.0", name)
}

// String implements fmt.Stringer.
func (p Preset) String() string {
	return fmt.Sprintf("%s° (%d samples @ %d Hz)", p.Name, p.Samples, p.ScanRateHz)
}

// SweepDuration returns the nominal time for one full sweep.
func (p Preset) SweepDuration() time.Duration {
	if p.ScanRateHz <= 0 {
		return 0
	}
	return time.Second / time.Duration(p.ScanRateHz)
}

// Angles returns the beam angle in degrees for each of n samples, spread
// inclusively from AngleMinDeg to AngleMaxDeg. For a single sample the angle
// is AngleMinDeg.
func Angles(n int) []float64 {
	if n <= 0 {
		return nil
	}
	angles := make([]float64, n)
	if n == 1 {
		angles[0] = AngleMinDeg
		return angles
	}
	step := FieldOfViewDeg / float64(n-1)
	for i := range angles {
		angles[i] = AngleMinDeg + float64(i)*step
	}
	return angles
}

// AngleAt returns the beam angle in degrees for sample index i of an n-sample
// sweep, using the same inclusive endpoint spacing as Angles.
func AngleAt(i, n int) float64 {
	if n <= 1 {
		return AngleMinDeg
	}
	return AngleMinDeg + float64(i)*FieldOfViewDeg/float64(n-1)
}
