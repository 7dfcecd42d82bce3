// Package sweep computes summary statistics over scan ranging vectors: one
// scan at a time for the status API and rollup rows, and across a batch of
// scans for the capture tool's per-angle profile.
package sweep

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/timscan/internal/scan"
)

// Aggregate summarizes one scan's ranging vector. Samples with a zero range
// are no-echo returns and are excluded from the distance statistics.
type Aggregate struct {
	Samples    int     `json:"samples"`
	Valid      int     `json:"valid"`
	ValidRatio float64 `json:"valid_ratio"`
	MinM       float64 `json:"min_m"`
	MaxM       float64 `json:"max_m"`
	MeanM      float64 `json:"mean_m"`
	StdDevM    float64 `json:"stddev_m"`
	NearestDeg float64 `json:"nearest_deg"`
}

// Summarize computes the aggregate for one scan. A scan with no valid
// returns yields zero distance statistics and ValidRatio 0.
func Summarize(s scan.Scan) Aggregate {
	agg := Aggregate{Samples: len(s.Ranges)}
	if agg.Samples == 0 {
		return agg
	}

	valid := make([]float64, 0, len(s.Ranges))
	nearest := math.Inf(1)
	nearestIdx := -1
	for i, r := range s.Ranges {
		if r <= 0 {
			continue
		}
		valid = append(valid, r)
		if r < nearest {
			nearest = r
			nearestIdx = i
		}
	}
	agg.Valid = len(valid)
	agg.ValidRatio = float64(agg.Valid) / float64(agg.Samples)
	if agg.Valid == 0 {
		return agg
	}

	agg.MinM = floats.Min(valid)
	agg.MaxM = floats.Max(valid)
	agg.MeanM = stat.Mean(valid, nil)
	if agg.Valid > 1 {
		agg.StdDevM = stat.StdDev(valid, nil)
	}
	agg.NearestDeg = scan.AngleAt(nearestIdx, agg.Samples)
	return agg
}

// Profile holds per-angle statistics across a batch of equal-length scans.
type Profile struct {
	Angles []float64 `json:"angles_deg"`
	Mean   []float64 `json:"mean_m"`
	StdDev []float64 `json:"stddev_m"`
	Min    []float64 `json:"min_m"`
	Max    []float64 `json:"max_m"`
	Scans  int       `json:"scans"`
}

// BuildProfile computes per-angle statistics across scans, which must all
// carry the same number of samples. No-echo samples are excluded per angle;
// an angle with no echo in any scan keeps zero values.
func BuildProfile(scans []scan.Scan) (*Profile, error) {
	if len(scans) == 0 {
		return nil, fmt.Errorf("no scans to profile")
	}
	n := scans[0].Samples()
	for i, s := range scans {
		if s.Samples() != n {
			return nil, fmt.Errorf("scan %d has %d samples, want %d", i, s.Samples(), n)
		}
	}

	p := &Profile{
		Angles: scan.Angles(n),
		Mean:   make([]float64, n),
		StdDev: make([]float64, n),
		Min:    make([]float64, n),
		Max:    make([]float64, n),
		Scans:  len(scans),
	}

	col := make([]float64, 0, len(scans))
	for i := 0; i < n; i++ {
		col = col[:0]
		for _, s := range scans {
			if r := s.Ranges[i]; r > 0 {
				col = append(col, r)
			}
		}
		if len(col) == 0 {
			continue
		}
		p.Mean[i] = stat.Mean(col, nil)
		if len(col) > 1 {
			p.StdDev[i] = stat.StdDev(col, nil)
		}
		p.Min[i] = floats.Min(col)
		p.Max[i] = floats.Max(col)
	}
	return p, nil
}

// Points converts a scan to cartesian coordinates with the sensor at the
// origin and the x axis along the 0 degree beam. No-echo samples are
// dropped.
func Points(s scan.Scan) (xs, ys []float64) {
	angles := s.Angles()
	for i, r := range s.Ranges {
		if r <= 0 {
			continue
		}
		rad := angles[i] * math.Pi / 180
		xs = append(xs, r*math.Cos(rad))
		ys = append(ys, r*math.Sin(rad))
	}
	return xs, ys
}
