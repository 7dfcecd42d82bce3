package scan

import "time"

// Scan is one decoded sweep: the ranging vector plus capture metadata. Ranges
// are in meters, ordered by increasing beam angle across the field of view.
// The zero value means "no scan".
type Scan struct {
	// Seq is the 1-based publish sequence number within the acquisition
	// session. Consumers can detect skipped sweeps by watching for gaps.
	Seq uint64 `json:"seq"`

	// Taken is the wall-clock time the sweep was decoded.
	Taken time.Time `json:"taken"`

	// Preset names the angular resolution mode in effect, when known.
	Preset string `json:"preset,omitempty"`

	// Ranges holds one distance in meters per beam.
	Ranges []float64 `json:"ranges"`
}

// Samples returns the number of beams in the sweep.
func (s Scan) Samples() int { return len(s.Ranges) }

// Angles returns the beam angles in degrees matching s.Ranges.
func (s Scan) Angles() []float64 { return Angles(len(s.Ranges)) }

// Clone returns a deep copy. The ranges slice is never shared, so callers may
// mutate the copy freely.
func (s Scan) Clone() Scan {
	out := s
	if s.Ranges != nil {
		out.Ranges = make([]float64, len(s.Ranges))
		copy(out.Ranges, s.Ranges)
	}
	return out
}
