package scan

import (
	"math"
	"testing"
)

func TestPresetByName(t *testing.T) {
	tests := []struct {
		name        string
		wantSamples int
		wantCode    int
		wantRate    int
	}{
		{"0.33", 810, 1, 15},
		{"0.5", 540, 2, 25},
		{"1.0", 270, 3, 50},
	}

	for _, tt := range tests {
		p, err := PresetByName(tt.name)
		if err != nil {
			t.Fatalf("PresetByName(%q): %v", tt.name, err)
		}
		if p.Samples != tt.wantSamples {
			t.Errorf("preset %q samples = %d, want %d", tt.name, p.Samples, tt.wantSamples)
		}
		if p.FreqCode != tt.wantCode {
			t.Errorf("preset %q freq code = %d, want %d", tt.name, p.FreqCode, tt.wantCode)
		}
		if p.ScanRateHz != tt.wantRate {
			t.Errorf("preset %q scan rate = %d, want %d", tt.name, p.ScanRateHz, tt.wantRate)
		}
	}
}

func TestPresetByNameUnknown(t *testing.T) {
	if _, err := PresetByName("0.25"); err == nil {
		t.Error("expected error for unknown preset name")
	}
	if _, err := PresetByName(""); err == nil {
		t.Error("expected error for empty preset name")
	}
}

func TestAnglesEndpoints(t *testing.T) {
	for _, n := range []int{270, 540, 810} {
		angles := Angles(n)
		if len(angles) != n {
			t.Fatalf("Angles(%d) returned %d values", n, len(angles))
		}
		if angles[0] != AngleMinDeg {
			t.Errorf("Angles(%d)[0] = %v, want %v", n, angles[0], AngleMinDeg)
		}
		if math.Abs(angles[n-1]-AngleMaxDeg) > 1e-9 {
			t.Errorf("Angles(%d)[last] = %v, want %v", n, angles[n-1], AngleMaxDeg)
		}
	}
}

func TestAnglesDegenerate(t *testing.T) {
	if got := Angles(0); got != nil {
		t.Errorf("Angles(0) = %v, want nil", got)
	}
	if got := Angles(1); len(got) != 1 || got[0] != AngleMinDeg {
		t.Errorf("Angles(1) = %v, want [%v]", got, AngleMinDeg)
	}
}

func TestAngleAtMatchesAngles(t *testing.T) {
	n := 540
	angles := Angles(n)
	for _, i := range []int{0, 1, 269, 270, 539} {
		if got := AngleAt(i, n); math.Abs(got-angles[i]) > 1e-12 {
			t.Errorf("AngleAt(%d, %d) = %v, want %v", i, n, got, angles[i])
		}
	}
}

func TestSweepDuration(t *testing.T) {
	if d := PresetCoarse.SweepDuration(); d.Milliseconds() != 20 {
		t.Errorf("coarse sweep duration = %v, want 20ms", d)
	}
	var zero Preset
	if d := zero.SweepDuration(); d != 0 {
		t.Errorf("zero preset sweep duration = %v, want 0", d)
	}
}
