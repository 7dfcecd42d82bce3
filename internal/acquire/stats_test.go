package acquire

import (
	"testing"
	"time"
)

func TestStatsIntervalResetKeepsTotals(t *testing.T) {
	st := NewStats()
	when := time.Now()
	st.AddScan(100, when)
	st.AddScan(50, when.Add(time.Second))
	st.AddSkipped()
	st.AddDecodeError()
	st.AddResync()
	st.AddRetry()

	want := Counters{Scans: 2, Bytes: 150, Skipped: 1, DecodeErrors: 1, Resyncs: 1, Retries: 1}

	got, _ := st.GetAndReset()
	if got != want {
		t.Errorf("GetAndReset() = %+v, want %+v", got, want)
	}

	// The interval counters are fresh; the totals are not.
	got, _ = st.GetAndReset()
	if got != (Counters{}) {
		t.Errorf("second GetAndReset() = %+v, want zero counters", got)
	}

	totals, last := st.Totals()
	if totals != want {
		t.Errorf("Totals() = %+v, want %+v", totals, want)
	}
	if !last.Equal(when.Add(time.Second)) {
		t.Errorf("last scan time = %v, want %v", last, when.Add(time.Second))
	}
}

func TestStatsIntervalDuration(t *testing.T) {
	st := NewStats()
	time.Sleep(10 * time.Millisecond)
	if _, d := st.GetAndReset(); d < 10*time.Millisecond {
		t.Errorf("interval duration = %v, want at least 10ms", d)
	}
}
