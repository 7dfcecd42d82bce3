package acquire

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/timscan/internal/monitoring"
)

// Counters is one bundle of acquisition tallies.
type Counters struct {
	Scans        int64 `json:"scans"`
	Bytes        int64 `json:"bytes"`
	Skipped      int64 `json:"skipped"`
	DecodeErrors int64 `json:"decode_errors"`
	Resyncs      int64 `json:"resyncs"`
	Retries      int64 `json:"retries"`
}

// Stats tracks per-interval counters for rate logging plus running totals
// for the status API. Scans are decoded LMDscandata telegrams; Skipped are
// well-framed telegrams that were not scan data (command echoes and other
// events); DecodeErrors are malformed telegrams; Resyncs are oversized
// frame discards; Retries are transient transport faults.
type Stats struct {
	mu        sync.Mutex
	interval  Counters
	totals    Counters
	lastScan  time.Time
	lastReset time.Time
}

func NewStats() *Stats {
	return &Stats{lastReset: time.Now()}
}

func (ps *Stats) AddScan(nbytes int, when time.Time) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval.Scans++
	ps.interval.Bytes += int64(nbytes)
	ps.totals.Scans++
	ps.totals.Bytes += int64(nbytes)
	ps.lastScan = when
}

func (ps *Stats) AddSkipped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval.Skipped++
	ps.totals.Skipped++
}

func (ps *Stats) AddDecodeError() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval.DecodeErrors++
	ps.totals.DecodeErrors++
}

func (ps *Stats) AddResync() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval.Resyncs++
	ps.totals.Resyncs++
}

func (ps *Stats) AddRetry() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.interval.Retries++
	ps.totals.Retries++
}

// GetAndReset returns the counters accumulated since the previous call and
// the interval they cover, then zeroes the interval counters.
func (ps *Stats) GetAndReset() (Counters, time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration := now.Sub(ps.lastReset)
	out := ps.interval

	ps.interval = Counters{}
	ps.lastReset = now

	return out, duration
}

// Totals returns the running totals since construction along with the time
// of the most recent decoded scan (zero if none yet).
func (ps *Stats) Totals() (Counters, time.Time) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.totals, ps.lastScan
}

// LogStats logs interval rates through the monitoring logger and resets the
// interval counters. Quiet intervals log nothing.
func (ps *Stats) LogStats() {
	c, duration := ps.GetAndReset()
	if c.Scans == 0 && c.Skipped == 0 && c.DecodeErrors == 0 && c.Resyncs == 0 && c.Retries == 0 {
		return
	}

	scansPerSec := float64(c.Scans) / duration.Seconds()
	kbPerSec := float64(c.Bytes) / duration.Seconds() / 1024

	logMsg := fmt.Sprintf("Scan stats (/sec): %.1f scans, %.1f KB", scansPerSec, kbPerSec)
	if c.Skipped > 0 {
		logMsg += fmt.Sprintf(", %d skipped", c.Skipped)
	}
	if c.DecodeErrors > 0 {
		logMsg += fmt.Sprintf(", %d decode errors", c.DecodeErrors)
	}
	if c.Resyncs > 0 {
		logMsg += fmt.Sprintf(", %d resyncs", c.Resyncs)
	}
	if c.Retries > 0 {
		logMsg += fmt.Sprintf(", %d retries", c.Retries)
	}
	monitoring.Logf("%s", logMsg)
}
