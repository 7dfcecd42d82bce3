package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/timscan/internal/acquire"
	"github.com/banshee-data/timscan/internal/httputil"
	"github.com/banshee-data/timscan/internal/scan"
	"github.com/banshee-data/timscan/internal/sweep"
	"github.com/banshee-data/timscan/internal/transport"
)

// snapshot is one poll's worth of viewer state.
type snapshot struct {
	State     string
	SessionID string
	Device    string
	Preset    scan.Preset
	Totals    acquire.Counters
	FaultMsg  string
	Scan      scan.Scan
	HasScan   bool
	Agg       *sweep.Aggregate
}

// statusSource produces snapshots for the viewer, either from an
// acquisition loop sharing the process or from a remote daemon's HTTP API.
type statusSource interface {
	Snapshot() (snapshot, error)
	Close() error
}

// presetSwitcher is the optional source capability behind the resolution
// keys. Only the in-process source has it; a remote daemon owns its own
// session.
type presetSwitcher interface {
	SwitchPreset(p scan.Preset) error
}

// loopSource reads straight off an in-process acquisition loop. Switching
// presets swaps in a fresh loop, so loop access goes through the mutex.
type loopSource struct {
	device string
	cfg    acquire.Config

	mu   sync.Mutex
	loop *acquire.Loop
}

func newLoopSource(loop *acquire.Loop, device string, cfg acquire.Config) *loopSource {
	return &loopSource{loop: loop, device: device, cfg: cfg}
}

func (ls *loopSource) current() *acquire.Loop {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.loop
}

func (ls *loopSource) Snapshot() (snapshot, error) {
	loop := ls.current()
	snap := snapshot{
		State:     loop.State().String(),
		SessionID: loop.SessionID(),
		Device:    ls.device,
		Preset:    loop.Preset(),
	}
	snap.Totals, _ = loop.Stats().Totals()
	if err := loop.Err(); err != nil {
		snap.FaultMsg = err.Error()
	}
	if s, ok := loop.LatestScan(); ok {
		snap.Scan = s
		snap.HasScan = true
		agg := sweep.Summarize(s)
		snap.Agg = &agg
	}
	return snap, nil
}

// SwitchPreset stops the running session and starts a fresh one against the
// same device in the given mode. A loop cannot be reconfigured in place, so
// the sensor is redialed; counters and the session ID start over. Blocks
// through the configuration handshake, so call it off the UI goroutine.
func (ls *loopSource) SwitchPreset(p scan.Preset) error {
	old := ls.current()
	if old.Preset().Name == p.Name {
		return nil
	}
	old.RequestStop()
	<-old.Done()

	conn, err := transport.Dial(ls.device, transport.PortOptions{})
	if err != nil {
		return fmt.Errorf("reconnect to %s: %w", ls.device, err)
	}
	cfg := ls.cfg
	cfg.Preset = p
	loop := acquire.NewLoop(conn, cfg)
	if err := loop.Start(); err != nil {
		conn.Close()
		return fmt.Errorf("restart in %s mode: %w", p.Name, err)
	}

	ls.mu.Lock()
	ls.loop = loop
	ls.mu.Unlock()
	return nil
}

func (ls *loopSource) Close() error {
	loop := ls.current()
	loop.RequestStop()
	<-loop.Done()
	return nil
}

// remoteStatus mirrors the daemon's /api/scan/status payload.
type remoteStatus struct {
	State     string           `json:"state"`
	SessionID string           `json:"session_id"`
	Device    string           `json:"device"`
	Preset    scan.Preset      `json:"preset"`
	Error     string           `json:"error"`
	Totals    acquire.Counters `json:"totals"`
	Aggregate *sweep.Aggregate `json:"aggregate"`
}

// remoteScan mirrors the daemon's /api/scan/latest payload.
type remoteScan struct {
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
	Preset     string    `json:"preset"`
	RangesM    []float64 `json:"ranges_m"`
}

// errNoScan marks a 404 from the latest-scan endpoint: the daemon is up but
// has not published a sweep yet.
var errNoScan = errors.New("no scan yet")

// apiSource polls a daemon's HTTP API.
type apiSource struct {
	client  httputil.HTTPClient
	baseURL string
}

func newAPISource(client httputil.HTTPClient, baseURL string) *apiSource {
	return &apiSource{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (as *apiSource) Snapshot() (snapshot, error) {
	var status remoteStatus
	if err := as.getJSON("/api/scan/status", &status); err != nil {
		return snapshot{}, err
	}
	snap := snapshot{
		State:     status.State,
		SessionID: status.SessionID,
		Device:    status.Device,
		Preset:    status.Preset,
		Totals:    status.Totals,
		FaultMsg:  status.Error,
		Agg:       status.Aggregate,
	}

	var latest remoteScan
	switch err := as.getJSON("/api/scan/latest", &latest); {
	case err == nil:
		snap.Scan = scan.Scan{
			Seq:    latest.Seq,
			Taken:  latest.CapturedAt,
			Preset: latest.Preset,
			Ranges: latest.RangesM,
		}
		snap.HasScan = true
	case errors.Is(err, errNoScan):
	default:
		return snapshot{}, err
	}
	return snap, nil
}

func (as *apiSource) getJSON(path string, v any) error {
	resp, err := as.client.Get(as.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return errNoScan
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (as *apiSource) Close() error { return nil }
