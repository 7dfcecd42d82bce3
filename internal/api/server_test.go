package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/timscan/internal/acquire"
	"github.com/banshee-data/timscan/internal/db"
	"github.com/banshee-data/timscan/internal/monitoring"
	"github.com/banshee-data/timscan/internal/scan"
)

func TestMain(m *testing.M) {
	// Handler logs are noise in test output.
	log.SetOutput(io.Discard)
	monitoring.SetLogger(nil)
	m.Run()
}

// fakeSource is a canned ScanSource for handler tests.
type fakeSource struct {
	scan    scan.Scan
	hasScan bool
	state   acquire.State
	session string
	preset  scan.Preset
	stats   *acquire.Stats
	err     error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		state:   acquire.StateRunning,
		session: "ses_test",
		preset:  scan.PresetMedium,
		stats:   acquire.NewStats(),
	}
}

func (f *fakeSource) LatestScan() (scan.Scan, bool) { return f.scan.Clone(), f.hasScan }
func (f *fakeSource) State() acquire.State          { return f.state }
func (f *fakeSource) SessionID() string             { return f.session }
func (f *fakeSource) Preset() scan.Preset           { return f.preset }
func (f *fakeSource) Stats() *acquire.Stats         { return f.stats }
func (f *fakeSource) Err() error                    { return f.err }

func (f *fakeSource) setScan(seq uint64, age time.Duration, ranges ...float64) {
	f.scan = scan.Scan{
		Seq:    seq,
		Taken:  time.Now().Add(-age),
		Preset: f.preset.Name,
		Ranges: ranges,
	}
	f.hasScan = true
}

func newTestServer(source ScanSource, database *db.DB) *Server {
	return NewServer(Config{
		Addr:   ":0",
		Device: "192.168.0.10:2112",
		Source: source,
		DB:     database,
	})
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "127.0.0.1:51234"
	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %q", ct)
	}
	if err := json.NewDecoder(w.Body).Decode(into); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	w := get(t, newTestServer(newFakeSource(), nil), "/health")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]string
	decodeJSON(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %q", body["status"])
	}
	if body["service"] != "timscan" {
		t.Errorf("Expected service timscan, got %q", body["service"])
	}
}

func TestScanLatestBeforeFirstScan(t *testing.T) {
	w := get(t, newTestServer(newFakeSource(), nil), "/api/scan/latest")

	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 before first scan, got %d", w.Code)
	}
	var body map[string]string
	decodeJSON(t, w, &body)
	if body["error"] != "no scan yet" {
		t.Errorf("Expected 'no scan yet' error, got %q", body["error"])
	}
}

func TestScanLatest(t *testing.T) {
	source := newFakeSource()
	source.setScan(7, 250*time.Millisecond, 1.5, 2.0, 2.5)

	w := get(t, newTestServer(source, nil), "/api/scan/latest")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp scanResponse
	decodeJSON(t, w, &resp)

	if resp.Seq != 7 {
		t.Errorf("Expected seq 7, got %d", resp.Seq)
	}
	if resp.Preset != "0.5" {
		t.Errorf("Expected preset 0.5, got %q", resp.Preset)
	}
	if resp.Samples != 3 || len(resp.RangesM) != 3 || len(resp.AnglesDeg) != 3 {
		t.Fatalf("Expected 3 samples throughout, got samples=%d ranges=%d angles=%d",
			resp.Samples, len(resp.RangesM), len(resp.AnglesDeg))
	}
	if resp.RangesM[1] != 2.0 {
		t.Errorf("Expected middle range 2.0, got %v", resp.RangesM[1])
	}
	if resp.AnglesDeg[0] != -135 || resp.AnglesDeg[1] != 0 || resp.AnglesDeg[2] != 135 {
		t.Errorf("Expected angles [-135 0 135], got %v", resp.AnglesDeg)
	}
	if resp.AgeMs < 250 || resp.AgeMs > 5000 {
		t.Errorf("Expected age_ms around 250, got %d", resp.AgeMs)
	}
}

func TestScanLatestUnitConversion(t *testing.T) {
	source := newFakeSource()
	source.setScan(1, 0, 1.0, 2.0)

	var resp scanResponse
	decodeJSON(t, get(t, newTestServer(source, nil), "/api/scan/latest?units=cm"), &resp)

	if resp.Units != "cm" {
		t.Errorf("Expected units cm, got %q", resp.Units)
	}
	if resp.RangesM[0] != 100 || resp.RangesM[1] != 200 {
		t.Errorf("Expected ranges converted to [100 200], got %v", resp.RangesM)
	}

	// The conversion works on a copy; a second request in meters is intact.
	decodeJSON(t, get(t, newTestServer(source, nil), "/api/scan/latest"), &resp)
	if resp.Units != "m" || resp.RangesM[0] != 1.0 {
		t.Errorf("Expected untouched meters on the next request, got units=%q ranges=%v", resp.Units, resp.RangesM)
	}
}

func TestScanLatestInvalidUnits(t *testing.T) {
	source := newFakeSource()
	source.setScan(1, 0, 1.0)

	if w := get(t, newTestServer(source, nil), "/api/scan/latest?units=furlongs"); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid units, got %d", w.Code)
	}
}

func TestScanLatestMethodNotAllowed(t *testing.T) {
	s := newTestServer(newFakeSource(), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/scan/latest", nil)
	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected 405, got %d", w.Code)
	}
}

func TestScanStatus(t *testing.T) {
	source := newFakeSource()
	source.setScan(3, 10*time.Millisecond, 0, 2.0, 4.0)
	source.stats.AddScan(512, time.Now())
	source.stats.AddSkipped()

	w := get(t, newTestServer(source, nil), "/api/scan/status")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp statusResponse
	decodeJSON(t, w, &resp)

	if resp.State != "running" {
		t.Errorf("Expected state running, got %q", resp.State)
	}
	if resp.SessionID != "ses_test" {
		t.Errorf("Expected session ses_test, got %q", resp.SessionID)
	}
	if resp.Device != "192.168.0.10:2112" {
		t.Errorf("Expected the configured device, got %q", resp.Device)
	}
	if resp.Preset.Samples != 540 {
		t.Errorf("Expected preset samples 540, got %d", resp.Preset.Samples)
	}
	if resp.Totals.Scans != 1 || resp.Totals.Bytes != 512 || resp.Totals.Skipped != 1 {
		t.Errorf("Expected totals scans=1 bytes=512 skipped=1, got %+v", resp.Totals)
	}
	if resp.Scan == nil || resp.Scan.Seq != 3 {
		t.Fatalf("Expected scan summary with seq 3, got %+v", resp.Scan)
	}
	if resp.Aggregate == nil {
		t.Fatal("Expected sweep aggregate with a scan present")
	}
	if resp.Aggregate.Valid != 2 {
		t.Errorf("Expected 2 valid returns in aggregate, got %d", resp.Aggregate.Valid)
	}
	if resp.Error != "" {
		t.Errorf("Expected no error, got %q", resp.Error)
	}
}

func TestScanStatusReportsTerminalError(t *testing.T) {
	source := newFakeSource()
	source.state = acquire.StateStopped
	source.err = io.EOF

	var resp statusResponse
	decodeJSON(t, get(t, newTestServer(source, nil), "/api/scan/status"), &resp)

	if resp.State != "stopped" {
		t.Errorf("Expected state stopped, got %q", resp.State)
	}
	if resp.Error != io.EOF.Error() {
		t.Errorf("Expected EOF error string, got %q", resp.Error)
	}
	if resp.Scan != nil {
		t.Errorf("Expected null scan, got %+v", resp.Scan)
	}
}

func TestSessionsWithoutDatabase(t *testing.T) {
	w := get(t, newTestServer(newFakeSource(), nil), "/api/sessions")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 without a database, got %d", w.Code)
	}
}

func TestSessions(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	defer database.Close()

	if err := database.StartSession("ses_a", "dev", "0.5", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := database.StartSession("ses_b", "dev", "0.5", time.Now()); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	s := newTestServer(newFakeSource(), database)

	var sessions []db.Session
	decodeJSON(t, get(t, s, "/api/sessions"), &sessions)
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].SessionID != "ses_b" {
		t.Errorf("Expected newest session first, got %s", sessions[0].SessionID)
	}

	decodeJSON(t, get(t, s, "/api/sessions?limit=1"), &sessions)
	if len(sessions) != 1 {
		t.Errorf("Expected limit=1 to return 1 session, got %d", len(sessions))
	}

	if w := get(t, s, "/api/sessions?limit=bogus"); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", w.Code)
	}
}

func TestPresetsFallback(t *testing.T) {
	var presets []scan.Preset
	decodeJSON(t, get(t, newTestServer(newFakeSource(), nil), "/api/presets"), &presets)

	if len(presets) != 3 {
		t.Fatalf("Expected 3 presets, got %d", len(presets))
	}
	if presets[0].Name != "0.33" {
		t.Errorf("Expected finest preset first, got %s", presets[0].Name)
	}
}

func TestPresetsFromDatabase(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	defer database.Close()

	var presets []db.PresetRow
	decodeJSON(t, get(t, newTestServer(newFakeSource(), database), "/api/presets"), &presets)

	if len(presets) != 3 {
		t.Fatalf("Expected 3 presets from database, got %d", len(presets))
	}
}

func TestStatusPage(t *testing.T) {
	source := newFakeSource()
	source.setScan(12, 5*time.Millisecond, 1, 2, 3)

	w := get(t, newTestServer(source, nil), "/")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html" {
		t.Errorf("Expected text/html, got %q", ct)
	}

	body := w.Body.String()
	for _, want := range []string{"running", "ses_test", "192.168.0.10:2112", "#12"} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected status page to contain %q", want)
		}
	}
}

func TestStatusPageUnknownPath(t *testing.T) {
	if w := get(t, newTestServer(newFakeSource(), nil), "/nope"); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", w.Code)
	}
}

func TestScanChart(t *testing.T) {
	source := newFakeSource()
	source.setScan(1, 0, 1.0, 0, 2.0)

	w := get(t, newTestServer(source, nil), "/debug/charts/scan")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "echarts") {
		t.Error("Expected an echarts page")
	}
}

func TestScanChartBeforeFirstScan(t *testing.T) {
	if w := get(t, newTestServer(newFakeSource(), nil), "/debug/charts/scan"); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before first scan, got %d", w.Code)
	}
}

func TestLogTailStreamsBacklog(t *testing.T) {
	tail := monitoring.NewTail(16)
	tail.Write([]byte("first line\nsecond line\n"))

	s := NewServer(Config{
		Addr:   ":0",
		Source: newFakeSource(),
		Tail:   tail,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/debug/logtail", nil).WithContext(ctx)
	req.RemoteAddr = "127.0.0.1:51234"
	w := httptest.NewRecorder()

	// Blocks until the request context expires, then the backlog should
	// already be on the wire.
	s.ServeMux().ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, ": ping") {
		t.Error("Expected initial ping comment")
	}
	if !strings.Contains(body, "data: first line") || !strings.Contains(body, "data: second line") {
		t.Errorf("Expected backlog lines in stream, got %q", body)
	}
}

func TestServerCloseBeforeStart(t *testing.T) {
	s := newTestServer(newFakeSource(), nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
