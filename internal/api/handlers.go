package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/timscan/internal/acquire"
	"github.com/banshee-data/timscan/internal/db"
	"github.com/banshee-data/timscan/internal/httputil"
	"github.com/banshee-data/timscan/internal/scan"
	"github.com/banshee-data/timscan/internal/sweep"
	"github.com/banshee-data/timscan/internal/units"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "timscan", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// scanResponse is the full latest-scan payload, vectors included. Ranges
// are in meters unless the request asked for another display unit.
type scanResponse struct {
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
	AgeMs      int64     `json:"age_ms"`
	Preset     string    `json:"preset"`
	Units      string    `json:"units"`
	Samples    int       `json:"samples"`
	RangesM    []float64 `json:"ranges_m"`
	AnglesDeg  []float64 `json:"angles_deg"`
}

// scanSummary is the vector-free scan digest embedded in status responses.
type scanSummary struct {
	Seq        uint64    `json:"seq"`
	CapturedAt time.Time `json:"captured_at"`
	AgeMs      int64     `json:"age_ms"`
	Samples    int       `json:"samples"`
}

type statusResponse struct {
	Service   string           `json:"service"`
	State     string           `json:"state"`
	SessionID string           `json:"session_id"`
	Device    string           `json:"device"`
	Preset    scan.Preset      `json:"preset"`
	Uptime    string           `json:"uptime"`
	Error     string           `json:"error,omitempty"`
	Totals    acquire.Counters `json:"totals"`
	Scan      *scanSummary     `json:"scan"`
	Aggregate *sweep.Aggregate `json:"aggregate,omitempty"`
}

func scanAgeMs(s scan.Scan) int64 {
	return time.Since(s.Taken).Milliseconds()
}

func (s *Server) handleScanLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = units.M
	}
	if !units.IsValid(unit) {
		httputil.BadRequest(w, "invalid 'units' parameter: valid values are "+units.GetValidUnitsString())
		return
	}

	latest, ok := s.cfg.Source.LatestScan()
	if !ok {
		httputil.NotFound(w, "no scan yet")
		return
	}

	if unit != units.M {
		for i, r := range latest.Ranges {
			latest.Ranges[i] = units.ConvertDistance(r, unit)
		}
	}

	httputil.WriteJSONOK(w, scanResponse{
		Seq:        latest.Seq,
		CapturedAt: latest.Taken,
		AgeMs:      scanAgeMs(latest),
		Preset:     latest.Preset,
		Units:      unit,
		Samples:    latest.Samples(),
		RangesM:    latest.Ranges,
		AnglesDeg:  latest.Angles(),
	})
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	totals, _ := s.cfg.Source.Stats().Totals()
	resp := statusResponse{
		Service:   "timscan",
		State:     s.cfg.Source.State().String(),
		SessionID: s.cfg.Source.SessionID(),
		Device:    s.cfg.Device,
		Preset:    s.cfg.Source.Preset(),
		Uptime:    s.uptime().Round(time.Second).String(),
		Totals:    totals,
	}
	if err := s.cfg.Source.Err(); err != nil {
		resp.Error = err.Error()
	}
	if latest, ok := s.cfg.Source.LatestScan(); ok {
		resp.Scan = &scanSummary{
			Seq:        latest.Seq,
			CapturedAt: latest.Taken,
			AgeMs:      scanAgeMs(latest),
			Samples:    latest.Samples(),
		}
		agg := sweep.Summarize(latest)
		resp.Aggregate = &agg
	}

	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.DB == nil {
		httputil.NotFound(w, "database not attached")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	sessions, err := s.cfg.DB.Sessions(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}

	httputil.WriteJSONOK(w, sessions)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	// Prefer the reference table so the response reflects the deployed
	// schema; fall back to the compiled-in table when running without a
	// database (replay, view-only).
	if s.cfg.DB != nil {
		presets, err := s.cfg.DB.Presets()
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve presets: %v", err))
			return
		}
		httputil.WriteJSONOK(w, presets)
		return
	}

	httputil.WriteJSONOK(w, scan.Presets)
}
