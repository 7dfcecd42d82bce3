package api

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/banshee-data/timscan/internal/acquire"
)

//go:embed status.html
var statusHTML embed.FS

// handleStatusPage renders the human status page at /.
func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	tmpl, err := template.ParseFS(statusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	totals, _ := s.cfg.Source.Stats().Totals()

	data := struct {
		Device    string
		State     string
		SessionID string
		Preset    string
		Uptime    string
		Error     string
		Totals    acquire.Counters
		HasScan   bool
		ScanSeq   uint64
		ScanAge   string
		Samples   int
		HasDB     bool
	}{
		Device:    s.cfg.Device,
		State:     s.cfg.Source.State().String(),
		SessionID: s.cfg.Source.SessionID(),
		Preset:    s.cfg.Source.Preset().String(),
		Uptime:    s.uptime().Round(time.Second).String(),
		Totals:    totals,
		HasDB:     s.cfg.DB != nil,
	}
	if err := s.cfg.Source.Err(); err != nil {
		data.Error = err.Error()
	}
	if latest, ok := s.cfg.Source.LatestScan(); ok {
		data.HasScan = true
		data.ScanSeq = latest.Seq
		data.ScanAge = fmt.Sprintf("%dms", scanAgeMs(latest))
		data.Samples = latest.Samples()
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}
