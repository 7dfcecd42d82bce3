// Package api serves the HTTP interface for a scan acquisition session:
// liveness, a status page, the scan and session JSON endpoints, and the
// debug garden (tailsql, backup, log tail, charts).
package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/timscan/internal/acquire"
	"github.com/banshee-data/timscan/internal/db"
	"github.com/banshee-data/timscan/internal/monitoring"
	"github.com/banshee-data/timscan/internal/scan"
)

// ANSI escape codes for request log colouring
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// ScanSource is the view of an acquisition loop the API needs. It is
// satisfied by *acquire.Loop; tests substitute a fixture.
type ScanSource interface {
	LatestScan() (scan.Scan, bool)
	State() acquire.State
	SessionID() string
	Preset() scan.Preset
	Stats() *acquire.Stats
	Err() error
}

// Config wires the server's dependencies. DB and Tail are optional; the
// routes that need them report their absence instead of registering
// broken handlers.
type Config struct {
	Addr   string
	Device string
	Source ScanSource
	DB     *db.DB
	Tail   *monitoring.Tail
}

type Server struct {
	cfg       Config
	server    *http.Server
	startedAt time.Time
}

func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:       cfg,
		startedAt: time.Now(),
	}
	s.server = &http.Server{
		Addr:    cfg.Addr,
		Handler: LoggingMiddleware(s.ServeMux()),
	}
	return s
}

// ServeMux builds the route table. Exposed so tests can drive handlers
// without binding a port.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/", s.handleStatusPage)
	mux.HandleFunc("/api/scan/latest", s.handleScanLatest)
	mux.HandleFunc("/api/scan/status", s.handleScanStatus)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/presets", s.handlePresets)

	if s.cfg.DB != nil {
		if err := s.cfg.DB.AttachAdminRoutes(mux); err != nil {
			log.Printf("Database admin routes unavailable: %v", err)
		}
	}
	s.attachDebugRoutes(mux)

	return mux
}

// Start begins the HTTP server in a goroutine, then blocks until ctx is
// cancelled and the server has shut down.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", s.cfg.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// Close shuts the server down immediately.
func (s *Server) Close() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func (s *Server) uptime() time.Duration {
	return time.Since(s.startedAt)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE endpoints streaming through the middleware.
func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}
