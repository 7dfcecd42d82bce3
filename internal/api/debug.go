package api

import (
	"fmt"
	"net/http"

	"tailscale.com/tsweb"
)

// attachDebugRoutes mounts the API's own debug endpoints. tsweb.Debugger
// reuses the mux's existing debug handler, so this composes with the
// routes the database attaches.
func (s *Server) attachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.Handle("charts/scan", "Latest scan as an XY scatter", http.HandlerFunc(s.handleScanChart))

	if s.cfg.Tail == nil {
		return
	}

	// SSE stream of recent and live log lines.
	debug.HandleSilentFunc("logtail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.cfg.Tail.Subscribe()
		defer s.cfg.Tail.Unsubscribe(id)

		// Establish the connection, then replay the ring buffer before
		// switching to live lines.
		w.Write([]byte(": ping\n\n"))
		for _, line := range s.cfg.Tail.Lines() {
			fmt.Fprintf(w, "data: %s\n\n", line)
		}
		w.(http.Flusher).Flush()

		for {
			select {
			case line, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
