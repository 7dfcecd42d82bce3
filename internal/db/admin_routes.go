package db

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the operator surface on the tsweb debug
// garden: a tailsql console over the live database, the stats summary,
// and an on-demand gzipped backup download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	console, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to build tailsql console: %w", err)
	}
	console.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Scan DB",
	})

	debug.Handle("tailsql/", "SQL live debugging", console.NewMux())
	debug.Handle("db-stats", "Database size and per-table row counts", http.HandlerFunc(db.serveStats))
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveStats(w http.ResponseWriter, r *http.Request) {
	stats, err := db.GetDatabaseStats()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get database stats: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Printf("Failed to encode database stats: %v", err)
	}
}

// serveBackup snapshots the database with VACUUM INTO and streams the
// snapshot back gzipped. The snapshot lands in the system temp dir and
// is removed once sent; VACUUM INTO refuses to overwrite, so the name
// carries nanoseconds to stay unique.
func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("timscan-backup-%s.db", time.Now().UTC().Format("20060102-150405"))
	snapshot := filepath.Join(os.TempDir(), fmt.Sprintf("timscan-backup-%d.db", time.Now().UnixNano()))

	if _, err := db.DB.Exec("VACUUM INTO ?", snapshot); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(snapshot); err != nil {
			log.Printf("Failed to remove backup snapshot: %v", err)
		}
	}()

	f, err := os.Open(snapshot)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup snapshot: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		log.Printf("Failed to stream backup: %v", err)
	}
}
