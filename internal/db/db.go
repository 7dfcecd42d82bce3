// Package db persists acquisition sessions and periodic scan rollups to
// SQLite. The schema is owned by the embedded migrations; see migrate.go.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/timscan/internal/sweep"
)

type DB struct {
	*sql.DB
	path string
}

// OpenDB opens the database without touching the schema. Use this when the
// caller manages migrations itself (the migrate subcommand, or a daemon
// that wants to refuse to run against an out-of-date schema).
func OpenDB(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return &DB{DB: sqldb, path: path}, nil
}

// NewDB opens the database and applies any pending migrations. Convenience
// for tools and tests.
func NewDB(path string) (*DB, error) {
	database, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := database.MigrateUp(migrationsFS); err != nil {
		database.Close()
		return nil, err
	}

	return database, nil
}

// Path returns the filesystem path the database was opened with.
func (db *DB) Path() string { return db.path }

// Session is one acquisition session: one connection, one preset, one
// continuous run of the loop.
type Session struct {
	SessionID string     `json:"session_id"`
	Device    string     `json:"device"`
	Preset    string     `json:"preset"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
	ScanCount int64      `json:"scan_count"`
}

// StartSession records a new session row at acquisition start.
// Timestamps are stored as unix seconds.
func (db *DB) StartSession(sessionID, device, preset string, startedAt time.Time) error {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, device, preset, started_at) VALUES (?, ?, ?, ?)`,
		sessionID, device, preset, startedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", sessionID, err)
	}
	return nil
}

// EndSession closes out a session row with its end time, the reason the
// loop stopped ("requested" or the terminal error text), and the final
// scan count.
func (db *DB) EndSession(sessionID string, endedAt time.Time, reason string, scanCount int64) error {
	res, err := db.Exec(
		`UPDATE sessions SET ended_at = ?, end_reason = ?, scan_count = ? WHERE session_id = ?`,
		endedAt.Unix(), reason, scanCount, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("no session %s to end", sessionID)
	}
	return nil
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT session_id, device, preset, started_at, ended_at, end_reason, scan_count
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s             Session
			startedAtUnix int64
			endedAtUnix   sql.NullInt64
			endReason     sql.NullString
		)
		if err := rows.Scan(&s.SessionID, &s.Device, &s.Preset, &startedAtUnix, &endedAtUnix, &endReason, &s.ScanCount); err != nil {
			return nil, err
		}
		s.StartedAt = time.Unix(startedAtUnix, 0).UTC()
		if endedAtUnix.Valid {
			t := time.Unix(endedAtUnix.Int64, 0).UTC()
			s.EndedAt = &t
		}
		if endReason.Valid {
			s.EndReason = endReason.String
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Rollup is a periodic aggregate of the live scan stream, one row per
// rollup period per session.
type Rollup struct {
	SessionID string    `json:"session_id"`
	TakenAt   time.Time `json:"taken_at"`
	sweep.Aggregate
}

// RecordRollup inserts one aggregate row for a session.
func (db *DB) RecordRollup(sessionID string, takenAt time.Time, agg sweep.Aggregate) error {
	_, err := db.Exec(
		`INSERT INTO scan_rollups (
			session_id, taken_at, samples, valid, valid_ratio,
			min_m, max_m, mean_m, stddev_m, nearest_deg
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, takenAt.Unix(), agg.Samples, agg.Valid, agg.ValidRatio,
		agg.MinM, agg.MaxM, agg.MeanM, agg.StdDevM, agg.NearestDeg,
	)
	if err != nil {
		return fmt.Errorf("failed to record rollup for session %s: %w", sessionID, err)
	}
	return nil
}

// Rollups returns a session's aggregates, newest first.
func (db *DB) Rollups(sessionID string, limit int) ([]Rollup, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT session_id, taken_at, samples, valid, valid_ratio,
		        min_m, max_m, mean_m, stddev_m, nearest_deg
		 FROM scan_rollups WHERE session_id = ?
		 ORDER BY taken_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rollups []Rollup
	for rows.Next() {
		var (
			r           Rollup
			takenAtUnix int64
		)
		if err := rows.Scan(
			&r.SessionID, &takenAtUnix, &r.Samples, &r.Valid, &r.ValidRatio,
			&r.MinM, &r.MaxM, &r.MeanM, &r.StdDevM, &r.NearestDeg,
		); err != nil {
			return nil, err
		}
		r.TakenAt = time.Unix(takenAtUnix, 0).UTC()
		rollups = append(rollups, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rollups, nil
}

// PresetRow is the reference table row for one resolution preset.
type PresetRow struct {
	Name          string  `json:"name"`
	ResolutionDeg float64 `json:"resolution_deg"`
	Samples       int     `json:"samples"`
	ScanRateHz    int     `json:"scan_rate_hz"`
	FreqCode      int     `json:"freq_code"`
}

// Presets returns the preset reference table, coarsest first.
func (db *DB) Presets() ([]PresetRow, error) {
	rows, err := db.Query(
		`SELECT name, resolution_deg, samples, scan_rate_hz, freq_code
		 FROM presets ORDER BY resolution_deg DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presets []PresetRow
	for rows.Next() {
		var p PresetRow
		if err := rows.Scan(&p.Name, &p.ResolutionDeg, &p.Samples, &p.ScanRateHz, &p.FreqCode); err != nil {
			return nil, err
		}
		presets = append(presets, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return presets, nil
}
