package db

import (
	"fmt"
	"os"
)

// TableStats describes one table for the db-stats debug endpoint.
type TableStats struct {
	Name     string  `json:"name"`
	RowCount int64   `json:"row_count"`
	SizeMB   float64 `json:"size_mb"`
}

// DatabaseStats summarises the database file for the db-stats debug
// endpoint.
type DatabaseStats struct {
	Path        string       `json:"path"`
	TotalSizeMB float64      `json:"total_size_mb"`
	Tables      []TableStats `json:"tables"`
}

// GetDatabaseStats reports the database file size and per-table row
// counts. Per-table sizes are apportioned from the file size by row
// count, which is close enough for spotting which table is eating the
// disk without requiring the dbstat extension.
func (db *DB) GetDatabaseStats() (*DatabaseStats, error) {
	info, err := os.Stat(db.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat database file: %w", err)
	}

	stats := &DatabaseStats{
		Path:        db.path,
		TotalSizeMB: float64(info.Size()) / (1024 * 1024),
	}

	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var totalRows int64
	for _, name := range names {
		var count int64
		// Table names come from sqlite_master, not user input.
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", name, err)
		}
		stats.Tables = append(stats.Tables, TableStats{Name: name, RowCount: count})
		totalRows += count
	}

	for i := range stats.Tables {
		if totalRows > 0 {
			stats.Tables[i].SizeMB = stats.TotalSizeMB * float64(stats.Tables[i].RowCount) / float64(totalRows)
		}
	}

	return stats, nil
}
