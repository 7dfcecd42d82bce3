package db

import (
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// Schema detection for databases that predate migration tracking. The
// idea: build a scratch database at each known migration version, compare
// its schema against the live database, and report the closest match so
// the operator can baseline at that version.

// GetDatabaseSchema extracts the CREATE statements for all user tables
// and indexes, keyed by object name. Internal sqlite objects and the
// migration bookkeeping table are excluded so legacy databases compare
// cleanly against freshly migrated ones.
func (db *DB) GetDatabaseSchema() (map[string]string, error) {
	rows, err := db.Query(`
		SELECT name, sql FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND name NOT IN ('schema_migrations', 'version_unique')
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	defer rows.Close()

	schema := make(map[string]string)
	for rows.Next() {
		var name, createSQL string
		if err := rows.Scan(&name, &createSQL); err != nil {
			return nil, err
		}
		schema[name] = createSQL
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return schema, nil
}

// normalizeSQLForComparison reduces formatting noise in DDL so statements
// written by hand compare equal to sqlite's stored form: whitespace runs
// collapse to single spaces, the trailing semicolon goes, commas lose any
// leading space, and an opening parenthesis always gets a space before it.
func normalizeSQLForComparison(sqlText string) string {
	s := strings.TrimSpace(sqlText)
	s = strings.TrimSuffix(s, ";")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, " ,", ",")
	s = strings.ReplaceAll(s, "(", " (")
	s = strings.Join(strings.Fields(s), " ")
	return s
}

// CompareSchemas scores how closely two schemas match: 100 means every
// object exists in both with equivalent DDL, 0 means nothing in common.
// The score is matching objects over the union of object names. Returned
// differences name each mismatch.
func CompareSchemas(database, candidate map[string]string) (int, []string) {
	names := make(map[string]bool, len(database)+len(candidate))
	for name := range database {
		names[name] = true
	}
	for name := range candidate {
		names[name] = true
	}
	if len(names) == 0 {
		return 100, nil
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	matching := 0
	var diffs []string
	for _, name := range sorted {
		dbSQL, inDB := database[name]
		candSQL, inCand := candidate[name]
		switch {
		case !inCand:
			diffs = append(diffs, fmt.Sprintf("extra object in database: %s", name))
		case !inDB:
			diffs = append(diffs, fmt.Sprintf("missing from database: %s", name))
		case normalizeSQLForComparison(dbSQL) != normalizeSQLForComparison(candSQL):
			diffs = append(diffs, fmt.Sprintf("definition differs: %s", name))
		default:
			matching++
		}
	}

	return matching * 100 / len(names), diffs
}

// GetSchemaAtMigration builds a scratch database migrated to the given
// version and returns its schema.
func GetSchemaAtMigration(fsys fs.FS, version uint) (map[string]string, error) {
	tmp, err := os.CreateTemp("", "timscan-schema-*.db")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch database: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	scratch, err := OpenDB(tmpPath)
	if err != nil {
		return nil, err
	}
	defer scratch.Close()

	if err := scratch.MigrateTo(fsys, version); err != nil {
		return nil, fmt.Errorf("failed to build schema at version %d: %w", version, err)
	}

	return scratch.GetDatabaseSchema()
}

// DetectSchemaVersion finds the migration version whose schema best
// matches this database. Returns the version, the match score (0-100),
// and the differences against that version. Ties go to the higher
// version so a later baseline never replays DDL the database already has.
func (db *DB) DetectSchemaVersion(fsys fs.FS) (uint, int, []string, error) {
	current, err := db.GetDatabaseSchema()
	if err != nil {
		return 0, 0, nil, err
	}

	latest, err := GetLatestMigrationVersion(fsys)
	if err != nil {
		return 0, 0, nil, err
	}

	var (
		bestVersion uint
		bestScore   = -1
		bestDiffs   []string
	)
	for v := uint(1); v <= latest; v++ {
		candidate, err := GetSchemaAtMigration(fsys, v)
		if err != nil {
			return 0, 0, nil, err
		}
		score, diffs := CompareSchemas(current, candidate)
		if score >= bestScore {
			bestVersion, bestScore, bestDiffs = v, score, diffs
		}
	}

	return bestVersion, bestScore, bestDiffs, nil
}

// NewDBWithMigrationCheck opens the database and refuses to hand it back
// unless the schema is current. An empty database is migrated to the
// latest version. A legacy database (tables but no schema_migrations) is
// run through schema detection; with autoBaseline set and a perfect
// match it is baselined in place, though the caller still has to run
// 'timscan migrate up' if newer migrations exist.
func NewDBWithMigrationCheck(path string, fsys fs.FS, autoBaseline bool) (*DB, error) {
	database, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	tracked, err := database.migrationsTracked()
	if err != nil {
		database.Close()
		return nil, err
	}

	if tracked {
		if shouldExit, err := database.CheckAndPromptMigrations(fsys); shouldExit || err != nil {
			database.Close()
			return nil, err
		}
		return database, nil
	}

	schema, err := database.GetDatabaseSchema()
	if err != nil {
		database.Close()
		return nil, err
	}

	// Fresh database: nothing to detect, just apply the migrations.
	if len(schema) == 0 {
		if err := database.MigrateUp(fsys); err != nil {
			database.Close()
			return nil, err
		}
		return database, nil
	}

	version, score, diffs, err := database.DetectSchemaVersion(fsys)
	if err != nil {
		database.Close()
		return nil, err
	}

	latest, err := GetLatestMigrationVersion(fsys)
	if err != nil {
		database.Close()
		return nil, err
	}

	if score == 100 && autoBaseline {
		if err := database.BaselineAtVersion(version); err != nil {
			database.Close()
			return nil, err
		}
		if version < latest {
			database.Close()
			return nil, fmt.Errorf("database baselined at version %d; run 'timscan migrate up' to reach version %d", version, latest)
		}
		return database, nil
	}

	database.Close()
	return nil, fmt.Errorf("database has no migration history (best schema match: version %d at %d%%, %d differences). Run 'timscan migrate detect' to diagnose", version, score, len(diffs))
}
