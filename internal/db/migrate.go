package db

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Schema management on top of golang-migrate. Every method takes the
// migration files as an fs.FS so the embedded set (getMigrationsFS) and
// test fixtures run through the same code. Migrator instances are never
// closed: golang-migrate closes the underlying *sql.DB with them.

// migrator wires a migrate.Migrate over this database and the given
// migration source.
func (db *DB) migrator(fsys fs.FS) (*migrate.Migrate, error) {
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap sqlite connection: %w", err)
	}
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble migrator: %w", err)
	}
	m.Log = migrateLog{}
	return m, nil
}

// migrateLog routes golang-migrate's progress lines into the daemon log.
type migrateLog struct{}

func (migrateLog) Printf(format string, v ...interface{}) { log.Printf("migrate: "+format, v...) }
func (migrateLog) Verbose() bool                          { return false }

// noChange filters golang-migrate's ErrNoChange, which for us is
// success: the schema is already where the caller asked it to be.
func noChange(err error) bool { return errors.Is(err, migrate.ErrNoChange) }

// MigrateUp brings the schema to the newest shipped version.
func (db *DB) MigrateUp(fsys fs.FS) error {
	m, err := db.migrator(fsys)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !noChange(err) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// MigrateDown undoes the most recent migration.
func (db *DB) MigrateDown(fsys fs.FS) error {
	m, err := db.migrator(fsys)
	if err != nil {
		return err
	}
	if err := m.Steps(-1); err != nil && !noChange(err) {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// MigrateTo walks the schema up or down to the given version.
func (db *DB) MigrateTo(fsys fs.FS, version uint) error {
	m, err := db.migrator(fsys)
	if err != nil {
		return err
	}
	if err := m.Migrate(version); err != nil && !noChange(err) {
		return fmt.Errorf("failed to migrate to version %d: %w", version, err)
	}
	return nil
}

// MigrateVersion reports the recorded schema version and dirty flag. A
// database no migration has ever touched reports 0, false, nil.
func (db *DB) MigrateVersion(fsys fs.FS) (uint, bool, error) {
	m, err := db.migrator(fsys)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// MigrateForce overwrites the recorded version without running any DDL.
// Recovery tool for a dirty ledger, nothing else.
func (db *DB) MigrateForce(fsys fs.FS, version int) error {
	m, err := db.migrator(fsys)
	if err != nil {
		return err
	}
	if err := m.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// migrationsTracked reports whether the schema_migrations ledger exists,
// i.e. whether golang-migrate has ever touched this database.
func (db *DB) migrationsTracked() (bool, error) {
	var tracked bool
	err := db.QueryRow(
		`SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`,
	).Scan(&tracked)
	if err != nil {
		return false, fmt.Errorf("failed to probe for schema_migrations: %w", err)
	}
	return tracked, nil
}

// createMigrationLedger makes the schema_migrations table golang-migrate
// expects. The library creates it itself on first run; baselining needs
// it before any migration has run.
func (db *DB) createMigrationLedger() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL, dirty INTEGER NOT NULL);
		CREATE UNIQUE INDEX IF NOT EXISTS version_unique ON schema_migrations (version);
	`)
	if err != nil {
		return fmt.Errorf("failed to create migration ledger: %w", err)
	}
	return nil
}

// BaselineAtVersion stamps an existing schema with a version without
// running any DDL, for databases built before migration tracking. It
// refuses when a version is already recorded.
func (db *DB) BaselineAtVersion(version uint) error {
	if err := db.createMigrationLedger(); err != nil {
		return err
	}

	var recorded int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&recorded); err != nil {
		return fmt.Errorf("failed to inspect migration ledger: %w", err)
	}
	if recorded > 0 {
		return fmt.Errorf("database already has a recorded version, refusing to baseline")
	}

	if _, err := db.Exec(`INSERT INTO schema_migrations (version, dirty) VALUES (?, 0)`, version); err != nil {
		return fmt.Errorf("failed to record baseline: %w", err)
	}
	log.Printf("Database baselined at version %d", version)
	return nil
}

// MigrationStatus is the answer to "where is this schema": the recorded
// version, whether a migration died partway, and whether the ledger
// table exists at all (it does not on databases that predate tracking).
type MigrationStatus struct {
	Version uint `json:"current_version"`
	Dirty   bool `json:"dirty"`
	Tracked bool `json:"schema_migrations_exists"`
}

func (db *DB) GetMigrationStatus(fsys fs.FS) (*MigrationStatus, error) {
	version, dirty, err := db.MigrateVersion(fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	tracked, err := db.migrationsTracked()
	if err != nil {
		return nil, err
	}
	return &MigrationStatus{Version: version, Dirty: dirty, Tracked: tracked}, nil
}

// GetLatestMigrationVersion reports the highest version among the
// migration files, read from their 000042_name.up.sql prefixes.
func GetLatestMigrationVersion(fsys fs.FS) (uint, error) {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to list migrations: %w", err)
	}

	var latest uint64
	for _, name := range ups {
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			continue
		}
		if v > latest {
			latest = v
		}
	}
	if latest == 0 {
		return 0, fmt.Errorf("no usable migration files in source")
	}
	return uint(latest), nil
}

// CheckAndPromptMigrations refuses a schema that does not match the
// shipped migrations. A clean match returns (false, nil); every other
// state returns shouldExit=true with the reason, and a schema that is
// merely behind also logs the commands that bring it current.
func (db *DB) CheckAndPromptMigrations(fsys fs.FS) (bool, error) {
	current, dirty, err := db.MigrateVersion(fsys)
	if err != nil {
		return false, fmt.Errorf("failed to read schema version: %w", err)
	}
	latest, err := GetLatestMigrationVersion(fsys)
	if err != nil {
		return false, err
	}

	switch {
	case dirty:
		return true, fmt.Errorf("schema version %d is dirty: a migration stopped partway. Run 'timscan migrate status' to diagnose", current)
	case current == latest:
		return false, nil
	case current > latest:
		return true, fmt.Errorf("schema version %d is newer than the shipped migrations (%d); this binary is older than its database", current, latest)
	}

	log.Printf("Schema is %d migration(s) behind: version %d, latest %d", latest-current, current, latest)
	log.Printf("Apply them with:  timscan migrate up")
	log.Printf("Inspect first:    timscan migrate status")
	return true, fmt.Errorf("database schema is out of date (version %d, need %d)", current, latest)
}
