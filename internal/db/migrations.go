package db

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationsEmbed embed.FS

// getMigrationsFS returns the migration files. Migrations ship embedded in
// the binary so a deployed unit can upgrade its own schema.
func getMigrationsFS() (fs.FS, error) {
	return fs.Sub(migrationsEmbed, "migrations")
}

// NewDBChecked is NewDBWithMigrationCheck over the embedded migrations: the
// daemon's opener. Unlike NewDB it refuses to run against an out-of-date or
// untracked schema instead of silently migrating it.
func NewDBChecked(path string, autoBaseline bool) (*DB, error) {
	migrationsFS, err := getMigrationsFS()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return NewDBWithMigrationCheck(path, migrationsFS, autoBaseline)
}
