package db

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
)

// migrateActions maps each migrate subcommand to its handler. Handlers
// share a signature; the ones that take a version parse it from rest.
var migrateActions = map[string]func(database *DB, migrationsFS fs.FS, rest []string){
	"up":       runMigrateUp,
	"down":     runMigrateDown,
	"status":   runMigrateStatus,
	"version":  runMigrateTo,
	"force":    runMigrateForce,
	"baseline": runMigrateBaseline,
	"detect":   runMigrateDetect,
}

// RunMigrateCommand dispatches 'timscan migrate <action>'. The database
// is opened without touching the schema; the actions own it from there.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp()
		return
	}

	run, ok := migrateActions[action]
	if !ok {
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		log.Fatalf("Failed to load embedded migrations: %v", err)
	}
	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", dbPath, err)
	}
	defer database.Close()

	run(database, migrationsFS, args[1:])
}

// versionArg parses the version number an action requires, exiting with
// a usage line when it is missing or malformed.
func versionArg(rest []string, usage string) uint64 {
	if len(rest) < 1 {
		log.Fatalf("Usage: %s", usage)
	}
	n, err := strconv.ParseUint(rest[0], 10, 32)
	if err != nil {
		log.Fatalf("Invalid version number %q", rest[0])
	}
	return n
}

func logSchemaVersion(database *DB, migrationsFS fs.FS) {
	version, dirty, _ := database.MigrateVersion(migrationsFS)
	log.Printf("Schema now at version %d (dirty: %v)", version, dirty)
}

func runMigrateUp(database *DB, migrationsFS fs.FS, _ []string) {
	log.Printf("Applying pending migrations...")
	if err := database.MigrateUp(migrationsFS); err != nil {
		log.Fatalf("Migrate up failed: %v", err)
	}
	log.Println("✓ Schema is up to date")
	logSchemaVersion(database, migrationsFS)
}

func runMigrateDown(database *DB, migrationsFS fs.FS, _ []string) {
	log.Printf("Rolling back one migration...")
	if err := database.MigrateDown(migrationsFS); err != nil {
		log.Fatalf("Migrate down failed: %v", err)
	}
	log.Println("✓ Rolled back one version")
	logSchemaVersion(database, migrationsFS)
}

func runMigrateStatus(database *DB, migrationsFS fs.FS, _ []string) {
	st, err := database.GetMigrationStatus(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read migration state: %v", err)
	}

	fmt.Println("=== Migration Status ===")
	fmt.Printf("Current version: %d\n", st.Version)
	fmt.Printf("Dirty: %v\n", st.Dirty)
	fmt.Printf("schema_migrations present: %v\n", st.Tracked)

	if st.Dirty {
		fmt.Println("\n⚠️  The schema is dirty: a migration stopped partway.")
		fmt.Println("Inspect the database, repair by hand if needed, then run")
		fmt.Println("'timscan migrate force <version>' to clear the flag.")
	}
}

func runMigrateTo(database *DB, migrationsFS fs.FS, rest []string) {
	target := uint(versionArg(rest, "timscan migrate version <N>"))
	log.Printf("Migrating schema to version %d...", target)
	if err := database.MigrateTo(migrationsFS, target); err != nil {
		log.Fatalf("Migrate to version %d failed: %v", target, err)
	}
	log.Printf("✓ Schema at version %d", target)
}

// runMigrateForce confirms before overwriting the version (recovery only).
func runMigrateForce(database *DB, migrationsFS fs.FS, rest []string) {
	target := int(versionArg(rest, "timscan migrate force <N>"))

	fmt.Printf("⚠️  About to force the recorded schema version to %d.\n", target)
	fmt.Println("Only do this to recover from a dirty migration state.")
	fmt.Print("Continue? [y/N]: ")

	var answer string
	fmt.Scanln(&answer)
	if !strings.EqualFold(strings.TrimSpace(answer), "y") {
		log.Println("Aborted")
		os.Exit(0)
	}

	if err := database.MigrateForce(migrationsFS, target); err != nil {
		log.Fatalf("Force failed: %v", err)
	}
	log.Printf("✓ Recorded version forced to %d", target)
}

func runMigrateBaseline(database *DB, _ fs.FS, rest []string) {
	target := uint(versionArg(rest, "timscan migrate baseline <N>"))
	log.Printf("Baselining database at version %d...", target)
	if err := database.BaselineAtVersion(target); err != nil {
		log.Fatalf("Baseline failed: %v", err)
	}
	log.Printf("✓ Baselined at version %d", target)
}

// runMigrateDetect reports the schema version, falling back to structural
// detection for databases that predate the schema_migrations table.
func runMigrateDetect(database *DB, migrationsFS fs.FS, _ []string) {
	log.Println("Detecting schema version...")
	log.Println()

	tracked, err := database.migrationsTracked()
	if err != nil {
		log.Fatalf("Schema probe failed: %v", err)
	}
	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read latest migration version: %v", err)
	}

	if tracked {
		reportTrackedSchema(database, migrationsFS, latest)
		return
	}
	reportDetectedSchema(database, migrationsFS, latest)
}

func reportTrackedSchema(database *DB, migrationsFS fs.FS, latest uint) {
	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}

	fmt.Println("=== Schema Migration Status ===")
	fmt.Printf("Current version: %d\n", version)
	fmt.Printf("Latest available: %d\n", latest)
	fmt.Printf("Dirty state: %v\n", dirty)
	fmt.Println()

	switch {
	case dirty:
		fmt.Println("⚠️  The schema is dirty. Recover before migrating further.")
	case version < latest:
		fmt.Printf("⚠️  %d version(s) behind. Run 'timscan migrate up'.\n", latest-version)
	default:
		fmt.Println("✓ Schema is current.")
	}
}

func reportDetectedSchema(database *DB, migrationsFS fs.FS, latest uint) {
	fmt.Println("No schema_migrations table; comparing tables against known versions...")
	fmt.Println()

	detected, score, differences, err := database.DetectSchemaVersion(migrationsFS)
	if err != nil {
		log.Fatalf("Schema detection failed: %v", err)
	}

	fmt.Println("=== Schema Detection Results ===")
	fmt.Printf("Best match: version %d\n", detected)
	fmt.Printf("Similarity: %d%%\n", score)
	fmt.Printf("Latest available: %d\n", latest)
	fmt.Println()

	if score == 100 {
		fmt.Println("✓ Exact structural match.")
		fmt.Println()
		fmt.Println("To adopt this database:")
		fmt.Printf("  1. timscan migrate baseline %d\n", detected)
		if detected < latest {
			fmt.Println("  2. timscan migrate up")
		}
		return
	}

	fmt.Printf("⚠️  Closest version matches %d%% of the schema.\n", score)
	fmt.Println()
	fmt.Println("Differences:")
	for _, diff := range differences {
		fmt.Printf("  %s\n", diff)
	}
	fmt.Println()
	fmt.Println("Options:")
	fmt.Printf("  1. Baseline at the closest version anyway: timscan migrate baseline %d\n", detected)
	fmt.Println("  2. Adjust the schema by hand until detect reports an exact match")
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp() {
	fmt.Println(`Database migration commands

Usage: timscan migrate <command> [options]

Commands:
  up              Apply all pending migrations
  down            Roll back one migration
  status          Show current version and dirty state
  detect          Infer the version of an untracked database
  version <N>     Migrate up or down to version N
  force <N>       Overwrite the recorded version (recovery only)
  baseline <N>    Record version N without running migrations
  help            Show this help message

Adopting a database created before migration tracking:
  1. timscan migrate detect        # find the matching schema version
  2. timscan migrate baseline <N>  # record it
  3. timscan migrate up            # apply whatever is newer

Options:
  -db <path>    Path to database file (default: timscan.db)`)
}
