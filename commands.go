package main

import (
	"fmt"
	"os"

	"github.com/banshee-data/timscan/internal/db"
	"github.com/banshee-data/timscan/internal/version"
)

// runSubcommand dispatches the positional arguments left after flag
// parsing. It reports whether a subcommand ran, in which case the daemon
// does not start.
func runSubcommand(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "migrate":
		rest, path := extractDBFlag(args[1:], dbPath)
		db.RunMigrateCommand(rest, path)
	case "version":
		fmt.Println(version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
	return true
}

// extractDBFlag pulls a "-db <path>" pair out of a subcommand's argument
// list. The flag package stops at the first positional argument, so in
// "timscan migrate up -db scans.db" the pair arrives here rather than in
// the parsed flags.
func extractDBFlag(args []string, fallback string) (rest []string, dbPath string) {
	dbPath = fallback
	for i := 0; i < len(args); i++ {
		if (args[i] == "-db" || args[i] == "--db") && i+1 < len(args) {
			dbPath = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	return rest, dbPath
}

func printUsage() {
	fmt.Println(`timscan - 2D rangefinder acquisition daemon

Usage: timscan [flags]            run the acquisition daemon
       timscan <command> [options]

Commands:
  migrate    Manage the database schema (run 'timscan migrate help')
  version    Show build version
  help       Show this help message

Flags:
  -device <addr>    sensor address: host:port for TCP, or a serial port path
  -preset <name>    angular resolution preset: 0.33, 0.5 or 1.0
  -listen <addr>    HTTP listen address (default :8080)
  -db <path>        SQLite database path (default timscan.db)
  -tuning <path>    tuning config JSON path
  -record <path>    tee the raw sensor stream into a capture file
  -auto-baseline    adopt a matching legacy database schema automatically`)
}
