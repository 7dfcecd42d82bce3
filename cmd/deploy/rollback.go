package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/banshee-data/timscan/internal/deploy"
)

// Rollback restores the most recent on-host backup taken by upgrade.
type Rollback struct {
	Host *deploy.Host
	Yes  bool

	// In overrides stdin for the confirmation prompts, for tests.
	In io.Reader
}

// Execute performs the rollback.
func (r *Rollback) Execute() error {
	fmt.Println("Starting rollback to previous version...")

	backupDir, err := r.findLatestBackup()
	if err != nil {
		return fmt.Errorf("failed to find backup: %w", err)
	}
	fmt.Printf("Found backup: %s\n", backupDir)

	if !r.Yes && !r.Host.DryRun() {
		if !r.promptYes("Are you sure you want to rollback? This will stop the service and restore the backup.") {
			fmt.Println("Rollback cancelled")
			return nil
		}
	}

	if err := stopService(r.Host); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}
	if err := r.restoreBinary(backupDir); err != nil {
		return fmt.Errorf("failed to restore binary: %w", err)
	}
	if err := r.restoreDatabase(backupDir); err != nil {
		fmt.Printf("Warning: could not restore database: %v\n", err)
	}
	if err := startService(r.Host); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	if err := verifyActive(r.Host); err != nil {
		return fmt.Errorf("health check failed after rollback: %w", err)
	}
	fmt.Println("  ✓ Service is running")

	fmt.Println("\n✓ Rollback completed successfully!")
	return nil
}

// promptYes asks question on the terminal and reports whether the answer
// was yes.
func (r *Rollback) promptYes(question string) bool {
	fmt.Print(question + " [y/N]: ")

	in := r.In
	if in == nil {
		in = os.Stdin
	}
	var answer string
	fmt.Fscanln(in, &answer)
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}

func (r *Rollback) findLatestBackup() (string, error) {
	fmt.Println("Looking for backups...")

	// Backup directories are named by timestamp, so the newest-first
	// listing puts the most recent one on top.
	out, err := r.Host.Sudo(fmt.Sprintf("ls -1t %s/backups/ 2>/dev/null | head -1", dataDir))
	if err != nil {
		return "", fmt.Errorf("no backups found")
	}
	name := strings.TrimSpace(out)
	if name == "" {
		return "", fmt.Errorf("no backups found in %s/backups/", dataDir)
	}

	backupDir := fmt.Sprintf("%s/backups/%s", dataDir, name)
	if !fileExists(r.Host, backupDir+"/timscan") {
		return "", fmt.Errorf("backup directory exists but binary not found: %s", backupDir)
	}
	return backupDir, nil
}

func (r *Rollback) restoreBinary(backupDir string) error {
	fmt.Printf("Restoring binary from: %s\n", backupDir)

	if _, err := r.Host.Sudo(fmt.Sprintf("cp %s/timscan %s", backupDir, installPath)); err != nil {
		return fmt.Errorf("restore binary: %w", err)
	}
	cmd := fmt.Sprintf("chown root:root %s && chmod 0755 %s", installPath, installPath)
	if _, err := r.Host.Sudo(cmd); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}

	fmt.Println("  ✓ Binary restored")
	return nil
}

func (r *Rollback) restoreDatabase(backupDir string) error {
	dbBackup := backupDir + "/timscan.db"
	if !fileExists(r.Host, dbBackup) {
		fmt.Println("  ⊘ No database backup found, keeping current database")
		return nil
	}

	restore := r.Yes
	if !r.Yes && !r.Host.DryRun() {
		restore = r.promptYes("Database backup found. Restore it? This will replace current data.")
	}
	if !restore {
		fmt.Println("  ⊘ Keeping current database")
		// The restored binary may predate the current schema; the daemon
		// refuses to start in that case.
		fmt.Println("    If the service fails to start, restore the database too or run 'timscan migrate down'.")
		return nil
	}

	fmt.Println("  Restoring database...")

	if _, err := r.Host.Sudo(fmt.Sprintf("cp %s %s", dbBackup, databasePath)); err != nil {
		return err
	}
	if _, err := r.Host.Sudo(fmt.Sprintf("chown %s:%s %s", serviceUser, serviceUser, databasePath)); err != nil {
		return err
	}

	fmt.Println("  ✓ Database restored")
	return nil
}
