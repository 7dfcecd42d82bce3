package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/timscan/internal/deploy"
)

// Upgrader swaps in a new binary, bringing the schema up to date and
// leaving an on-host backup for rollback.
type Upgrader struct {
	Host       *deploy.Host
	BinaryPath string
	NoBackup   bool
	NoMigrate  bool
}

// Upgrade performs the upgrade.
func (u *Upgrader) Upgrade() error {
	fmt.Println("Starting upgrade of timscan...")

	installed, err := serviceFilePresent(u.Host)
	if err != nil {
		return fmt.Errorf("failed to check installation: %w", err)
	}
	if !installed {
		return fmt.Errorf("timscan is not installed. Use 'install' command first")
	}

	fmt.Printf("Current version: %s\n", u.currentVersion())

	err = runSteps([]deployStep{
		{"backup current installation", u.backupCurrent},
		{"stop service", func() error { return stopService(u.Host) }},
		{"install new binary", u.installNewBinary},
		{"run migrations", u.migrateSchema},
		{"start service", func() error { return startService(u.Host) }},
	})
	if err != nil {
		return err
	}

	if err := verifyActive(u.Host); err != nil {
		fmt.Println("\n⚠ Warning: Service health check failed!")
		fmt.Println("You may want to rollback using: timscan-deploy rollback")
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Println("  ✓ Service is running")

	fmt.Println("\n✓ Upgrade completed successfully!")
	return nil
}

// currentVersion asks the installed binary for its version, falling back
// to the binary's modification time when the subcommand is missing.
func (u *Upgrader) currentVersion() string {
	out, err := u.Host.Run(fmt.Sprintf("%s version 2>&1 || echo unknown", installPath))
	v := strings.TrimSpace(out)
	if err == nil && v != "" && !strings.Contains(v, "unknown") {
		return v
	}

	if mt, err := u.Host.Run(fmt.Sprintf("stat -c %%Y %s 2>/dev/null || echo 0", installPath)); err == nil {
		if ts := strings.TrimSpace(mt); ts != "0" && ts != "" {
			return "installed-" + ts
		}
	}
	return "unknown"
}

// serviceOwner reads the account the unit runs as. An edited unit may use
// a different account than the default.
func (u *Upgrader) serviceOwner() string {
	out, err := u.Host.Run(fmt.Sprintf("systemctl show %s -p User --value 2>/dev/null || echo '%s'", serviceName, serviceUser))
	owner := strings.TrimSpace(out)
	if err != nil || owner == "" {
		return serviceUser
	}
	return owner
}

func (u *Upgrader) backupCurrent() error {
	if u.NoBackup {
		fmt.Println("Skipping backup (--no-backup flag set)")
		return nil
	}

	fmt.Println("Backing up current installation...")

	stamp := time.Now().Format(backupStampLayout)
	backupDir := fmt.Sprintf("%s/backups/%s", dataDir, stamp)
	owner := u.serviceOwner()

	cmd := fmt.Sprintf("mkdir -p %s && chown %s:%s %s", backupDir, owner, owner, backupDir)
	if _, err := u.Host.Sudo(cmd); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	debugLog("backing up binary from %s to %s/timscan", installPath, backupDir)
	if out, err := u.Host.Sudo(fmt.Sprintf("cp %s %s/timscan", installPath, backupDir)); err != nil {
		return fmt.Errorf("backup binary to %s: %w (output: %s)", backupDir, err, out)
	}

	copyDB := fmt.Sprintf("test -f %s && cp %s %s/timscan.db || true", databasePath, databasePath, backupDir)
	if out, err := u.Host.Sudo(copyDB); err != nil {
		fmt.Printf("Warning: could not backup database: %v (output: %s)\n", err, out)
	}

	note := fmt.Sprintf("Backup created: %s\nBinary: %s\n", stamp, installPath)
	if err := u.Host.Put(backupDir+"/version.txt", note); err != nil {
		fmt.Printf("Warning: could not write version info: %v\n", err)
	}

	fmt.Printf("  ✓ Backup saved to: %s\n", backupDir)
	return nil
}

func (u *Upgrader) installNewBinary() error {
	fmt.Printf("Installing new binary from: %s\n", u.BinaryPath)

	staged := "/tmp/timscan-new"
	if err := u.Host.Push(u.BinaryPath, staged); err != nil {
		return fmt.Errorf("copy binary: %w", err)
	}
	if _, err := u.Host.Sudo(fmt.Sprintf("mv %s %s", staged, installPath)); err != nil {
		return fmt.Errorf("move binary into place: %w", err)
	}
	cmd := fmt.Sprintf("chown root:root %s && chmod 0755 %s", installPath, installPath)
	if _, err := u.Host.Sudo(cmd); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}

	fmt.Println("  ✓ New binary installed")
	return nil
}

// migrateSchema runs the daemon's own migrate subcommand. The daemon
// refuses to start against a stale schema, so skipping this on a
// schema-changing release leaves the service down.
func (u *Upgrader) migrateSchema() error {
	if u.NoMigrate {
		fmt.Println("Skipping migrations (--no-migrate flag set)")
		return nil
	}

	fmt.Println("Running schema migrations...")

	out, err := u.Host.Sudo(fmt.Sprintf("%s migrate up -db %s", installPath, databasePath))
	if err != nil {
		return fmt.Errorf("migrate up failed: %w (output: %s)", err, out)
	}

	// Migrations ran as root; hand the files back to the service user.
	if _, err := u.Host.Sudo(fmt.Sprintf("chown -R %s:%s %s", serviceUser, serviceUser, dataDir)); err != nil {
		return fmt.Errorf("restore data ownership: %w", err)
	}

	fmt.Println("  ✓ Schema up to date")
	return nil
}
