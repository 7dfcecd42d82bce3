package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/timscan/internal/deploy"
	"github.com/banshee-data/timscan/internal/fsutil"
)

// Backup pulls the installed binary, database and unit file from the
// target into a timestamped local directory.
type Backup struct {
	Host      *deploy.Host
	OutputDir string

	// FS overrides the local filesystem, for tests.
	FS fsutil.FileSystem
	// Now overrides the clock naming the backup directory, for tests.
	Now func() time.Time
}

func (b *Backup) fs() fsutil.FileSystem {
	if b.FS != nil {
		return b.FS
	}
	return fsutil.OSFileSystem{}
}

func (b *Backup) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Execute performs the backup.
func (b *Backup) Execute() error {
	fmt.Println("Starting backup of timscan...")

	stamp := b.now().Format(backupStampLayout)
	backupDir := filepath.Join(b.OutputDir, "timscan-backup-"+stamp)
	if err := b.fs().MkdirAll(backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	fmt.Printf("Backup directory: %s\n", backupDir)

	if err := b.backupBinary(backupDir); err != nil {
		return fmt.Errorf("failed to backup binary: %w", err)
	}
	if err := b.backupDatabase(backupDir); err != nil {
		fmt.Printf("Warning: could not backup database: %v\n", err)
	}
	if err := b.backupServiceFile(backupDir); err != nil {
		fmt.Printf("Warning: could not backup service file: %v\n", err)
	}
	if err := b.writeMetadata(backupDir, stamp); err != nil {
		fmt.Printf("Warning: could not create metadata: %v\n", err)
	}

	fmt.Printf("\n✓ Backup completed successfully!\n")
	fmt.Printf("Backup saved to: %s\n", backupDir)

	return nil
}

// fetchStaged pulls a file off the host. The source is staged
// world-readable in /tmp first so the copy back down needs no sudo.
func (b *Backup) fetchStaged(src, dst string) error {
	staged := "/tmp/timscan-fetch-" + filepath.Base(dst)
	if _, err := b.Host.Sudo(fmt.Sprintf("cp %s %s && chmod 644 %s", src, staged, staged)); err != nil {
		return err
	}
	defer b.Host.Run("rm -f " + staged)

	return b.Host.Pull(staged, dst)
}

func (b *Backup) backupBinary(backupDir string) error {
	fmt.Println("Backing up binary...")

	if err := b.fetchStaged(installPath, filepath.Join(backupDir, "timscan")); err != nil {
		return err
	}

	fmt.Println("  ✓ Binary backed up")
	return nil
}

// backupDatabase copies the live database file. A plain copy can land
// mid-checkpoint; the daemon's /debug/backup endpoint serves a consistent
// VACUUM snapshot when the service is up and that matters.
func (b *Backup) backupDatabase(backupDir string) error {
	fmt.Println("Backing up database...")

	if !fileExists(b.Host, databasePath) {
		fmt.Println("  ⊘ No database found")
		return nil
	}

	dst := filepath.Join(backupDir, "timscan.db")
	if err := b.fetchStaged(databasePath, dst); err != nil {
		return err
	}

	if info, err := b.fs().Stat(dst); err == nil {
		fmt.Printf("  ✓ Database backed up (%s)\n", formatSize(info.Size()))
	} else {
		fmt.Println("  ✓ Database backed up")
	}
	return nil
}

func (b *Backup) backupServiceFile(backupDir string) error {
	fmt.Println("Backing up service file...")

	src := "/etc/systemd/system/" + serviceFile
	if err := b.fetchStaged(src, filepath.Join(backupDir, serviceFile)); err != nil {
		return err
	}

	fmt.Println("  ✓ Service file backed up")
	return nil
}

func (b *Backup) writeMetadata(backupDir, stamp string) error {
	fmt.Println("Creating backup metadata...")

	versionOut, _ := b.Host.Run(fmt.Sprintf("%s version 2>&1 || echo unknown", installPath))
	statusOut, _ := b.Host.Sudo(fmt.Sprintf("systemctl is-active %s 2>&1 || echo unknown", serviceName))

	metadata := fmt.Sprintf(`timscan backup
==============
Timestamp: %s
Target: %s
Binary version: %s
Service status: %s

Files included:
- timscan (binary)
- timscan.db (database)
- timscan.service (systemd unit)

To restore this backup:
1. Stop the service: sudo systemctl stop timscan.service
2. Restore binary: sudo cp timscan /usr/local/bin/timscan
3. Restore database: sudo cp timscan.db /var/lib/timscan/timscan.db
4. Restore unit: sudo cp timscan.service /etc/systemd/system/
5. Reload systemd: sudo systemctl daemon-reload
6. Fix ownership: sudo chown -R timscan:timscan /var/lib/timscan
7. Start service: sudo systemctl start timscan.service
`, stamp, b.Host.Addr(), strings.TrimSpace(versionOut), strings.TrimSpace(statusOut))

	if err := b.fs().WriteFile(filepath.Join(backupDir, "README.txt"), []byte(metadata), 0644); err != nil {
		return err
	}

	fmt.Println("  ✓ Metadata created")
	return nil
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
