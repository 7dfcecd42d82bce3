package main

import (
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/timscan/internal/fsutil"
)

func backupClock() time.Time {
	return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
}

func TestBackupFullFlow(t *testing.T) {
	host, sh := scriptedHost(t, "pi@sensor-gw", func(line string) string {
		switch {
		case strings.Contains(line, "test -f /var/lib/timscan/timscan.db"):
			return "present\n"
		case strings.Contains(line, "version 2>&1"):
			return "timscan 0.4.0 (commit abc1234, built 2026-08-01)\n"
		case strings.Contains(line, "is-active"):
			return "active\n"
		}
		return ""
	})

	memfs := fsutil.NewMemoryFileSystem()
	backup := &Backup{
		Host:      host,
		OutputDir: "backups",
		FS:        memfs,
		Now:       backupClock,
	}

	if err := backup.Execute(); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	dir := "backups/timscan-backup-20260824-120000"
	if !memfs.Exists(dir) {
		t.Errorf("Expected backup directory %s to exist", dir)
	}

	readme, err := memfs.ReadFile(dir + "/README.txt")
	if err != nil {
		t.Fatalf("Failed to read metadata: %v", err)
	}
	wantMeta := []string{
		"Timestamp: 20260824-120000",
		"Target: pi@sensor-gw",
		"Binary version: timscan 0.4.0 (commit abc1234, built 2026-08-01)",
		"Service status: active",
		"sudo systemctl daemon-reload",
	}
	for _, want := range wantMeta {
		if !strings.Contains(string(readme), want) {
			t.Errorf("Metadata missing %q:\n%s", want, readme)
		}
	}

	// Binary, database and unit file each stage world-readable in /tmp,
	// ride back over scp and get cleaned up.
	if n := len(sh.Calls("chmod 644 /tmp/timscan-fetch-")); n != 3 {
		t.Errorf("Expected 3 staging commands, got %d", n)
	}
	if n := len(sh.Calls("pi@sensor-gw:/tmp/timscan-fetch-")); n != 3 {
		t.Errorf("Expected 3 scp fetches, got %d", n)
	}
	if n := len(sh.Calls("rm -f /tmp/timscan-fetch-")); n != 3 {
		t.Errorf("Expected 3 staging cleanups, got %d", n)
	}
	if len(sh.Calls("cp /etc/systemd/system/timscan.service /tmp/timscan-fetch-timscan.service")) != 1 {
		t.Error("Expected the unit file to be staged for fetch")
	}
}

func TestBackupSkipsMissingDatabase(t *testing.T) {
	host, sh := scriptedHost(t, "pi@sensor-gw", func(line string) string {
		if strings.Contains(line, "test -f /var/lib/timscan/timscan.db") {
			return "absent\n"
		}
		return ""
	})

	backup := &Backup{
		Host:      host,
		OutputDir: "backups",
		FS:        fsutil.NewMemoryFileSystem(),
		Now:       backupClock,
	}

	if err := backup.Execute(); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if n := len(sh.Calls("/tmp/timscan-fetch-timscan.db")); n != 0 {
		t.Errorf("Expected no database staging without a database, got %d", n)
	}
	if n := len(sh.Calls("pi@sensor-gw:/tmp/timscan-fetch-")); n != 2 {
		t.Errorf("Expected 2 scp fetches, got %d", n)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 << 20, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.n); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
