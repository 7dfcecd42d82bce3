package main

import (
	"strings"
	"testing"
)

// rollbackScript answers the host queries a rollback makes against a
// single backup taken at 11:00. Case order matters: the database check
// must match before the bare binary check.
func rollbackScript(line string) string {
	switch {
	case strings.Contains(line, "ls -1t /var/lib/timscan/backups/"):
		return "20260824-110000\n"
	case strings.Contains(line, "timscan.db && echo"):
		return "present\n"
	case strings.Contains(line, "/timscan && echo"):
		return "present\n"
	case strings.Contains(line, "is-active"):
		return "active\n"
	}
	return ""
}

func TestRollbackFullFlow(t *testing.T) {
	host, sh := scriptedHost(t, "sensor-gw", rollbackScript)

	rollback := &Rollback{Host: host, Yes: true}

	if err := rollback.Execute(); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	wantSteps := []string{
		"systemctl stop timscan",
		"cp /var/lib/timscan/backups/20260824-110000/timscan /usr/local/bin/timscan",
		"cp /var/lib/timscan/backups/20260824-110000/timscan.db /var/lib/timscan/timscan.db",
		"chown timscan:timscan /var/lib/timscan/timscan.db",
		"systemctl start timscan",
	}
	for _, step := range wantSteps {
		if len(sh.Calls(step)) == 0 {
			t.Errorf("Expected a command containing %q", step)
		}
	}
}

func TestRollbackNoBackups(t *testing.T) {
	host, _ := scriptedHost(t, "sensor-gw", func(line string) string {
		return ""
	})

	rollback := &Rollback{Host: host, Yes: true}

	err := rollback.Execute()
	if err == nil || !strings.Contains(err.Error(), "no backups found") {
		t.Fatalf("Expected no-backups error, got %v", err)
	}
}

func TestRollbackMissingBinary(t *testing.T) {
	host, _ := scriptedHost(t, "sensor-gw", func(line string) string {
		switch {
		case strings.Contains(line, "ls -1t /var/lib/timscan/backups/"):
			return "20260824-110000\n"
		case strings.Contains(line, "/timscan && echo"):
			return "absent\n"
		}
		return ""
	})

	rollback := &Rollback{Host: host, Yes: true}

	err := rollback.Execute()
	if err == nil || !strings.Contains(err.Error(), "binary not found") {
		t.Fatalf("Expected missing-binary error, got %v", err)
	}
}

// Answering no to the database prompt keeps the current database while
// the binary restore still goes through.
func TestRollbackPromptKeepsDatabase(t *testing.T) {
	host, sh := scriptedHost(t, "sensor-gw", rollbackScript)

	rollback := &Rollback{
		Host: host,
		In:   strings.NewReader("y\nn\n"),
	}

	if err := rollback.Execute(); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if len(sh.Calls("cp /var/lib/timscan/backups/20260824-110000/timscan /usr/local/bin/timscan")) == 0 {
		t.Error("Expected the binary restore command")
	}
	if n := len(sh.Calls("timscan.db /var/lib/timscan/timscan.db")); n != 0 {
		t.Errorf("Expected the database to be kept, got %d restore commands", n)
	}
}

// Answering no to the first prompt cancels before anything runs.
func TestRollbackDeclined(t *testing.T) {
	host, sh := scriptedHost(t, "sensor-gw", rollbackScript)

	rollback := &Rollback{
		Host: host,
		In:   strings.NewReader("n\n"),
	}

	if err := rollback.Execute(); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if n := len(sh.Calls("systemctl stop")); n != 0 {
		t.Errorf("Expected no stop after declining, got %d", n)
	}
}
