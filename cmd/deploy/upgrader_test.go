package main

import (
	"strings"
	"testing"
)

func TestUpgraderNotInstalled(t *testing.T) {
	host, _ := scriptedHost(t, "sensor-gw", func(line string) string {
		if strings.Contains(line, "test -f /etc/systemd/system/timscan.service") {
			return "absent\n"
		}
		return ""
	})

	upgrader := &Upgrader{Host: host, BinaryPath: "./timscan-linux-arm64"}

	err := upgrader.Upgrade()
	if err == nil || !strings.Contains(err.Error(), "not installed") {
		t.Fatalf("Expected not-installed error, got %v", err)
	}
}

// upgradeScript answers the scripted host queries an upgrade makes. The
// is-active answer is parameterised so failure paths can reuse it.
func upgradeScript(active string) func(line string) string {
	return func(line string) string {
		switch {
		case strings.Contains(line, "test -f /etc/systemd/system/timscan.service"):
			return "present\n"
		case strings.Contains(line, "version 2>&1"):
			return "timscan 0.4.0 (commit abc1234, built 2026-08-01)\n"
		case strings.Contains(line, "systemctl show"):
			return "timscan\n"
		case strings.Contains(line, "is-active"):
			return active + "\n"
		}
		return ""
	}
}

func TestUpgraderFullFlow(t *testing.T) {
	host, sh := scriptedHost(t, "sensor-gw", upgradeScript("active"))

	upgrader := &Upgrader{Host: host, BinaryPath: "./timscan-linux-arm64"}

	if err := upgrader.Upgrade(); err != nil {
		t.Fatalf("Upgrade returned error: %v", err)
	}

	wantSteps := []string{
		"mkdir -p /var/lib/timscan/backups/",
		"cp /usr/local/bin/timscan /var/lib/timscan/backups/",
		"systemctl stop timscan",
		"mv /tmp/timscan-new /usr/local/bin/timscan",
		"migrate up -db /var/lib/timscan/timscan.db",
		"chown -R timscan:timscan /var/lib/timscan",
		"systemctl start timscan",
	}
	for _, step := range wantSteps {
		if len(sh.Calls(step)) == 0 {
			t.Errorf("Expected a command containing %q", step)
		}
	}
}

func TestUpgraderNoMigrate(t *testing.T) {
	host, sh := scriptedHost(t, "sensor-gw", upgradeScript("active"))

	upgrader := &Upgrader{
		Host:       host,
		BinaryPath: "./timscan-linux-arm64",
		NoMigrate:  true,
	}

	if err := upgrader.Upgrade(); err != nil {
		t.Fatalf("Upgrade returned error: %v", err)
	}
	if n := len(sh.Calls("migrate up")); n != 0 {
		t.Errorf("Expected no migrations with NoMigrate, got %d", n)
	}
}

func TestUpgraderNoBackup(t *testing.T) {
	host, sh := scriptedHost(t, "sensor-gw", upgradeScript("active"))

	upgrader := &Upgrader{
		Host:       host,
		BinaryPath: "./timscan-linux-arm64",
		NoBackup:   true,
	}

	if err := upgrader.Upgrade(); err != nil {
		t.Fatalf("Upgrade returned error: %v", err)
	}
	if n := len(sh.Calls("/var/lib/timscan/backups/")); n != 0 {
		t.Errorf("Expected no backup commands with NoBackup, got %d", n)
	}
}

func TestUpgraderVerifyFailure(t *testing.T) {
	host, _ := scriptedHost(t, "sensor-gw", upgradeScript("inactive"))

	upgrader := &Upgrader{Host: host, BinaryPath: "./timscan-linux-arm64"}

	err := upgrader.Upgrade()
	if err == nil || !strings.Contains(err.Error(), "health check failed") {
		t.Fatalf("Expected health check failure, got %v", err)
	}
}
