package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/timscan/internal/deploy"
)

// deployStep is one stage of an install or upgrade sequence.
type deployStep struct {
	label string
	run   func() error
}

// runSteps runs each step in order, stopping at the first failure.
func runSteps(steps []deployStep) error {
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("%s: %w", step.label, err)
		}
	}
	return nil
}

const (
	// serviceStopGrace is how long to wait after systemctl stop so the
	// process is fully gone before the binary is replaced.
	serviceStopGrace = 2 * time.Second
	// serviceStartGrace is how long to wait after systemctl start before
	// polling the unit state.
	serviceStartGrace = 3 * time.Second

	// backupStampLayout names backup directories sortably by creation
	// time.
	backupStampLayout = "20060102-150405"
)

// serviceFilePresent reports whether the systemd unit is installed on h.
func serviceFilePresent(h *deploy.Host) (bool, error) {
	out, err := h.Run(fmt.Sprintf("test -f /etc/systemd/system/%s && echo present || echo absent", serviceFile))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "present", nil
}

// fileExists probes for path under sudo, so files in the service user's
// data directory answer too.
func fileExists(h *deploy.Host, path string) bool {
	out, err := h.Sudo(fmt.Sprintf("test -f %s && echo present || echo absent", path))
	return err == nil && strings.TrimSpace(out) == "present"
}

func stopService(h *deploy.Host) error {
	fmt.Println("Stopping service...")

	if _, err := h.Sudo("systemctl stop " + serviceName); err != nil {
		return err
	}
	h.Run(fmt.Sprintf("sleep %d", int(serviceStopGrace.Seconds())))

	fmt.Println("  ✓ Service stopped")
	return nil
}

func startService(h *deploy.Host) error {
	fmt.Println("Starting service...")

	if _, err := h.Sudo("systemctl start " + serviceName); err != nil {
		return err
	}
	h.Run(fmt.Sprintf("sleep %d", int(serviceStartGrace.Seconds())))

	fmt.Println("  ✓ Service started")
	return nil
}

// verifyActive polls systemd once and fails unless the unit reports
// active.
func verifyActive(h *deploy.Host) error {
	out, err := h.Sudo("systemctl is-active " + serviceName)
	if err != nil || strings.TrimSpace(out) != "active" {
		return fmt.Errorf("service is not active")
	}
	return nil
}
