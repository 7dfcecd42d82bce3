package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/timscan/internal/deploy"
	"github.com/banshee-data/timscan/internal/httputil"
)

// Monitor checks the service, its HTTP API and the database on a host.
type Monitor struct {
	Host    *deploy.Host
	APIPort int

	// Client overrides the HTTP client used for API probes, for tests.
	Client httputil.HTTPClient
}

// HealthStatus is the outcome of CheckHealth. Details holds one line per
// probe; Message names the first failure.
type HealthStatus struct {
	Healthy bool
	Message string
	Details string
}

// probeResult is one line of a health report.
type probeResult struct {
	ok   bool
	line string
	// fail becomes the health message when ok is false.
	fail string
}

func pass(line string) probeResult {
	return probeResult{ok: true, line: line}
}

func fail(line, message string) probeResult {
	return probeResult{line: line, fail: message}
}

func (m *Monitor) httpClient() httputil.HTTPClient {
	if m.Client != nil {
		return m.Client
	}
	return httputil.NewStandardClient(&http.Client{Timeout: 5 * time.Second})
}

// apiHost is the address the daemon's API answers on: the bare host with
// any ssh user prefix stripped, or localhost for local targets.
func apiHost(h *deploy.Host) string {
	if h.Local() {
		return "localhost"
	}
	addr := h.Addr()
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return addr[i+1:]
	}
	return addr
}

// GetStatus returns the systemd status output for the service.
func (m *Monitor) GetStatus() (string, error) {
	out, err := m.Host.Sudo(fmt.Sprintf("systemctl status %s --no-pager", serviceName))
	if err != nil {
		return "", fmt.Errorf("failed to get service status: %w", err)
	}
	return out, nil
}

// CheckHealth runs every probe and folds the results into one report.
// The first failing probe supplies the message.
func (m *Monitor) CheckHealth() (*HealthStatus, error) {
	health := &HealthStatus{Healthy: true}

	probes := []func() []probeResult{
		m.probeService,
		m.probeStarted,
		m.probeLogs,
		m.probeAPI,
		m.probeDatabase,
	}

	var lines []string
	for _, probe := range probes {
		for _, r := range probe() {
			lines = append(lines, r.line)
			if !r.ok {
				health.Healthy = false
				if health.Message == "" {
					health.Message = r.fail
				}
			}
		}
	}

	health.Details = strings.Join(lines, "\n")
	if health.Healthy {
		health.Message = "All checks passed"
	}
	return health, nil
}

func (m *Monitor) probeService() []probeResult {
	out, err := m.Host.Sudo("systemctl is-active " + serviceName)
	if err != nil || strings.TrimSpace(out) != "active" {
		return []probeResult{fail("✗ Service: NOT RUNNING", "Service is not running")}
	}
	return []probeResult{pass("✓ Service: RUNNING")}
}

// probeStarted reports when the service last started. A very recent
// timestamp on a long-lived host usually means crash-looping.
func (m *Monitor) probeStarted() []probeResult {
	out, err := m.Host.Sudo(fmt.Sprintf("systemctl show %s --property=ActiveEnterTimestamp --value", serviceName))
	if err != nil {
		return nil
	}
	return []probeResult{pass(fmt.Sprintf("✓ Started: %s", strings.TrimSpace(out)))}
}

func (m *Monitor) probeLogs() []probeResult {
	out, err := m.Host.Sudo(fmt.Sprintf("journalctl -u %s -n 20 --no-pager", serviceName))
	if err != nil {
		return nil
	}

	errorCount := strings.Count(strings.ToLower(out), "error")
	if errorCount > 5 {
		return []probeResult{fail(
			fmt.Sprintf("✗ Logs: %d errors found", errorCount),
			fmt.Sprintf("Too many errors in logs (%d)", errorCount),
		)}
	}
	return []probeResult{pass(fmt.Sprintf("✓ Logs: %d errors (acceptable)", errorCount))}
}

// probeAPI hits the daemon's HTTP surface: the health endpoint first,
// then the scan status for acquisition detail.
func (m *Monitor) probeAPI() []probeResult {
	port := m.APIPort
	if port == 0 {
		port = 8080
	}
	base := fmt.Sprintf("http://%s:%d", apiHost(m.Host), port)
	client := m.httpClient()

	resp, err := client.Get(base + "/api/health")
	if err != nil {
		return []probeResult{fail("✗ API: NOT RESPONDING", "API endpoint not responding")}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return []probeResult{fail(
			fmt.Sprintf("✗ API: Status %d", resp.StatusCode),
			fmt.Sprintf("API returned status %d", resp.StatusCode),
		)}
	}

	results := []probeResult{pass("✓ API: RESPONDING")}

	statusResp, err := client.Get(base + "/api/scan/status")
	if err != nil {
		return results
	}
	defer statusResp.Body.Close()
	if statusResp.StatusCode != http.StatusOK {
		return results
	}

	var status struct {
		State     string `json:"state"`
		SessionID string `json:"session_id"`
		Totals    struct {
			Scans int64 `json:"scans"`
		} `json:"totals"`
	}
	if err := json.NewDecoder(statusResp.Body).Decode(&status); err != nil {
		return results
	}

	if status.State == "running" {
		line := fmt.Sprintf("✓ Acquisition: running (session %s, %d scans)", status.SessionID, status.Totals.Scans)
		return append(results, pass(line))
	}
	return append(results, fail(
		fmt.Sprintf("✗ Acquisition: %s", status.State),
		fmt.Sprintf("Acquisition state is %q", status.State),
	))
}

func (m *Monitor) probeDatabase() []probeResult {
	if !fileExists(m.Host, databasePath) {
		return []probeResult{fail("✗ Database: MISSING", "Database file not found")}
	}

	if out, err := m.Host.Sudo(fmt.Sprintf("du -h %s | cut -f1", databasePath)); err == nil {
		return []probeResult{pass(fmt.Sprintf("✓ Database: %s", strings.TrimSpace(out)))}
	}
	return []probeResult{pass("✓ Database: EXISTS")}
}
