// Command view is a terminal dashboard for a ranging sensor: a live top-down
// scope of the current sweep next to session counters and range statistics.
//
// It runs in one of two modes. By default it dials the sensor itself and runs
// the acquisition loop in-process; the 1/2/3 keys then restart the session at
// a different resolution. With an API address (flag or config) it polls a
// running timscan daemon instead, so it can watch a session without
// disturbing it.
//
// Usage:
//
//	view [-config view.toml] [-device host:port] [-preset name] [-api http://host:8080]
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/banshee-data/timscan/internal/acquire"
	"github.com/banshee-data/timscan/internal/httputil"
	"github.com/banshee-data/timscan/internal/monitoring"
	"github.com/banshee-data/timscan/internal/scan"
	"github.com/banshee-data/timscan/internal/transport"
	"github.com/banshee-data/timscan/internal/units"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	device := flag.String("device", "", "Sensor address (overrides config)")
	presetName := flag.String("preset", "", "Resolution preset (overrides config)")
	apiURL := flag.String("api", "", "Poll a running daemon at this base URL instead of dialing the sensor")
	flag.Parse()

	conf, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *device != "" {
		conf.Sensor.Device = *device
	}
	if *presetName != "" {
		conf.Sensor.Preset = *presetName
	}
	if *apiURL != "" {
		conf.Sensor.API = *apiURL
	}
	if !units.IsValid(conf.View.Units) {
		log.Fatalf("Invalid units %q: valid values are %s", conf.View.Units, units.GetValidUnitsString())
	}

	source, label, err := buildSource(conf)
	if err != nil {
		log.Fatalf("%v", err)
	}

	// The alt screen owns the terminal from here on; route library logging
	// nowhere so the loop's messages cannot corrupt the display.
	monitoring.SetLogger(nil)
	log.SetOutput(io.Discard)

	m := newModel(source, conf.PollInterval(), conf.View.MaxRangeM, conf.View.Units)
	m.snap.Device = label
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, runErr := p.Run()

	log.SetOutput(os.Stderr)
	if err := source.Close(); err != nil {
		log.Printf("Close: %v", err)
	}
	if runErr != nil {
		log.Fatalf("view: %v", runErr)
	}
}

// buildSource picks the snapshot source: a remote daemon when an API base URL
// is configured, otherwise an in-process acquisition loop against the sensor.
func buildSource(conf Config) (statusSource, string, error) {
	if conf.Sensor.API != "" {
		client := httputil.NewStandardClient(&http.Client{Timeout: 5 * time.Second})
		return newAPISource(client, conf.Sensor.API), conf.Sensor.API, nil
	}

	preset, err := scan.PresetByName(conf.Sensor.Preset)
	if err != nil {
		return nil, "", fmt.Errorf("invalid preset: %w", err)
	}
	conn, err := transport.Dial(conf.Sensor.Device, transport.PortOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to %s: %w", conf.Sensor.Device, err)
	}
	cfg := acquire.Config{Preset: preset}
	loop := acquire.NewLoop(conn, cfg)
	if err := loop.Start(); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("failed to start acquisition: %w", err)
	}
	return newLoopSource(loop, conf.Sensor.Device, cfg), conf.Sensor.Device, nil
}
