// Command timscan runs the scan acquisition daemon: it configures a
// TIM-series 2D rangefinder over TCP or serial, decodes its measurement
// stream, serves the latest scan and session status over HTTP, and records
// sessions with periodic sweep rollups to SQLite.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/timscan/internal/acquire"
	"github.com/banshee-data/timscan/internal/api"
	"github.com/banshee-data/timscan/internal/config"
	"github.com/banshee-data/timscan/internal/db"
	"github.com/banshee-data/timscan/internal/monitoring"
	"github.com/banshee-data/timscan/internal/replay"
	"github.com/banshee-data/timscan/internal/scan"
	"github.com/banshee-data/timscan/internal/sweep"
	"github.com/banshee-data/timscan/internal/transport"
	"github.com/banshee-data/timscan/internal/version"
)

var (
	device       = flag.String("device", "192.168.0.1:2112", "sensor address: host:port for TCP, or a serial port path")
	presetFlag   = flag.String("preset", "", "angular resolution preset: 0.33, 0.5 or 1.0 (overrides tuning config)")
	listen       = flag.String("listen", ":8080", "HTTP listen address")
	dbFile       = flag.String("db", "timscan.db", "SQLite database path")
	tuningPath   = flag.String("tuning", "", "tuning config JSON path")
	recordPath   = flag.String("record", "", "tee the raw sensor stream into this capture file")
	autoBaseline = flag.Bool("auto-baseline", false, "adopt a legacy database automatically when its schema matches a known version")
)

func main() {
	flag.Parse()

	if runSubcommand(flag.Args(), *dbFile) {
		return
	}

	tuning := loadTuning(*tuningPath)
	preset := resolvePreset(*presetFlag, tuning)

	// Everything logged from here on also lands in the ring served at
	// /debug/logtail.
	tail := monitoring.NewTail(tuning.GetLogTailLines())
	tail.Capture()

	log.Printf("timscan %s (%s) starting: device=%s preset=%s", version.Version, version.GitSHA, *device, preset.Name)

	database, err := db.NewDBChecked(*dbFile, *autoBaseline)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	conn, err := transport.Dial(*device, transport.PortOptions{BaudRate: tuning.GetBaudRate()})
	if err != nil {
		log.Fatalf("Failed to open sensor device %s: %v", *device, err)
	}

	if *recordPath != "" {
		sink, err := os.Create(*recordPath)
		if err != nil {
			log.Fatalf("Failed to create capture file %s: %v", *recordPath, err)
		}
		conn = replay.NewRecorder(conn, sink)
		log.Printf("recording sensor stream to %s", *recordPath)
	}

	loop := acquire.NewLoop(conn, acquire.Config{
		Preset:      preset,
		MaxTelegram: tuning.GetMaxTelegramBytes(),
		RetryPause:  tuning.GetRetryPause(),
		SettleDelay: tuning.GetSettleDelay(),
	})

	// The configuration handshake runs on this goroutine, so a sensor that
	// rejects the preset fails startup outright.
	if err := loop.Start(); err != nil {
		log.Fatalf("Failed to start acquisition: %v", err)
	}

	if err := database.StartSession(loop.SessionID(), *device, preset.Name, time.Now()); err != nil {
		log.Printf("failed to record session start: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(api.Config{
		Addr:   *listen,
		Device: *device,
		Source: loop,
		DB:     database,
		Tail:   tail,
	})

	var wg sync.WaitGroup

	// HTTP server: serves until the context is cancelled, then shuts down
	// gracefully.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Periodic acquisition rate logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(tuning.GetStatsInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				loop.Stats().LogStats()
			case <-ctx.Done():
				return
			}
		}
	}()

	// Periodic sweep rollups: one aggregate row per period summarizing the
	// latest scan.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(tuning.GetRollupPeriod())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				latest, ok := loop.LatestScan()
				if !ok {
					continue
				}
				if err := database.RecordRollup(loop.SessionID(), time.Now(), sweep.Summarize(latest)); err != nil {
					log.Printf("failed to record rollup: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Run until a signal arrives or the acquisition loop dies on its own
	// (end of stream, unrecoverable transport fault).
	select {
	case <-ctx.Done():
		log.Printf("shutdown requested")
	case <-loop.Done():
		if err := loop.Err(); err != nil {
			log.Printf("acquisition ended: %v", err)
		}
	}

	loop.RequestStop()
	<-loop.Done()

	endReason := "requested"
	if err := loop.Err(); err != nil {
		endReason = err.Error()
	}
	totals, _ := loop.Stats().Totals()
	if err := database.EndSession(loop.SessionID(), time.Now(), endReason, totals.Scans); err != nil {
		log.Printf("failed to record session end: %v", err)
	}
	log.Printf("session %s ended: %d scans", loop.SessionID(), totals.Scans)

	// Cancels the context in the loop-death case; a no-op after a signal.
	stop()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// loadTuning reads the tuning config, or falls back to the built-in
// defaults when no path is given.
func loadTuning(path string) *config.TuningConfig {
	if path == "" {
		return config.DefaultTuningConfig()
	}
	tuning, err := config.LoadTuningConfig(path)
	if err != nil {
		log.Fatalf("Failed to load tuning config %s: %v", path, err)
	}
	log.Printf("loaded tuning config from %s", path)
	return tuning
}

// resolvePreset picks the angular resolution: the -preset flag wins over
// the tuning config, which carries its own default.
func resolvePreset(flagValue string, tuning *config.TuningConfig) scan.Preset {
	name := flagValue
	if name == "" {
		name = tuning.GetPreset()
	}
	preset, err := scan.PresetByName(name)
	if err != nil {
		log.Fatalf("Invalid preset: %v", err)
	}
	return preset
}
