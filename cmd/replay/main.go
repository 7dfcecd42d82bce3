// Command replay serves the scan HTTP API from a recorded sensor stream.
//
// It replays a capture file written with `timscan -record`, or a packet
// capture when built with -tags=pcap, through the same acquisition loop the
// daemon runs against live hardware. Useful for developing against the API
// without a sensor on the bench.
//
// Usage:
//
//	go run ./cmd/replay -capture session.bin [flags]
//
// Flags:
//
//	-capture   Path to the capture file (required)
//	-pcap      Treat the capture as a packet capture (requires -tags=pcap)
//	-port      Sensor TCP port to filter pcap payloads on (default: 2112)
//	-listen    HTTP listen address (default: :8080)
//	-preset    Resolution preset the capture was recorded with (default: 0.5)
//	-rate      Playback speed multiplier (default: 1.0)
//	-loop      Restart playback when the capture ends
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/timscan/internal/acquire"
	"github.com/banshee-data/timscan/internal/api"
	"github.com/banshee-data/timscan/internal/monitoring"
	"github.com/banshee-data/timscan/internal/replay"
	"github.com/banshee-data/timscan/internal/scan"
	"github.com/banshee-data/timscan/internal/transport"
)

func main() {
	capture := flag.String("capture", "", "Path to the capture file (required)")
	usePcap := flag.Bool("pcap", false, "Treat the capture as a packet capture")
	port := flag.Int("port", 2112, "Sensor TCP port to filter pcap payloads on")
	listen := flag.String("listen", ":8080", "HTTP listen address")
	presetName := flag.String("preset", scan.DefaultPreset.Name, "Resolution preset the capture was recorded with")
	rate := flag.Float64("rate", 1.0, "Playback speed multiplier")
	loopFlag := flag.Bool("loop", false, "Restart playback when the capture ends")
	flag.Parse()

	if *capture == "" {
		log.Fatal("Error: -capture flag is required")
	}

	preset, err := scan.PresetByName(*presetName)
	if err != nil {
		log.Fatalf("Invalid preset: %v", err)
	}

	tail := monitoring.NewTail(256)
	tail.Capture()

	opts := replay.Options{
		Interval: preset.SweepDuration(),
		Rate:     *rate,
		Loop:     *loopFlag,
	}

	var conn transport.Conn
	if *usePcap {
		conn, err = replay.OpenPcap(*capture, *port, opts)
	} else {
		conn, err = replay.Open(*capture, opts)
	}
	if err != nil {
		log.Fatalf("Failed to open capture: %v", err)
	}

	log.Printf("Replaying %s at %gx as %s", *capture, *rate, preset)

	// No sensor on the other end, so there is nothing to settle.
	loop := acquire.NewLoop(conn, acquire.Config{
		Preset:      preset,
		SettleDelay: time.Millisecond,
	})
	if err := loop.Start(); err != nil {
		log.Fatalf("Failed to start playback: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(api.Config{
		Addr:   *listen,
		Device: "replay:" + *capture,
		Source: loop,
		Tail:   tail,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	select {
	case <-ctx.Done():
	case <-loop.Done():
		// Keep the API up on the final scan so it can still be inspected.
		if err := loop.Err(); err != nil {
			log.Printf("Playback finished: %v", err)
		}
		log.Printf("Serving the final state; interrupt to exit")
		<-ctx.Done()
	}

	loop.RequestStop()
	<-loop.Done()

	totals, _ := loop.Stats().Totals()
	log.Printf("Replayed %d scans (%d bytes)", totals.Scans, totals.Bytes)

	stop()
	wg.Wait()
}
