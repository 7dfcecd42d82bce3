// Command sweep captures a batch of scans and reduces them to a per-angle
// range profile: summary statistics on stdout, a CSV of the profile, and
// PNG plots of the profile and the final sweep's cartesian point cloud.
//
// The batch comes from a live sensor or from a capture file recorded with
// `timscan -record`. With -db the batch is also recorded as a session with
// one rollup row per scan.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/timscan/internal/acquire"
	"github.com/banshee-data/timscan/internal/db"
	"github.com/banshee-data/timscan/internal/replay"
	"github.com/banshee-data/timscan/internal/scan"
	"github.com/banshee-data/timscan/internal/sweep"
	"github.com/banshee-data/timscan/internal/transport"
)

func main() {
	// Source selection
	device := flag.String("device", "192.168.0.1:2112", "Sensor address (host:port or serial port path)")
	captureFile := flag.String("capture", "", "Read from a capture file instead of a live sensor")
	presetName := flag.String("preset", scan.DefaultPreset.Name, "Resolution preset: 0.33, 0.5 or 1.0")

	// Batch size and pacing
	scanCount := flag.Int("scans", 100, "Number of scans to capture")
	timeout := flag.Duration("timeout", 2*time.Minute, "Give up if the batch is not complete in this time")

	// Outputs
	output := flag.String("output", "", "Output directory (defaults to sweep-<preset>-<timestamp>)")
	dbPath := flag.String("db", "", "Record the batch as a session in this database")

	flag.Parse()

	preset, err := scan.PresetByName(*presetName)
	if err != nil {
		log.Fatalf("Invalid preset: %v", err)
	}

	source := *device
	cfg := acquire.Config{Preset: preset}

	var conn transport.Conn
	if *captureFile != "" {
		source = *captureFile
		// Replay as fast as the decoder can drain it.
		conn, err = replay.Open(*captureFile, replay.Options{Interval: time.Microsecond})
		cfg.SettleDelay = time.Millisecond
	} else {
		conn, err = transport.Dial(*device, transport.PortOptions{})
	}
	if err != nil {
		log.Fatalf("Failed to open %s: %v", source, err)
	}

	loop := acquire.NewLoop(conn, cfg)
	if err := loop.Start(); err != nil {
		log.Fatalf("Failed to start acquisition: %v", err)
	}

	log.Printf("Capturing %d scans from %s at %s", *scanCount, source, preset)
	scans := collectScans(loop, preset, *scanCount, *timeout)

	loop.RequestStop()
	<-loop.Done()

	if len(scans) == 0 {
		log.Fatal("No scans captured")
	}
	if len(scans) < *scanCount {
		log.Printf("WARNING: Captured %d of %d scans before the stream ended", len(scans), *scanCount)
	}

	profile, err := sweep.BuildProfile(scans)
	if err != nil {
		log.Fatalf("Failed to build profile: %v", err)
	}

	logBatchSummary(scans)

	outDir := *output
	if outDir == "" {
		outDir = fmt.Sprintf("sweep-%s-%s", preset.Name, time.Now().Format("20060102-150405"))
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		log.Fatalf("Could not create output dir %s: %v", outDir, err)
	}

	if err := writeProfileCSV(filepath.Join(outDir, "profile.csv"), profile); err != nil {
		log.Fatalf("Failed to write profile CSV: %v", err)
	}
	if err := saveProfilePlot(filepath.Join(outDir, "profile.png"), profile); err != nil {
		log.Fatalf("Failed to plot profile: %v", err)
	}
	if err := saveScatterPlot(filepath.Join(outDir, "scatter.png"), scans[len(scans)-1]); err != nil {
		log.Fatalf("Failed to plot scan points: %v", err)
	}

	if *dbPath != "" {
		if err := recordSession(*dbPath, loop.SessionID(), source, preset, scans); err != nil {
			log.Fatalf("Failed to record session: %v", err)
		}
		log.Printf("Recorded session %s in %s", loop.SessionID(), *dbPath)
	}

	log.Printf("Sweep complete!")
	log.Printf("Profile: %s", filepath.Join(outDir, "profile.csv"))
	log.Printf("Plots: %s, %s", filepath.Join(outDir, "profile.png"), filepath.Join(outDir, "scatter.png"))
}

// collectScans polls the loop's latest-scan slot until the batch is full,
// the stream ends, or the deadline passes. Publish sequence numbers
// deduplicate polls that land between sweeps.
func collectScans(loop *acquire.Loop, preset scan.Preset, want int, timeout time.Duration) []scan.Scan {
	poll := preset.SweepDuration() / 4
	if poll <= 0 {
		poll = time.Millisecond
	}

	scans := make([]scan.Scan, 0, want)
	var lastSeq uint64
	deadline := time.Now().Add(timeout)

	for len(scans) < want {
		if s, ok := loop.LatestScan(); ok && s.Seq != lastSeq {
			lastSeq = s.Seq
			scans = append(scans, s)
			if len(scans)%25 == 0 {
				log.Printf("Captured %d/%d scans", len(scans), want)
			}
			continue
		}
		if time.Now().After(deadline) {
			log.Printf("WARNING: Timed out with %d/%d scans", len(scans), want)
			return scans
		}
		select {
		case <-loop.Done():
			return scans
		case <-time.After(poll):
		}
	}
	return scans
}

func logBatchSummary(scans []scan.Scan) {
	meanVals := make([]float64, len(scans))
	validVals := make([]float64, len(scans))
	for i, s := range scans {
		agg := sweep.Summarize(s)
		meanVals[i] = agg.MeanM
		validVals[i] = agg.ValidRatio
	}

	meanM := stat.Mean(meanVals, nil)
	validRatio := stat.Mean(validVals, nil)
	var meanStd, validStd float64
	if len(scans) > 1 {
		meanStd = stat.StdDev(meanVals, nil)
		validStd = stat.StdDev(validVals, nil)
	}
	log.Printf("Results: mean_range=%.3f±%.3fm, valid_ratio=%.3f±%.3f over %d scans",
		meanM, meanStd, validRatio, validStd, len(scans))

	last := sweep.Summarize(scans[len(scans)-1])
	log.Printf("Last scan: %d/%d valid, range %.2f..%.2fm, nearest return at %.1f°",
		last.Valid, last.Samples, last.MinM, last.MaxM, last.NearestDeg)
}

func writeProfileCSV(path string, profile *sweep.Profile) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{"angle_deg", "mean_m", "stddev_m", "min_m", "max_m"})
	for i, a := range profile.Angles {
		w.Write([]string{
			fmt.Sprintf("%.3f", a),
			fmt.Sprintf("%.6f", profile.Mean[i]),
			fmt.Sprintf("%.6f", profile.StdDev[i]),
			fmt.Sprintf("%.6f", profile.Min[i]),
			fmt.Sprintf("%.6f", profile.Max[i]),
		})
	}
	return w.Error()
}

// saveProfilePlot draws range against beam angle: the per-angle mean with
// the min/max envelope. Angles that never echoed are left out.
func saveProfilePlot(path string, profile *sweep.Profile) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Range Profile (%d scans)", profile.Scans)
	p.X.Label.Text = "Angle (deg)"
	p.Y.Label.Text = "Range (m)"

	meanPts := make(plotter.XYs, 0, len(profile.Angles))
	minPts := make(plotter.XYs, 0, len(profile.Angles))
	maxPts := make(plotter.XYs, 0, len(profile.Angles))
	for i, a := range profile.Angles {
		if profile.Mean[i] <= 0 {
			continue
		}
		meanPts = append(meanPts, plotter.XY{X: a, Y: profile.Mean[i]})
		minPts = append(minPts, plotter.XY{X: a, Y: profile.Min[i]})
		maxPts = append(maxPts, plotter.XY{X: a, Y: profile.Max[i]})
	}

	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		return err
	}
	meanLine.Color = color.RGBA{B: 255, A: 255}
	meanLine.Width = vg.Points(1)
	p.Add(meanLine)
	p.Legend.Add("mean", meanLine)

	envelope := color.RGBA{R: 128, G: 128, B: 128, A: 255}
	for _, series := range []struct {
		label string
		pts   plotter.XYs
	}{{"min", minPts}, {"max", maxPts}} {
		line, err := plotter.NewLine(series.pts)
		if err != nil {
			return err
		}
		line.Color = envelope
		line.Width = vg.Points(0.5)
		p.Add(line)
		p.Legend.Add(series.label, line)
	}

	p.Legend.Top = true
	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save profile plot: %w", err)
	}
	return nil
}

// saveScatterPlot draws one sweep as cartesian points with the sensor at
// the origin.
func saveScatterPlot(path string, s scan.Scan) error {
	xs, ys := sweep.Points(s)
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i] = plotter.XY{X: xs[i], Y: ys[i]}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Scan %d", s.Seq)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Radius = vg.Points(1.5)
	scatter.GlyphStyle.Color = color.RGBA{B: 255, A: 255}
	p.Add(scatter)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save scatter plot: %w", err)
	}
	return nil
}

// recordSession writes the batch into the sessions table with one rollup
// row per scan.
func recordSession(path, sessionID, device string, preset scan.Preset, scans []scan.Scan) error {
	database, err := db.NewDB(path)
	if err != nil {
		return err
	}
	defer database.Close()

	started := scans[0].Taken
	if started.IsZero() {
		started = time.Now()
	}
	if err := database.StartSession(sessionID, device, preset.Name, started); err != nil {
		return err
	}
	for _, s := range scans {
		if err := database.RecordRollup(sessionID, s.Taken, sweep.Summarize(s)); err != nil {
			return err
		}
	}
	return database.EndSession(sessionID, time.Now(), "sweep complete", int64(len(scans)))
}
