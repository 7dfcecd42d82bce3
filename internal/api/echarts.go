package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/timscan/internal/httputil"
)

// echartsAssetsPrefix is where chart pages load the echarts runtime from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleScanChart renders the latest scan as an XY scatter (HTML) using
// go-echarts. Debugging-only endpoint to eyeball the field of view without
// any UI build. Query params:
//   - max_points (optional; default 2000) to reduce payload size
func (s *Server) handleScanChart(w http.ResponseWriter, r *http.Request) {
	latest, ok := s.cfg.Source.LatestScan()
	if !ok {
		httputil.NotFound(w, "no scan yet")
		return
	}

	maxPoints := 2000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 10 && v <= 50000 {
			maxPoints = v
		}
	}

	// Downsample by stride to stay within maxPoints
	stride := 1
	if latest.Samples() > maxPoints {
		stride = int(math.Ceil(float64(latest.Samples()) / float64(maxPoints)))
	}

	angles := latest.Angles()
	data := make([]opts.ScatterData, 0, latest.Samples()/stride+1)
	maxAbs := 0.0
	maxRange := 0.0
	for i := 0; i < len(latest.Ranges); i += stride {
		rng := latest.Ranges[i]
		if rng <= 0 {
			// no echo
			continue
		}
		theta := angles[i] * math.Pi / 180.0
		x := rng * math.Cos(theta)
		y := rng * math.Sin(theta)
		if math.Abs(x) > maxAbs {
			maxAbs = math.Abs(x)
		}
		if math.Abs(y) > maxAbs {
			maxAbs = math.Abs(y)
		}
		if rng > maxRange {
			maxRange = rng
		}

		data = append(data, opts.ScatterData{Value: []interface{}{x, y, rng}})
	}

	// Add a small padding so points at the edges are visible
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	if maxRange == 0 {
		maxRange = 1
	}

	// Force a square plot by using equal width/height and symmetric axis ranges
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Scan (Polar->XY)", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Latest scan", Subtitle: fmt.Sprintf("session=%s seq=%d points=%d stride=%d", s.cfg.Source.SessionID(), latest.Seq, len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxRange),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)

	scatter.AddSeries("returns", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
