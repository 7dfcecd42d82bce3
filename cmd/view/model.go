package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/banshee-data/timscan/internal/scan"
	"github.com/banshee-data/timscan/internal/units"
)

const sidebarWidth = 32

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("63")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	runningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	stoppedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	idleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

type tickMsg time.Time
type snapshotMsg snapshot
type pollErrMsg struct{ err error }

// model holds the viewer's state: the last snapshot plus terminal geometry.
type model struct {
	width  int
	height int

	source   statusSource
	interval time.Duration
	maxRange float64
	unit     string

	snap    snapshot
	haveAny bool
	pollErr error
}

func newModel(source statusSource, interval time.Duration, maxRange float64, unit string) model {
	return model{
		width:    80,
		height:   24,
		source:   source,
		interval: interval,
		maxRange: maxRange,
		unit:     unit,
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// poll fetches the next snapshot off the Update goroutine so a slow source
// never freezes the UI.
func (m model) poll() tea.Cmd {
	src := m.source
	return func() tea.Msg {
		snap, err := src.Snapshot()
		if err != nil {
			return pollErrMsg{err}
		}
		return snapshotMsg(snap)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.poll(), m.tick())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(m.poll(), m.tick())

	case snapshotMsg:
		m.snap = snapshot(msg)
		m.haveAny = true
		m.pollErr = nil

	case pollErrMsg:
		// Keep the last good snapshot on screen; the daemon may come back.
		m.pollErr = msg.err

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "1", "2", "3":
			idx := int(msg.String()[0] - '1')
			return m, m.switchPreset(scan.Presets[idx])
		}
	}
	return m, nil
}

// switchPreset restarts a switchable source in the given mode and reports
// the fresh state. Remote sources cannot switch, so the keys do nothing
// there.
func (m model) switchPreset(p scan.Preset) tea.Cmd {
	sw, ok := m.source.(presetSwitcher)
	if !ok {
		return nil
	}
	src := m.source
	return func() tea.Msg {
		if err := sw.SwitchPreset(p); err != nil {
			return pollErrMsg{err}
		}
		snap, err := src.Snapshot()
		if err != nil {
			return pollErrMsg{err}
		}
		return snapshotMsg(snap)
	}
}

func (m model) View() string {
	header := titleStyle.Render("timscan") + " " + labelStyle.Render(m.snap.Device)

	scopeW := m.width - sidebarWidth - 8
	scopeH := m.height - 5
	if scopeW < 11 {
		scopeW = 11
	}
	if scopeH < 7 {
		scopeH = 7
	}

	sidebar := paneStyle.Render(m.renderStatus())
	scope := paneStyle.Render(renderScope(m.snap.Scan, scopeW, scopeH, m.maxRange))
	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, scope)

	help := "q to quit"
	if _, ok := m.source.(presetSwitcher); ok {
		help = "1/2/3 to switch resolution · " + help
	}
	footer := labelStyle.Render(fmt.Sprintf("scope edge %s · %s", m.formatRange(m.maxRange), help))
	if m.pollErr != nil {
		footer = errStyle.Render("poll failed: "+m.pollErr.Error()) + "  " + footer
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m model) renderStatus() string {
	st := m.snap

	stateStyle := idleStyle
	switch st.State {
	case "running":
		stateStyle = runningStyle
	case "stopping", "stopped":
		stateStyle = stoppedStyle
	}

	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-9s", label)))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	b.WriteString(stateStyle.Render(strings.ToUpper(st.State)))
	b.WriteString("\n\n")
	line("session", st.SessionID)
	line("preset", st.Preset.String())
	line("scans", fmt.Sprintf("%d", st.Totals.Scans))
	line("data", formatBytes(st.Totals.Bytes))
	if st.Totals.Skipped > 0 {
		line("skipped", fmt.Sprintf("%d", st.Totals.Skipped))
	}
	if st.Totals.DecodeErrors > 0 {
		line("bad", fmt.Sprintf("%d", st.Totals.DecodeErrors))
	}
	if st.Totals.Resyncs > 0 {
		line("resyncs", fmt.Sprintf("%d", st.Totals.Resyncs))
	}
	if st.Totals.Retries > 0 {
		line("retries", fmt.Sprintf("%d", st.Totals.Retries))
	}

	if st.HasScan {
		b.WriteString("\n")
		line("scan", fmt.Sprintf("#%d", st.Scan.Seq))
		line("age", time.Since(st.Scan.Taken).Round(10*time.Millisecond).String())
		if agg := st.Agg; agg != nil {
			line("valid", fmt.Sprintf("%d/%d", agg.Valid, agg.Samples))
			if agg.Valid > 0 {
				line("nearest", fmt.Sprintf("%s @ %.1f°", m.formatRange(agg.MinM), agg.NearestDeg))
				line("mean", m.formatRange(agg.MeanM))
				line("farthest", m.formatRange(agg.MaxM))
			}
		}
	} else if m.haveAny {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("waiting for first scan"))
		b.WriteString("\n")
	}

	if st.FaultMsg != "" {
		b.WriteString("\n")
		b.WriteString(errStyle.Render(st.FaultMsg))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func (m model) formatRange(meters float64) string {
	return fmt.Sprintf("%.2f%s", units.ConvertDistance(meters, m.unit), m.unit)
}

// renderScope draws a top-down view of the sweep: the sensor sits at the
// centre marked '+', straight ahead points up, and each echo is plotted so
// that maxRange lands on the panel edge. Echoes beyond maxRange are clamped
// to the edge.
func renderScope(s scan.Scan, w, h int, maxRange float64) string {
	if w < 3 || h < 3 {
		return ""
	}
	if maxRange <= 0 {
		maxRange = 10
	}

	grid := make([][]rune, h)
	for i := range grid {
		grid[i] = make([]rune, w)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}

	cx, cy := w/2, h/2
	halfW := float64(w/2 - 1)
	halfH := float64(h/2 - 1)

	angles := s.Angles()
	for i, r := range s.Ranges {
		if r <= 0 {
			continue
		}
		if r > maxRange {
			r = maxRange
		}
		rad := angles[i] * math.Pi / 180
		across := math.Sin(rad) * r / maxRange
		ahead := math.Cos(rad) * r / maxRange

		col := cx + int(math.Round(across*halfW))
		row := cy - int(math.Round(ahead*halfH))
		if row < 0 || row >= h || col < 0 || col >= w {
			continue
		}
		grid[row][col] = '•'
	}
	grid[cy][cx] = '+'

	lines := make([]string, h)
	for i := range grid {
		lines[i] = string(grid[i])
	}
	return strings.Join(lines, "\n")
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
