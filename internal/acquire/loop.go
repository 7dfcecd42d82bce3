// Package acquire runs the scan acquisition session: it configures the
// sensor over an open transport connection, then pulls telegrams off the
// stream on a dedicated goroutine and publishes decoded scans to a
// single-slot buffer for consumers to poll.
package acquire

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/timscan/internal/cola"
	"github.com/banshee-data/timscan/internal/monitoring"
	"github.com/banshee-data/timscan/internal/scan"
	"github.com/banshee-data/timscan/internal/timeutil"
	"github.com/banshee-data/timscan/internal/transport"
)

// DefaultRetryPause is how long the loop waits after a transient transport
// fault before reading again.
const DefaultRetryPause = 100 * time.Millisecond

// State is the lifecycle position of a Loop. A Loop moves strictly forward:
// Idle until Start, Running while reading, Stopping once a stop has been
// requested but the goroutine has not yet exited, and Stopped terminally.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrNotIdle is returned by Start on a loop that already ran or is running.
var ErrNotIdle = errors.New("acquisition loop already started")

// Config carries the tunable parts of a Loop. The zero value of every field
// selects a sensible default.
type Config struct {
	// Preset selects the angular resolution. Zero value means
	// scan.DefaultPreset.
	Preset scan.Preset

	// MaxTelegram bounds frame accumulation; 0 selects the cola default.
	MaxTelegram int

	// RetryPause is the delay before retrying after a transient transport
	// fault; 0 selects DefaultRetryPause.
	RetryPause time.Duration

	// SettleDelay is the pause between mode selection and stream enable
	// during sensor configuration; 0 selects the cola default.
	SettleDelay time.Duration

	// Clock defaults to the real clock.
	Clock timeutil.Clock

	// Buffer receives decoded scans; one is created if nil.
	Buffer *scan.Buffer

	// Stats receives counter updates; one is created if nil.
	Stats *Stats
}

// Loop owns one acquisition session over one connection. Construct with
// NewLoop, drive with Start and RequestStop. A stopped Loop cannot be
// restarted; open a fresh connection and build a new one.
type Loop struct {
	conn   transport.Conn
	preset scan.Preset
	buffer *scan.Buffer
	stats  *Stats
	clock  timeutil.Clock

	maxTelegram int
	retryPause  time.Duration
	settleDelay time.Duration

	sessionID string

	state atomic.Int32
	done  chan struct{}

	errMu sync.Mutex
	err   error
}

// NewLoop builds a Loop over conn. The Loop takes ownership of conn: it is
// closed when the loop stops, however it stops.
func NewLoop(conn transport.Conn, cfg Config) *Loop {
	if cfg.Preset.Samples == 0 {
		cfg.Preset = scan.DefaultPreset
	}
	if cfg.RetryPause <= 0 {
		cfg.RetryPause = DefaultRetryPause
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = cola.DefaultSettleDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Buffer == nil {
		cfg.Buffer = scan.NewBuffer()
	}
	if cfg.Stats == nil {
		cfg.Stats = NewStats()
	}
	return &Loop{
		conn:        conn,
		preset:      cfg.Preset,
		buffer:      cfg.Buffer,
		stats:       cfg.Stats,
		clock:       cfg.Clock,
		maxTelegram: cfg.MaxTelegram,
		retryPause:  cfg.RetryPause,
		settleDelay: cfg.SettleDelay,
		sessionID:   "ses_" + uuid.NewString(),
		done:        make(chan struct{}),
	}
}

// SessionID identifies this acquisition session in logs and the database.
func (l *Loop) SessionID() string { return l.sessionID }

// Preset returns the angular resolution this session was configured with.
func (l *Loop) Preset() scan.Preset { return l.preset }

// Buffer exposes the scan buffer for consumers that poll directly.
func (l *Loop) Buffer() *scan.Buffer { return l.buffer }

// Stats exposes the session counters.
func (l *Loop) Stats() *Stats { return l.stats }

// State returns the current lifecycle state.
func (l *Loop) State() State { return State(l.state.Load()) }

// IsStopped reports whether the loop has terminated, for any reason. Check
// Err to distinguish a requested stop from a fault.
func (l *Loop) IsStopped() bool { return l.State() == StateStopped }

// Done is closed when the loop has fully stopped.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Err returns the terminal fault, or nil if the loop is still running or
// stopped on request.
func (l *Loop) Err() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

func (l *Loop) setErr(err error) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	if l.err == nil {
		l.err = err
	}
}

// LatestScan returns a copy of the most recent decoded scan. The second
// return is false until the first scan arrives. Never blocks on the
// acquisition goroutine.
func (l *Loop) LatestScan() (scan.Scan, bool) {
	return l.buffer.Latest()
}

// Start configures the sensor and launches the acquisition goroutine. The
// configuration handshake (mode select, settle, stream enable) happens on
// the caller's goroutine so its failure is returned directly; expect Start
// to take at least the settle delay.
func (l *Loop) Start() error {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrNotIdle
	}

	monitoring.Logf("acquire: %s: configuring sensor: %s", l.sessionID, l.preset)
	if err := cola.Configure(l.conn, l.preset, l.settleDelay, l.clock); err != nil {
		err = fmt.Errorf("sensor configuration failed: %w", err)
		l.setErr(err)
		l.state.Store(int32(StateStopped))
		l.conn.Close()
		close(l.done)
		return err
	}

	go l.run()
	return nil
}

// RequestStop asks the loop to stop and closes the connection so a blocked
// read returns promptly. Safe to call from any goroutine, any number of
// times. The loop reaches Stopped within one framing+decode cycle of the
// read unblocking; wait on Done for that.
func (l *Loop) RequestStop() {
	if l.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		// Never started; nothing is reading.
		l.conn.Close()
		close(l.done)
		return
	}
	if l.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		l.conn.Close()
	}
}

func (l *Loop) run() {
	defer func() {
		l.conn.Close()
		l.state.Store(int32(StateStopped))
		close(l.done)
		monitoring.Logf("acquire: %s: stopped", l.sessionID)
	}()

	ext := cola.NewExtractor(l.conn, l.maxTelegram)

	for {
		if l.State() != StateRunning {
			return
		}

		telegram, err := ext.Next()
		if err != nil {
			if l.State() != StateRunning {
				return
			}
			switch {
			case errors.Is(err, cola.ErrTelegramTooLong):
				l.stats.AddResync()
				monitoring.Logf("acquire: %s: oversized telegram discarded, resyncing", l.sessionID)
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), transport.IsClosed(err):
				l.setErr(fmt.Errorf("sensor stream ended: %w", err))
				monitoring.Logf("acquire: %s: stream ended: %v", l.sessionID, err)
				return
			default:
				l.stats.AddRetry()
				monitoring.Logf("acquire: %s: transport fault, retrying in %s: %v", l.sessionID, l.retryPause, err)
				l.clock.Sleep(l.retryPause)
				continue
			}
		}

		ranges, err := cola.DecodeTelegram(telegram)
		if err != nil {
			if errors.Is(err, cola.ErrNotScanData) {
				// Command echoes and other event telegrams share the
				// stream with scan data; they are expected traffic.
				l.stats.AddSkipped()
			} else {
				l.stats.AddDecodeError()
				monitoring.Logf("acquire: %s: discarding telegram: %v", l.sessionID, err)
			}
			continue
		}

		now := l.clock.Now()
		l.buffer.Write(scan.Scan{
			Taken:  now,
			Preset: l.preset.Name,
			Ranges: ranges,
		})
		l.stats.AddScan(len(telegram), now)
	}
}
