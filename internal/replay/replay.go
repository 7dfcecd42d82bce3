// Package replay provides transport connections backed by recorded sensor
// streams instead of live hardware: raw capture files written by Recorder,
// and (behind the pcap build tag) packet captures of the sensor's TCP
// stream. A replay Conn plugs into the acquisition loop exactly like a live
// connection, so the daemon, the capture tools, and tests all run the same
// pipeline over canned data.
package replay

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/timscan/internal/cola"
	"github.com/banshee-data/timscan/internal/scan"
	"github.com/banshee-data/timscan/internal/timeutil"
	"github.com/banshee-data/timscan/internal/transport"
)

// DefaultInterval is the pause between replayed telegrams when the capture
// carries no timing information, matching the default preset's sweep rate.
var DefaultInterval = scan.DefaultPreset.SweepDuration()

// Options control replay pacing and termination.
type Options struct {
	// Interval is the pause between telegrams for captures without
	// per-packet timestamps. Zero selects DefaultInterval.
	Interval time.Duration

	// Rate scales replay speed: 1.0 is real time, 2.0 twice as fast.
	// Zero or negative selects 1.0.
	Rate float64

	// Loop rewinds to the start of the capture when it runs out instead of
	// ending the stream with io.EOF.
	Loop bool

	// Clock defaults to the real clock.
	Clock timeutil.Clock
}

// chunk is one unit of replayed data: a telegram from a raw capture, or one
// packet payload from a pcap. A zero timestamp means the chunk carries no
// timing and is paced by the configured interval.
type chunk struct {
	data []byte
	at   time.Time
}

// chunkSource yields the capture's chunks in order, returning io.EOF when
// the capture is exhausted.
type chunkSource interface {
	next() (chunk, error)
	rewind() error
	close() error
}

// Conn replays a recorded byte stream through the transport.Conn interface.
// Reads deliver the capture's bytes paced to the recording's timing (scaled
// by Options.Rate); writes are accepted and discarded, since the recorded
// sensor cannot react to configuration commands. Close unblocks a Read that
// is waiting out a pacing delay.
type Conn struct {
	src   chunkSource
	clock timeutil.Clock

	interval time.Duration
	rate     float64
	loop     bool

	mu      sync.Mutex
	pending []byte
	lastAt  time.Time
	served  bool

	closed    chan struct{}
	closeOnce sync.Once
}

// Open opens a raw capture file, as written by Recorder, for replay. The
// stream is paced one telegram per interval.
func Open(path string, opts Options) (*Conn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	return newConn(&fileSource{f: f, r: bufio.NewReader(f)}, opts), nil
}

func newConn(src chunkSource, opts Options) *Conn {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Rate <= 0 {
		opts.Rate = 1.0
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Conn{
		src:      src,
		clock:    opts.Clock,
		interval: opts.Interval,
		rate:     opts.Rate,
		loop:     opts.Loop,
		closed:   make(chan struct{}),
	}
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Read serves the next slice of the capture. Each telegram (or packet
// payload) is delivered after its pacing delay; a buffer smaller than the
// current chunk drains it across several calls with no delay in between.
// After the capture is exhausted Read returns io.EOF, unless Loop is set.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed() {
		return 0, transport.ErrConnClosed
	}
	if len(c.pending) == 0 {
		if err := c.advance(); err != nil {
			return 0, err
		}
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// advance fetches the next chunk, waiting out its pacing delay first.
func (c *Conn) advance() error {
	ck, err := c.src.next()
	if err == io.EOF && c.loop && c.served {
		if err := c.src.rewind(); err != nil {
			return err
		}
		c.lastAt = time.Time{}
		c.served = false
		ck, err = c.src.next()
	}
	if err != nil {
		// A close during the fetch surfaces as a file error; report it
		// as the close it is.
		if c.isClosed() {
			return transport.ErrConnClosed
		}
		return err
	}

	if delay := c.pace(ck.at); delay > 0 {
		select {
		case <-c.clock.After(delay):
		case <-c.closed:
			return transport.ErrConnClosed
		}
	}
	c.pending = ck.data
	c.served = true
	return nil
}

// pace returns how long to wait before serving a chunk stamped at. The
// first chunk of a pass is served immediately; timestamped chunks wait the
// recorded gap, unstamped ones the fixed interval, both scaled by rate.
func (c *Conn) pace(at time.Time) time.Duration {
	var delay time.Duration
	switch {
	case !at.IsZero() && !c.lastAt.IsZero():
		delay = at.Sub(c.lastAt)
	case at.IsZero() && c.served:
		delay = c.interval
	}
	if !at.IsZero() {
		c.lastAt = at
	}
	return time.Duration(float64(delay) / c.rate)
}

// Write accepts and discards p. Session setup sends configuration commands
// down the connection; a recording has already answered them.
func (c *Conn) Write(p []byte) (int, error) {
	if c.isClosed() {
		return 0, transport.ErrConnClosed
	}
	return len(p), nil
}

// Close releases the capture and unblocks a paced Read. Safe to call
// concurrently with Read and more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.src.close()
	})
	return err
}

// fileSource streams telegrams out of a raw capture file, splitting on the
// frame end byte. Bytes after the last end byte are served as a final
// partial chunk so the extractor downstream sees the whole recording.
type fileSource struct {
	f *os.File
	r *bufio.Reader
}

func (s *fileSource) next() (chunk, error) {
	data, err := s.r.ReadBytes(cola.FRAME_END_BYTE)
	if len(data) > 0 {
		return chunk{data: data}, nil
	}
	if err == nil {
		err = io.EOF
	}
	return chunk{}, err
}

func (s *fileSource) rewind() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.r.Reset(s.f)
	return nil
}

func (s *fileSource) close() error { return s.f.Close() }

// memSource serves preloaded chunks, for pcap replay.
type memSource struct {
	chunks []chunk
	pos    int
}

func (s *memSource) next() (chunk, error) {
	if s.pos >= len(s.chunks) {
		return chunk{}, io.EOF
	}
	ck := s.chunks[s.pos]
	s.pos++
	return ck, nil
}

func (s *memSource) rewind() error {
	s.pos = 0
	return nil
}

func (s *memSource) close() error { return nil }
