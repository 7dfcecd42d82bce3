package replay

import (
	"io"
	"sync"

	"github.com/banshee-data/timscan/internal/monitoring"
	"github.com/banshee-data/timscan/internal/transport"
)

// Recorder wraps a live connection and tees every byte read from it into a
// capture sink, producing a file that Open can replay. Writes pass through
// untouched, so the wrapped connection still takes configuration commands.
// A failing sink disables recording but never disturbs acquisition.
type Recorder struct {
	conn transport.Conn

	mu   sync.Mutex
	sink io.WriteCloser
}

// NewRecorder records everything read from conn into sink. The Recorder
// owns both: Close closes the connection and then the sink.
func NewRecorder(conn transport.Conn, sink io.WriteCloser) *Recorder {
	return &Recorder{conn: conn, sink: sink}
}

// Read reads from the live connection and copies whatever arrived into the
// sink before returning it.
func (r *Recorder) Read(p []byte) (int, error) {
	n, err := r.conn.Read(p)
	if n > 0 {
		r.record(p[:n])
	}
	return n, err
}

func (r *Recorder) record(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink == nil {
		return
	}
	if _, err := r.sink.Write(data); err != nil {
		monitoring.Logf("replay: capture write failed, recording disabled: %v", err)
		r.sink.Close()
		r.sink = nil
	}
}

// Write passes p through to the live connection.
func (r *Recorder) Write(p []byte) (int, error) {
	return r.conn.Write(p)
}

// Close closes the connection first, so a blocked Read unblocks, then
// flushes and closes the capture sink.
func (r *Recorder) Close() error {
	err := r.conn.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sink != nil {
		if cerr := r.sink.Close(); err == nil {
			err = cerr
		}
		r.sink = nil
	}
	return err
}
