package transport

import (
	"bytes"
	"errors"
	"sync"
)

// ErrConnClosed is returned by TestConn operations after Close.
var ErrConnClosed = errors.New("connection closed")

// TestConn implements Conn with scripted behaviour for tests. Reads consume
// queued chunks one at a time, so callers control exactly how the byte
// stream fragments across Read calls. With BlockReads set, Read blocks on
// an empty queue until data is queued or the conn is closed, mimicking a
// quiet sensor.
type TestConn struct {
	mu sync.Mutex

	// chunks holds pending read data; each Read returns at most one chunk.
	chunks [][]byte

	// writes captures everything written to the conn.
	writes *bytes.Buffer

	// ReadErr is returned by the next Read call, once, if set.
	ReadErr error

	// ScriptErr is returned by every Read once the chunk queue is drained,
	// modeling a stream that ends (io.EOF) or a persistently failing source.
	ScriptErr error

	// WriteErr is returned by the next Write call, once, if set.
	WriteErr error

	// BlockReads makes Read wait for data instead of returning empty.
	BlockReads bool

	// Closed reports whether Close was called.
	Closed bool

	// ReadCalls and WriteCalls count operations for assertions.
	ReadCalls  int
	WriteCalls int

	readCond *sync.Cond
}

// NewTestConn returns an empty scripted connection.
func NewTestConn() *TestConn {
	c := &TestConn{writes: bytes.NewBuffer(nil)}
	c.readCond = sync.NewCond(&c.mu)
	return c
}

// QueueRead appends one chunk to the read script. A later Read returns the
// chunk's bytes (or a prefix, if the caller's buffer is smaller; the rest
// stays queued).
func (c *TestConn) QueueRead(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	chunk := make([]byte, len(data))
	copy(chunk, data)
	c.chunks = append(c.chunks, chunk)
	c.readCond.Signal()
}

// Read pops the next scripted chunk. Once the script is exhausted it
// returns 0 bytes (or blocks, with BlockReads) until Close, after which it
// fails with ErrConnClosed.
func (c *TestConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ReadCalls++

	if c.Closed {
		return 0, ErrConnClosed
	}
	if c.ReadErr != nil {
		err := c.ReadErr
		c.ReadErr = nil
		return 0, err
	}

	if len(c.chunks) == 0 && c.ScriptErr != nil {
		return 0, c.ScriptErr
	}
	if c.BlockReads {
		for !c.Closed && len(c.chunks) == 0 {
			c.readCond.Wait()
		}
		if c.Closed {
			return 0, ErrConnClosed
		}
	}
	if len(c.chunks) == 0 {
		return 0, nil
	}

	chunk := c.chunks[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		c.chunks[0] = chunk[n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

// Write captures p, simulating the sensor accepting a command.
func (c *TestConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.WriteCalls++

	if c.Closed {
		return 0, ErrConnClosed
	}
	if c.WriteErr != nil {
		err := c.WriteErr
		c.WriteErr = nil
		return 0, err
	}
	return c.writes.Write(p)
}

// Close marks the conn closed and wakes any blocked reader, matching the
// unblock-on-close contract of the real transports.
func (c *TestConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	c.readCond.Broadcast()
	return nil
}

// Reads returns how many Read calls have been made, for callers racing a
// reader goroutine.
func (c *TestConn) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ReadCalls
}

// Written returns everything written so far.
func (c *TestConn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, c.writes.Len())
	copy(out, c.writes.Bytes())
	return out
}
