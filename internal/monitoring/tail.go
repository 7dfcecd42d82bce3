package monitoring

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Tail retains the most recent log lines in a ring and fans new lines out to
// subscribers. It implements io.Writer so it can sit behind the standard
// logger and feed the /debug/logtail stream.
type Tail struct {
	mu          sync.Mutex
	lines       []string
	next        int
	filled      bool
	partial     strings.Builder
	subscribers map[string]chan string
}

// NewTail returns a tail retaining up to capacity lines. A capacity of zero
// or less selects a default of 256.
func NewTail(capacity int) *Tail {
	if capacity <= 0 {
		capacity = 256
	}
	return &Tail{
		lines:       make([]string, capacity),
		subscribers: make(map[string]chan string),
	}
}

func randomID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Capture tees the standard logger through the tail, so everything written
// via Logf reaches both stderr and the ring.
func (t *Tail) Capture() {
	log.SetOutput(io.MultiWriter(os.Stderr, t))
}

// Write splits p into lines and records each complete one. Bytes after the
// last newline are held until the rest of their line arrives.
func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range p {
		if b == '\n' {
			t.record(t.partial.String())
			t.partial.Reset()
			continue
		}
		t.partial.WriteByte(b)
	}
	return len(p), nil
}

func (t *Tail) record(line string) {
	t.lines[t.next] = line
	t.next++
	if t.next == len(t.lines) {
		t.next = 0
		t.filled = true
	}
	for _, ch := range t.subscribers {
		select {
		case ch <- line:
		default:
			// if the channel is full/blocking skip so as not to stall the logger
		}
	}
}

// Lines returns the retained lines, oldest first.
func (t *Tail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.filled {
		out := make([]string, t.next)
		copy(out, t.lines[:t.next])
		return out
	}
	out := make([]string, 0, len(t.lines))
	out = append(out, t.lines[t.next:]...)
	out = append(out, t.lines[:t.next]...)
	return out
}

// Subscribe creates a new channel receiving every line recorded after the
// call. The returned id is passed to Unsubscribe when done.
func (t *Tail) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (t *Tail) Unsubscribe(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.subscribers[id]; ok {
		close(ch)
		delete(t.subscribers, id)
	}
}
