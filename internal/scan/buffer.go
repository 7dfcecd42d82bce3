package scan

import (
	"sync"
	"time"
)

// Buffer is a single-slot holder of the most recent decoded scan. Writes
// overwrite; nothing is queued, so readers always see "latest or nothing".
// Reads copy the stored vector out so no caller can alias the writer's
// memory. Safe for one writer and any number of concurrent readers.
type Buffer struct {
	mu        sync.RWMutex
	scan      Scan
	hasScan   bool
	published uint64
	lastWrite time.Time
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Write replaces the stored scan. The buffer takes its own copy, stamps the
// publish sequence number onto it, and records the write time.
func (b *Buffer) Write(s Scan) {
	c := s.Clone()

	b.mu.Lock()
	b.published++
	c.Seq = b.published
	b.scan = c
	b.hasScan = true
	b.lastWrite = time.Now()
	b.mu.Unlock()
}

// Latest returns a copy of the most recent scan. ok is false until the first
// write. Never blocks beyond the bounded critical section.
func (b *Buffer) Latest() (s Scan, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasScan {
		return Scan{}, false
	}
	return b.scan.Clone(), true
}

// Published returns how many scans have been written since creation.
func (b *Buffer) Published() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.published
}

// Age returns the time since the last write, or false if nothing has been
// written yet.
func (b *Buffer) Age() (time.Duration, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.hasScan {
		return 0, false
	}
	return time.Since(b.lastWrite), true
}
