package cola

import (
	"bufio"
	"fmt"
	"io"
)

// ErrTelegramTooLong reports that the extractor accumulated more than the
// configured maximum without seeing an end marker. The extractor has already
// discarded the oversized run and resynced; callers may continue.
var ErrTelegramTooLong = fmt.Errorf("telegram exceeded maximum size without end marker")

// Extractor pulls framed telegrams out of a raw byte stream. It is a two
// state machine: discard bytes until a start marker, then accumulate until
// the end marker and emit the payload (markers excluded). Chunk boundaries
// in the underlying reads never affect the output since markers are single
// bytes and accumulation spans reads.
//
// An Extractor is not safe for concurrent use; exactly one goroutine should
// call Next.
type Extractor struct {
	r       *bufio.Reader
	maxSize int
	resyncs uint64
}

// NewExtractor wraps src with buffered read-ahead. maxTelegram bounds
// accumulation; pass 0 for DEFAULT_MAX_TELEGRAM.
func NewExtractor(src io.Reader, maxTelegram int) *Extractor {
	if maxTelegram <= 0 {
		maxTelegram = DEFAULT_MAX_TELEGRAM
	}
	return &Extractor{
		r:       bufio.NewReader(src),
		maxSize: maxTelegram,
	}
}

// Next returns the payload of the next complete telegram.
//
// io.EOF means the stream ended cleanly between telegrams;
// io.ErrUnexpectedEOF means it ended mid-telegram. Both are terminal.
// ErrTelegramTooLong and transient read errors are recoverable: the caller
// may keep calling Next, which reseeks the next start marker.
func (e *Extractor) Next() ([]byte, error) {
	// Seek the start marker, discarding inter-telegram noise.
	for {
		b, err := e.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == FRAME_START_BYTE {
			break
		}
	}

	buf := make([]byte, 0, 512)
	for {
		b, err := e.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if b == FRAME_END_BYTE {
			return buf, nil
		}
		buf = append(buf, b)
		if len(buf) > e.maxSize {
			e.resyncs++
			return nil, ErrTelegramTooLong
		}
	}
}

// Resyncs returns how many oversized runs have been discarded.
func (e *Extractor) Resyncs() uint64 {
	return e.resyncs
}
