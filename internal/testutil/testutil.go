// Package testutil builds wire fixtures for exercising the scan pipeline:
// framed telegrams in the sensor's measurement format, shared by the tests
// of every package that consumes the byte stream.
package testutil

import (
	"strconv"
	"strings"

	"github.com/banshee-data/timscan/internal/cola"
)

// Frame wraps payload in the telegram start and end bytes.
func Frame(payload string) []byte {
	out := make([]byte, 0, len(payload)+2)
	out = append(out, cola.FRAME_START_BYTE)
	out = append(out, payload...)
	out = append(out, cola.FRAME_END_BYTE)
	return out
}

// ScanTelegram builds a complete framed measurement telegram carrying the
// given millimeter samples, with the count and samples hex-encoded as the
// sensor emits them. Header fields between the protocol tokens and the
// sample count are zero filler.
func ScanTelegram(mm ...int) []byte {
	fields := []string{cola.TokenEventAnswer, cola.TokenScanData}
	for i := 2; i < cola.FIELD_SAMPLE_COUNT; i++ {
		fields = append(fields, "0")
	}
	fields = append(fields, strconv.FormatInt(int64(len(mm)), 16))
	for _, v := range mm {
		fields = append(fields, strconv.FormatInt(int64(v), 16))
	}
	return Frame(strings.Join(fields, " "))
}

// ConfigEcho builds the framed acknowledgement the sensor sends back after
// a configuration command. It shares the stream with measurement telegrams
// and must classify as non-scan traffic.
func ConfigEcho() []byte {
	return Frame("sAN mLMPsetscancfg 0")
}
