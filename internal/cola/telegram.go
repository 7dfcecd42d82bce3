package cola

import (
	"bytes"
	"fmt"
	"strconv"
)

// ErrNotScanData reports a telegram whose leading tokens are not the
// sSN/LMDscandata pair. Other event telegrams from the sensor land here and
// are simply skipped by callers.
var ErrNotScanData = fmt.Errorf("telegram is not an LMDscandata event")

var fieldSep = []byte{FIELD_SEPARATOR}

// DecodeTelegram parses one measurement telegram payload into a ranging
// vector in meters.
//
// Malformed input is an expected condition and always comes back as an
// error, never a panic; the function is pure, so callers retain whatever
// scan they already hold. The sample count field and the samples themselves
// are parsed hexadecimal-first with a decimal fallback, matching the
// sensor's dual-base field encoding.
func DecodeTelegram(telegram []byte) ([]float64, error) {
	fields := bytes.Split(telegram, fieldSep)

	// Identify the telegram before judging its shape, so command echoes and
	// other short event telegrams come back as ErrNotScanData rather than a
	// malformed-telegram error.
	if len(fields) < 2 ||
		!bytes.Equal(fields[FIELD_COMMAND_TYPE], []byte(TokenEventAnswer)) ||
		!bytes.Equal(fields[FIELD_COMMAND], []byte(TokenScanData)) {
		return nil, ErrNotScanData
	}

	if len(fields) <= FIELD_SAMPLE_COUNT {
		return nil, fmt.Errorf("telegram has %d fields, need at least %d", len(fields), FIELD_SAMPLE_COUNT+1)
	}

	count, err := parseNumber(fields[FIELD_SAMPLE_COUNT])
	if err != nil {
		return nil, fmt.Errorf("bad sample count field: %w", err)
	}
	if count < 0 {
		return nil, fmt.Errorf("negative sample count %d", count)
	}
	n := int(count)
	if len(fields) < FIELD_FIRST_SAMPLE+n {
		return nil, fmt.Errorf("telegram truncated: sample count %d but only %d sample fields", n, len(fields)-FIELD_FIRST_SAMPLE)
	}

	ranges := make([]float64, n)
	for i := 0; i < n; i++ {
		mm, err := parseNumber(fields[FIELD_FIRST_SAMPLE+i])
		if err != nil {
			return nil, fmt.Errorf("bad sample field %d: %w", i, err)
		}
		ranges[i] = float64(mm) / 1000.0
	}

	return ranges, nil
}

// parseNumber interprets a numeric field hexadecimal-first, falling back to
// decimal. Hex wins when both bases would accept the text, so "A" is 10 and
// "10" is 16.
func parseNumber(field []byte) (int64, error) {
	s := string(field)
	if v, err := strconv.ParseInt(s, 16, 64); err == nil {
		return v, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q is not hexadecimal or decimal", s)
	}
	return v, nil
}
