package cola

import (
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/timscan/internal/scan"
	"github.com/banshee-data/timscan/internal/timeutil"
)

// DefaultSettleDelay is how long the sensor needs after a scan configuration
// command before streaming can be enabled.
const DefaultSettleDelay = 200 * time.Millisecond

// ScanConfigCommand builds the mode-select telegram for the given preset.
// The operands after the frequency code (angular window -45° to +225° in
// 1/10000 degree units) are fixed for this sensor family.
func ScanConfigCommand(p scan.Preset) []byte {
	return []byte(fmt.Sprintf("\x02sMN mLMPsetscancfg +%d +1 -450000 +2250000\x03\x00", p.FreqCode))
}

// StreamEnableCommand builds the telegram that starts continuous
// LMDscandata output.
func StreamEnableCommand() []byte {
	return []byte("\x02sEN LMDscandata 1\x03\x00")
}

// Configure selects the angular resolution mode and enables measurement
// streaming. The sensor needs a settle period between the two commands;
// pass 0 to use DefaultSettleDelay. The clock makes the delay testable.
func Configure(w io.Writer, p scan.Preset, settle time.Duration, clk timeutil.Clock) error {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	if clk == nil {
		clk = timeutil.RealClock{}
	}

	if _, err := w.Write(ScanConfigCommand(p)); err != nil {
		return fmt.Errorf("failed to send scan config for preset %s: %w", p.Name, err)
	}

	clk.Sleep(settle)

	if _, err := w.Write(StreamEnableCommand()); err != nil {
		return fmt.Errorf("failed to enable scan streaming: %w", err)
	}
	return nil
}
