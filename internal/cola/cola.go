// Package cola implements the sensor's CoLa-A ASCII protocol: telegram
// framing over a raw byte stream, decoding of LMDscandata measurement
// telegrams into ranging vectors, and the outbound configuration commands.
package cola

/*
CoLa-A Telegram Format

The sensor emits a continuous byte stream over TCP or a serial/USB bridge.
Telegrams are framed by single-byte markers and carry ASCII text:

	<STX> field0 field1 field2 ... fieldN <ETX>

	STX (0x02) ─┐                                     ┌─ ETX (0x03)
	            │ sSN LMDscandata 1 1 ... 21C 28A ... │
	            └─ payload: space-separated ASCII ────┘

Measurement telegrams identify themselves with the first two fields:
"sSN" (event answer) and "LMDscandata". Field 25 carries the number of
ranging samples; the samples follow immediately, one field each, as raw
millimeter readings. Numeric fields are hexadecimal as emitted by the
sensor, but the decoder also tolerates plain decimal (the dual-base
fallback mirrors the sensor's documented tooling).

Outbound commands use the same framing with a trailing NUL:

	<STX>sMN mLMPsetscancfg +{freq} +1 -450000 +2250000<ETX><NUL>
	<STX>sEN LMDscandata 1<ETX><NUL>
*/

// CoLa-A wire protocol constants. These define the fixed layout of the byte
// stream and the measurement telegram.
const (
	FRAME_START_BYTE = 0x02 // STX, opens every telegram
	FRAME_END_BYTE   = 0x03 // ETX, closes every telegram
	FIELD_SEPARATOR  = ' '  // single-space field separator inside a telegram

	FIELD_COMMAND_TYPE = 0  // "sSN" for sensor event telegrams
	FIELD_COMMAND      = 1  // "LMDscandata" for measurement telegrams
	FIELD_SAMPLE_COUNT = 25 // number of ranging samples that follow
	FIELD_FIRST_SAMPLE = 26 // first ranging sample, in millimeters

	// DEFAULT_MAX_TELEGRAM bounds accumulation when an end marker never
	// arrives. The largest real telegram (810 samples at 0.33°) is under
	// 6 KB; anything bigger means the stream is corrupt and the extractor
	// resyncs instead of growing without bound.
	DEFAULT_MAX_TELEGRAM = 8192
)

// Protocol tokens for the telegrams this package understands.
const (
	TokenEventAnswer = "sSN"
	TokenScanData    = "LMDscandata"
)
