// Package tsp holds the wire vocabulary spoken between the controller and a
// 2600-series instrument: builders for the exact command strings the
// controller emits, and a tagged parser that decodes those strings back into
// structured commands for the emulator.
//
// The textual side is the bit-exact protocol contract. Any change to a
// builder here is a breaking protocol change for both the hardware binding
// and the emulator.
package tsp

import "strconv"

// Identity query and full-device reset tokens.
const (
	IdentifyQuery = "*IDN?"
	ResetAll      = "*RST"
)

// ErrorNextQuery pops the oldest error-queue entry and prints it as
// code|message|severity|node, or prints nothing when the queue is empty.
// The instrument executes this as a one-line script.
const ErrorNextQuery = "local code, msg, severity, node = errorqueue.next() " +
	"if code then print(string.format('%d|%s|%d|%d', code, msg, severity, node)) end"

// ErrorQueueClear discards all pending error-queue entries.
const ErrorQueueClear = "errorqueue.clear()"

// Float renders a float the way the instrument expects level and limit
// values: shortest representation that round-trips.
func Float(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ChannelReset returns the per-channel reset command.
func ChannelReset(alias string) string {
	return alias + ".reset()"
}

// SourceFuncDCVolts selects the DC-voltage source function. Must be issued
// before level or limit assignments are meaningful on the firmware.
func SourceFuncDCVolts(alias string) string {
	return alias + ".source.func = " + alias + ".OUTPUT_DCVOLTS"
}

// SourceAutorange switches source autoranging on or off.
func SourceAutorange(alias string, on bool) string {
	if on {
		return alias + ".source.autorangev = " + alias + ".AUTORANGE_ON"
	}
	return alias + ".source.autorangev = " + alias + ".AUTORANGE_OFF"
}

// SourceLevel sets the commanded source level in volts.
func SourceLevel(alias string, levelV float64) string {
	return alias + ".source.levelv = " + Float(levelV)
}

// SourceLimit sets the compliance current limit in amps.
func SourceLimit(alias string, limitA float64) string {
	return alias + ".source.limiti = " + Float(limitA)
}

// SourceOutput switches the output relay on or off.
func SourceOutput(alias string, on bool) string {
	if on {
		return alias + ".source.output = " + alias + ".OUTPUT_ON"
	}
	return alias + ".source.output = " + alias + ".OUTPUT_OFF"
}

// MeasureFuncDCVolts selects the DC-voltage measurement function.
func MeasureFuncDCVolts(alias string) string {
	return alias + ".measure.func = " + alias + ".MEASURE_DCVOLTS"
}

// MeasureAutorange switches measurement autoranging on or off.
func MeasureAutorange(alias string, on bool) string {
	if on {
		return alias + ".measure.autorangev = " + alias + ".AUTORANGE_ON"
	}
	return alias + ".measure.autorangev = " + alias + ".AUTORANGE_OFF"
}

// BeeperEnable switches the front-panel beeper on or off.
func BeeperEnable(on bool) string {
	if on {
		return "beeper.enable = beeper.ON"
	}
	return "beeper.enable = beeper.OFF"
}

// BeeperBeep sounds the beeper for durationS seconds at frequencyHz.
func BeeperBeep(durationS, frequencyHz float64) string {
	return "beeper.beep(" + Float(durationS) + ", " + Float(frequencyHz) + ")"
}

// DisplayScreen selects which channel the front display shows. The constant
// suffix is the upper-cased channel alias (display.SMUA / display.SMUB).
func DisplayScreen(screen string) string {
	return "display.screen = display." + screen
}

// DisplayMeasureDCVolts switches a channel's displayed measurement to volts.
func DisplayMeasureDCVolts(alias string) string {
	return "display." + alias + ".measure.func = display.MEASURE_DCVOLTS"
}

// QueryCompliance asks whether the channel is clamped at its current limit.
// The instrument answers "1" or "0" (booleans print as true/false on some
// firmware revisions; the controller accepts those too).
func QueryCompliance(alias string) string {
	return "print(" + alias + ".source.compliance)"
}

// QueryMeasureVoltage asks for a single voltage reading.
func QueryMeasureVoltage(alias string) string {
	return "print(" + alias + ".measure.v())"
}

// QueryMeasureCurrent asks for a single current reading.
func QueryMeasureCurrent(alias string) string {
	return "print(" + alias + ".measure.i())"
}

// QueryErrorCount asks for the number of pending error-queue entries.
const QueryErrorCount = "print(errorqueue.count)"
