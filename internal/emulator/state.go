package emulator

// Instrument constant suffixes understood by the emulator. These mirror the
// firmware constants the controller references on the wire.
const (
	funcDCVolts        = "OUTPUT_DCVOLTS"
	measureDCVolts     = "MEASURE_DCVOLTS"
	tokenAutorangeOn   = "AUTORANGE_ON"
	tokenAutorangeOff  = "AUTORANGE_OFF"
	tokenOutputOn      = "OUTPUT_ON"
	tokenOutputOff     = "OUTPUT_OFF"
	tokenOn            = "ON"
	tokenOff           = "OFF"
	defaultScreen      = "SMUA"
	defaultLimitI      = 1e-3
)

// channelState is the per-channel mutable record. One instance exists per
// channel for the emulator's lifetime; resets restore defaults in place.
type channelState struct {
	sourceFunc       string
	sourceAutorange  bool
	levelV           float64
	limitI           float64
	outputOn         bool
	compliance       bool
	measureFunc      string
	measureAutorange bool
	displayMeasure   string
}

func defaultChannelState() channelState {
	return channelState{
		sourceFunc:       funcDCVolts,
		sourceAutorange:  true,
		levelV:           0,
		limitI:           defaultLimitI,
		outputOn:         false,
		compliance:       false,
		measureFunc:      measureDCVolts,
		measureAutorange: true,
		displayMeasure:   measureDCVolts,
	}
}

// ChannelSnapshot is a read-only copy of a channel's state, exposed for
// test verification.
type ChannelSnapshot struct {
	SourceFunc       string
	SourceAutorange  bool
	LevelV           float64
	LimitI           float64
	OutputOn         bool
	Compliance       bool
	MeasureFunc      string
	MeasureAutorange bool
	DisplayMeasure   string
}

func (s *channelState) snapshot() ChannelSnapshot {
	return ChannelSnapshot{
		SourceFunc:       s.sourceFunc,
		SourceAutorange:  s.sourceAutorange,
		LevelV:           s.levelV,
		LimitI:           s.limitI,
		OutputOn:         s.outputOn,
		Compliance:       s.compliance,
		MeasureFunc:      s.measureFunc,
		MeasureAutorange: s.measureAutorange,
		DisplayMeasure:   s.displayMeasure,
	}
}
