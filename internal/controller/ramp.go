package controller

import (
	"math"
	"time"
)

// RampProgress is delivered to the progress callback after each ramp step.
type RampProgress struct {
	// Step is the 1-based step index.
	Step int
	// LevelV is the commanded level after the step.
	LevelV float64
	// MeasuredV is the voltage readback taken after the step. Valid only
	// when MeasuredOK is true; readback failures during a ramp are cosmetic
	// and never abort it.
	MeasuredV  float64
	MeasuredOK bool
}

// RampOptions carries the optional parts of a ramp request.
type RampOptions struct {
	// CurrentLimitA, when non-nil, is applied together with the first step
	// only. Re-issuing the limit on every step would re-trigger compliance
	// checks needlessly.
	CurrentLimitA *float64
	// OnProgress, when non-nil, is called after every step.
	OnProgress func(RampProgress)
}

// RampToVoltage steps the commanded level from its last-known value toward
// targetV in increments bounded by stepV, pausing dwell between steps so
// the signal settles before the next command. It returns true if compliance
// was observed tripped at any point during the ramp.
//
// The level-setting traffic is safety-relevant and aborts the ramp on
// failure; the per-step voltage readback is best-effort and only feeds the
// progress callback. When the remaining delta is within one step the ramp
// degenerates to a single QuickSetSource call.
func (c *Controller) RampToVoltage(targetV, stepV float64, dwell time.Duration, opts *RampOptions) (bool, error) {
	start := time.Now()
	tripped, err := c.ramp(targetV, stepV, dwell, opts)
	c.logAudit("rampToVoltage", err, start)
	return tripped, err
}

func (c *Controller) ramp(targetV, stepV float64, dwell time.Duration, opts *RampOptions) (bool, error) {
	if !c.connected {
		return false, ErrNotConnected
	}
	if stepV <= 0 || dwell < 0 {
		return false, ErrInvalidArgument
	}
	if opts == nil {
		opts = &RampOptions{}
	}

	level := c.levels[c.channel]
	tripped := false

	for step := 1; ; step++ {
		delta := targetV - level
		if math.Abs(delta) <= stepV {
			level = targetV
		} else {
			level += math.Copysign(stepV, delta)
		}

		var limit *float64
		if step == 1 {
			limit = opts.CurrentLimitA
		}
		stepTripped, err := c.quickSetSource(&level, limit)
		if err != nil {
			return tripped, err
		}
		tripped = tripped || stepTripped

		if dwell > 0 {
			c.sleep(dwell)
		}

		measured, merr := c.measureVoltage()
		if opts.OnProgress != nil {
			opts.OnProgress(RampProgress{
				Step:       step,
				LevelV:     level,
				MeasuredV:  measured,
				MeasuredOK: merr == nil,
			})
		}

		if level == targetV {
			return tripped, nil
		}
	}
}

// RampToZero ramps the commanded level down to zero. A no-op returning
// false when the last-known level is already within toleranceV of zero.
// A successful ramp lands the commanded level on zero exactly, since the
// final step assigns the target instead of accumulating increments. The
// output relay is left untouched; cutting power after reaching zero is the
// caller's decision.
func (c *Controller) RampToZero(stepV float64, dwell time.Duration, toleranceV float64, opts *RampOptions) (bool, error) {
	start := time.Now()
	tripped, err := c.rampToZero(stepV, dwell, toleranceV, opts)
	c.logAudit("rampToZero", err, start)
	return tripped, err
}

func (c *Controller) rampToZero(stepV float64, dwell time.Duration, toleranceV float64, opts *RampOptions) (bool, error) {
	if !c.connected {
		return false, ErrNotConnected
	}
	if stepV <= 0 || dwell < 0 {
		return false, ErrInvalidArgument
	}
	if math.Abs(c.levels[c.channel]) <= toleranceV {
		return false, nil
	}
	return c.ramp(0, stepV, dwell, opts)
}
