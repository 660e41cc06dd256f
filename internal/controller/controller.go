// Package controller implements the safety-oriented high-level API over a
// source-measure instrument: connection lifecycle, guarded source
// configuration, stepped voltage ramping, compliance monitoring, and
// error-queue draining. All protocol traffic flows through the narrow
// transport contract; the controller holds no reference into device
// internals and exchanges only text.
package controller

import (
	"strconv"
	"strings"
	"time"

	"github.com/instrument-control/smuctl/internal/transport"
	"github.com/instrument-control/smuctl/internal/tsp"
)

// AuditLogger records one normalized entry per controller action.
// Implementations must be safe for reuse across operations.
type AuditLogger interface {
	LogAction(action, channel, outcome string, latency time.Duration)
}

// Controller drives one instrument through one transport. It is
// single-owner and synchronous: every operation performs zero or more
// ordered, blocking round-trips, and correctness depends on the transport's
// strict in-order response pairing.
type Controller struct {
	tr    transport.Transport
	audit AuditLogger
	sleep func(time.Duration)

	channel   Channel
	connected bool

	// Last commanded level per channel, the starting point for ramps.
	levels map[Channel]float64
}

// Option configures a Controller.
type Option func(*Controller)

// WithAudit attaches an audit logger; every public operation records an
// entry with its outcome token and latency. Composite operations such as
// ramps record one entry, not one per inner step.
func WithAudit(l AuditLogger) Option {
	return func(c *Controller) { c.audit = l }
}

// WithSleep overrides the dwell pause between ramp steps. Tests use this to
// assert dwell behavior without real sleeping.
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Controller) { c.sleep = fn }
}

// New creates a controller bound to the given transport, with channel A
// active.
func New(tr transport.Transport, opts ...Option) *Controller {
	c := &Controller{
		tr:      tr,
		sleep:   time.Sleep,
		channel: ChannelA,
		levels:  make(map[Channel]float64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connected reports whether a session is established.
func (c *Controller) Connected() bool {
	return c.connected
}

// Channel returns the currently selected channel.
func (c *Controller) Channel() Channel {
	return c.channel
}

// Connect opens the transport. Calling it while connected is a no-op.
func (c *Controller) Connect() error {
	start := time.Now()
	if c.connected {
		return nil
	}
	if err := c.tr.Open(); err != nil {
		c.logAudit("connect", err, start)
		return err
	}
	c.connected = true
	c.logAudit("connect", nil, start)
	return nil
}

// Disconnect closes the transport. Calling it while disconnected is a
// no-op.
func (c *Controller) Disconnect() error {
	start := time.Now()
	if !c.connected {
		return nil
	}
	if err := c.tr.Close(); err != nil {
		c.logAudit("disconnect", err, start)
		return err
	}
	c.connected = false
	c.logAudit("disconnect", nil, start)
	return nil
}

// Identify returns the raw identification response, unmodified.
func (c *Controller) Identify() (string, error) {
	start := time.Now()
	resp, err := c.query(tsp.IdentifyQuery)
	c.logAudit("identify", err, start)
	return resp, err
}

// Reset issues a full-device reset followed by a reset of the active
// channel, and forgets all tracked levels.
func (c *Controller) Reset() error {
	start := time.Now()
	err := c.resetLocked()
	c.logAudit("reset", err, start)
	return err
}

func (c *Controller) resetLocked() error {
	if err := c.write(tsp.ResetAll); err != nil {
		return err
	}
	if err := c.write(tsp.ChannelReset(c.channel.Alias())); err != nil {
		return err
	}
	c.levels = make(map[Channel]float64)
	return nil
}

// SelectChannel makes the given channel active. A no-op when already
// selected; otherwise the newly selected channel is reset so a stale
// configuration left by a previous operator cannot be inherited.
func (c *Controller) SelectChannel(ch Channel) error {
	start := time.Now()
	if ch == c.channel {
		return nil
	}
	c.channel = ch
	err := c.write(tsp.ChannelReset(ch.Alias()))
	if err == nil {
		c.levels[ch] = 0
	}
	c.logAudit("selectChannel", err, start)
	return err
}

// ConfigureVoltageSource applies a full source configuration in the order
// the firmware requires: function first, then autorange, level, and limit.
// The sequence aborts on the first failing write, so partial application is
// visible to the caller and must be assumed on error.
func (c *Controller) ConfigureVoltageSource(cfg VoltageConfig) error {
	start := time.Now()
	err := c.configureVoltageSource(cfg)
	c.logAudit("configureVoltageSource", err, start)
	return err
}

func (c *Controller) configureVoltageSource(cfg VoltageConfig) error {
	alias := c.channel.Alias()
	if err := c.write(tsp.SourceFuncDCVolts(alias)); err != nil {
		return err
	}
	if err := c.write(tsp.SourceAutorange(alias, cfg.Autorange)); err != nil {
		return err
	}
	if err := c.write(tsp.SourceLevel(alias, cfg.LevelV)); err != nil {
		return err
	}
	c.levels[c.channel] = cfg.LevelV
	return c.write(tsp.SourceLimit(alias, cfg.CurrentLimitA))
}

// SetVoltage updates only the commanded level, for fast adjustment during a
// session.
func (c *Controller) SetVoltage(levelV float64) error {
	start := time.Now()
	err := c.setVoltage(levelV)
	c.logAudit("setVoltage", err, start)
	return err
}

func (c *Controller) setVoltage(levelV float64) error {
	if err := c.write(tsp.SourceLevel(c.channel.Alias(), levelV)); err != nil {
		return err
	}
	c.levels[c.channel] = levelV
	return nil
}

// SetCurrentLimit updates only the compliance current limit.
func (c *Controller) SetCurrentLimit(limitA float64) error {
	start := time.Now()
	err := c.setCurrentLimit(limitA)
	c.logAudit("setCurrentLimit", err, start)
	return err
}

func (c *Controller) setCurrentLimit(limitA float64) error {
	return c.write(tsp.SourceLimit(c.channel.Alias(), limitA))
}

// QuickSetSource applies whichever of level and limit are non-nil, leaves
// the output relay untouched, and returns the post-update compliance state.
// This is the "nudge and check" primitive ramping is built on.
func (c *Controller) QuickSetSource(levelV, limitA *float64) (bool, error) {
	start := time.Now()
	tripped, err := c.quickSetSource(levelV, limitA)
	c.logAudit("quickSetSource", err, start)
	return tripped, err
}

func (c *Controller) quickSetSource(levelV, limitA *float64) (bool, error) {
	if !c.connected {
		return false, ErrNotConnected
	}
	if levelV != nil {
		if err := c.setVoltage(*levelV); err != nil {
			return false, err
		}
	}
	if limitA != nil {
		if err := c.setCurrentLimit(*limitA); err != nil {
			return false, err
		}
	}
	return c.readCompliance()
}

// EnableOutput switches the channel's output relay. No settling delay is
// applied; callers needing a gentle transition must ramp.
func (c *Controller) EnableOutput(enabled bool) error {
	start := time.Now()
	err := c.write(tsp.SourceOutput(c.channel.Alias(), enabled))
	c.logAudit("enableOutput", err, start)
	return err
}

// ReadCompliance reports whether the channel is clamped at its current
// limit. Recognized truthy tokens map to true; any other response maps to
// false. A failing query propagates — an unreadable compliance state is
// never treated as "not tripped".
func (c *Controller) ReadCompliance() (bool, error) {
	start := time.Now()
	tripped, err := c.readCompliance()
	c.logAudit("readCompliance", err, start)
	return tripped, err
}

func (c *Controller) readCompliance() (bool, error) {
	resp, err := c.query(tsp.QueryCompliance(c.channel.Alias()))
	if err != nil {
		return false, err
	}
	switch resp {
	case "1", "true", "True", "TRUE":
		return true, nil
	}
	return false, nil
}

// SetBeeperEnabled switches the front-panel beeper.
func (c *Controller) SetBeeperEnabled(enabled bool) error {
	start := time.Now()
	err := c.write(tsp.BeeperEnable(enabled))
	c.logAudit("setBeeperEnabled", err, start)
	return err
}

// Beep sounds the beeper for durationS seconds at frequencyHz.
func (c *Controller) Beep(durationS, frequencyHz float64) error {
	start := time.Now()
	err := c.write(tsp.BeeperBeep(durationS, frequencyHz))
	c.logAudit("beep", err, start)
	return err
}

// ConfigureDisplayForVoltage selects the active channel on the front
// display and switches its displayed measurement to volts.
func (c *Controller) ConfigureDisplayForVoltage() error {
	start := time.Now()
	err := c.configureDisplayForVoltage()
	c.logAudit("configureDisplayForVoltage", err, start)
	return err
}

func (c *Controller) configureDisplayForVoltage() error {
	if err := c.write(tsp.DisplayScreen(c.channel.Screen())); err != nil {
		return err
	}
	return c.write(tsp.DisplayMeasureDCVolts(c.channel.Alias()))
}

// ConfigureVoltageMeasurement selects the DC-voltage measurement function
// on the active channel and sets measurement autoranging.
func (c *Controller) ConfigureVoltageMeasurement(autorange bool) error {
	start := time.Now()
	err := c.configureVoltageMeasurement(autorange)
	c.logAudit("configureVoltageMeasurement", err, start)
	return err
}

func (c *Controller) configureVoltageMeasurement(autorange bool) error {
	alias := c.channel.Alias()
	if err := c.write(tsp.MeasureFuncDCVolts(alias)); err != nil {
		return err
	}
	return c.write(tsp.MeasureAutorange(alias, autorange))
}

// MeasureVoltage takes a single voltage reading.
func (c *Controller) MeasureVoltage() (float64, error) {
	start := time.Now()
	v, err := c.measureVoltage()
	c.logAudit("measureVoltage", err, start)
	return v, err
}

func (c *Controller) measureVoltage() (float64, error) {
	return c.queryFloat(tsp.QueryMeasureVoltage(c.channel.Alias()))
}

// MeasureCurrent takes a single current reading.
func (c *Controller) MeasureCurrent() (float64, error) {
	start := time.Now()
	v, err := c.queryFloat(tsp.QueryMeasureCurrent(c.channel.Alias()))
	c.logAudit("measureCurrent", err, start)
	return v, err
}

// queryFloat issues a query and parses a floating-point response.
func (c *Controller) queryFloat(cmd string) (float64, error) {
	resp, err := c.query(cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(resp), 64)
	if err != nil {
		return 0, &ProtocolError{Command: cmd, Response: resp, Err: err}
	}
	return v, nil
}

// write guards a fire-and-forget command behind the connection state.
func (c *Controller) write(command string) error {
	if !c.connected {
		return ErrNotConnected
	}
	return c.tr.Write(command)
}

// query guards a round-trip behind the connection state.
func (c *Controller) query(command string) (string, error) {
	if !c.connected {
		return "", ErrNotConnected
	}
	return c.tr.Query(command)
}

func (c *Controller) logAudit(action string, err error, start time.Time) {
	if c.audit == nil {
		return
	}
	c.audit.LogAction(action, c.channel.Alias(), outcomeToken(err), time.Since(start))
}
