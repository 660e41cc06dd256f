package controller

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/instrument-control/smuctl/internal/emulator"
	"github.com/instrument-control/smuctl/internal/transport"
)

// recordingTransport wraps another transport and records all traffic so
// tests can assert exact command sequences.
type recordingTransport struct {
	inner   transport.Transport
	opens   int
	closes  int
	writes  []string
	queries []string
}

func (r *recordingTransport) Open() error {
	r.opens++
	return r.inner.Open()
}

func (r *recordingTransport) Close() error {
	r.closes++
	return r.inner.Close()
}

func (r *recordingTransport) Write(command string) error {
	r.writes = append(r.writes, command)
	return r.inner.Write(command)
}

func (r *recordingTransport) Query(command string) (string, error) {
	r.queries = append(r.queries, command)
	return r.inner.Query(command)
}

// scriptedTransport answers traffic from injected functions, for fault and
// malformed-response scenarios the emulator cannot produce.
type scriptedTransport struct {
	onWrite func(command string) error
	onQuery func(command string) (string, error)
}

func (s *scriptedTransport) Open() error  { return nil }
func (s *scriptedTransport) Close() error { return nil }

func (s *scriptedTransport) Write(command string) error {
	if s.onWrite != nil {
		return s.onWrite(command)
	}
	return nil
}

func (s *scriptedTransport) Query(command string) (string, error) {
	if s.onQuery != nil {
		return s.onQuery(command)
	}
	return "", nil
}

// faultTransport passes traffic through but fails queries matching a
// command prefix.
type faultTransport struct {
	transport.Transport
	failQueryPrefix string
}

var errInjected = errors.New("injected transport failure")

func (f *faultTransport) Query(command string) (string, error) {
	if f.failQueryPrefix != "" && strings.HasPrefix(command, f.failQueryPrefix) {
		return "", errInjected
	}
	return f.Transport.Query(command)
}

// auditRecorder captures audit entries as action/channel/outcome strings.
type auditRecorder struct {
	entries []string
}

func (a *auditRecorder) LogAction(action, channel, outcome string, _ time.Duration) {
	a.entries = append(a.entries, action+"/"+channel+"/"+outcome)
}

func (a *auditRecorder) contains(entry string) bool {
	for _, e := range a.entries {
		if e == entry {
			return true
		}
	}
	return false
}

func (a *auditRecorder) count(action string) int {
	n := 0
	for _, e := range a.entries {
		if strings.HasPrefix(e, action+"/") {
			n++
		}
	}
	return n
}

// newEmulatorController returns a connected controller driving a fresh
// emulator through a recording transport.
func newEmulatorController(t *testing.T, opts ...Option) (*Controller, *emulator.Emulator, *recordingTransport) {
	t.Helper()
	emu := emulator.New("")
	rec := &recordingTransport{inner: emu}
	c := New(rec, opts...)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return c, emu, rec
}

func TestOperationsRequireConnection(t *testing.T) {
	tests := []struct {
		name string
		op   func(c *Controller) error
	}{
		{"Identify", func(c *Controller) error { _, err := c.Identify(); return err }},
		{"Reset", func(c *Controller) error { return c.Reset() }},
		{"SelectChannel", func(c *Controller) error { return c.SelectChannel(ChannelB) }},
		{"ConfigureVoltageSource", func(c *Controller) error {
			return c.ConfigureVoltageSource(NewVoltageConfig(1, 1e-3))
		}},
		{"SetVoltage", func(c *Controller) error { return c.SetVoltage(1) }},
		{"SetCurrentLimit", func(c *Controller) error { return c.SetCurrentLimit(1e-3) }},
		{"QuickSetSource", func(c *Controller) error { _, err := c.QuickSetSource(nil, nil); return err }},
		{"EnableOutput", func(c *Controller) error { return c.EnableOutput(true) }},
		{"ReadCompliance", func(c *Controller) error { _, err := c.ReadCompliance(); return err }},
		{"SetBeeperEnabled", func(c *Controller) error { return c.SetBeeperEnabled(true) }},
		{"Beep", func(c *Controller) error { return c.Beep(0.2, 1500) }},
		{"ConfigureDisplayForVoltage", func(c *Controller) error { return c.ConfigureDisplayForVoltage() }},
		{"ConfigureVoltageMeasurement", func(c *Controller) error { return c.ConfigureVoltageMeasurement(true) }},
		{"MeasureVoltage", func(c *Controller) error { _, err := c.MeasureVoltage(); return err }},
		{"MeasureCurrent", func(c *Controller) error { _, err := c.MeasureCurrent(); return err }},
		{"DrainErrorQueue", func(c *Controller) error { _, err := c.DrainErrorQueue(); return err }},
		{"ClearErrorQueue", func(c *Controller) error { return c.ClearErrorQueue() }},
		{"RampToVoltage", func(c *Controller) error {
			_, err := c.RampToVoltage(1, 0.1, 0, nil)
			return err
		}},
		{"RampToZero", func(c *Controller) error {
			_, err := c.RampToZero(0.1, 0, 0.05, nil)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(emulator.New(""))
			if err := tt.op(c); !errors.Is(err, ErrNotConnected) {
				t.Errorf("%s before Connect = %v, want ErrNotConnected", tt.name, err)
			}
		})
	}
}

func TestConnectDisconnectIdempotent(t *testing.T) {
	emu := emulator.New("")
	rec := &recordingTransport{inner: emu}
	c := New(rec)

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := c.Connect(); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	if rec.opens != 1 {
		t.Errorf("opens = %d, want 1", rec.opens)
	}
	if !c.Connected() {
		t.Error("not connected after Connect")
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("second Disconnect failed: %v", err)
	}
	if rec.closes != 1 {
		t.Errorf("closes = %d, want 1", rec.closes)
	}
	if c.Connected() {
		t.Error("still connected after Disconnect")
	}
}

func TestIdentifyReturnsRawResponse(t *testing.T) {
	c, _, _ := newEmulatorController(t)
	identity, err := c.Identify()
	if err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	if identity != emulator.DefaultIdentity {
		t.Errorf("identity = %q, want %q", identity, emulator.DefaultIdentity)
	}
}

func TestConfigureVoltageSourceOrder(t *testing.T) {
	c, emu, rec := newEmulatorController(t)

	if err := c.ConfigureVoltageSource(NewVoltageConfig(1.5, 0.002)); err != nil {
		t.Fatalf("ConfigureVoltageSource failed: %v", err)
	}

	want := []string{
		"smua.source.func = smua.OUTPUT_DCVOLTS",
		"smua.source.autorangev = smua.AUTORANGE_ON",
		"smua.source.levelv = 1.5",
		"smua.source.limiti = 0.002",
	}
	if len(rec.writes) != len(want) {
		t.Fatalf("writes = %q, want %q", rec.writes, want)
	}
	for i := range want {
		if rec.writes[i] != want[i] {
			t.Errorf("write[%d] = %q, want %q", i, rec.writes[i], want[i])
		}
	}

	snap, _ := emu.Channel("smua")
	if snap.LevelV != 1.5 || snap.LimitI != 0.002 || !snap.SourceAutorange {
		t.Errorf("emulated state = %+v", snap)
	}
	if snap.OutputOn {
		t.Error("configure enabled the output relay")
	}
}

func TestConfigureVoltageSourceAbortsOnFailure(t *testing.T) {
	var writes []string
	tr := &scriptedTransport{
		onWrite: func(command string) error {
			writes = append(writes, command)
			if strings.HasPrefix(command, "smua.source.levelv") {
				return errInjected
			}
			return nil
		},
	}
	c := New(tr)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	err := c.ConfigureVoltageSource(NewVoltageConfig(1.5, 0.002))
	if !errors.Is(err, errInjected) {
		t.Fatalf("ConfigureVoltageSource = %v, want injected failure", err)
	}
	for _, w := range writes {
		if strings.HasPrefix(w, "smua.source.limiti") {
			t.Errorf("limit written after level failure: %q", writes)
		}
	}
}

func TestSelectChannelResetsNewChannel(t *testing.T) {
	c, emu, rec := newEmulatorController(t)

	if err := c.ConfigureVoltageSource(NewVoltageConfig(0.5, 0.001)); err != nil {
		t.Fatalf("configure smua failed: %v", err)
	}

	if err := c.SelectChannel(ChannelB); err != nil {
		t.Fatalf("SelectChannel failed: %v", err)
	}
	if c.Channel() != ChannelB {
		t.Errorf("channel = %v, want ChannelB", c.Channel())
	}
	if last := rec.writes[len(rec.writes)-1]; last != "smub.reset()" {
		t.Errorf("last write = %q, want smub.reset()", last)
	}

	if err := c.ConfigureVoltageSource(NewVoltageConfig(1.2, 0.004)); err != nil {
		t.Fatalf("configure smub failed: %v", err)
	}

	a, _ := emu.Channel("smua")
	b, _ := emu.Channel("smub")
	if a.LevelV != 0.5 || a.LimitI != 0.001 {
		t.Errorf("smua disturbed: %+v", a)
	}
	if b.LevelV != 1.2 || b.LimitI != 0.004 {
		t.Errorf("smub config wrong: %+v", b)
	}

	// Re-selecting the active channel must not reset it.
	before := len(rec.writes)
	if err := c.SelectChannel(ChannelB); err != nil {
		t.Fatalf("re-select failed: %v", err)
	}
	if len(rec.writes) != before {
		t.Errorf("re-selecting active channel issued traffic: %q", rec.writes[before:])
	}
}

func TestResetClearsDeviceAndTrackedLevels(t *testing.T) {
	c, emu, rec := newEmulatorController(t)

	if err := c.ConfigureVoltageSource(NewVoltageConfig(2.0, 0.001)); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	rec.writes = nil

	if err := c.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	want := []string{"*RST", "smua.reset()"}
	if len(rec.writes) != 2 || rec.writes[0] != want[0] || rec.writes[1] != want[1] {
		t.Errorf("reset writes = %q, want %q", rec.writes, want)
	}
	if snap, _ := emu.Channel("smua"); snap.LevelV != 0 {
		t.Errorf("emulated level after reset = %g, want 0", snap.LevelV)
	}
	if len(c.levels) != 0 {
		t.Errorf("tracked levels not forgotten: %v", c.levels)
	}
}

func TestQuickSetSourceLeavesOutputEnabled(t *testing.T) {
	c, emu, _ := newEmulatorController(t)

	if err := c.ConfigureVoltageSource(NewVoltageConfig(1.0, 0.001)); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if err := c.EnableOutput(true); err != nil {
		t.Fatalf("EnableOutput failed: %v", err)
	}

	level, limit := 2.5, 0.002
	tripped, err := c.QuickSetSource(&level, &limit)
	if err != nil {
		t.Fatalf("QuickSetSource failed: %v", err)
	}
	if tripped {
		t.Error("compliance reported tripped on the emulator")
	}

	snap, _ := emu.Channel("smua")
	if snap.LevelV != 2.5 || snap.LimitI != 0.002 {
		t.Errorf("state after quick set = %+v", snap)
	}
	if !snap.OutputOn {
		t.Error("quick set disturbed the output relay")
	}
}

func TestQuickSetSourceReportsCompliance(t *testing.T) {
	c, emu, _ := newEmulatorController(t)
	emu.SetCompliance("smua", true)

	level := 0.5
	tripped, err := c.QuickSetSource(&level, nil)
	if err != nil {
		t.Fatalf("QuickSetSource failed: %v", err)
	}
	if !tripped {
		t.Error("tripped compliance not reported")
	}
}

func TestReadComplianceTokens(t *testing.T) {
	tests := []struct {
		response string
		want     bool
	}{
		{"1", true},
		{"true", true},
		{"True", true},
		{"TRUE", true},
		{"0", false},
		{"false", false},
		{"", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		tr := &scriptedTransport{
			onQuery: func(string) (string, error) { return tt.response, nil },
		}
		c := New(tr)
		if err := c.Connect(); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		got, err := c.ReadCompliance()
		if err != nil {
			t.Fatalf("ReadCompliance(%q) failed: %v", tt.response, err)
		}
		if got != tt.want {
			t.Errorf("ReadCompliance(%q) = %v, want %v", tt.response, got, tt.want)
		}
	}
}

func TestReadComplianceQueryFailurePropagates(t *testing.T) {
	tr := &scriptedTransport{
		onQuery: func(string) (string, error) { return "", errInjected },
	}
	c := New(tr)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if _, err := c.ReadCompliance(); !errors.Is(err, errInjected) {
		t.Errorf("ReadCompliance = %v, want injected failure", err)
	}
}

func TestMeasureVoltageMatchesCommandedLevel(t *testing.T) {
	c, _, _ := newEmulatorController(t)
	if err := c.SetVoltage(1.234); err != nil {
		t.Fatalf("SetVoltage failed: %v", err)
	}
	got, err := c.MeasureVoltage()
	if err != nil {
		t.Fatalf("MeasureVoltage failed: %v", err)
	}
	if got != 1.234 {
		t.Errorf("measured = %g, want 1.234", got)
	}

	current, err := c.MeasureCurrent()
	if err != nil {
		t.Fatalf("MeasureCurrent failed: %v", err)
	}
	if current != 0 {
		t.Errorf("measured current = %g, want 0", current)
	}
}

func TestMeasureVoltageUnparsableResponse(t *testing.T) {
	tr := &scriptedTransport{
		onQuery: func(string) (string, error) { return "not-a-number", nil },
	}
	c := New(tr)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	_, err := c.MeasureVoltage()
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("MeasureVoltage = %v, want ProtocolError", err)
	}
	if perr.Response != "not-a-number" {
		t.Errorf("ProtocolError.Response = %q", perr.Response)
	}
}

func TestPanelFeedback(t *testing.T) {
	c, emu, _ := newEmulatorController(t)

	if err := c.SetBeeperEnabled(true); err != nil {
		t.Fatalf("SetBeeperEnabled failed: %v", err)
	}
	if !emu.BeeperEnabled() {
		t.Error("beeper not enabled on the device")
	}

	if err := c.Beep(0.2, 1500); err != nil {
		t.Fatalf("Beep failed: %v", err)
	}
	if got := emu.LastBeep(); got != "beeper.beep(0.2, 1500)" {
		t.Errorf("beep command = %q", got)
	}

	if err := c.ConfigureDisplayForVoltage(); err != nil {
		t.Fatalf("ConfigureDisplayForVoltage failed: %v", err)
	}
	if got := emu.DisplayScreen(); got != "SMUA" {
		t.Errorf("display screen = %q, want SMUA", got)
	}

	if err := c.SelectChannel(ChannelB); err != nil {
		t.Fatalf("SelectChannel failed: %v", err)
	}
	if err := c.ConfigureDisplayForVoltage(); err != nil {
		t.Fatalf("ConfigureDisplayForVoltage on B failed: %v", err)
	}
	if got := emu.DisplayScreen(); got != "SMUB" {
		t.Errorf("display screen = %q, want SMUB", got)
	}
	if snap, _ := emu.Channel("smub"); snap.DisplayMeasure != "MEASURE_DCVOLTS" {
		t.Errorf("display measure = %q", snap.DisplayMeasure)
	}
}

func TestConfigureVoltageMeasurement(t *testing.T) {
	c, _, rec := newEmulatorController(t)
	if err := c.ConfigureVoltageMeasurement(false); err != nil {
		t.Fatalf("ConfigureVoltageMeasurement failed: %v", err)
	}
	want := []string{
		"smua.measure.func = smua.MEASURE_DCVOLTS",
		"smua.measure.autorangev = smua.AUTORANGE_OFF",
	}
	if len(rec.writes) != 2 || rec.writes[0] != want[0] || rec.writes[1] != want[1] {
		t.Errorf("writes = %q, want %q", rec.writes, want)
	}
}

func TestAuditOutcomes(t *testing.T) {
	audit := &auditRecorder{}
	c, _, _ := newEmulatorController(t, WithAudit(audit))

	if err := c.EnableOutput(true); err != nil {
		t.Fatalf("EnableOutput failed: %v", err)
	}
	if _, err := c.RampToVoltage(1, 0, 0, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("ramp with zero step = %v, want ErrInvalidArgument", err)
	}

	for _, want := range []string{
		"connect/smua/SUCCESS",
		"enableOutput/smua/SUCCESS",
		"rampToVoltage/smua/INVALID_ARGUMENT",
	} {
		if !audit.contains(want) {
			t.Errorf("audit missing %q in %q", want, audit.entries)
		}
	}
}

func TestAuditCoversAllOperations(t *testing.T) {
	audit := &auditRecorder{}
	c, _, _ := newEmulatorController(t, WithAudit(audit))

	level, limit := 0.5, 0.002
	ops := []struct {
		action string
		op     func() error
	}{
		{"identify", func() error { _, err := c.Identify(); return err }},
		{"reset", c.Reset},
		{"selectChannel", func() error { return c.SelectChannel(ChannelB) }},
		{"configureVoltageSource", func() error {
			return c.ConfigureVoltageSource(NewVoltageConfig(0, 0.001))
		}},
		{"setVoltage", func() error { return c.SetVoltage(level) }},
		{"setCurrentLimit", func() error { return c.SetCurrentLimit(limit) }},
		{"quickSetSource", func() error { _, err := c.QuickSetSource(&level, &limit); return err }},
		{"enableOutput", func() error { return c.EnableOutput(true) }},
		{"readCompliance", func() error { _, err := c.ReadCompliance(); return err }},
		{"setBeeperEnabled", func() error { return c.SetBeeperEnabled(true) }},
		{"beep", func() error { return c.Beep(0.2, 1500) }},
		{"configureDisplayForVoltage", c.ConfigureDisplayForVoltage},
		{"configureVoltageMeasurement", func() error { return c.ConfigureVoltageMeasurement(true) }},
		{"measureVoltage", func() error { _, err := c.MeasureVoltage(); return err }},
		{"measureCurrent", func() error { _, err := c.MeasureCurrent(); return err }},
		{"rampToVoltage", func() error { _, err := c.RampToVoltage(0.6, 0.2, 0, nil); return err }},
		{"rampToZero", func() error { _, err := c.RampToZero(0.2, 0, 0.05, nil); return err }},
		{"drainErrorQueue", func() error { _, err := c.DrainErrorQueue(); return err }},
		{"clearErrorQueue", c.ClearErrorQueue},
	}

	for _, tt := range ops {
		if err := tt.op(); err != nil {
			t.Fatalf("%s failed: %v", tt.action, err)
		}
		if audit.count(tt.action) == 0 {
			t.Errorf("audit missing %q entry: %q", tt.action, audit.entries)
		}
	}
}

func TestAuditRampRecordsSingleEntry(t *testing.T) {
	audit := &auditRecorder{}
	c, _, _ := newEmulatorController(t, WithAudit(audit))

	if _, err := c.RampToVoltage(0.06, 0.02, 0, nil); err != nil {
		t.Fatalf("RampToVoltage failed: %v", err)
	}

	if n := audit.count("rampToVoltage"); n != 1 {
		t.Errorf("rampToVoltage entries = %d, want 1", n)
	}
	// The per-step inner traffic must not be audited as standalone
	// operations.
	for _, action := range []string{"quickSetSource", "setVoltage", "setCurrentLimit", "readCompliance", "measureVoltage"} {
		if n := audit.count(action); n != 0 {
			t.Errorf("%s entries during ramp = %d, want 0: %q", action, n, audit.entries)
		}
	}
}

func TestAuditNotConnected(t *testing.T) {
	audit := &auditRecorder{}
	c := New(emulator.New(""), WithAudit(audit))

	if err := c.EnableOutput(true); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("EnableOutput = %v, want ErrNotConnected", err)
	}
	if !audit.contains("enableOutput/smua/NOT_CONNECTED") {
		t.Errorf("audit missing NOT_CONNECTED entry: %q", audit.entries)
	}
}
