// Package emulator reproduces the instrument's stateful scripting semantics
// in memory: a per-channel state machine behind a small interpreter that
// accepts exactly the command vocabulary the controller emits. It stands in
// for hardware during tests and offline development.
//
// The interpreter never accepts syntax outside the modeled vocabulary;
// anything unknown fails with tsp.UnsupportedCommandError so that a
// controller/emulator contract mismatch surfaces as a defect instead of
// being masked.
package emulator

import (
	"strconv"
	"strings"
	"sync"

	"github.com/instrument-control/smuctl/internal/transport"
	"github.com/instrument-control/smuctl/internal/tsp"
)

// DefaultIdentity is the identification string reported by the emulated
// instrument.
const DefaultIdentity = "Keithley Instruments Inc., Model 2612, 1234567, FW-1.0"

// Emulator is an in-memory dual-channel source-measure instrument. It
// implements the transport contract directly for in-process use and is
// safe for concurrent use by the socket server.
type Emulator struct {
	identity string

	mu       sync.Mutex
	open     bool
	channels map[string]*channelState

	beeperOn      bool
	displayScreen string
	lastBeep      string
	errorQueue    []tsp.ErrorEntry
}

// Compile-time assertion that Emulator implements the transport contract.
var _ transport.Transport = (*Emulator)(nil)

// New creates an emulator with both channels at power-on defaults. An empty
// identity selects DefaultIdentity.
func New(identity string) *Emulator {
	if identity == "" {
		identity = DefaultIdentity
	}
	a := defaultChannelState()
	b := defaultChannelState()
	return &Emulator{
		identity: identity,
		channels: map[string]*channelState{
			"smua": &a,
			"smub": &b,
		},
		displayScreen: defaultScreen,
	}
}

// Open marks the session established.
func (e *Emulator) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = true
	return nil
}

// Close releases the session.
func (e *Emulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = false
	return nil
}

// Write interprets one command line and mutates emulated state.
func (e *Emulator) Write(command string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return transport.ErrNotOpen
	}
	return e.apply(strings.TrimSpace(command))
}

// Query interprets one query line and answers consistently with the
// current emulated state.
func (e *Emulator) Query(command string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return "", transport.ErrNotOpen
	}
	return e.evaluate(strings.TrimSpace(command))
}

// Execute interprets one line for the socket server: query lines produce a
// response, write lines do not.
func (e *Emulator) Execute(line string) (response string, isQuery bool, err error) {
	line = strings.TrimSpace(line)
	if tsp.IsQuery(line) {
		resp, err := e.Query(line)
		return resp, true, err
	}
	return "", false, e.Write(line)
}

// apply dispatches a decoded write command. Callers hold e.mu.
func (e *Emulator) apply(line string) error {
	if line == "" {
		return nil
	}
	cmd, err := tsp.ParseCommand(line)
	if err != nil {
		return err
	}

	switch cmd.Kind {
	case tsp.CmdResetAll:
		for _, ch := range e.channels {
			*ch = defaultChannelState()
		}
		e.beeperOn = false
		e.displayScreen = defaultScreen
		e.errorQueue = nil
		return nil

	case tsp.CmdChannelReset:
		ch, ok := e.channels[cmd.Path[0]]
		if !ok {
			return &tsp.UnsupportedCommandError{Input: cmd.Raw}
		}
		*ch = defaultChannelState()
		return nil

	case tsp.CmdBeep:
		// No audio modeled; the literal command is retained so tests can
		// verify the feedback path.
		e.lastBeep = cmd.Raw
		return nil

	case tsp.CmdErrorQueueClear:
		e.errorQueue = nil
		return nil

	case tsp.CmdAssign:
		return e.assign(cmd)
	}
	return &tsp.UnsupportedCommandError{Input: line}
}

// assign dispatches an attribute assignment. Callers hold e.mu.
func (e *Emulator) assign(cmd tsp.Command) error {
	path, value := cmd.Path, cmd.Value
	unsupported := &tsp.UnsupportedCommandError{Input: cmd.Raw}

	switch {
	case len(path) == 2 && path[0] == "beeper" && path[1] == "enable":
		on, ok := onOffToken(tsp.ConstantSuffix(value), tokenOn, tokenOff)
		if !ok {
			return unsupported
		}
		e.beeperOn = on
		return nil

	case len(path) == 2 && path[0] == "display" && path[1] == "screen":
		if tsp.ConstantSuffix(value) == value {
			return unsupported
		}
		e.displayScreen = tsp.ConstantSuffix(value)
		return nil

	case len(path) == 4 && path[0] == "display" && path[2] == "measure" && path[3] == "func":
		ch, ok := e.channels[path[1]]
		if !ok {
			return unsupported
		}
		ch.displayMeasure = tsp.ConstantSuffix(value)
		return nil

	case len(path) == 3 && path[1] == "source":
		ch, ok := e.channels[path[0]]
		if !ok {
			return unsupported
		}
		switch path[2] {
		case "func":
			ch.sourceFunc = tsp.ConstantSuffix(value)
			return nil
		case "autorangev":
			on, ok := onOffToken(tsp.ConstantSuffix(value), tokenAutorangeOn, tokenAutorangeOff)
			if !ok {
				return unsupported
			}
			ch.sourceAutorange = on
			return nil
		case "levelv":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return unsupported
			}
			ch.levelV = v
			return nil
		case "limiti":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return unsupported
			}
			ch.limitI = v
			return nil
		case "output":
			on, ok := onOffToken(tsp.ConstantSuffix(value), tokenOutputOn, tokenOutputOff)
			if !ok {
				return unsupported
			}
			ch.outputOn = on
			return nil
		}
		return unsupported

	case len(path) == 3 && path[1] == "measure":
		ch, ok := e.channels[path[0]]
		if !ok {
			return unsupported
		}
		switch path[2] {
		case "func":
			ch.measureFunc = tsp.ConstantSuffix(value)
			return nil
		case "autorangev":
			on, ok := onOffToken(tsp.ConstantSuffix(value), tokenAutorangeOn, tokenAutorangeOff)
			if !ok {
				return unsupported
			}
			ch.measureAutorange = on
			return nil
		}
		return unsupported
	}
	return unsupported
}

// evaluate answers a decoded query. Callers hold e.mu.
func (e *Emulator) evaluate(line string) (string, error) {
	q, err := tsp.ParseQuery(line)
	if err != nil {
		return "", err
	}

	switch q.Kind {
	case tsp.QueryIdentify:
		return e.identity, nil

	case tsp.QueryErrorNext:
		if len(e.errorQueue) == 0 {
			return "", nil
		}
		entry := e.errorQueue[0]
		e.errorQueue = e.errorQueue[1:]
		return tsp.FormatErrorEntry(entry), nil

	case tsp.QueryPrint:
		return e.printExpr(q)
	}
	return "", &tsp.UnsupportedCommandError{Input: line}
}

// printExpr evaluates the expression inside print(...). Callers hold e.mu.
func (e *Emulator) printExpr(q tsp.Query) (string, error) {
	if q.Expr == "errorqueue.count" {
		return strconv.Itoa(len(e.errorQueue)), nil
	}

	alias, rest, found := strings.Cut(q.Expr, ".")
	if !found {
		return "", &tsp.UnsupportedCommandError{Input: q.Raw}
	}
	ch, ok := e.channels[alias]
	if !ok {
		return "", &tsp.UnsupportedCommandError{Input: q.Raw}
	}

	switch rest {
	case "source.compliance":
		if ch.compliance {
			return "1", nil
		}
		return "0", nil
	case "measure.v()":
		// No physical load is modeled: measured voltage equals the
		// commanded level.
		return tsp.Float(ch.levelV), nil
	case "measure.i()":
		return "0", nil
	}
	return "", &tsp.UnsupportedCommandError{Input: q.Raw}
}

// Test-only mutators. These are not part of the production transport
// contract; scenario setup uses them to force states the vocabulary cannot
// reach deterministically.

// SetCompliance forces a channel's compliance flag.
func (e *Emulator) SetCompliance(alias string, tripped bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.channels[alias]; ok {
		ch.compliance = tripped
	}
}

// PushError appends a synthetic entry to the error queue.
func (e *Emulator) PushError(entry tsp.ErrorEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorQueue = append(e.errorQueue, entry)
}

// Inspection helpers for test verification.

// Channel returns a snapshot of the named channel's state.
func (e *Emulator) Channel(alias string) (ChannelSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch, ok := e.channels[alias]
	if !ok {
		return ChannelSnapshot{}, false
	}
	return ch.snapshot(), true
}

// BeeperEnabled reports the device-wide beeper flag.
func (e *Emulator) BeeperEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.beeperOn
}

// DisplayScreen reports the selected front-display screen.
func (e *Emulator) DisplayScreen() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.displayScreen
}

// LastBeep reports the literal text of the last beep command.
func (e *Emulator) LastBeep() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastBeep
}

// ErrorCount reports the number of queued error entries.
func (e *Emulator) ErrorCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errorQueue)
}

func onOffToken(token, on, off string) (value, ok bool) {
	switch token {
	case on:
		return true, true
	case off:
		return false, true
	}
	return false, false
}
