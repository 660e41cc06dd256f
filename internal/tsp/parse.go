package tsp

import (
	"fmt"
	"strings"
)

// CommandKind tags a decoded write command.
type CommandKind int

const (
	// CmdResetAll resets every channel and all device-wide state.
	CmdResetAll CommandKind = iota
	// CmdChannelReset resets a single channel to defaults.
	CmdChannelReset
	// CmdAssign assigns a value to a dotted attribute path.
	CmdAssign
	// CmdBeep sounds the beeper.
	CmdBeep
	// CmdErrorQueueClear discards pending error entries.
	CmdErrorQueueClear
)

// Command is a decoded write command. Path holds the dotted attribute path
// of an assignment ("smua.source.levelv" → ["smua","source","levelv"]) or
// the channel alias of a per-channel reset. Value holds the raw right-hand
// side of an assignment or the raw argument list of a beep call.
type Command struct {
	Kind  CommandKind
	Path  []string
	Value string
	Raw   string
}

// QueryKind tags a decoded query.
type QueryKind int

const (
	// QueryIdentify is the identification query.
	QueryIdentify QueryKind = iota
	// QueryErrorNext pops and formats one error-queue entry.
	QueryErrorNext
	// QueryPrint evaluates a print(...) expression.
	QueryPrint
)

// Query is a decoded query. Expr holds the expression inside print(...).
type Query struct {
	Kind QueryKind
	Expr string
	Raw  string
}

// UnsupportedCommandError reports text outside the modeled vocabulary. It
// always names the offending input: silently accepting unknown syntax would
// mask controller bugs.
type UnsupportedCommandError struct {
	Input string
}

func (e *UnsupportedCommandError) Error() string {
	return fmt.Sprintf("UNSUPPORTED_COMMAND: %q", e.Input)
}

// IsQuery reports whether a trimmed line expects a response.
func IsQuery(line string) bool {
	return line == IdentifyQuery ||
		line == ErrorNextQuery ||
		strings.HasPrefix(line, "print(")
}

// ParseCommand decodes a trimmed write command into its tagged form.
func ParseCommand(line string) (Command, error) {
	switch {
	case line == ResetAll:
		return Command{Kind: CmdResetAll, Raw: line}, nil

	case line == ErrorQueueClear:
		return Command{Kind: CmdErrorQueueClear, Raw: line}, nil

	case strings.HasPrefix(line, "beeper.beep(") && strings.HasSuffix(line, ")"):
		args := line[len("beeper.beep(") : len(line)-1]
		return Command{Kind: CmdBeep, Value: args, Raw: line}, nil

	case strings.HasSuffix(line, ".reset()"):
		alias := strings.TrimSuffix(line, ".reset()")
		if alias == "" || strings.Contains(alias, ".") {
			return Command{}, &UnsupportedCommandError{Input: line}
		}
		return Command{Kind: CmdChannelReset, Path: []string{alias}, Raw: line}, nil

	case strings.Contains(line, "="):
		lhs, rhs, _ := strings.Cut(line, "=")
		lhs = strings.TrimSpace(lhs)
		rhs = strings.TrimSpace(rhs)
		path := strings.Split(lhs, ".")
		if len(path) < 2 || rhs == "" {
			return Command{}, &UnsupportedCommandError{Input: line}
		}
		for _, seg := range path {
			if seg == "" {
				return Command{}, &UnsupportedCommandError{Input: line}
			}
		}
		return Command{Kind: CmdAssign, Path: path, Value: rhs, Raw: line}, nil
	}
	return Command{}, &UnsupportedCommandError{Input: line}
}

// ParseQuery decodes a trimmed query into its tagged form.
func ParseQuery(line string) (Query, error) {
	switch {
	case line == IdentifyQuery:
		return Query{Kind: QueryIdentify, Raw: line}, nil
	case line == ErrorNextQuery:
		return Query{Kind: QueryErrorNext, Raw: line}, nil
	case strings.HasPrefix(line, "print(") && strings.HasSuffix(line, ")"):
		expr := strings.TrimSpace(line[len("print(") : len(line)-1])
		if expr == "" {
			return Query{}, &UnsupportedCommandError{Input: line}
		}
		return Query{Kind: QueryPrint, Expr: expr, Raw: line}, nil
	}
	return Query{}, &UnsupportedCommandError{Input: line}
}

// ConstantSuffix returns the trailing segment of a dotted instrument
// constant ("smua.AUTORANGE_ON" → "AUTORANGE_ON"). Plain values come back
// unchanged.
func ConstantSuffix(value string) string {
	if i := strings.LastIndex(value, "."); i >= 0 {
		return value[i+1:]
	}
	return value
}
