package tsp

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrorEntry is one fault or warning popped from the instrument's error
// queue. Entries are only ever produced by draining the device; they are
// never constructed speculatively.
type ErrorEntry struct {
	Code     int
	Message  string
	Severity int
	NodeID   int
}

// FormatErrorEntry renders an entry in the instrument's pipe-delimited wire
// form: code|message|severity|node.
func FormatErrorEntry(e ErrorEntry) string {
	return fmt.Sprintf("%d|%s|%d|%d", e.Code, e.Message, e.Severity, e.NodeID)
}

// ParseErrorEntry decodes a pipe-delimited error line. Messages may contain
// pipes themselves; the first field is the code and the last two are
// severity and node, everything between is the message.
func ParseErrorEntry(line string) (ErrorEntry, error) {
	parts := strings.Split(line, "|")
	if len(parts) < 4 {
		return ErrorEntry{}, fmt.Errorf("error entry %q: want 4 pipe-delimited fields, got %d", line, len(parts))
	}

	code, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return ErrorEntry{}, fmt.Errorf("error entry %q: bad code: %w", line, err)
	}
	severity, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-2]))
	if err != nil {
		return ErrorEntry{}, fmt.Errorf("error entry %q: bad severity: %w", line, err)
	}
	node, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil {
		return ErrorEntry{}, fmt.Errorf("error entry %q: bad node id: %w", line, err)
	}

	return ErrorEntry{
		Code:     code,
		Message:  strings.Join(parts[1:len(parts)-2], "|"),
		Severity: severity,
		NodeID:   node,
	}, nil
}
