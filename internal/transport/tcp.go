package transport

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

// Default TCP timeouts. Instrument responses are sub-second in practice;
// five seconds matches the GPIB binding's read timeout.
const (
	defaultDialTimeout = 5 * time.Second
	defaultIOTimeout   = 5 * time.Second
)

// TCP is a newline-delimited transport to an instrument LAN port or to the
// emulator daemon.
type TCP struct {
	addr        string
	dialTimeout time.Duration
	ioTimeout   time.Duration

	conn   net.Conn
	reader *bufio.Reader
}

// Compile-time assertion that TCP implements Transport.
var _ Transport = (*TCP)(nil)

// NewTCP creates a TCP transport for the given host:port address.
func NewTCP(addr string) *TCP {
	return &TCP{
		addr:        addr,
		dialTimeout: defaultDialTimeout,
		ioTimeout:   defaultIOTimeout,
	}
}

// SetTimeouts overrides the dial and per-command I/O timeouts.
func (t *TCP) SetTimeouts(dial, io time.Duration) {
	t.dialTimeout = dial
	t.ioTimeout = io
}

// Open dials the instrument.
func (t *TCP) Open() error {
	conn, err := net.DialTimeout("tcp", t.addr, t.dialTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.addr, err)
	}
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	return nil
}

// Close drops the connection.
func (t *TCP) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.reader = nil
	return err
}

// Write sends one command line.
func (t *TCP) Write(command string) error {
	if t.conn == nil {
		return ErrNotOpen
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.ioTimeout)); err != nil {
		return err
	}
	_, err := fmt.Fprintf(t.conn, "%s\n", command)
	return err
}

// Query sends one command line and reads one response line.
func (t *TCP) Query(command string) (string, error) {
	if t.conn == nil {
		return "", ErrNotOpen
	}
	if err := t.Write(command); err != nil {
		return "", err
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(t.ioTimeout)); err != nil {
		return "", err
	}
	line, err := t.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read response to %q: %w", command, err)
	}
	return strings.TrimSpace(line), nil
}
