package transport

import (
	"fmt"
	"io"
	"strings"

	"github.com/gotmc/prologix"
	"github.com/gotmc/prologix/driver/vcp"
)

// GPIB drives the instrument through a Prologix GPIB-USB controller on a
// virtual COM port.
type GPIB struct {
	port    string
	address int

	vcp  *vcp.VCP
	ctrl *prologix.Controller
}

// Compile-time assertion that GPIB implements Transport.
var _ Transport = (*GPIB)(nil)

// NewGPIB creates a GPIB transport for the given serial device path and
// instrument bus address.
func NewGPIB(port string, address int) *GPIB {
	return &GPIB{port: port, address: address}
}

// Open opens the serial port and configures the Prologix controller to
// address the instrument.
func (g *GPIB) Open() error {
	dev, err := vcp.NewVCP(g.port)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", g.port, err)
	}
	ctrl, err := prologix.NewController(dev, g.address, false)
	if err != nil {
		dev.Close()
		return fmt.Errorf("prologix controller at gpib address %d: %w", g.address, err)
	}
	g.vcp = dev
	g.ctrl = ctrl
	return nil
}

// Close returns the instrument to front-panel control, flushes unread
// serial data, and closes the port.
func (g *GPIB) Close() error {
	if g.vcp == nil {
		return nil
	}
	// Best effort: hand local control back to the operator.
	if g.ctrl != nil {
		_ = g.ctrl.FrontPanel(true)
	}
	_ = g.vcp.Flush()
	err := g.vcp.Close()
	g.vcp = nil
	g.ctrl = nil
	return err
}

// Write sends one command line to the instrument.
func (g *GPIB) Write(command string) error {
	if g.ctrl == nil {
		return ErrNotOpen
	}
	return g.ctrl.Command(command)
}

// Query sends one command line and reads one response line. The Prologix
// firmware terminates short reads with EOF, which is not an error here.
func (g *GPIB) Query(command string) (string, error) {
	if g.ctrl == nil {
		return "", ErrNotOpen
	}
	resp, err := g.ctrl.Query(command)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("query %q: %w", command, err)
	}
	return strings.TrimSpace(resp), nil
}
