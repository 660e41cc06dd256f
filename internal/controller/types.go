package controller

import (
	"strings"

	"github.com/instrument-control/smuctl/internal/tsp"
)

// Channel identifies one of the instrument's two source-measure units.
type Channel int

const (
	// ChannelA is the primary source-measure unit.
	ChannelA Channel = iota
	// ChannelB is the secondary source-measure unit.
	ChannelB
)

// Alias returns the protocol prefix for commands addressed to the channel.
func (c Channel) Alias() string {
	if c == ChannelB {
		return "smub"
	}
	return "smua"
}

// Screen returns the front-display constant suffix for the channel.
func (c Channel) Screen() string {
	return strings.ToUpper(c.Alias())
}

func (c Channel) String() string {
	return c.Alias()
}

// VoltageConfig is an immutable source configuration passed into
// ConfigureVoltageSource.
type VoltageConfig struct {
	// LevelV is the target source level in volts.
	LevelV float64
	// CurrentLimitA is the compliance current limit in amps.
	CurrentLimitA float64
	// Autorange enables source autoranging.
	Autorange bool
}

// NewVoltageConfig builds a configuration with autoranging enabled, the
// default for bench use.
func NewVoltageConfig(levelV, currentLimitA float64) VoltageConfig {
	return VoltageConfig{
		LevelV:        levelV,
		CurrentLimitA: currentLimitA,
		Autorange:     true,
	}
}

// ErrorEntry is one fault or warning drained from the device error queue.
type ErrorEntry = tsp.ErrorEntry
