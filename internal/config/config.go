// Package config loads the module configuration: compiled-in defaults,
// overlaid by an optional YAML file, overridden by environment variables,
// and validated before use.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the complete configuration for the controller CLI and the
// emulator daemon.
type Config struct {
	// Resource selects the transport: "sim://2612" for the in-process
	// emulator, "tcp://host:port" for a LAN port or emulator daemon, or a
	// serial device path for a Prologix GPIB controller.
	Resource string         `yaml:"resource"`
	GPIB     GPIBConfig     `yaml:"gpib"`
	Ramp     RampConfig     `yaml:"ramp"`
	Audit    AuditConfig    `yaml:"audit"`
	Emulator EmulatorConfig `yaml:"emulator"`
}

// GPIBConfig holds the Prologix binding settings.
type GPIBConfig struct {
	// Address is the instrument's GPIB bus address (0-30).
	Address int `yaml:"address"`
}

// RampConfig holds the default ramp parameters used by the CLI.
type RampConfig struct {
	StepV      float64 `yaml:"stepV"`
	DwellMs    int     `yaml:"dwellMs"`
	ToleranceV float64 `yaml:"toleranceV"`
}

// Dwell returns the configured dwell as a duration.
func (r RampConfig) Dwell() time.Duration {
	return time.Duration(r.DwellMs) * time.Millisecond
}

// AuditConfig holds audit log rotation settings.
type AuditConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// EmulatorConfig holds the emulator daemon settings.
type EmulatorConfig struct {
	Identity       string   `yaml:"identity"`
	Listen         string   `yaml:"listen"`
	AllowedCIDRs   []string `yaml:"allowedCidrs"`
	MaxConnections int      `yaml:"maxConnections"`
	IdleTimeoutSec int      `yaml:"idleTimeoutSec"`
}

// IdleTimeout returns the configured session idle timeout.
func (e EmulatorConfig) IdleTimeout() time.Duration {
	return time.Duration(e.IdleTimeoutSec) * time.Second
}

// Load builds the configuration from defaults, the optional default config
// file, the file named by SMUCTL_CONFIG, and environment overrides, then
// validates it.
func Load() (*Config, error) {
	cfg := Default()

	if err := loadFromFile(cfg, "config/default.yaml"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load config/default.yaml: %w", err)
	}

	if path := os.Getenv("SMUCTL_CONFIG"); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		Resource: "sim://2612",
		GPIB: GPIBConfig{
			Address: 26,
		},
		Ramp: RampConfig{
			StepV:      0.2,
			DwellMs:    100,
			ToleranceV: 0.05,
		},
		Audit: AuditConfig{
			Dir:        "logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Emulator: EmulatorConfig{
			Identity:       "Keithley Instruments Inc., Model 2612, 1234567, FW-1.0",
			Listen:         ":5025",
			AllowedCIDRs:   []string{"127.0.0.0/8"},
			MaxConnections: 10,
			IdleTimeoutSec: 30,
		},
	}
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if resource := os.Getenv("SMUCTL_RESOURCE"); resource != "" {
		cfg.Resource = resource
	}
	if addr := os.Getenv("SMUCTL_GPIB_ADDRESS"); addr != "" {
		if n, err := strconv.Atoi(addr); err == nil {
			cfg.GPIB.Address = n
		}
	}
	if listen := os.Getenv("SMUCTL_EMULATOR_LISTEN"); listen != "" {
		cfg.Emulator.Listen = listen
	}
}

// Validate checks ranges and formats before the configuration is used.
func Validate(cfg *Config) error {
	if cfg.Resource == "" {
		return fmt.Errorf("resource must not be empty")
	}
	if cfg.GPIB.Address < 0 || cfg.GPIB.Address > 30 {
		return fmt.Errorf("gpib address %d is outside the bus range [0, 30]", cfg.GPIB.Address)
	}
	if cfg.Ramp.StepV <= 0 {
		return fmt.Errorf("ramp step %g must be positive", cfg.Ramp.StepV)
	}
	if cfg.Ramp.DwellMs < 0 {
		return fmt.Errorf("ramp dwell %d ms must not be negative", cfg.Ramp.DwellMs)
	}
	if cfg.Ramp.ToleranceV < 0 {
		return fmt.Errorf("ramp tolerance %g must not be negative", cfg.Ramp.ToleranceV)
	}
	if cfg.Audit.MaxSizeMB <= 0 {
		return fmt.Errorf("audit maxSizeMb %d must be positive", cfg.Audit.MaxSizeMB)
	}
	if cfg.Emulator.Identity == "" {
		return fmt.Errorf("emulator identity must not be empty")
	}
	if cfg.Emulator.MaxConnections <= 0 {
		return fmt.Errorf("emulator maxConnections %d must be positive", cfg.Emulator.MaxConnections)
	}
	if cfg.Emulator.IdleTimeoutSec <= 0 {
		return fmt.Errorf("emulator idleTimeoutSec %d must be positive", cfg.Emulator.IdleTimeoutSec)
	}
	for _, cidr := range cfg.Emulator.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid allowed CIDR %q: %w", cidr, err)
		}
	}
	return nil
}
