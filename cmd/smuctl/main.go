// Command smuctl is the operator CLI for a 2600-series source-measure
// instrument. It wraps the controller's safety-oriented operations in a
// handful of bench routines:
//
//	smuctl [flags] identify     print the instrument identification
//	smuctl [flags] smoke        configure, enable, ramp, and shut down safely
//	smuctl [flags] errors       drain and print the device error queue
//	smuctl [flags] panel        exercise beeper and front-panel feedback
//	smuctl [flags] ramp         ramp the output to a target voltage
//	smuctl [flags] zero         ramp the output down to zero
//
// The resource flag selects the transport: sim://2612 for the in-process
// emulator, tcp://host:port for a LAN-attached instrument or the emulator
// daemon, or a serial device path for a Prologix GPIB adapter.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/instrument-control/smuctl/internal/audit"
	"github.com/instrument-control/smuctl/internal/config"
	"github.com/instrument-control/smuctl/internal/controller"
	"github.com/instrument-control/smuctl/internal/emulator"
	"github.com/instrument-control/smuctl/internal/transport"
)

var (
	resourceFlag = flag.String("resource", "", "transport resource (overrides configuration)")
	channelFlag  = flag.String("channel", "a", "channel to exercise: a or b")
	voltageFlag  = flag.Float64("voltage", 0.0, "voltage level in volts")
	limitFlag    = flag.Float64("limit", 1e-3, "compliance current limit in amps")
	stepFlag     = flag.Float64("step", 0, "ramp step in volts (0 uses configuration)")
	dwellFlag    = flag.Duration("dwell", -1, "dwell between ramp steps (negative uses configuration)")
	durationFlag = flag.Float64("beep-duration", 0.2, "beep duration in seconds")
	freqFlag     = flag.Float64("beep-frequency", 1200, "beep frequency in Hz")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if *resourceFlag != "" {
		cfg.Resource = *resourceFlag
	}
	if *stepFlag > 0 {
		cfg.Ramp.StepV = *stepFlag
	}
	if *dwellFlag >= 0 {
		cfg.Ramp.DwellMs = int(dwellFlag.Milliseconds())
	}

	command := flag.Arg(0)
	if command == "" {
		flag.Usage()
		os.Exit(2)
	}

	channel, err := parseChannel(*channelFlag)
	if err != nil {
		log.Fatal(err)
	}

	auditLog := audit.NewLogger(audit.Options{
		Dir:        cfg.Audit.Dir,
		MaxSizeMB:  cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAgeDays: cfg.Audit.MaxAgeDays,
	}, cfg.Resource)

	// Fatalf would skip deferred cleanup, so the session teardown and audit
	// flush happen before the exit decision.
	err = execute(cfg, channel, command, auditLog)
	if cerr := auditLog.Close(); cerr != nil {
		log.Printf("failed to close audit log: %v", cerr)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}
}

// execute runs one subcommand inside a complete connect/disconnect pair.
// Disconnect runs even when the subcommand fails, so the failure outcome
// reaches the audit trail and a GPIB instrument is handed back to
// front-panel control.
func execute(cfg *config.Config, channel controller.Channel, command string, auditLog controller.AuditLogger) error {
	ctrl := controller.New(openTransport(cfg), controller.WithAudit(auditLog))
	if err := ctrl.Connect(); err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Resource, err)
	}
	defer func() {
		if err := ctrl.Disconnect(); err != nil {
			log.Printf("disconnect failed: %v", err)
		}
	}()

	if err := ctrl.SelectChannel(channel); err != nil {
		return fmt.Errorf("select channel %s: %w", channel, err)
	}
	return run(command, ctrl, cfg)
}

func run(command string, ctrl *controller.Controller, cfg *config.Config) error {
	switch command {
	case "identify":
		return runIdentify(ctrl, cfg)
	case "smoke":
		return runSmoke(ctrl, cfg)
	case "errors":
		return runErrors(ctrl)
	case "panel":
		return runPanel(ctrl)
	case "ramp":
		return runRamp(ctrl, cfg, *voltageFlag)
	case "zero":
		return runZero(ctrl, cfg)
	}
	return fmt.Errorf("unknown command %q", command)
}

func runIdentify(ctrl *controller.Controller, cfg *config.Config) error {
	identity, err := ctrl.Identify()
	if err != nil {
		return err
	}
	fmt.Printf("Connected to %s via %s\n", identity, cfg.Resource)
	return nil
}

// runSmoke is the end-to-end connectivity check: configure the source,
// enable the output, ramp up and back down, then drain the error queue so
// nothing is left pending for the next operator.
func runSmoke(ctrl *controller.Controller, cfg *config.Config) error {
	if err := runIdentify(ctrl, cfg); err != nil {
		return err
	}
	if err := ctrl.Reset(); err != nil {
		return err
	}
	if err := ctrl.ConfigureVoltageSource(controller.NewVoltageConfig(0, *limitFlag)); err != nil {
		return err
	}
	if err := ctrl.EnableOutput(true); err != nil {
		return err
	}

	tripped, err := ctrl.RampToVoltage(*voltageFlag, cfg.Ramp.StepV, cfg.Ramp.Dwell(), &controller.RampOptions{
		CurrentLimitA: limitFlag,
		OnProgress:    printProgress,
	})
	if err != nil {
		return err
	}
	if tripped {
		log.Printf("compliance tripped during ramp; output clamped at %g A", *limitFlag)
	}
	fmt.Printf("Output enabled on %s at %.3f V with %.6f A limit\n", ctrl.Channel(), *voltageFlag, *limitFlag)

	if _, err := ctrl.RampToZero(cfg.Ramp.StepV, cfg.Ramp.Dwell(), cfg.Ramp.ToleranceV, nil); err != nil {
		return err
	}
	if err := ctrl.EnableOutput(false); err != nil {
		return err
	}
	fmt.Println("Output disabled and source back at zero")
	return runErrors(ctrl)
}

func runErrors(ctrl *controller.Controller) error {
	entries, err := ctrl.DrainErrorQueue()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Error queue empty")
		return nil
	}
	for _, entry := range entries {
		fmt.Printf("instrument error %d (severity %d, node %d): %s\n",
			entry.Code, entry.Severity, entry.NodeID, entry.Message)
	}
	return nil
}

// runPanel exercises the operator feedback paths: beeper and front-panel
// display. The operator confirms by ear and eye.
func runPanel(ctrl *controller.Controller) error {
	if err := ctrl.SetBeeperEnabled(true); err != nil {
		return err
	}
	if err := ctrl.ConfigureDisplayForVoltage(); err != nil {
		return err
	}
	if err := ctrl.ConfigureVoltageMeasurement(true); err != nil {
		return err
	}
	reading, err := ctrl.MeasureVoltage()
	if err != nil {
		return err
	}
	if err := ctrl.Beep(*durationFlag, *freqFlag); err != nil {
		return err
	}
	fmt.Printf("Display shows %s (readback %.3f V)\n", ctrl.Channel(), reading)
	fmt.Println("Confirm on the front panel that the voltage is displayed and a beep was heard")
	return nil
}

func runRamp(ctrl *controller.Controller, cfg *config.Config, target float64) error {
	tripped, err := ctrl.RampToVoltage(target, cfg.Ramp.StepV, cfg.Ramp.Dwell(), &controller.RampOptions{
		CurrentLimitA: limitFlag,
		OnProgress:    printProgress,
	})
	if err != nil {
		return err
	}
	if tripped {
		log.Println("compliance tripped during ramp")
	}
	fmt.Printf("Ramped %s to %.3f V\n", ctrl.Channel(), target)
	return nil
}

func runZero(ctrl *controller.Controller, cfg *config.Config) error {
	tripped, err := ctrl.RampToZero(cfg.Ramp.StepV, cfg.Ramp.Dwell(), cfg.Ramp.ToleranceV, &controller.RampOptions{
		OnProgress: printProgress,
	})
	if err != nil {
		return err
	}
	if tripped {
		log.Println("compliance tripped during shutdown ramp")
	}
	fmt.Println("Source at zero; output relay left as-is")
	return nil
}

func printProgress(p controller.RampProgress) {
	if p.MeasuredOK {
		fmt.Printf("  step %d: commanded %.3f V, measured %.3f V\n", p.Step, p.LevelV, p.MeasuredV)
		return
	}
	fmt.Printf("  step %d: commanded %.3f V, measured unknown\n", p.Step, p.LevelV)
}

func parseChannel(name string) (controller.Channel, error) {
	switch strings.ToLower(name) {
	case "a", "smua":
		return controller.ChannelA, nil
	case "b", "smub":
		return controller.ChannelB, nil
	}
	return controller.ChannelA, fmt.Errorf("unknown channel %q: want a or b", name)
}

// openTransport picks the transport binding for the configured resource.
func openTransport(cfg *config.Config) transport.Transport {
	resource := cfg.Resource
	switch {
	case strings.HasPrefix(strings.ToLower(resource), "sim://"):
		return emulator.New(cfg.Emulator.Identity)
	case strings.HasPrefix(strings.ToLower(resource), "tcp://"):
		return transport.NewTCP(resource[len("tcp://"):])
	default:
		return transport.NewGPIB(resource, cfg.GPIB.Address)
	}
}
