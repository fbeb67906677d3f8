package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	modbus "github.com/bsquare-corp/modbus-sphere-library"
)

var divisorForBaud = map[int]uint16{
	300:    modbus.BaudSet300,
	600:    modbus.BaudSet600,
	1200:   modbus.BaudSet1200,
	2400:   modbus.BaudSet2400,
	4800:   modbus.BaudSet4800,
	9600:   modbus.BaudSet9600,
	14400:  modbus.BaudSet14400,
	19200:  modbus.BaudSet19200,
	38400:  modbus.BaudSet38400,
	57600:  modbus.BaudSet57600,
	115200: modbus.BaudSet115200,
}

func main() {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "modbus-gateway",
		Short: "Poll Modbus devices and emit JSON telemetry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(cfgFile)
			if err != nil {
				return err
			}
			return run(cfg)
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "modbus-gateway.yaml", "configuration file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *Config) error {
	logger := modbus.NewSimpleLogger(nil, modbus.LevelInfo, "gateway")
	if err := logger.SetLevelFromString(cfg.LogLevel); err != nil {
		return err
	}

	opts := []modbus.Option{modbus.WithLogger(logger)}
	var bridge *modbus.SerialBridge
	if cfg.SerialDevice != "" {
		bridge = modbus.NewSerialBridge(cfg.SerialDevice, logger)
		defer bridge.Close()
		opts = append(opts, modbus.WithLinkDialer(bridge.Dialer()))
	}
	engine := modbus.NewEngine(opts...)
	defer engine.Close()

	pollers := make([]Poller, 0, len(cfg.Devices))
	for _, dev := range cfg.Devices {
		handle, err := connect(engine, dev)
		if err != nil {
			return fmt.Errorf("device %s: %w", dev.Name, err)
		}
		defer handle.Close()
		p, err := newPoller(dev, handle)
		if err != nil {
			return fmt.Errorf("device %s: %w", dev.Name, err)
		}
		pollers = append(pollers, p)
	}

	sink := newJSONSink(os.Stdout)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	pollAll(pollers, sink, logger)
	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			pollAll(pollers, sink, logger)
		}
	}
}

func pollAll(pollers []Poller, sink Sink, logger *modbus.SimpleLogger) {
	for _, p := range pollers {
		values, err := p.Poll()
		if err != nil {
			fmt.Fprintf(logger, "ERROR: poll %s: %v", p.Name(), err)
			continue
		}
		reading := Reading{Device: p.Name(), Time: time.Now().UTC(), Values: values}
		if err := sink.Publish(reading); err != nil {
			fmt.Fprintf(logger, "ERROR: publish %s: %v", p.Name(), err)
		}
	}
}

func connect(engine *modbus.Engine, dev DeviceConfig) (*modbus.Handle, error) {
	switch dev.Transport {
	case "tcp":
		return engine.ConnectTCP(dev.Address, dev.Port)
	case "rtu-over-tcp":
		return engine.ConnectRTUOverTCP(dev.Address, dev.Port)
	case "rtu":
		setup, err := serialSetup(dev.Serial)
		if err != nil {
			return nil, err
		}
		return engine.ConnectRTU(setup, dev.Timeout)
	default:
		return nil, fmt.Errorf("unknown transport %q", dev.Transport)
	}
}

func serialSetup(cfg SerialConfig) (modbus.SerialSetup, error) {
	divisor, ok := divisorForBaud[cfg.BaudRate]
	if !ok {
		return modbus.SerialSetup{}, fmt.Errorf("unsupported baud rate %d", cfg.BaudRate)
	}
	setup := modbus.SerialSetup{
		BaudRate:   divisor,
		DuplexMode: modbus.HalfDuplexMode,
		StopBits:   uint8(cfg.StopBits),
		WordLength: uint8(cfg.WordLength),
	}
	switch cfg.Parity {
	case "", "none":
		setup.ParityState = modbus.ParityOff
	case "even":
		setup.ParityState = modbus.ParityOn
		setup.ParityMode = modbus.ParityEven
	case "odd":
		setup.ParityState = modbus.ParityOn
		setup.ParityMode = modbus.ParityOdd
	default:
		return modbus.SerialSetup{}, fmt.Errorf("unsupported parity %q", cfg.Parity)
	}
	return setup, nil
}
