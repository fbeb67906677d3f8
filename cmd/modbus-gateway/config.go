package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the gateway configuration, loaded from a YAML file with viper.
type Config struct {
	LogLevel     string         `mapstructure:"log_level"`
	PollInterval time.Duration  `mapstructure:"poll_interval"`
	SerialDevice string         `mapstructure:"serial_device"`
	Devices      []DeviceConfig `mapstructure:"devices"`
}

// DeviceConfig describes one polled device.
type DeviceConfig struct {
	Name      string        `mapstructure:"name"`
	Driver    string        `mapstructure:"driver"`    // tcw241 | adam4150
	Transport string        `mapstructure:"transport"` // tcp | rtu-over-tcp | rtu
	Address   string        `mapstructure:"address"`
	Port      uint16        `mapstructure:"port"`
	SlaveID   uint8         `mapstructure:"slave_id"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Serial    SerialConfig  `mapstructure:"serial"`
}

// SerialConfig carries line parameters for devices behind the serial
// bridge.
type SerialConfig struct {
	BaudRate   int    `mapstructure:"baud_rate"`
	Parity     string `mapstructure:"parity"` // none | even | odd
	StopBits   int    `mapstructure:"stop_bits"`
	WordLength int    `mapstructure:"word_length"`
}

// LoadConfig reads the configuration file at path, applies defaults and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("log_level", "INFO")
	v.SetDefault("poll_interval", "10s")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Name == "" {
			d.Name = fmt.Sprintf("%s-%d", d.Driver, i)
		}
		if d.Timeout <= 0 {
			d.Timeout = time.Second
		}
		if d.Port == 0 {
			d.Port = 502
		}
		if d.Serial.BaudRate == 0 {
			d.Serial.BaudRate = 9600
		}
		if d.Serial.StopBits == 0 {
			d.Serial.StopBits = 1
		}
		if d.Serial.WordLength == 0 {
			d.Serial.WordLength = 8
		}
		switch d.Transport {
		case "tcp", "rtu-over-tcp":
			if d.Address == "" {
				return nil, fmt.Errorf("device %s: transport %s requires an address", d.Name, d.Transport)
			}
		case "rtu":
			if cfg.SerialDevice == "" {
				return nil, fmt.Errorf("device %s: rtu transport requires serial_device", d.Name)
			}
		default:
			return nil, fmt.Errorf("device %s: unknown transport %q", d.Name, d.Transport)
		}
		switch d.Driver {
		case "tcw241", "adam4150":
		default:
			return nil, fmt.Errorf("device %s: unknown driver %q", d.Name, d.Driver)
		}
	}
	return &cfg, nil
}
