package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
log_level: DEBUG
poll_interval: 5s
serial_device: /dev/ttyS1
devices:
  - name: lab-relay
    driver: tcw241
    transport: tcp
    address: 192.168.1.20
    port: 1502
    slave_id: 2
    timeout: 3s
  - driver: adam4150
    transport: rtu
    slave_id: 1
    serial:
      baud_rate: 19200
      parity: even
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.LogLevel != "DEBUG" || cfg.PollInterval != 5*time.Second {
		t.Errorf("got log_level %q poll_interval %v", cfg.LogLevel, cfg.PollInterval)
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(cfg.Devices))
	}

	relay := cfg.Devices[0]
	if relay.Name != "lab-relay" || relay.Port != 1502 || relay.SlaveID != 2 || relay.Timeout != 3*time.Second {
		t.Errorf("unexpected first device: %+v", relay)
	}

	adam := cfg.Devices[1]
	if adam.Name != "adam4150-1" {
		t.Errorf("unnamed device should get a generated name, got %q", adam.Name)
	}
	if adam.Timeout != time.Second || adam.Serial.StopBits != 1 || adam.Serial.WordLength != 8 {
		t.Errorf("defaults not applied: %+v", adam)
	}
	if adam.Serial.BaudRate != 19200 || adam.Serial.Parity != "even" {
		t.Errorf("serial settings lost: %+v", adam.Serial)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
devices:
  - driver: tcw241
    transport: tcp
    address: 10.0.0.5
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.LogLevel != "INFO" || cfg.PollInterval != 10*time.Second {
		t.Errorf("got log_level %q poll_interval %v", cfg.LogLevel, cfg.PollInterval)
	}
	if cfg.Devices[0].Port != 502 {
		t.Errorf("port = %d, want 502", cfg.Devices[0].Port)
	}
}

func TestLoadConfigRejectsUnknownTransport(t *testing.T) {
	path := writeConfig(t, `
devices:
  - driver: tcw241
    transport: carrier-pigeon
    address: 10.0.0.5
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("unknown transport should be rejected")
	}
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, `
devices:
  - driver: toaster
    transport: tcp
    address: 10.0.0.5
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("unknown driver should be rejected")
	}
}

func TestLoadConfigRTURequiresSerialDevice(t *testing.T) {
	path := writeConfig(t, `
devices:
  - driver: adam4150
    transport: rtu
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("rtu transport without serial_device should be rejected")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file should be reported")
	}
}
