package main

import (
	"fmt"
	"math"
	"time"

	modbus "github.com/bsquare-corp/modbus-sphere-library"
)

// Poller samples one device over an open handle.
type Poller interface {
	Name() string
	Poll() (map[string]interface{}, error)
}

func newPoller(cfg DeviceConfig, handle *modbus.Handle) (Poller, error) {
	switch cfg.Driver {
	case "tcw241":
		return &tcw241{name: cfg.Name, handle: handle, slaveID: cfg.SlaveID, timeout: cfg.Timeout}, nil
	case "adam4150":
		return &adam4150{name: cfg.Name, handle: handle, slaveID: cfg.SlaveID, timeout: cfg.Timeout}, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

// TCW241 ethernet controller: four relays and four digital inputs at
// address 100, four analog inputs as float register pairs at address 300.
const (
	tcw241RelayBase         = 100
	tcw241RelayCount        = 4
	tcw241DigitalInputBase  = 100
	tcw241DigitalInputCount = 4
	tcw241AnalogInputBase   = 300
	tcw241AnalogInputCount  = 4
)

type tcw241 struct {
	name    string
	handle  *modbus.Handle
	slaveID uint8
	timeout time.Duration
	counter uint16
}

func (d *tcw241) Name() string { return d.name }

// Poll rotates the energized relay, then samples relays, digital inputs
// and the analog channels.
func (d *tcw241) Poll() (map[string]interface{}, error) {
	values := make(map[string]interface{})

	if err := d.handle.WriteSingleCoil(d.slaveID, tcw241RelayBase+d.counter, false, d.timeout); err != nil {
		return nil, fmt.Errorf("relay %d off: %w", d.counter+1, err)
	}
	d.counter = (d.counter + 1) & 3
	if err := d.handle.WriteSingleCoil(d.slaveID, tcw241RelayBase+d.counter, true, d.timeout); err != nil {
		return nil, fmt.Errorf("relay %d on: %w", d.counter+1, err)
	}

	relays, err := d.handle.ReadCoils(d.slaveID, tcw241RelayBase, tcw241RelayCount, d.timeout)
	if err != nil {
		return nil, fmt.Errorf("read relays: %w", err)
	}
	for i, on := range relays {
		values[fmt.Sprintf("relay_%d", i+1)] = on
	}

	inputs, err := d.handle.ReadDiscreteInputs(d.slaveID, tcw241DigitalInputBase, tcw241DigitalInputCount, d.timeout)
	if err != nil {
		return nil, fmt.Errorf("read digital inputs: %w", err)
	}
	for i, open := range inputs {
		values[fmt.Sprintf("digital_input_%d", i+1)] = open
	}

	words, err := d.handle.ReadHoldingRegisters(d.slaveID, tcw241AnalogInputBase, tcw241AnalogInputCount*2, d.timeout)
	if err != nil {
		return nil, fmt.Errorf("read analog inputs: %w", err)
	}
	for i := 0; i+1 < len(words); i += 2 {
		// Each channel is a 32 bit float sent high word first.
		bits := uint32(words[i])<<16 | uint32(words[i+1])
		values[fmt.Sprintf("analog_input_%d", i/2+1)] = math.Float32frombits(bits)
	}
	return values, nil
}

// ADAM-4150 data acquisition module: seven digital inputs at address 0,
// eight digital outputs as coils at address 16.
const (
	adam4150InputBase   = 0
	adam4150InputCount  = 7
	adam4150OutputBase  = 16
	adam4150OutputCount = 8
)

type adam4150 struct {
	name    string
	handle  *modbus.Handle
	slaveID uint8
	timeout time.Duration
	counter uint16
	outputs [adam4150OutputCount]bool
}

func (d *adam4150) Name() string { return d.name }

// Poll toggles the next digital output and samples inputs and outputs.
func (d *adam4150) Poll() (map[string]interface{}, error) {
	values := make(map[string]interface{})

	d.counter = (d.counter + 1) & 7
	next := !d.outputs[d.counter]
	if err := d.handle.WriteSingleCoil(d.slaveID, adam4150OutputBase+d.counter, next, d.timeout); err != nil {
		return nil, fmt.Errorf("write output %d: %w", d.counter, err)
	}
	d.outputs[d.counter] = next

	inputs, err := d.handle.ReadDiscreteInputs(d.slaveID, adam4150InputBase, adam4150InputCount, d.timeout)
	if err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}
	for i, v := range inputs {
		values[fmt.Sprintf("digital_input_%d", i)] = v
	}

	outputs, err := d.handle.ReadCoils(d.slaveID, adam4150OutputBase, adam4150OutputCount, d.timeout)
	if err != nil {
		return nil, fmt.Errorf("read outputs: %w", err)
	}
	for i, v := range outputs {
		values[fmt.Sprintf("digital_output_%d", i)] = v
	}
	return values, nil
}
