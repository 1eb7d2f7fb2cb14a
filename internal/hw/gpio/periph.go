package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/StepGo/internal/debug"
	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphDriver implements Driver using periph.io. It works on any board
// periph.io supports (Raspberry Pi, BeagleBone, Allwinner, sysfs/cdev).
type PeriphDriver struct {
	mu   sync.Mutex
	pins map[int]pgpio.PinIO
}

// NewPeriphDriver initializes the periph.io host drivers.
func NewPeriphDriver() (*PeriphDriver, error) {
	debug.Info("Initializing real GPIO driver (periph.io)")

	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	debug.Verbose("periph.io drivers loaded: %d", len(state.Loaded))

	return &PeriphDriver{
		pins: make(map[int]pgpio.PinIO),
	}, nil
}

// resolve looks up a pin by BCM number, caching the handle.
func (d *PeriphDriver) resolve(pin int) (pgpio.PinIO, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pins[pin]; ok {
		return p, nil
	}
	name := fmt.Sprintf("GPIO%d", pin)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("pin %d (%s) not found in hardware", pin, name)
	}
	d.pins[pin] = p
	return p, nil
}

func (d *PeriphDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p, err := d.resolve(pin)
	if err != nil {
		return err
	}
	switch mode {
	case Input:
		if err := p.In(pgpio.PullNoChange, pgpio.NoEdge); err != nil {
			return fmt.Errorf("set pin %d to input: %w", pin, err)
		}
	case Output:
		if err := p.Out(pgpio.Low); err != nil {
			return fmt.Errorf("set pin %d to output: %w", pin, err)
		}
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	return nil
}

func (d *PeriphDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, err := d.resolve(pin)
	if err != nil {
		return err
	}
	return p.Out(pgpio.Level(level))
}

func (d *PeriphDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)

	p, err := d.resolve(pin)
	if err != nil {
		return Low, err
	}
	return Level(p.Read()), nil
}

// Close returns every pin touched to a high-impedance input.
func (d *PeriphDriver) Close() error {
	debug.Trace("GPIO Close (periph.io)")

	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for pin, p := range d.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		if err := p.In(pgpio.PullNoChange, pgpio.NoEdge); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("reset pin %d: %w", pin, err)
		}
	}
	return firstErr
}
