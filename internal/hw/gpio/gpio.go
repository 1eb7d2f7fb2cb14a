package gpio

import (
	"fmt"
	"strings"

	"github.com/cjeanneret/StepGo/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

func (m PinMode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("PinMode(%d)", int(m))
	}
}

// Backend names accepted by NewDriver.
const (
	BackendMock   = "mock"
	BackendRPi    = "rpio"
	BackendPeriph = "periph"
)

// Driver defines the abstract interface for controlling GPIOs.
// Pins are identified by their BCM number.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// NewDriver creates a GPIO driver for the named backend.
// An empty backend selects the mock driver.
func NewDriver(backend string) (Driver, error) {
	switch strings.ToLower(backend) {
	case "", BackendMock:
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	case BackendRPi:
		return NewRPiRealDriver()
	case BackendPeriph:
		return NewPeriphDriver()
	default:
		return nil, fmt.Errorf("unknown gpio backend %q (want %s, %s or %s)",
			backend, BackendMock, BackendRPi, BackendPeriph)
	}
}
