package stepper

import (
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/StepGo/internal/debug"
	"github.com/cjeanneret/StepGo/internal/hw/gpio"
)

// DefaultDwell is how long each terminal stays energized during a sub-step.
// Four transitions make one sub-step, so this sets the top stepping rate.
const DefaultDwell = 5 * time.Millisecond

var (
	// ErrInit wraps any failure to configure the coil terminals.
	ErrInit = errors.New("stepper init")
	// ErrNegativePulses is returned by Drive for a negative pulse count.
	ErrNegativePulses = errors.New("negative pulse count")
)

// Pins maps each coil terminal to a BCM pin number.
type Pins struct {
	A1 int
	A2 int
	B1 int
	B2 int
}

func (p Pins) pin(t Terminal) int {
	switch t {
	case A1:
		return p.A1
	case A2:
		return p.A2
	case B1:
		return p.B1
	default:
		return p.B2
	}
}

// Config holds the hardware configuration of a four-wire stepper.
type Config struct {
	Pins             Pins
	Dwell            time.Duration // per terminal transition. 0 = DefaultDwell.
	DeenergizeOnFini bool          // drive all coils LOW on Fini instead of leaving them as-is
}

// Sequencer energizes the four coil terminals one sub-step at a time.
// It is not safe for concurrent use: two overlapping Drive calls would
// interleave pulses on the same terminals.
type Sequencer struct {
	gpio  gpio.Driver
	cfg   Config
	dwell time.Duration
}

// NewSequencer creates a phase sequencer. No GPIO is touched until Init.
func NewSequencer(g gpio.Driver, cfg Config) *Sequencer {
	dwell := cfg.Dwell
	if dwell <= 0 {
		dwell = DefaultDwell
	}
	return &Sequencer{
		gpio:  g,
		cfg:   cfg,
		dwell: dwell,
	}
}

// Dwell returns the effective per-transition hold time.
func (s *Sequencer) Dwell() time.Duration {
	return s.dwell
}

// Init configures the terminals as outputs and holds A2 and B2 high so
// the rotor is magnetically locked before the first move.
func (s *Sequencer) Init() error {
	debug.Verbose("Stepper: init pins %+v", s.cfg.Pins)

	for _, t := range [...]Terminal{A1, A2, B1, B2} {
		if err := s.gpio.SetupPin(s.cfg.Pins.pin(t), gpio.Output); err != nil {
			return fmt.Errorf("%w: configure %s (pin %d): %v", ErrInit, t, s.cfg.Pins.pin(t), err)
		}
	}
	for _, t := range [...]Terminal{A2, B2} {
		if err := s.write(t, gpio.High); err != nil {
			return fmt.Errorf("%w: resting pattern: %v", ErrInit, err)
		}
	}
	return nil
}

// Fini releases the motor. Coils keep their last state unless
// DeenergizeOnFini is set.
func (s *Sequencer) Fini() error {
	if !s.cfg.DeenergizeOnFini {
		debug.Verbose("Stepper: fini (coils left as-is)")
		return nil
	}
	debug.Verbose("Stepper: fini (de-energizing coils)")
	var firstErr error
	for _, t := range [...]Terminal{A1, A2, B1, B2} {
		if err := s.write(t, gpio.Low); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Drive runs pulses sub-steps in dir, blocking for pulses*4*Dwell.
// A write failure aborts the move where it stands; the rotor position is
// then approximate until the next explicit move.
func (s *Sequencer) Drive(dir Direction, pulses int) error {
	if pulses < 0 {
		return fmt.Errorf("%w: %d", ErrNegativePulses, pulses)
	}
	if pulses == 0 {
		return nil
	}

	debug.Printf("Stepper: driving %d sub-steps (%s)", pulses, dir)

	order := PhaseOrder(dir)
	for i := 0; i < pulses; i++ {
		if err := s.step(order); err != nil {
			return fmt.Errorf("sub-step %d/%d: %w", i+1, pulses, err)
		}
	}
	return nil
}

// Step performs a single sub-step in dir.
func (s *Sequencer) Step(dir Direction) error {
	return s.step(PhaseOrder(dir))
}

func (s *Sequencer) step(order [4]Terminal) error {
	for _, t := range order {
		if err := s.write(t, gpio.High); err != nil {
			return err
		}
		time.Sleep(s.dwell)
		if err := s.write(t, gpio.Low); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) write(t Terminal, level gpio.Level) error {
	pin := s.cfg.Pins.pin(t)
	debug.Coil(t.String(), pin, level == gpio.High)
	if err := s.gpio.WritePin(pin, level); err != nil {
		return fmt.Errorf("write %s (pin %d): %w", t, pin, err)
	}
	return nil
}
