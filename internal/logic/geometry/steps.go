package geometry

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultPulsesPerRev is the full-step count of one mechanical
	// revolution (1.8° per full step).
	DefaultPulsesPerRev = 200

	// SubStepsPerStep is the number of coil transitions per full step.
	SubStepsPerStep = 4

	// DefaultStartPhase is the drift counter value before the first call.
	// With 1, the first correction lands on the second call.
	DefaultStartPhase = 1

	// MaxPulses bounds a single move. At the default dwell this is
	// about four days of continuous stepping.
	MaxPulses = 1 << 24

	correctionPeriod = 3
	correctionPulses = 1

	// truncEpsilon absorbs float error in ppr*deg/360 so that angles
	// landing exactly on a full step (e.g. 151.2° at 200 ppr) are not
	// truncated one step short.
	truncEpsilon = 1e-6
)

var (
	ErrInvalidPulsesPerRev = errors.New("pulses per revolution must be > 0")
	ErrInvalidPhase        = errors.New("drift counter phase must be 0, 1 or 2")
)

// Quantizer converts angles to sub-step pulse counts.
//
// Integer truncation always loses a fraction of a pulse in the same
// direction, so every third call adds one extra pulse. The counter
// advances on every call regardless of angle or direction, which makes
// PulseCount order-dependent: the same request twice in a row may yield
// different counts. Not safe for concurrent use.
type Quantizer struct {
	pulsesPerRev int
	phase        int
}

// NewQuantizer creates a quantizer with the given revolution size and
// starting drift counter phase.
func NewQuantizer(pulsesPerRev, startPhase int) (*Quantizer, error) {
	if pulsesPerRev <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidPulsesPerRev, pulsesPerRev)
	}
	if startPhase < 0 || startPhase >= correctionPeriod {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidPhase, startPhase)
	}
	return &Quantizer{
		pulsesPerRev: pulsesPerRev,
		phase:        startPhase,
	}, nil
}

// RawPulses returns the uncorrected pulse count for degrees without
// touching the drift counter. degrees must be non-negative and at most
// MaxDegrees.
func (q *Quantizer) RawPulses(degrees float64) int {
	steps := int(math.Floor(float64(q.pulsesPerRev)*degrees/360 + truncEpsilon))
	return steps / SubStepsPerStep
}

// MaxDegrees returns the largest angle whose pulse count stays within
// MaxPulses.
func (q *Quantizer) MaxDegrees() float64 {
	return float64(MaxPulses*SubStepsPerStep) * 360 / float64(q.pulsesPerRev)
}

// PulseCount returns the number of sub-steps to drive for degrees and
// advances the drift counter. degrees must be non-negative.
func (q *Quantizer) PulseCount(degrees float64) int {
	pulses := q.RawPulses(degrees)

	q.phase = (q.phase + 1) % correctionPeriod
	if q.phase == 0 {
		pulses += correctionPulses
	}
	return pulses
}

// Phase returns the current drift counter value.
func (q *Quantizer) Phase() int {
	return q.phase
}

// PulsesPerRev returns the configured full steps per revolution.
func (q *Quantizer) PulsesPerRev() int {
	return q.pulsesPerRev
}

// Correcting reports whether the next PulseCount call will add the extra pulse.
func (q *Quantizer) Correcting() bool {
	return (q.phase+1)%correctionPeriod == 0
}
