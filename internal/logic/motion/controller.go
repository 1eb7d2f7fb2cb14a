package motion

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/StepGo/internal/debug"
	"github.com/cjeanneret/StepGo/internal/hw/stepper"
	"github.com/cjeanneret/StepGo/internal/logic/geometry"
)

// ErrInvalidDegrees is returned for negative, NaN, infinite or oversized angles.
var ErrInvalidDegrees = errors.New("degrees must be a finite value >= 0")

// Request is one rotation request. An empty ID is filled with a new UUID.
type Request struct {
	ID        string
	Direction stepper.Direction
	Degrees   float64
}

// Move describes one completed (or aborted) rotation.
type Move struct {
	ID        string            `json:"id"`
	Direction stepper.Direction `json:"-"`
	Dir       string            `json:"direction"`
	Degrees   float64           `json:"degrees"`
	Pulses    int               `json:"pulses"`
	Corrected bool              `json:"corrected"`
	Duration  time.Duration     `json:"duration_ns"`
}

// Status is a snapshot of the controller for reporting.
type Status struct {
	PulsesPerRev int           `json:"pulses_per_rev"`
	DwellUs      int64         `json:"dwell_us"`
	CounterPhase int           `json:"counter_phase"`
	LastMove     *Move         `json:"last_move,omitempty"`
	Busy         bool          `json:"busy"`
	Uptime       time.Duration `json:"uptime_ns"`
}

// Controller is the single entry point for rotating the stepper.
// It sits between callers (CLI, HTTP) and the hardware, and serializes
// every quantize+drive pair so the drift counter keeps its sequential
// meaning even when requests arrive from several goroutines.
type Controller struct {
	mu        sync.Mutex
	seq       *stepper.Sequencer
	quantizer *geometry.Quantizer

	statusMu sync.Mutex
	last     *Move
	busy     bool
	phase    int
	started  time.Time
}

func NewController(seq *stepper.Sequencer, q *geometry.Quantizer) *Controller {
	return &Controller{
		seq:       seq,
		quantizer: q,
		phase:     q.Phase(),
		started:   time.Now(),
	}
}

// Init prepares the motor. A failure means the motor must not be used.
func (c *Controller) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.Init()
}

// Fini releases the motor.
func (c *Controller) Fini() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq.Fini()
}

// SetPosition rotates by degrees in dir. It blocks until every pulse has
// been driven. On a GPIO failure the returned Move still carries the
// planned pulse count; the sequence is not restarted.
func (c *Controller) SetPosition(dir stepper.Direction, degrees float64) (Move, error) {
	return c.Execute(Request{Direction: dir, Degrees: degrees})
}

// Execute runs req under the controller lock. See SetPosition.
func (c *Controller) Execute(req Request) (Move, error) {
	dir, degrees := req.Direction, req.Degrees
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) || degrees < 0 {
		return Move{}, fmt.Errorf("%w, got %g", ErrInvalidDegrees, degrees)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if limit := c.quantizer.MaxDegrees(); degrees > limit {
		return Move{}, fmt.Errorf("%w, got %g (max %g)", ErrInvalidDegrees, degrees, limit)
	}

	corrected := c.quantizer.Correcting()
	pulses := c.quantizer.PulseCount(degrees)

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	m := Move{
		ID:        id,
		Direction: dir,
		Dir:       dir.String(),
		Degrees:   degrees,
		Pulses:    pulses,
		Corrected: corrected,
	}

	debug.Info("Move %s: %.2f° %s", m.ID, degrees, dir)
	debug.Move(degrees, pulses, dir.String())
	if corrected {
		debug.Correction(pulses)
	}
	debug.Verbose("Quantizer: raw=%d phase=%d", c.quantizer.RawPulses(degrees), c.quantizer.Phase())

	c.setBusy(c.quantizer.Phase())
	start := time.Now()
	err := c.seq.Drive(dir, pulses)
	m.Duration = time.Since(start)
	c.finish(m)

	if err != nil {
		debug.Error(err)
		return m, fmt.Errorf("move %s: %w", m.ID, err)
	}
	debug.Live("Move %s complete in %v", m.ID, m.Duration)
	return m, nil
}

func (c *Controller) setBusy(phase int) {
	c.statusMu.Lock()
	c.busy = true
	c.phase = phase
	c.statusMu.Unlock()
}

func (c *Controller) finish(m Move) {
	c.statusMu.Lock()
	c.busy = false
	c.last = &m
	c.statusMu.Unlock()
}

// Status returns a snapshot. It does not wait for a move in progress.
func (c *Controller) Status() Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	s := Status{
		PulsesPerRev: c.quantizer.PulsesPerRev(),
		DwellUs:      c.seq.Dwell().Microseconds(),
		CounterPhase: c.phase,
		Busy:         c.busy,
		Uptime:       time.Since(c.started),
	}
	if c.last != nil {
		last := *c.last
		s.LastMove = &last
	}
	return s
}
