package stepper

import (
	"errors"
	"fmt"
	"strings"
)

// Terminal identifies one of the four coil terminals of a two-phase motor.
type Terminal int

const (
	A1 Terminal = iota
	A2
	B1
	B2
)

var terminalNames = [...]string{"A1", "A2", "B1", "B2"}

func (t Terminal) String() string {
	if t < A1 || t > B2 {
		return fmt.Sprintf("Terminal(%d)", int(t))
	}
	return terminalNames[t]
}

// Direction is the rotation sense of a move.
type Direction int

const (
	Clockwise Direction = iota
	CounterClockwise
)

func (d Direction) String() string {
	switch d {
	case Clockwise:
		return "cw"
	case CounterClockwise:
		return "ccw"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ErrInvalidDirection is returned for an unrecognized direction token.
var ErrInvalidDirection = errors.New("invalid direction")

// ParseDirection accepts cw/right/clockwise and
// ccw/left/counterclockwise/counter-clockwise, case-insensitively.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cw", "right", "clockwise":
		return Clockwise, nil
	case "ccw", "left", "counterclockwise", "counter-clockwise":
		return CounterClockwise, nil
	default:
		return 0, fmt.Errorf("%w: %q (want cw/right or ccw/left)", ErrInvalidDirection, s)
	}
}

// clockwiseOrder is the energization order of one clockwise sub-step.
// The counter-clockwise order is its exact reverse.
var clockwiseOrder = [4]Terminal{A1, B1, A2, B2}

// PhaseOrder returns the terminal visiting order of one sub-step in dir.
func PhaseOrder(dir Direction) [4]Terminal {
	if dir == CounterClockwise {
		var rev [4]Terminal
		for i, t := range clockwiseOrder {
			rev[len(clockwiseOrder)-1-i] = t
		}
		return rev
	}
	return clockwiseOrder
}
