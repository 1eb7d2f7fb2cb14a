package debug

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

// capture redirects output to a buffer at the given level and restores
// the previous state when the test ends.
func capture(t *testing.T, lvl int) *bytes.Buffer {
	t.Helper()
	prev := Level()
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(lvl)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		Init(prev)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelLive)

	Info("init %d", 1)
	Move(90, 12, "cw")
	Verbose("hidden")
	Coil("A1", 22, true)

	out := buf.String()
	if !strings.Contains(out, "[StepGo] ") {
		t.Errorf("missing prefix in %q", out)
	}
	if !strings.Contains(out, "[INFO] init 1") {
		t.Errorf("info line missing: %q", out)
	}
	if !strings.Contains(out, "90.00° -> 12 pulses (cw)") {
		t.Errorf("move line missing: %q", out)
	}
	if strings.Contains(out, "hidden") || strings.Contains(out, "[COIL]") {
		t.Errorf("levels above %d leaked: %q", LevelLive, out)
	}
}

func TestLevelOff(t *testing.T) {
	buf := capture(t, LevelOff)

	Info("nothing")
	Error(errors.New("boom"))

	if buf.Len() != 0 {
		t.Errorf("level 0 must be silent, got %q", buf.String())
	}
	if IsEnabled(LevelInfo) {
		t.Error("IsEnabled(LevelInfo) = true at level 0")
	}
}

func TestTraceIncludesCoilTransitions(t *testing.T) {
	buf := capture(t, LevelTrace)

	Coil("B2", 4, false)
	GPIO("WritePin", 4, "LOW")

	out := buf.String()
	if !strings.Contains(out, "[COIL] B2 pin=4 energized=false") {
		t.Errorf("coil line missing: %q", out)
	}
	if !strings.Contains(out, "[GPIO] WritePin pin=4 value=LOW") {
		t.Errorf("gpio line missing: %q", out)
	}
}

func TestSetOutputAfterInit(t *testing.T) {
	capture(t, LevelInfo)
	var second bytes.Buffer
	SetOutput(&second)

	Info("redirected")

	if !strings.Contains(second.String(), "redirected") {
		t.Errorf("SetOutput after Init was ignored: %q", second.String())
	}
}
