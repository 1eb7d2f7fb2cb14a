package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/StepGo/internal/config"
	"github.com/cjeanneret/StepGo/internal/debug"
	"github.com/cjeanneret/StepGo/internal/hw/gpio"
	"github.com/cjeanneret/StepGo/internal/hw/stepper"
	"github.com/cjeanneret/StepGo/internal/logic/geometry"
	"github.com/cjeanneret/StepGo/internal/logic/motion"
	"github.com/cjeanneret/StepGo/internal/web"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	degrees := flag.Float64("degrees", 0, "rotation angle in degrees (one-shot mode)")
	dirToken := flag.String("dir", "", "rotation direction: cw/right or ccw/left (one-shot mode)")
	debugLevel := flag.Int("debug", -1, "override debug level 0-4 (-1 = use config)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Printf("load config failed: %v", err)
		return exitFail
	}
	if *debugLevel >= 0 {
		cfg.Defaults.DebugLevel = *debugLevel
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	// Initialize GPIO driver
	debug.Value("GPIO backend", cfg.Defaults.GPIOBackend)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.GPIOBackend)
	if err != nil {
		log.Printf("init GPIO failed: %v", err)
		return exitFail
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize stepper motor
	debug.Step(2, "Initializing stepper motor")
	ctrl, err := newController(cfg, gpioDriver)
	if err != nil {
		log.Printf("build stepper controller failed: %v", err)
		return exitFail
	}
	debug.PrintStruct("Stepper config", cfg.Stepper)
	debug.Value("Sub-step", cfg.SubStepDuration())
	if err := ctrl.Init(); err != nil {
		log.Printf("init stepper failed, motor disabled: %v", err)
		return exitFail
	}
	defer func() {
		if err := ctrl.Fini(); err != nil {
			log.Printf("stepper fini failed: %v", err)
		}
	}()

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		srv, err := web.NewServer(webAddr, broadcaster, ctrl, web.RateLimit{
			RequestsPerMin: cfg.Web.RequestsPerMin,
			Burst:          cfg.Web.Burst,
		})
		if err != nil {
			log.Printf("web server: %v", err)
			return exitFail
		}
		if err := srv.Run(ctx); err != nil {
			log.Printf("web server: %v", err)
			return exitFail
		}
		return exitOK
	}

	move, err := rotateOnce(ctrl, *dirToken, *degrees)
	switch {
	case errors.Is(err, stepper.ErrInvalidDirection), errors.Is(err, motion.ErrInvalidDegrees):
		log.Printf("rotation skipped: %v", err)
		flag.Usage()
		return exitUsage
	case err != nil:
		log.Printf("rotation failed: %v", err)
		return exitFail
	}
	debug.Summary(fmt.Sprintf("Rotated %.2f° %s (%d pulses)", move.Degrees, move.Dir, move.Pulses))
	return exitOK
}

// newController wires the sequencer and quantizer from configuration.
func newController(cfg *config.Config, g gpio.Driver) (*motion.Controller, error) {
	seq := stepper.NewSequencer(g, stepper.Config{
		Pins: stepper.Pins{
			A1: cfg.Stepper.A1Pin,
			A2: cfg.Stepper.A2Pin,
			B1: cfg.Stepper.B1Pin,
			B2: cfg.Stepper.B2Pin,
		},
		Dwell:            cfg.Dwell(),
		DeenergizeOnFini: cfg.Stepper.DeenergizeOnFini,
	})
	q, err := geometry.NewQuantizer(cfg.Stepper.PulsesPerRev, cfg.CounterStart())
	if err != nil {
		return nil, err
	}
	return motion.NewController(seq, q), nil
}

// rotateOnce parses the direction token and performs a single rotation.
// An invalid token or angle skips the rotation without touching the motor.
func rotateOnce(ctrl *motion.Controller, dirToken string, degrees float64) (motion.Move, error) {
	dir, err := stepper.ParseDirection(dirToken)
	if err != nil {
		return motion.Move{}, err
	}
	if err := validateDegrees(degrees); err != nil {
		return motion.Move{}, err
	}
	return ctrl.SetPosition(dir, degrees)
}

func validateDegrees(degrees float64) error {
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) || degrees < 0 {
		return fmt.Errorf("%w, got %g", motion.ErrInvalidDegrees, degrees)
	}
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
