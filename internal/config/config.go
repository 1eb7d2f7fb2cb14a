package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes caps the size of a config file read by Load.
const MaxConfigFileBytes = 64 << 10

// Reference wiring (BCM numbers) used when a pin is left at 0.
const (
	DefaultA1Pin = 22
	DefaultA2Pin = 27
	DefaultB1Pin = 17
	DefaultB2Pin = 4
)

// StepperConfig holds the configuration of the four-wire stepper motor.
type StepperConfig struct {
	A1Pin            int  `yaml:"a1_pin"` // BCM pin of coil terminal A1. 0 = reference wiring.
	A2Pin            int  `yaml:"a2_pin"`
	B1Pin            int  `yaml:"b1_pin"`
	B2Pin            int  `yaml:"b2_pin"`
	PulsesPerRev     int  `yaml:"pulses_per_rev"`     // full steps per revolution (200 for 1.8°)
	DwellMs          int  `yaml:"dwell_ms"`           // hold time per coil transition
	DwellUs          int  `yaml:"dwell_us"`           // finer override of dwell_ms when > 0
	CounterStart     *int `yaml:"counter_start"`      // drift counter phase before the first move (0-2)
	DeenergizeOnFini bool `yaml:"deenergize_on_fini"` // drive all coils LOW at shutdown
}

// WebConfig configures the HTTP control surface.
type WebConfig struct {
	RequestsPerMin float64 `yaml:"requests_per_min"` // sustained POST /position rate
	Burst          int     `yaml:"burst"`            // requests allowed in a burst
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel  int    `yaml:"debug_level"`  // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	GPIOBackend string `yaml:"gpio_backend"` // mock | rpio | periph
	MockGPIO    bool   `yaml:"mock_gpio"`    // deprecated: same as gpio_backend: mock
}

// Config aggregates all application configuration.
type Config struct {
	Stepper  StepperConfig  `yaml:"stepper"`
	Web      WebConfig      `yaml:"web"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files located directly in a
// configs/ directory and rejects any path containing "..".
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if elem == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration with defaults applied.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	s := &c.Stepper

	for _, p := range []struct {
		name string
		pin  *int
		def  int
	}{
		{"a1_pin", &s.A1Pin, DefaultA1Pin},
		{"a2_pin", &s.A2Pin, DefaultA2Pin},
		{"b1_pin", &s.B1Pin, DefaultB1Pin},
		{"b2_pin", &s.B2Pin, DefaultB2Pin},
	} {
		if *p.pin < 0 {
			return fmt.Errorf("stepper.%s must be >= 0, got %d", p.name, *p.pin)
		}
		if *p.pin == 0 {
			*p.pin = p.def
		}
	}
	seen := map[int]bool{}
	for _, pin := range []int{s.A1Pin, s.A2Pin, s.B1Pin, s.B2Pin} {
		if seen[pin] {
			return fmt.Errorf("stepper coil pins must be distinct, pin %d used twice", pin)
		}
		seen[pin] = true
	}

	if s.PulsesPerRev < 0 {
		return fmt.Errorf("stepper.pulses_per_rev must be > 0, got %d", s.PulsesPerRev)
	}
	if s.PulsesPerRev == 0 {
		s.PulsesPerRev = 200
	}
	if s.DwellMs < 0 || s.DwellUs < 0 {
		return fmt.Errorf("stepper dwell must be >= 0, got dwell_ms=%d dwell_us=%d", s.DwellMs, s.DwellUs)
	}
	if s.DwellMs == 0 && s.DwellUs == 0 {
		s.DwellMs = 5
	}
	if s.CounterStart == nil {
		start := 1
		s.CounterStart = &start
	}
	if *s.CounterStart < 0 || *s.CounterStart > 2 {
		return fmt.Errorf("stepper.counter_start must be between 0 and 2, got %d", *s.CounterStart)
	}

	if c.Web.RequestsPerMin < 0 || c.Web.Burst < 0 {
		return fmt.Errorf("web rate limits must be >= 0, got requests_per_min=%g burst=%d",
			c.Web.RequestsPerMin, c.Web.Burst)
	}
	if c.Web.RequestsPerMin == 0 {
		c.Web.RequestsPerMin = 30
	}
	if c.Web.Burst == 0 {
		c.Web.Burst = 3
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	switch c.Defaults.GPIOBackend {
	case "":
		if c.Defaults.MockGPIO {
			c.Defaults.GPIOBackend = "mock"
		} else {
			c.Defaults.GPIOBackend = "rpio"
		}
	case "mock", "rpio", "periph":
	default:
		return fmt.Errorf("defaults.gpio_backend must be mock, rpio or periph, got %q", c.Defaults.GPIOBackend)
	}
	return nil
}

// Dwell returns the hold time per coil transition.
func (c *Config) Dwell() time.Duration {
	if c.Stepper.DwellUs > 0 {
		return time.Duration(c.Stepper.DwellUs) * time.Microsecond
	}
	return time.Duration(c.Stepper.DwellMs) * time.Millisecond
}

// CounterStart returns the configured drift counter start phase.
func (c *Config) CounterStart() int {
	if c.Stepper.CounterStart == nil {
		return 1
	}
	return *c.Stepper.CounterStart
}

// SubStepDuration returns the blocking time of one sub-step (four transitions).
func (c *Config) SubStepDuration() time.Duration {
	return 4 * c.Dwell()
}
