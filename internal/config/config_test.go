package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	if err := ValidateConfigPath(long); err != nil {
		t.Errorf("long but well-formed path should be valid, got: %v", err)
	}
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		wantErr bool
	}{
		{"con fig.yaml", false},
		{"café.yaml", false},
	}
	for _, tc := range cases {
		path := filepath.Join(cfgDir, tc.name)
		err := ValidateConfigPath(path)
		if tc.wantErr && err == nil {
			t.Errorf("expected error for %q, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unexpected error for %q: %v", tc.name, err)
		}
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
stepper:
  a1_pin: 5
  a2_pin: 6
  b1_pin: 13
  b2_pin: 19
  pulses_per_rev: 400
  dwell_ms: 3
  counter_start: 0
  deenergize_on_fini: true
web:
  requests_per_min: 120
  burst: 5
defaults:
  debug_level: 2
  gpio_backend: periph
`

func TestLoad_ValidFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := cfg.Stepper
	if s.A1Pin != 5 || s.A2Pin != 6 || s.B1Pin != 13 || s.B2Pin != 19 {
		t.Errorf("pins = %d/%d/%d/%d, want 5/6/13/19", s.A1Pin, s.A2Pin, s.B1Pin, s.B2Pin)
	}
	if s.PulsesPerRev != 400 {
		t.Errorf("pulses_per_rev = %d, want 400", s.PulsesPerRev)
	}
	if cfg.Dwell() != 3*time.Millisecond {
		t.Errorf("Dwell() = %v, want 3ms", cfg.Dwell())
	}
	if cfg.CounterStart() != 0 {
		t.Errorf("counter_start = %d, want 0 (explicit zero must survive defaults)", cfg.CounterStart())
	}
	if !s.DeenergizeOnFini {
		t.Error("deenergize_on_fini = false, want true")
	}
	if cfg.Web.RequestsPerMin != 120 || cfg.Web.Burst != 5 {
		t.Errorf("web = %+v, want 120/5", cfg.Web)
	}
	if cfg.Defaults.DebugLevel != 2 {
		t.Errorf("debug_level = %d, want 2", cfg.Defaults.DebugLevel)
	}
	if cfg.Defaults.GPIOBackend != "periph" {
		t.Errorf("gpio_backend = %q, want periph", cfg.Defaults.GPIOBackend)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, "defaults:\n  mock_gpio: true\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := cfg.Stepper
	if s.A1Pin != DefaultA1Pin || s.A2Pin != DefaultA2Pin || s.B1Pin != DefaultB1Pin || s.B2Pin != DefaultB2Pin {
		t.Errorf("default pins = %d/%d/%d/%d", s.A1Pin, s.A2Pin, s.B1Pin, s.B2Pin)
	}
	if s.PulsesPerRev != 200 {
		t.Errorf("pulses_per_rev default = %d, want 200", s.PulsesPerRev)
	}
	if cfg.Dwell() != 5*time.Millisecond {
		t.Errorf("dwell default = %v, want 5ms", cfg.Dwell())
	}
	if cfg.SubStepDuration() != 20*time.Millisecond {
		t.Errorf("sub-step duration = %v, want 20ms", cfg.SubStepDuration())
	}
	if cfg.CounterStart() != 1 {
		t.Errorf("counter_start default = %d, want 1", cfg.CounterStart())
	}
	if s.DeenergizeOnFini {
		t.Error("deenergize_on_fini default should be false")
	}
	if cfg.Web.RequestsPerMin != 30 || cfg.Web.Burst != 3 {
		t.Errorf("web defaults = %+v, want 30/3", cfg.Web)
	}
	if cfg.Defaults.GPIOBackend != "mock" {
		t.Errorf("mock_gpio: true should select the mock backend, got %q", cfg.Defaults.GPIOBackend)
	}
}

func TestLoad_EmptyFileSelectsRealGPIO(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("empty config should load with defaults, got: %v", err)
	}
	if cfg.Defaults.GPIOBackend != "rpio" {
		t.Errorf("gpio_backend = %q, want rpio", cfg.Defaults.GPIOBackend)
	}
}

func TestLoad_DwellMicroseconds(t *testing.T) {
	cfg, err := Load(writeConfig(t, "stepper:\n  dwell_ms: 5\n  dwell_us: 750\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Dwell() != 750*time.Microsecond {
		t.Errorf("Dwell() = %v, want 750µs", cfg.Dwell())
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"negative_pin", "stepper:\n  a1_pin: -1\n"},
		{"duplicate_pins", "stepper:\n  a1_pin: 4\n"},
		{"negative_pulses", "stepper:\n  pulses_per_rev: -200\n"},
		{"negative_dwell", "stepper:\n  dwell_ms: -5\n"},
		{"counter_start_3", "stepper:\n  counter_start: 3\n"},
		{"counter_start_negative", "stepper:\n  counter_start: -1\n"},
		{"negative_rate", "web:\n  requests_per_min: -1\n"},
		{"debug_level_5", "defaults:\n  debug_level: 5\n"},
		{"unknown_backend", "defaults:\n  gpio_backend: wiringpi\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if _, err := Load(writeConfig(t, string(data))); err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "{{{{invalid yaml!!!!")); err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
stepper:
  a1_pin: 22
unknown_section:
  foo: bar
`
	if _, err := Load(writeConfig(t, yaml)); err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(filepath.Join(cfgDir, "nonexistent.yaml")); err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestLoad_RejectsPathOutsideConfigs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stepgo.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for config outside configs/, got nil")
	}
}
