package profile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gofoc/foc/angle"
	"gofoc/foc/config"
	"gofoc/foc/svm"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, err := p.Drive.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg != config.Default() {
		t.Errorf("default drive %+v\nwant %+v", cfg, config.Default())
	}
	if p.Telemetry.Timeout != 2*time.Second {
		t.Errorf("telemetry timeout %v", p.Telemetry.Timeout)
	}
	if p.Serial.Baud != 250000 {
		t.Errorf("baud %d", p.Serial.Baud)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeFile(t, "bench.yaml", `
name: bench
serial:
  device: /dev/ttyUSB1
drive:
  method: sinusoidal
  angle_mode: integrating
  fault_tolerance: 2
  gains:
    q:
      kp: 0.8
  reference:
    q: 1.5
motor:
  pole_pairs: 11
`)
	t.Setenv("FOC_DRIVE_GAINS_D_KI", "250")

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg, err := p.Drive.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}

	if p.Name != "bench" || p.Serial.Device != "/dev/ttyUSB1" {
		t.Errorf("name %q device %q", p.Name, p.Serial.Device)
	}
	if cfg.Method != svm.Sinusoidal || cfg.AngleMode != angle.Integrating || cfg.FaultTolerance != 2 {
		t.Errorf("modes %v %v %d", cfg.Method, cfg.AngleMode, cfg.FaultTolerance)
	}
	if cfg.Q.Kp != 0.8 {
		t.Errorf("q kp %v", cfg.Q.Kp)
	}
	// Untouched keys keep their defaults
	if cfg.Q.Ki != config.Default().Q.Ki || p.Serial.Baud != 250000 {
		t.Errorf("q ki %v baud %d", cfg.Q.Ki, p.Serial.Baud)
	}
	if cfg.D.Ki != 250 {
		t.Errorf("environment override: d ki %v", cfg.D.Ki)
	}
	if p.Drive.Reference.Q != 1.5 || p.Motor.PolePairs != 11 {
		t.Errorf("reference %+v pole pairs %d", p.Drive.Reference, p.Motor.PolePairs)
	}
}

func TestLoadRejectsBadDrive(t *testing.T) {
	for _, tc := range []struct {
		name string
		body string
		want error
	}{
		{"unknown method", "drive:\n  method: sixstep\n", ErrUnknownName},
		{"negative gain", "drive:\n  gains:\n    d:\n      kp: -1\n", config.ErrNegativeGain},
		{"modulation", "drive:\n  modulation_limit: 1.5\n", config.ErrModulationLimit},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "p.yaml", tc.body))
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing profile loaded")
	}
}

func TestWriteLoad(t *testing.T) {
	p := Default()
	p.Name = "written"
	p.Drive.Method = svm.Sinusoidal.String()
	p.Drive.Decoupling.Enabled = true
	p.Drive.Decoupling.Lq = 1.2e-3
	p.Drive.Period = 62.5e-6

	var buf bytes.Buffer
	if err := Write(&buf, p); err != nil {
		t.Fatalf("Write: %v", err)
	}
	t.Logf("profile:\n%s", buf.String())

	got, err := Load(writeFile(t, "written.yaml", buf.String()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Name != "written" || got.Drive != p.Drive {
		t.Errorf("drive %+v\nwant %+v", got.Drive, p.Drive)
	}
}
