// Package config holds the drive configuration consumed by the control
// pipeline and the double-buffered store used to update it between ticks.
package config

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"gofoc/foc/angle"
	"gofoc/foc/regulator"
	"gofoc/foc/svm"
	"gofoc/foc/transform"
)

var (
	ErrNegativeGain    = errors.New("negative gain")
	ErrPeriod          = errors.New("control period must be positive")
	ErrLimit           = errors.New("limit must be positive")
	ErrModulationLimit = errors.New("modulation limit must be in (0, 1]")
	ErrZeroDuty        = errors.New("zero duty must be in [0, 1]")
	ErrInductance      = errors.New("motor parameters must not be negative")
	ErrMode            = errors.New("unknown mode")
	ErrNotFinite       = errors.New("value is not finite")
)

// FaultOutput selects the duties emitted on a tick with invalid input
type FaultOutput uint8

const (
	// HoldLast repeats the last valid duty cycles.
	HoldLast FaultOutput = iota
	// SafeDefault emits the zero duty on all phases.
	SafeDefault
)

func (f FaultOutput) String() string {
	switch f {
	case HoldLast:
		return "hold"
	case SafeDefault:
		return "default"
	}
	return "unknown"
}

// Config is the complete per-tick configuration.
// It is never modified by the pipeline.
type Config struct {
	D regulator.Gains // d-axis current loop
	Q regulator.Gains // q-axis current loop

	Period          float32 // Control period in seconds, used when a tick does not supply dt
	VoltageLimit    float32 // Bound on |v_dq| in volts
	IntegralLimit   float32 // Bound on each integrator in volts
	ModulationLimit float32 // Fraction of the linear SVM range, (0, 1]

	AngleMode  angle.Mode
	Convention transform.Convention
	Sensing    transform.Sensing
	Method     svm.Method
	Decoupling regulator.Decoupling

	ZeroDuty           float32 // Duty for zero output voltage (Idle and zero vector)
	FaultOutput        FaultOutput
	FaultTolerance     uint8   // Consecutive invalid ticks tolerated before dropping to Idle
	ImbalanceTolerance float32 // |ia+ib+ic| above this sets StatusImbalance; 0 disables
}

// Default returns a conservative configuration for a small PMSM on a 24V
// bus at 20kHz
func Default() Config {
	return Config{
		D:                  regulator.Gains{Kp: 1, Ki: 100},
		Q:                  regulator.Gains{Kp: 1, Ki: 100},
		Period:             50e-6,
		VoltageLimit:       12,
		IntegralLimit:      12,
		ModulationLimit:    1,
		AngleMode:          angle.PassThrough,
		Convention:         transform.AmplitudeInvariant,
		Sensing:            transform.ThreeShunt,
		Method:             svm.SpaceVector,
		ZeroDuty:           0.5,
		FaultOutput:        HoldLast,
		FaultTolerance:     0,
		ImbalanceTolerance: 0,
	}
}

// Validate checks c for values that would make a tick misbehave
func (c *Config) Validate() error {
	for _, g := range []struct {
		name string
		v    float32
	}{
		{"d kp", c.D.Kp}, {"d ki", c.D.Ki}, {"q kp", c.Q.Kp}, {"q ki", c.Q.Ki},
		{"period", c.Period}, {"voltage limit", c.VoltageLimit},
		{"integral limit", c.IntegralLimit}, {"modulation limit", c.ModulationLimit},
		{"zero duty", c.ZeroDuty}, {"imbalance tolerance", c.ImbalanceTolerance},
		{"ld", c.Decoupling.Ld}, {"lq", c.Decoupling.Lq}, {"flux linkage", c.Decoupling.FluxLinkage},
	} {
		if math32.IsNaN(g.v) || math32.IsInf(g.v, 0) {
			return fmt.Errorf("%s: %w", g.name, ErrNotFinite)
		}
	}

	switch {
	case c.D.Kp < 0 || c.D.Ki < 0:
		return fmt.Errorf("d axis: %w", ErrNegativeGain)
	case c.Q.Kp < 0 || c.Q.Ki < 0:
		return fmt.Errorf("q axis: %w", ErrNegativeGain)
	case c.Period <= 0:
		return ErrPeriod
	case c.VoltageLimit <= 0:
		return fmt.Errorf("voltage limit %v: %w", c.VoltageLimit, ErrLimit)
	case c.IntegralLimit <= 0:
		return fmt.Errorf("integral limit %v: %w", c.IntegralLimit, ErrLimit)
	case c.ModulationLimit <= 0 || c.ModulationLimit > 1:
		return fmt.Errorf("%v: %w", c.ModulationLimit, ErrModulationLimit)
	case c.ZeroDuty < 0 || c.ZeroDuty > 1:
		return fmt.Errorf("%v: %w", c.ZeroDuty, ErrZeroDuty)
	case c.ImbalanceTolerance < 0:
		return fmt.Errorf("imbalance tolerance %v: %w", c.ImbalanceTolerance, ErrLimit)
	case c.Decoupling.Ld < 0 || c.Decoupling.Lq < 0 || c.Decoupling.FluxLinkage < 0:
		return ErrInductance
	case c.AngleMode > angle.Integrating:
		return fmt.Errorf("angle mode %d: %w", c.AngleMode, ErrMode)
	case c.Convention > transform.PowerInvariant:
		return fmt.Errorf("convention %d: %w", c.Convention, ErrMode)
	case c.Sensing > transform.TwoShunt:
		return fmt.Errorf("sensing %d: %w", c.Sensing, ErrMode)
	case c.Method > svm.Square:
		return fmt.Errorf("modulation %d: %w", c.Method, ErrMode)
	case c.FaultOutput > SafeDefault:
		return fmt.Errorf("fault output %d: %w", c.FaultOutput, ErrMode)
	}
	return nil
}

// RegulatorParams returns the regulator view of c
func (c *Config) RegulatorParams() regulator.Params {
	return regulator.Params{
		D:             c.D,
		Q:             c.Q,
		VoltageLimit:  c.VoltageLimit,
		IntegralLimit: c.IntegralLimit,
		Decoupling:    c.Decoupling,
	}
}

// ModulatorParams returns the modulator view of c
func (c *Config) ModulatorParams() svm.Params {
	return svm.Params{
		Method: c.Method,
		Limit:  c.ModulationLimit,
		Zero:   c.ZeroDuty,
	}
}
