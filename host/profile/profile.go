// Package profile loads drive profiles: the controller configuration plus
// the host side settings (serial port, logging, telemetry, simulation).
//
// Profiles are read with viper, so YAML, JSON and TOML files all work and
// any key can be overridden from the environment with the FOC_ prefix,
// e.g. FOC_DRIVE_GAINS_Q_KP=2.
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"gofoc/foc/angle"
	"gofoc/foc/config"
	"gofoc/foc/regulator"
	"gofoc/foc/svm"
	"gofoc/foc/transform"
	"gofoc/host/link"
	"gofoc/host/logging"
	"gofoc/host/serial"
	"gofoc/host/telemetry"
	"gofoc/sim"
)

// ErrUnknownName is returned for an unrecognised mode name
var ErrUnknownName = errors.New("unknown name")

// Profile is everything the host tools need to run one drive
type Profile struct {
	Name       string                `mapstructure:"name" yaml:"name"`
	Serial     serial.Config         `mapstructure:"serial" yaml:"serial"`
	Log        logging.Config        `mapstructure:"log" yaml:"log"`
	Telemetry  telemetry.Config      `mapstructure:"telemetry" yaml:"telemetry"`
	Drive      Drive                 `mapstructure:"drive" yaml:"drive"`
	BusMonitor link.BusMonitorParams `mapstructure:"bus_monitor" yaml:"bus_monitor"`
	Motor      sim.Params            `mapstructure:"motor" yaml:"motor"`
	Scenario   sim.Scenario          `mapstructure:"scenario" yaml:"scenario"`
}

// Gains is one current loop's PI gains
type Gains struct {
	Kp float32 `mapstructure:"kp" yaml:"kp"`
	Ki float32 `mapstructure:"ki" yaml:"ki"`
}

// Decoupling holds the motor parameters for the feedforward terms
type Decoupling struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Ld          float32 `mapstructure:"ld" yaml:"ld"`
	Lq          float32 `mapstructure:"lq" yaml:"lq"`
	FluxLinkage float32 `mapstructure:"flux_linkage" yaml:"flux_linkage"`
}

// Reference is the current command applied after enabling
type Reference struct {
	D float32 `mapstructure:"d" yaml:"d"`
	Q float32 `mapstructure:"q" yaml:"q"`
}

// Drive is config.Config with modes spelled by name
type Drive struct {
	Period          float32 `mapstructure:"period" yaml:"period"`
	VoltageLimit    float32 `mapstructure:"voltage_limit" yaml:"voltage_limit"`
	IntegralLimit   float32 `mapstructure:"integral_limit" yaml:"integral_limit"`
	ModulationLimit float32 `mapstructure:"modulation_limit" yaml:"modulation_limit"`

	Gains struct {
		D Gains `mapstructure:"d" yaml:"d"`
		Q Gains `mapstructure:"q" yaml:"q"`
	} `mapstructure:"gains" yaml:"gains"`

	AngleMode   string `mapstructure:"angle_mode" yaml:"angle_mode"`
	Convention  string `mapstructure:"convention" yaml:"convention"`
	Sensing     string `mapstructure:"sensing" yaml:"sensing"`
	Method      string `mapstructure:"method" yaml:"method"`
	FaultOutput string `mapstructure:"fault_output" yaml:"fault_output"`

	Decoupling         Decoupling `mapstructure:"decoupling" yaml:"decoupling"`
	ZeroDuty           float32    `mapstructure:"zero_duty" yaml:"zero_duty"`
	FaultTolerance     uint8      `mapstructure:"fault_tolerance" yaml:"fault_tolerance"`
	ImbalanceTolerance float32    `mapstructure:"imbalance_tolerance" yaml:"imbalance_tolerance"`

	Reference Reference `mapstructure:"reference" yaml:"reference"`
}

// Default returns the profile every loaded file is layered on
func Default() *Profile {
	return &Profile{
		Name:      "default",
		Serial:    *serial.DefaultConfig("/dev/ttyACM0"),
		Log:       logging.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
		Drive:     FromConfig(config.Default()),
		BusMonitor: link.BusMonitorParams{
			SampleTicks: 1200, // 100us at 12MHz
			SampleCount: 8,
			RestTicks:   1200000,
			Min:         10,
			Max:         30,
			RangeCheck:  4,
		},
		Motor: sim.DefaultParams(),
		Scenario: sim.Scenario{
			Duration:   0.05,
			BusVoltage: 24,
			StepAt:     0.005,
		},
	}
}

// Load reads path over the defaults and applies FOC_ environment
// overrides. An empty path loads the defaults and the environment only.
func Load(path string) (*Profile, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	var defaults bytes.Buffer
	if err := Write(&defaults, Default()); err != nil {
		return nil, err
	}
	if err := v.ReadConfig(&defaults); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		// A separate reader so the file format follows its extension
		f := viper.New()
		f.SetConfigFile(path)
		if err := f.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read profile %s: %w", path, err)
		}
		if err := v.MergeConfigMap(f.AllSettings()); err != nil {
			return nil, fmt.Errorf("merge profile %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("FOC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var p Profile
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if _, err := p.Drive.Config(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	return &p, nil
}

// Write encodes p as YAML
func Write(w io.Writer, p *Profile) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return err
	}
	return enc.Close()
}

// FromConfig spells c the way profiles do
func FromConfig(c config.Config) Drive {
	d := Drive{
		Period:             c.Period,
		VoltageLimit:       c.VoltageLimit,
		IntegralLimit:      c.IntegralLimit,
		ModulationLimit:    c.ModulationLimit,
		AngleMode:          c.AngleMode.String(),
		Convention:         c.Convention.String(),
		Sensing:            c.Sensing.String(),
		Method:             c.Method.String(),
		FaultOutput:        c.FaultOutput.String(),
		ZeroDuty:           c.ZeroDuty,
		FaultTolerance:     c.FaultTolerance,
		ImbalanceTolerance: c.ImbalanceTolerance,
		Decoupling: Decoupling{
			Enabled:     c.Decoupling.Enabled,
			Ld:          c.Decoupling.Ld,
			Lq:          c.Decoupling.Lq,
			FluxLinkage: c.Decoupling.FluxLinkage,
		},
	}
	d.Gains.D = Gains{Kp: c.D.Kp, Ki: c.D.Ki}
	d.Gains.Q = Gains{Kp: c.Q.Kp, Ki: c.Q.Ki}
	return d
}

// Config converts d to a validated controller configuration
func (d *Drive) Config() (config.Config, error) {
	c := config.Config{
		D:                  regulator.Gains{Kp: d.Gains.D.Kp, Ki: d.Gains.D.Ki},
		Q:                  regulator.Gains{Kp: d.Gains.Q.Kp, Ki: d.Gains.Q.Ki},
		Period:             d.Period,
		VoltageLimit:       d.VoltageLimit,
		IntegralLimit:      d.IntegralLimit,
		ModulationLimit:    d.ModulationLimit,
		ZeroDuty:           d.ZeroDuty,
		FaultTolerance:     d.FaultTolerance,
		ImbalanceTolerance: d.ImbalanceTolerance,
		Decoupling: regulator.Decoupling{
			Enabled:     d.Decoupling.Enabled,
			Ld:          d.Decoupling.Ld,
			Lq:          d.Decoupling.Lq,
			FluxLinkage: d.Decoupling.FluxLinkage,
		},
	}

	var err error
	if c.AngleMode, err = lookup("angle_mode", d.AngleMode, angle.PassThrough, angle.Integrating); err != nil {
		return c, err
	}
	if c.Convention, err = lookup("convention", d.Convention, transform.AmplitudeInvariant, transform.PowerInvariant); err != nil {
		return c, err
	}
	if c.Sensing, err = lookup("sensing", d.Sensing, transform.ThreeShunt, transform.TwoShunt); err != nil {
		return c, err
	}
	if c.Method, err = lookup("method", d.Method, svm.SpaceVector, svm.Sinusoidal, svm.Trapezoidal, svm.Square); err != nil {
		return c, err
	}
	if c.FaultOutput, err = lookup("fault_output", d.FaultOutput, config.HoldLast, config.SafeDefault); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func lookup[T fmt.Stringer](key, name string, values ...T) (T, error) {
	for _, v := range values {
		if v.String() == name {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%s %q: %w", key, name, ErrUnknownName)
}
