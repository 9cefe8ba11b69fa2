package sim

import (
	"math"

	"gofoc/foc"
	"gofoc/foc/angle"
	"gofoc/foc/config"
	"gofoc/foc/regulator"
	"gofoc/foc/transform"
)

// Scenario is a closed-loop run of the pipeline against a Motor
type Scenario struct {
	Duration   float64            `yaml:"duration" mapstructure:"duration"` // seconds
	BusVoltage float32            `yaml:"bus_voltage" mapstructure:"bus_voltage"`
	Reference  transform.Rotating `yaml:"-" mapstructure:"-"`
	StepAt     float64            `yaml:"step_at" mapstructure:"step_at"` // time the reference is applied
	Speed      SpeedLoop          `yaml:"speed" mapstructure:"speed"`
}

// SpeedLoop closes an outer speed loop that sets the q current reference.
// The d reference still comes from the scenario.
type SpeedLoop struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Target     float32 `yaml:"target" mapstructure:"target"` // mechanical rad/s
	Kp         float32 `yaml:"kp" mapstructure:"kp"`         // A per rad/s
	Ki         float32 `yaml:"ki" mapstructure:"ki"`
	Kd         float32 `yaml:"kd" mapstructure:"kd"`
	MaxCurrent float32 `yaml:"max_current" mapstructure:"max_current"` // bound on |i_q*|
}

func (s SpeedLoop) controller() *regulator.PID {
	return &regulator.PID{
		PI: regulator.PI{
			Gains:         regulator.Gains{Kp: s.Kp, Ki: s.Ki},
			Limit:         s.MaxCurrent,
			IntegralLimit: s.MaxCurrent,
		},
		Kd: s.Kd,
	}
}

// Sample is one recorded control tick
type Sample struct {
	Time   float64
	Id     float64
	Iq     float64
	Speed  float64 // mechanical rad/s
	Duty   [3]float32
	Status foc.Status
}

// Summary describes the q-axis step response of a run
type Summary struct {
	Ticks        int     `yaml:"ticks"`
	FinalId      float64 `yaml:"final_id"`
	FinalIq      float64 `yaml:"final_iq"`
	FinalSpeed   float64 `yaml:"final_speed_rad_s"`
	RiseTime     float64 `yaml:"rise_time_s"` // 10% to 90% of the q reference
	Overshoot    float64 `yaml:"overshoot_pct"`
	SaturatedPct float64 `yaml:"saturated_pct"`
	Faults       int     `yaml:"faults"`
}

// Run drives p with configuration from store against m for sc.Duration.
// record, when non-nil, receives every tick.
func Run(p *foc.Pipeline, store *config.Store, m *Motor, sc Scenario, record func(Sample)) Summary {
	cfg := store.Current()
	dt := float64(cfg.Period)
	ticks := int(math.Round(sc.Duration / dt))

	var (
		sum      Summary
		t10, t90 = -1.0, -1.0
		peak     float64
		sat      int
	)
	ref := float64(sc.Reference.Q)
	var speed *regulator.PID
	if sc.Speed.Enabled {
		speed = sc.Speed.controller()
		ref = 0
	}

	p.Enable()
	for i := 0; i < ticks; i++ {
		cfg = store.Current()
		now := float64(i) * dt

		in := foc.Input{
			Currents:   m.Currents(),
			BusVoltage: sc.BusVoltage,
			Omega:      m.ElectricalSpeed(),
		}
		if cfg.AngleMode == angle.PassThrough {
			in.Angle = m.ElectricalAngle()
		}
		if now >= sc.StepAt {
			in.Reference = sc.Reference
			if speed != nil {
				in.Reference.Q = speed.Step(sc.Speed.Target, float32(m.OmegaM), float32(dt))
			}
		}

		out := p.Tick(cfg, &in)
		m.Step(out.Duty, sc.BusVoltage, dt)

		if out.Status&(foc.StatusRegulatorSaturated|foc.StatusModulatorSaturated) != 0 {
			sat++
		}
		if out.Status.Has(foc.StatusInvalidInput) {
			sum.Faults++
		}
		if now >= sc.StepAt && ref != 0 {
			frac := m.Iq / ref
			if t10 < 0 && frac >= 0.1 {
				t10 = now
			}
			if t90 < 0 && frac >= 0.9 {
				t90 = now
			}
			if frac > peak {
				peak = frac
			}
		}
		if record != nil {
			record(Sample{
				Time:   now,
				Id:     m.Id,
				Iq:     m.Iq,
				Speed:  m.OmegaM,
				Duty:   [3]float32{out.Duty.A, out.Duty.B, out.Duty.C},
				Status: out.Status,
			})
		}
	}

	sum.Ticks = ticks
	sum.FinalId = m.Id
	sum.FinalIq = m.Iq
	sum.FinalSpeed = m.OmegaM
	if t10 >= 0 && t90 >= 0 {
		sum.RiseTime = t90 - t10
	}
	if peak > 1 {
		sum.Overshoot = (peak - 1) * 100
	}
	if ticks > 0 {
		sum.SaturatedPct = 100 * float64(sat) / float64(ticks)
	}
	return sum
}
