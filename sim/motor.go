// Package sim provides a permanent-magnet synchronous motor model for
// exercising the control pipeline off-target.
//
// The model is the standard d-q equivalent circuit with a rigid rotor and
// viscous friction, integrated with forward Euler sub-steps. The inverter is
// ideal: the applied voltage is the switching-period average of the duties.
package sim

import (
	"math"

	"gofoc/foc/svm"
	"gofoc/foc/transform"
)

// Params describes the simulated motor
type Params struct {
	Rs          float64 `yaml:"rs" mapstructure:"rs"`                     // Phase resistance, ohm
	Ld          float64 `yaml:"ld" mapstructure:"ld"`                     // d-axis inductance, H
	Lq          float64 `yaml:"lq" mapstructure:"lq"`                     // q-axis inductance, H
	FluxLinkage float64 `yaml:"flux_linkage" mapstructure:"flux_linkage"` // Magnet flux linkage, Wb
	PolePairs   int     `yaml:"pole_pairs" mapstructure:"pole_pairs"`
	Inertia     float64 `yaml:"inertia" mapstructure:"inertia"`   // kg·m²
	Friction    float64 `yaml:"friction" mapstructure:"friction"` // N·m·s/rad
	Load        float64 `yaml:"load" mapstructure:"load"`         // Constant load torque, N·m
	Locked      bool    `yaml:"locked" mapstructure:"locked"`     // Hold the rotor still
	Substeps    int     `yaml:"substeps" mapstructure:"substeps"` // Euler steps per control tick
}

// DefaultParams returns a small 7 pole-pair gimbal-class motor
func DefaultParams() Params {
	return Params{
		Rs:          0.5,
		Ld:          1e-3,
		Lq:          1e-3,
		FluxLinkage: 0.01,
		PolePairs:   7,
		Inertia:     1e-5,
		Friction:    2e-3,
		Substeps:    10,
	}
}

// Motor is the simulated machine state
type Motor struct {
	Params

	Id     float64 // d-axis current, A
	Iq     float64 // q-axis current, A
	OmegaM float64 // Mechanical speed, rad/s
	ThetaM float64 // Mechanical angle, rad (unwrapped)
}

// NewMotor returns a motor at rest
func NewMotor(p Params) *Motor {
	if p.Substeps <= 0 {
		p.Substeps = 1
	}
	if p.PolePairs <= 0 {
		p.PolePairs = 1
	}
	return &Motor{Params: p}
}

// ElectricalAngle returns the electrical angle in [0, 2π)
func (m *Motor) ElectricalAngle() float32 {
	theta := math.Mod(m.ThetaM*float64(m.PolePairs), 2*math.Pi)
	if theta < 0 {
		theta += 2 * math.Pi
	}
	return float32(theta)
}

// ElectricalSpeed returns the electrical angular velocity in rad/s
func (m *Motor) ElectricalSpeed() float32 {
	return float32(m.OmegaM * float64(m.PolePairs))
}

// Torque returns the electromagnetic torque in N·m
func (m *Motor) Torque() float64 {
	return 1.5 * float64(m.PolePairs) * (m.FluxLinkage*m.Iq + (m.Ld-m.Lq)*m.Id*m.Iq)
}

// Currents returns the phase currents seen by the current sensors
func (m *Motor) Currents() transform.ThreePhase {
	sin, cos := math.Sincos(float64(m.ElectricalAngle()))
	alpha := m.Id*cos - m.Iq*sin
	beta := m.Id*sin + m.Iq*cos
	return transform.InverseClarke(transform.Stationary{
		Alpha: float32(alpha),
		Beta:  float32(beta),
	}, transform.AmplitudeInvariant)
}

// Step advances the model by dt seconds with the inverter driven by d
func (m *Motor) Step(d svm.Duty, vbus float32, dt float64) {
	v := svm.Average(d, vbus)
	h := dt / float64(m.Substeps)

	for i := 0; i < m.Substeps; i++ {
		thetaE := m.ThetaM * float64(m.PolePairs)
		omegaE := m.OmegaM * float64(m.PolePairs)
		sin, cos := math.Sincos(thetaE)

		vd := float64(v.Alpha)*cos + float64(v.Beta)*sin
		vq := -float64(v.Alpha)*sin + float64(v.Beta)*cos

		did := (vd - m.Rs*m.Id + omegaE*m.Lq*m.Iq) / m.Ld
		diq := (vq - m.Rs*m.Iq - omegaE*m.Ld*m.Id - omegaE*m.FluxLinkage) / m.Lq
		m.Id += did * h
		m.Iq += diq * h

		if m.Locked {
			m.OmegaM = 0
			continue
		}
		accel := (m.Torque() - m.Friction*m.OmegaM - m.Load) / m.Inertia
		m.OmegaM += accel * h
		m.ThetaM += m.OmegaM * h
	}
}
