// Package svm converts a stationary-frame voltage command into three PWM
// duty cycles.
//
// Space-vector modulation places the vector between the two adjacent active
// inverter states of its 60° sector and centres the null time, which gives
// the full inscribed-circle range Vbus/√3 in the linear region.
package svm

import (
	"github.com/chewxy/math32"

	"gofoc/foc/transform"
)

// Method selects the modulation scheme
type Method uint8

const (
	// SpaceVector is symmetric space-vector PWM.
	SpaceVector Method = iota
	// Sinusoidal drives each phase directly from the inverse Clarke
	// transform; linear range is only Vbus/2.
	Sinusoidal
	// Trapezoidal is 120° block commutation: each phase is high, low or
	// held at the zero duty. The output amplitude does not follow |v|.
	Trapezoidal
	// Square is 180° six-step: each phase follows the sign of its inverse
	// Clarke voltage. The output amplitude does not follow |v|.
	Square
)

func (m Method) String() string {
	switch m {
	case SpaceVector:
		return "svpwm"
	case Sinusoidal:
		return "sinusoidal"
	case Trapezoidal:
		return "trapezoidal"
	case Square:
		return "square"
	}
	return "unknown"
}

// Duty holds the high-side on fraction of each phase, in [0, 1]
type Duty struct {
	A float32
	B float32
	C float32
}

// Uniform returns a duty triple with every phase at d
func Uniform(d float32) Duty {
	return Duty{A: d, B: d, C: d}
}

// Compare scales the duties to timer compare values in [0, top]
func (d Duty) Compare(top uint32) (a, b, c uint32) {
	return compare(d.A, top), compare(d.B, top), compare(d.C, top)
}

func compare(d float32, top uint32) uint32 {
	v := d * float32(top)
	if v <= 0 {
		return 0
	}
	if v >= float32(top) {
		return top
	}
	return uint32(v + 0.5)
}

// Sector is the 60° sector of the voltage vector; 0 means the zero vector
type Sector uint8

// Result is the outcome of one modulation step
type Result struct {
	Duty      Duty
	Sector    Sector
	Saturated bool // magnitude was clamped to the linear limit
	Invalid   bool // bus voltage or vector was unusable; Duty is the zero duty
}

// Params configures the modulator
type Params struct {
	Method Method
	Limit  float32 // modulation index limit in (0, 1]; 1 is the inscribed circle
	Zero   float32 // duty applied to all phases for a zero vector
}

// MaxVoltage is the largest vector magnitude the modulator produces linearly.
// The block methods have a fixed output, the amplitude of its fundamental.
func (p *Params) MaxVoltage(vbus float32) float32 {
	switch p.Method {
	case Sinusoidal:
		return p.Limit * vbus / 2
	case Trapezoidal:
		return vbus * transform.Sqrt3 / math32.Pi
	case Square:
		return vbus * 2 / math32.Pi
	}
	return p.Limit * vbus * transform.InvSqrt3
}

// Modulate computes the duties for v at bus voltage vbus
func Modulate(p *Params, v transform.Stationary, vbus float32) Result {
	if !(vbus > 0) || math32.IsInf(vbus, 0) ||
		math32.IsNaN(v.Alpha) || math32.IsNaN(v.Beta) ||
		math32.IsInf(v.Alpha, 0) || math32.IsInf(v.Beta, 0) {
		return Result{Duty: Uniform(p.Zero), Invalid: true}
	}

	var res Result
	mag := v.Magnitude()
	if mag == 0 {
		res.Duty = Uniform(p.Zero)
		return res
	}

	if vmax := p.MaxVoltage(vbus); mag > vmax {
		k := vmax / mag
		v.Alpha *= k
		v.Beta *= k
		res.Saturated = true
	}

	switch p.Method {
	case Sinusoidal:
		res.Duty, res.Sector = sinusoidal(v, vbus, p.Zero)
	case Trapezoidal:
		res.Duty, res.Sector = block(v, p.Zero, v.Magnitude()/2)
	case Square:
		res.Duty, res.Sector = block(v, p.Zero, 0)
	default:
		res.Duty, res.Sector = spaceVector(v, vbus, p.Zero)
	}
	return res
}
