// Package transform implements the Clarke and Park reference-frame
// transforms (and their inverses) used by the current loop.
//
// All functions are pure and allocation-free so they can be called from the
// control interrupt.
package transform

import "github.com/chewxy/math32"

const (
	// Sqrt3 is √3
	Sqrt3 float32 = 1.7320508075688772
	// InvSqrt3 is 1/√3, also the inscribed-circle radius of the inverter
	// voltage hexagon per volt of bus.
	InvSqrt3 float32 = 0.5773502691896258

	powerScale   float32 = 1.224744871391589  // sqrt(3/2)
	powerUnscale float32 = 0.8164965809277261 // sqrt(2/3)
)

// Convention selects the scaling of the Clarke transform
type Convention uint8

const (
	// AmplitudeInvariant keeps the alpha/beta vector length equal to the
	// phase amplitude.
	AmplitudeInvariant Convention = iota
	// PowerInvariant scales the vector by sqrt(3/2) so that power computed
	// in either frame is identical.
	PowerInvariant
)

func (c Convention) String() string {
	switch c {
	case AmplitudeInvariant:
		return "amplitude"
	case PowerInvariant:
		return "power"
	}
	return "unknown"
}

// FromAmplitude converts an amplitude-invariant magnitude into the units of
// convention c
func (c Convention) FromAmplitude(v float32) float32 {
	if c == PowerInvariant {
		return v * powerScale
	}
	return v
}

// ToAmplitude converts a stationary vector expressed in convention c into
// amplitude-invariant units
func (c Convention) ToAmplitude(s Stationary) Stationary {
	if c == PowerInvariant {
		s.Alpha *= powerUnscale
		s.Beta *= powerUnscale
	}
	return s
}

// Sensing selects how many phase currents are measured
type Sensing uint8

const (
	// ThreeShunt measures all three phases.
	ThreeShunt Sensing = iota
	// TwoShunt measures phases A and B; C is implied by the balance
	// ia+ib+ic = 0.
	TwoShunt
)

func (s Sensing) String() string {
	switch s {
	case ThreeShunt:
		return "three"
	case TwoShunt:
		return "two"
	}
	return "unknown"
}

// ThreePhase is a value in the stationary three-phase frame.
// The components do not necessarily sum to zero.
type ThreePhase struct {
	A float32
	B float32
	C float32
}

// Stationary is a value in the two-axis stationary (alpha, beta) frame.
// Alpha is aligned with phase A.
type Stationary struct {
	Alpha float32
	Beta  float32
}

// Rotating is a value in the (d, q) frame rotating with the electrical angle.
// It only has meaning together with the angle used to produce it.
type Rotating struct {
	D float32 // Direct axis, aligned with rotor flux
	Q float32 // Quadrature axis, torque producing
}

// Clarke maps three measured phases to the stationary frame.
// The zero-sequence component (a+b+c)/3 is discarded.
func Clarke(abc ThreePhase, conv Convention) Stationary {
	s := Stationary{
		Alpha: (2*abc.A - abc.B - abc.C) / 3,
		Beta:  (abc.B - abc.C) * InvSqrt3,
	}
	return scale(s, conv)
}

// ClarkeBalanced maps two measured phases to the stationary frame assuming
// the third is -(a+b).
func ClarkeBalanced(a, b float32, conv Convention) Stationary {
	s := Stationary{
		Alpha: a,
		Beta:  (a + 2*b) * InvSqrt3,
	}
	return scale(s, conv)
}

// InverseClarke maps a stationary-frame value back to three balanced phases.
func InverseClarke(s Stationary, conv Convention) ThreePhase {
	if conv == PowerInvariant {
		s.Alpha *= powerUnscale
		s.Beta *= powerUnscale
	}
	return ThreePhase{
		A: s.Alpha,
		B: (-s.Alpha + Sqrt3*s.Beta) / 2,
		C: (-s.Alpha - Sqrt3*s.Beta) / 2,
	}
}

// Park rotates a stationary-frame value into the rotating frame.
// sin and cos are those of the electrical angle.
func Park(s Stationary, sin, cos float32) Rotating {
	return Rotating{
		D: s.Alpha*cos + s.Beta*sin,
		Q: -s.Alpha*sin + s.Beta*cos,
	}
}

// InversePark rotates a rotating-frame value back into the stationary frame.
func InversePark(r Rotating, sin, cos float32) Stationary {
	return Stationary{
		Alpha: r.D*cos - r.Q*sin,
		Beta:  r.D*sin + r.Q*cos,
	}
}

// ParkAngle is Park with the sine and cosine computed from theta.
func ParkAngle(s Stationary, theta float32) Rotating {
	sin, cos := math32.Sincos(theta)
	return Park(s, sin, cos)
}

// InverseParkAngle is InversePark with the sine and cosine computed from theta.
func InverseParkAngle(r Rotating, theta float32) Stationary {
	sin, cos := math32.Sincos(theta)
	return InversePark(r, sin, cos)
}

// Imbalance returns a+b+c, which is zero for a balanced measurement
func Imbalance(abc ThreePhase) float32 {
	return abc.A + abc.B + abc.C
}

// Magnitude returns the length of the stationary vector
func (s Stationary) Magnitude() float32 {
	return math32.Sqrt(s.Alpha*s.Alpha + s.Beta*s.Beta)
}

// Magnitude returns the length of the rotating vector
func (r Rotating) Magnitude() float32 {
	return math32.Sqrt(r.D*r.D + r.Q*r.Q)
}

func scale(s Stationary, conv Convention) Stationary {
	if conv == PowerInvariant {
		s.Alpha *= powerScale
		s.Beta *= powerScale
	}
	return s
}
