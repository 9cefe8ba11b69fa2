// Package angle keeps the electrical angle used by the frame transforms.
//
// The angle is either supplied every tick by a position sensor
// (PassThrough) or integrated from an angular velocity estimate
// (Integrating). In both modes the stored value is always in [0, 2π).
package angle

import "github.com/chewxy/math32"

// TwoPi is one electrical revolution in radians
const TwoPi float32 = 2 * math32.Pi

// Mode selects how the tracker obtains the angle
type Mode uint8

const (
	// PassThrough takes the angle from a sensor every tick.
	PassThrough Mode = iota
	// Integrating advances the angle by omega*dt every tick.
	Integrating
)

func (m Mode) String() string {
	switch m {
	case PassThrough:
		return "passthrough"
	case Integrating:
		return "integrating"
	}
	return "unknown"
}

// State is the tracker state carried across ticks
type State struct {
	Theta float32 // Electrical angle in [0, 2π)
	Omega float32 // Last angular velocity seen, rad/s electrical
}

// Normalize folds any finite angle into [0, 2π).
// Non-finite input returns 0.
func Normalize(theta float32) float32 {
	if math32.IsNaN(theta) || math32.IsInf(theta, 0) {
		return 0
	}
	if theta >= 0 && theta < TwoPi {
		return theta
	}
	r := math32.Mod(theta, TwoPi)
	if r < 0 {
		r += TwoPi
	}
	// r+2π can round up to exactly 2π in float32
	if r >= TwoPi {
		r = 0
	}
	return r
}

// Set stores a sensor-supplied angle
func (s *State) Set(theta, omega float32) {
	s.Theta = Normalize(theta)
	s.Omega = omega
}

// Advance integrates omega over dt.
// The wrap only subtracts whole revolutions so sin/cos are continuous.
func (s *State) Advance(omega, dt float32) {
	s.Omega = omega
	theta := s.Theta + omega*dt
	if theta >= TwoPi {
		theta -= TwoPi
	} else if theta < 0 {
		theta += TwoPi
	}
	// Steps larger than one revolution per tick
	s.Theta = Normalize(theta)
}

// Reset returns the tracker to zero angle
func (s *State) Reset() {
	*s = State{}
}

// Sincos returns the sine and cosine of the tracked angle
func (s *State) Sincos() (sin, cos float32) {
	return math32.Sincos(s.Theta)
}

// Distance returns the shortest unsigned distance between two angles
func Distance(a, b float32) float32 {
	d := math32.Abs(Normalize(a) - Normalize(b))
	if d > math32.Pi {
		d = TwoPi - d
	}
	return d
}

// Delta returns the signed shortest rotation from a to b, in (-π, π]
func Delta(a, b float32) float32 {
	d := Normalize(b) - Normalize(a)
	if d > math32.Pi {
		d -= TwoPi
	} else if d <= -math32.Pi {
		d += TwoPi
	}
	return d
}

// Electrical converts a mechanical angle to an electrical angle for a
// motor with polePairs pole pairs and an electrical zero offset.
func Electrical(mechanical float32, polePairs uint8, offset float32) float32 {
	return Normalize(mechanical*float32(polePairs) - offset)
}
