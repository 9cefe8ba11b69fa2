package angle

import (
	"math"
	"testing"

	"github.com/chewxy/math32"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   float32
		want float32
	}{
		{0, 0},
		{1, 1},
		{TwoPi, 0},
		{-0.5, TwoPi - 0.5},
		{TwoPi + 0.25, 0.25},
		{-3 * TwoPi, 0},
		{float32(math.NaN()), 0},
		{float32(math.Inf(1)), 0},
	}

	for _, tt := range tests {
		got := Normalize(tt.in)
		if got < 0 || got >= TwoPi {
			t.Errorf("Normalize(%v) = %v, outside [0, 2π)", tt.in, got)
		}
		if Distance(got, tt.want) > 1e-5 {
			t.Errorf("Normalize(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	// Tiny negative values must not round up to 2π
	if got := Normalize(-1e-9); got >= TwoPi {
		t.Errorf("Normalize(-1e-9) = %v", got)
	}
}

func TestPassThrough(t *testing.T) {
	var s State
	s.Set(7, 100)
	if math32.Abs(s.Theta-(7-TwoPi)) > 1e-5 {
		t.Errorf("Theta = %v, want %v", s.Theta, 7-TwoPi)
	}
	if s.Omega != 100 {
		t.Errorf("Omega = %v", s.Omega)
	}
}

func TestIntegrationWrap(t *testing.T) {
	const (
		omega = 1000
		dt    = 1e-4
	)
	var s State
	ticks := int(math.Round(2 * math.Pi / (omega * dt)))

	unwrapped := 0.0
	for i := 0; i < ticks; i++ {
		s.Advance(omega, dt)
		unwrapped += float64(float32(omega * dt))

		if s.Theta < 0 || s.Theta >= TwoPi {
			t.Fatalf("tick %d: theta %v outside [0, 2π)", i, s.Theta)
		}
		sin, cos := s.Sincos()
		if math.Abs(float64(sin)-math.Sin(unwrapped)) > 1e-4 ||
			math.Abs(float64(cos)-math.Cos(unwrapped)) > 1e-4 {
			t.Fatalf("tick %d: sin/cos (%v, %v) disagree with unwrapped angle %v", i, sin, cos, unwrapped)
		}
	}

	// 63 steps of 0.1 rad overshoot one revolution by 6.3-2π
	want := float32(float64(ticks)*0.1 - 2*math.Pi)
	if Distance(s.Theta, want) > 1e-4 {
		t.Errorf("after %d ticks theta = %v, want %v", ticks, s.Theta, want)
	}
}

func TestIntegrationFullRevolution(t *testing.T) {
	// 250 Hz electrical at 10 kHz: exactly 40 ticks per revolution
	omega := float32(2 * math.Pi * 250)
	dt := float32(1e-4)

	s := State{Theta: 1.0}
	for i := 0; i < 40; i++ {
		s.Advance(omega, dt)
	}
	if Distance(s.Theta, 1.0) > 1e-4 {
		t.Errorf("theta after one revolution = %v, want 1.0", s.Theta)
	}
}

func TestIntegrationReverse(t *testing.T) {
	s := State{Theta: 0.05}
	s.Advance(-1000, 1e-4)
	if Distance(s.Theta, 0.05-0.1) > 1e-6 {
		t.Errorf("reverse wrap gave %v", s.Theta)
	}
	if s.Theta < 0 || s.Theta >= TwoPi {
		t.Errorf("theta %v outside range", s.Theta)
	}
}

func TestDistance(t *testing.T) {
	if d := Distance(0.1, TwoPi-0.1); math32.Abs(d-0.2) > 1e-5 {
		t.Errorf("Distance across wrap = %v, want 0.2", d)
	}
}

func TestDelta(t *testing.T) {
	tests := []struct {
		a, b, want float32
	}{
		{0.1, 0.3, 0.2},
		{0.3, 0.1, -0.2},
		{TwoPi - 0.1, 0.1, 0.2},
		{0.1, TwoPi - 0.1, -0.2},
	}
	for _, tt := range tests {
		if d := Delta(tt.a, tt.b); math32.Abs(d-tt.want) > 1e-5 {
			t.Errorf("Delta(%v, %v) = %v, want %v", tt.a, tt.b, d, tt.want)
		}
	}
}

func TestElectrical(t *testing.T) {
	// 7 pole pairs: a quarter mechanical turn is 7 quarter electrical turns
	e := Electrical(math32.Pi/2, 7, 0)
	if Distance(e, 7*math32.Pi/2) > 1e-4 {
		t.Errorf("Electrical = %v", e)
	}
}
