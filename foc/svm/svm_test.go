package svm

import (
	"math"
	"testing"

	"github.com/chewxy/math32"

	"gofoc/foc/transform"
)

var defaultParams = Params{Method: SpaceVector, Limit: 1, Zero: 0.5}

func inUnit(d Duty) bool {
	for _, v := range []float32{d.A, d.B, d.C} {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

func TestModulateAlphaAxis(t *testing.T) {
	res := Modulate(&defaultParams, transform.Stationary{Alpha: 1}, 24)

	if res.Sector != 1 {
		t.Errorf("sector %d, want 1", res.Sector)
	}
	if !inUnit(res.Duty) {
		t.Fatalf("duty out of range: %+v", res.Duty)
	}
	// Only V1 (100) is active: phase A leads, B and C equal
	if res.Duty.B != res.Duty.C || res.Duty.A <= res.Duty.B {
		t.Errorf("unexpected switching pattern %+v", res.Duty)
	}

	avg := Average(res.Duty, 24)
	if math32.Abs(avg.Alpha-1) > 1e-4 || math32.Abs(avg.Beta) > 1e-4 {
		t.Errorf("average %+v, want (1, 0)", avg)
	}
	t.Logf("duty for (1,0) at 24V: %+v", res.Duty)
}

func TestSectorClassification(t *testing.T) {
	for k := 1; k <= 6; k++ {
		// Middle of each sector
		theta := float64(k-1)*math.Pi/3 + math.Pi/6
		v := transform.Stationary{Alpha: float32(math.Cos(theta)), Beta: float32(math.Sin(theta))}
		if got := Classify(v); got != Sector(k) {
			t.Errorf("theta=%.3f: sector %d, want %d", theta, got, k)
		}
	}
	if Classify(transform.Stationary{}) != 0 {
		t.Error("origin must be sector 0")
	}
}

func TestSectorBoundariesHaveNoGaps(t *testing.T) {
	for deg := 0; deg < 360; deg++ {
		theta := float64(deg) * math.Pi / 180
		v := transform.Stationary{Alpha: float32(math.Cos(theta)), Beta: float32(math.Sin(theta))}
		k := Classify(v)
		if k < 1 || k > 6 {
			t.Fatalf("%d°: sector %d", deg, k)
		}
		t1, t2, t0 := OnTimes(v, k, 2)
		if t1 < 0 || t2 < 0 || t0 < -1e-6 {
			t.Errorf("%d°: sector %d on-times %v %v %v", deg, k, t1, t2, t0)
		}
	}
}

func TestModulateReconstructsLinearRange(t *testing.T) {
	const vbus = 24
	maxV := float64(vbus) / math.Sqrt(3)

	for deg := 0; deg < 360; deg += 7 {
		for _, frac := range []float64{0.05, 0.5, 0.99} {
			theta := float64(deg) * math.Pi / 180
			v := transform.Stationary{
				Alpha: float32(frac * maxV * math.Cos(theta)),
				Beta:  float32(frac * maxV * math.Sin(theta)),
			}
			res := Modulate(&defaultParams, v, vbus)
			if res.Saturated {
				t.Errorf("%d° %.2f: unexpected saturation", deg, frac)
			}
			if !inUnit(res.Duty) {
				t.Errorf("%d° %.2f: duty out of range %+v", deg, frac, res.Duty)
			}
			avg := Average(res.Duty, vbus)
			if math32.Abs(avg.Alpha-v.Alpha) > 1e-3 || math32.Abs(avg.Beta-v.Beta) > 1e-3 {
				t.Errorf("%d° %.2f: average %+v, want %+v", deg, frac, avg, v)
			}

			// Symmetric SVPWM equals sinusoidal plus min/max zero-sequence
			p := transform.InverseClarke(v, transform.AmplitudeInvariant)
			hi := math32.Max(p.A, math32.Max(p.B, p.C))
			lo := math32.Min(p.A, math32.Min(p.B, p.C))
			mid := (hi + lo) / 2
			want := Duty{A: 0.5 + (p.A-mid)/vbus, B: 0.5 + (p.B-mid)/vbus, C: 0.5 + (p.C-mid)/vbus}
			if math32.Abs(res.Duty.A-want.A) > 1e-4 || math32.Abs(res.Duty.B-want.B) > 1e-4 || math32.Abs(res.Duty.C-want.C) > 1e-4 {
				t.Errorf("%d° %.2f: duty %+v, min/max reference %+v", deg, frac, res.Duty, want)
			}
		}
	}
}

func TestOvermodulationClampsMagnitude(t *testing.T) {
	const vbus = 24
	theta := float32(1.1)
	v := transform.Stationary{Alpha: 100 * math32.Cos(theta), Beta: 100 * math32.Sin(theta)}

	res := Modulate(&defaultParams, v, vbus)
	if !res.Saturated {
		t.Fatal("expected saturation")
	}
	if !inUnit(res.Duty) {
		t.Fatalf("duty out of range %+v", res.Duty)
	}
	avg := Average(res.Duty, vbus)
	if math32.Abs(avg.Magnitude()-vbus*transform.InvSqrt3) > 1e-3 {
		t.Errorf("|v| = %v, want %v", avg.Magnitude(), vbus*transform.InvSqrt3)
	}
	if math32.Abs(math32.Atan2(avg.Beta, avg.Alpha)-theta) > 1e-4 {
		t.Errorf("angle %v, want %v", math32.Atan2(avg.Beta, avg.Alpha), theta)
	}
}

func TestModulationLimit(t *testing.T) {
	p := Params{Method: SpaceVector, Limit: 0.9, Zero: 0.5}
	res := Modulate(&p, transform.Stationary{Alpha: 20}, 24)
	avg := Average(res.Duty, 24)
	if math32.Abs(avg.Alpha-0.9*24*transform.InvSqrt3) > 1e-3 {
		t.Errorf("alpha %v, want %v", avg.Alpha, 0.9*24*transform.InvSqrt3)
	}
}

func TestZeroVector(t *testing.T) {
	res := Modulate(&defaultParams, transform.Stationary{}, 24)
	if res.Duty != Uniform(0.5) || res.Sector != 0 || res.Saturated {
		t.Errorf("zero vector gave %+v", res)
	}

	p := Params{Method: SpaceVector, Limit: 1, Zero: 0.4}
	if res := Modulate(&p, transform.Stationary{}, 24); res.Duty != Uniform(0.4) {
		t.Errorf("configured zero duty ignored: %+v", res.Duty)
	}
}

func TestInvalidBus(t *testing.T) {
	for _, vbus := range []float32{0, -5, float32(math.NaN()), float32(math.Inf(1))} {
		res := Modulate(&defaultParams, transform.Stationary{Alpha: 1}, vbus)
		if !res.Invalid || res.Duty != Uniform(0.5) {
			t.Errorf("vbus=%v: got %+v", vbus, res)
		}
	}
	res := Modulate(&defaultParams, transform.Stationary{Alpha: float32(math.NaN())}, 24)
	if !res.Invalid {
		t.Errorf("NaN vector not flagged: %+v", res)
	}
}

func TestSinusoidal(t *testing.T) {
	p := Params{Method: Sinusoidal, Limit: 1, Zero: 0.5}
	v := transform.Stationary{Alpha: 3, Beta: -4}
	res := Modulate(&p, v, 24)
	avg := Average(res.Duty, 24)
	if math32.Abs(avg.Alpha-3) > 1e-4 || math32.Abs(avg.Beta+4) > 1e-4 {
		t.Errorf("average %+v", avg)
	}

	// Linear range is Vbus/2
	res = Modulate(&p, transform.Stationary{Alpha: 20}, 24)
	if !res.Saturated || res.Duty.A != 1 {
		t.Errorf("expected phase A at full duty, got %+v", res)
	}
}

func TestCompare(t *testing.T) {
	a, b, c := Duty{A: 0, B: 0.5, C: 1}.Compare(1000)
	if a != 0 || b != 500 || c != 1000 {
		t.Errorf("Compare = %d %d %d", a, b, c)
	}
	a, _, _ = Duty{A: -0.1}.Compare(255)
	if a != 0 {
		t.Errorf("negative duty compare = %d", a)
	}
}

func TestBlockModulation(t *testing.T) {
	v := transform.Stationary{Alpha: math32.Cos(0.1), Beta: math32.Sin(0.1)}
	tests := []struct {
		method Method
		want   Duty
	}{
		// Phase B sits inside the 120° dead band, phase C below it
		{Trapezoidal, Duty{A: 1, B: 0.5, C: 0}},
		{Square, Duty{A: 1, B: 0, C: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.method.String(), func(t *testing.T) {
			p := Params{Method: tt.method, Limit: 1, Zero: 0.5}
			res := Modulate(&p, v, 24)
			if res.Duty != tt.want || res.Sector != 1 {
				t.Errorf("got %+v sector %d, want %+v", res.Duty, res.Sector, tt.want)
			}
		})
	}
}

func TestBlockModulationFollowsDirection(t *testing.T) {
	for _, m := range []Method{Trapezoidal, Square} {
		p := Params{Method: m, Limit: 1, Zero: 0.5}
		for i := 0; i < 3600; i++ {
			theta := float32(i) * 2 * math32.Pi / 3600
			v := transform.Stationary{Alpha: 2 * math32.Cos(theta), Beta: 2 * math32.Sin(theta)}
			res := Modulate(&p, v, 24)
			if !inUnit(res.Duty) {
				t.Fatalf("%v at %v: duty out of range %+v", m, theta, res.Duty)
			}
			avg := Average(res.Duty, 24)
			got := math32.Atan2(avg.Beta, avg.Alpha)
			diff := math32.Abs(math32.Remainder(got-theta, 2*math32.Pi))
			if diff > math32.Pi/6+1e-3 {
				t.Fatalf("%v at %v: average points at %v", m, theta, got)
			}
		}
	}
}

func TestBlockModulationZeroDuty(t *testing.T) {
	// Low-side-biased zero duty clamps the low phases at 0
	p := Params{Method: Square, Limit: 1, Zero: 0.2}
	res := Modulate(&p, transform.Stationary{Alpha: 1}, 24)
	if math32.Abs(res.Duty.A-0.7) > 1e-6 || res.Duty.B != 0 || res.Duty.C != 0 {
		t.Errorf("got %+v", res.Duty)
	}
	if vmax := p.MaxVoltage(24); math32.Abs(vmax-48/math32.Pi) > 1e-4 {
		t.Errorf("square fundamental %v, want %v", vmax, 48/math32.Pi)
	}
}
