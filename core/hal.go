package core

// Inverter is the three-phase PWM stage. Compare values are in counts of
// Top(); a compare of Top() holds the phase high for the whole period.
type Inverter interface {
	// Configure sets the switching period and returns the counter top
	Configure(periodTicks uint32) (uint32, error)
	Top() uint32
	SetCompare(a, b, c uint32)
	// Enable turns the gate drivers on or off
	Enable(on bool)
}

// RawSample is one simultaneous conversion of the phase current and bus
// voltage channels
type RawSample struct {
	A, B, C uint16
	Bus     uint16
}

// PhaseSampler returns the conversions latched for the current PWM period
type PhaseSampler interface {
	Sample() RawSample
}

// AngleSource supplies the electrical rotor angle and speed.
// ok is false when the reading could not be taken.
type AngleSource interface {
	Angle() (theta, omega float32, ok bool)
}

var (
	inverter     Inverter
	phaseSampler PhaseSampler
	angleSource  AngleSource
)

// SetInverter is called by target-specific code to register its driver.
func SetInverter(i Inverter) {
	inverter = i
}

// MustInverter returns the configured inverter or panics if missing.
func MustInverter() Inverter {
	if inverter == nil {
		panic("inverter not configured")
	}
	return inverter
}

// SetPhaseSampler registers the current/bus sampler.
func SetPhaseSampler(s PhaseSampler) {
	phaseSampler = s
}

// MustPhaseSampler returns the configured sampler or panics if missing.
func MustPhaseSampler() PhaseSampler {
	if phaseSampler == nil {
		panic("phase sampler not configured")
	}
	return phaseSampler
}

// SetAngleSource registers the rotor angle source.
func SetAngleSource(a AngleSource) {
	angleSource = a
}

// MustAngleSource returns the configured angle source or panics if missing.
func MustAngleSource() AngleSource {
	if angleSource == nil {
		panic("angle source not configured")
	}
	return angleSource
}

// FixedAngle is an AngleSource for open-loop alignment and for sensorless
// operation in integrating mode, where the pipeline ignores the angle.
type FixedAngle struct {
	Theta float32
	Omega float32
}

func (f *FixedAngle) Angle() (float32, float32, bool) {
	return f.Theta, f.Omega, true
}
