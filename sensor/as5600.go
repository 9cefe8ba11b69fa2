// Package sensor provides rotor angle sources for the drive.
package sensor

import (
	"errors"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/as560x"

	"gofoc/foc/angle"
)

var (
	ErrNoMagnet     = errors.New("as5600: magnet not detected")
	ErrMagnetWeak   = errors.New("as5600: magnet too weak")
	ErrMagnetStrong = errors.New("as5600: magnet too strong")
	ErrPolePairs    = errors.New("pole pairs must be at least 1")
)

// Counts per mechanical revolution
const countsPerRev = as560x.NATIVE_ANGLE_RANGE

// Config configures an AS5600 angle source
type Config struct {
	Address   uint8   // I2C address, 0 for the default 0x36
	PolePairs uint8   // Motor pole pairs
	Offset    float32 // Electrical angle at raw count 0
	Invert    bool    // Count against the motor's positive direction
	Period    float32 // Seconds between reads, used for the speed estimate
	Filter    float32 // Speed low-pass coefficient in (0, 1]; 0 means 1
}

// AS5600 turns raw AS5600 readings into an electrical angle and speed
type AS5600 struct {
	dev as560x.AS5600Device
	cfg Config

	primed bool
	last   float32 // last mechanical angle
	omega  float32 // filtered electrical speed
	turns  int32
}

// NewAS5600 configures the encoder on bus and checks the magnet
func NewAS5600(bus drivers.I2C, cfg Config) (*AS5600, error) {
	if cfg.PolePairs == 0 {
		return nil, ErrPolePairs
	}
	if cfg.Filter <= 0 || cfg.Filter > 1 {
		cfg.Filter = 1
	}
	e := &AS5600{dev: as560x.NewAS5600(bus), cfg: cfg}
	if err := e.dev.Configure(as560x.Config{Address: cfg.Address}); err != nil {
		return nil, err
	}
	if err := e.CheckMagnet(); err != nil {
		return nil, err
	}
	return e, nil
}

// CheckMagnet reports a missing or badly placed magnet
func (e *AS5600) CheckMagnet() error {
	detected, strength, err := e.dev.MagnetStatus()
	switch {
	case err != nil:
		return err
	case !detected:
		return ErrNoMagnet
	case strength == as560x.MagnetTooWeak:
		return ErrMagnetWeak
	case strength == as560x.MagnetTooStrong:
		return ErrMagnetStrong
	}
	return nil
}

// Mechanical reads the shaft angle in radians, [0, 2π)
func (e *AS5600) Mechanical() (float32, error) {
	raw, _, err := e.dev.RawAngle(as560x.ANGLE_NATIVE)
	if err != nil {
		return 0, err
	}
	return MechanicalFromRaw(raw, e.cfg.Invert), nil
}

// MechanicalFromRaw converts a 12-bit count to radians
func MechanicalFromRaw(raw uint16, invert bool) float32 {
	mech := float32(raw%countsPerRev) * angle.TwoPi / countsPerRev
	if invert {
		mech = angle.Normalize(angle.TwoPi - mech)
	}
	return mech
}

// ReadAngle reads the encoder and returns the electrical angle and the
// filtered electrical speed. It implements core.AngleReader.
func (e *AS5600) ReadAngle() (float32, float32, error) {
	mech, err := e.Mechanical()
	if err != nil {
		return 0, 0, err
	}
	return e.update(mech), e.omega, nil
}

// update advances the speed estimate with a new mechanical reading
func (e *AS5600) update(mech float32) float32 {
	if e.primed && e.cfg.Period > 0 {
		step := angle.Delta(e.last, mech)
		if step > 0 && mech < e.last {
			e.turns++
		} else if step < 0 && mech > e.last {
			e.turns--
		}
		raw := step / e.cfg.Period * float32(e.cfg.PolePairs)
		e.omega += e.cfg.Filter * (raw - e.omega)
	}
	e.primed = true
	e.last = mech
	return angle.Electrical(mech, e.cfg.PolePairs, e.cfg.Offset)
}

// Align sets the offset so that the current position reads as electrical
// zero. Call it with the rotor locked to the d axis.
func (e *AS5600) Align() error {
	mech, err := e.Mechanical()
	if err != nil {
		return err
	}
	e.cfg.Offset = angle.Normalize(mech * float32(e.cfg.PolePairs))
	return nil
}

// Offset returns the electrical zero offset
func (e *AS5600) Offset() float32 { return e.cfg.Offset }

// Turns returns the number of whole mechanical revolutions counted
func (e *AS5600) Turns() int32 { return e.turns }

// Position returns the unwrapped mechanical position in radians
func (e *AS5600) Position() float32 {
	return float32(e.turns)*angle.TwoPi + e.last
}
