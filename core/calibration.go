package core

import (
	"errors"

	"gofoc/foc/transform"
)

var ErrNoSamples = errors.New("calibration needs at least one sample")

// Channel converts a raw conversion to engineering units:
// value = (raw - Offset) * Gain
type Channel struct {
	Offset float32
	Gain   float32
}

// Value applies the calibration
func (c Channel) Value(raw uint16) float32 {
	return (float32(raw) - c.Offset) * c.Gain
}

// Calibration holds the conversion for each sampled channel
type Calibration struct {
	A, B, C Channel // amps per count
	Bus     Channel // volts per count
}

// ShuntGain returns the amps-per-count gain of a shunt channel
func ShuntGain(vref float32, bits uint8, shuntOhms, amplifierGain float32) float32 {
	counts := float32(uint32(1) << bits)
	return vref / counts / (shuntOhms * amplifierGain)
}

// DividerGain returns the volts-per-count gain of a bus divider channel
func DividerGain(vref float32, bits uint8, ratio float32) float32 {
	counts := float32(uint32(1) << bits)
	return vref / counts * ratio
}

// Convert turns a raw sample into phase currents and bus voltage
func (c *Calibration) Convert(s RawSample) (transform.ThreePhase, float32) {
	return transform.ThreePhase{
		A: c.A.Value(s.A),
		B: c.B.Value(s.B),
		C: c.C.Value(s.C),
	}, c.Bus.Value(s.Bus)
}

// CalibrateOffsets measures the zero-current offsets of the phase channels
// by averaging n samples. The gates must be off while it runs.
func CalibrateOffsets(c *Calibration, s PhaseSampler, n int) error {
	if n <= 0 {
		return ErrNoSamples
	}
	var sa, sb, sc uint64
	for i := 0; i < n; i++ {
		r := s.Sample()
		sa += uint64(r.A)
		sb += uint64(r.B)
		sc += uint64(r.C)
	}
	c.A.Offset = float32(sa) / float32(n)
	c.B.Offset = float32(sb) / float32(n)
	c.C.Offset = float32(sc) / float32(n)
	return nil
}
