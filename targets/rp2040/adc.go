//go:build rp2040

package main

import (
	"machine"

	"gofoc/core"
)

// PhaseSampler reads the three current sense amplifiers and the bus
// divider on ADC0-ADC3. It implements core.PhaseSampler.
//
// The RP2040 has a single multiplexed converter, so the four channels are
// about 2us apart rather than simultaneous.
type PhaseSampler struct {
	a, b, c, bus machine.ADC
}

// NewPhaseSampler configures the analog pins
func NewPhaseSampler() *PhaseSampler {
	machine.InitADC()
	s := &PhaseSampler{
		a:   machine.ADC{Pin: machine.ADC0},
		b:   machine.ADC{Pin: machine.ADC1},
		c:   machine.ADC{Pin: machine.ADC2},
		bus: machine.ADC{Pin: machine.ADC3},
	}
	for _, adc := range []*machine.ADC{&s.a, &s.b, &s.c, &s.bus} {
		adc.Configure(machine.ADCConfig{})
	}
	return s
}

// Sample returns 12-bit conversions; machine.ADC scales to 16 bits
func (s *PhaseSampler) Sample() core.RawSample {
	return core.RawSample{
		A:   s.a.Get() >> 4,
		B:   s.b.Get() >> 4,
		C:   s.c.Get() >> 4,
		Bus: s.bus.Get() >> 4,
	}
}

// boardCalibration is the front end of the reference power stage:
// 10mΩ shunts into 20x amplifiers biased at mid rail, and an 11:1 bus
// divider. Offsets are measured at boot.
func boardCalibration() core.Calibration {
	shunt := core.ShuntGain(3.3, 12, 0.01, 20)
	return core.Calibration{
		A:   core.Channel{Offset: 2048, Gain: shunt},
		B:   core.Channel{Offset: 2048, Gain: shunt},
		C:   core.Channel{Offset: 2048, Gain: shunt},
		Bus: core.Channel{Gain: core.DividerGain(3.3, 12, 11)},
	}
}
