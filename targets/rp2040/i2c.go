//go:build rp2040

package main

import (
	"machine"

	"gofoc/core"
	"gofoc/sensor"
)

// Encoder wiring on the reference board
const (
	encoderSDA       = machine.GP8
	encoderSCL       = machine.GP9
	encoderFrequency = 400 * machine.KHz
	encoderPollUS    = 200
)

// initEncoder brings up the AS5600 on I2C0 and wraps it in a poller. The
// poller is read from the main loop, never from the control interrupt.
func initEncoder(polePairs uint8, offset float32) (*core.AnglePoller, error) {
	bus := machine.I2C0
	err := bus.Configure(machine.I2CConfig{
		SDA:       encoderSDA,
		SCL:       encoderSCL,
		Frequency: encoderFrequency,
	})
	if err != nil {
		return nil, err
	}

	enc, err := sensor.NewAS5600(bus, sensor.Config{
		PolePairs: polePairs,
		Offset:    offset,
		Period:    float32(encoderPollUS) / 1e6,
		Filter:    0.2,
	})
	if err != nil {
		return nil, err
	}
	p := core.NewAnglePoller(enc, core.TimerFromUS(encoderPollUS))
	p.Poll()
	return p, nil
}

// pollDue reports whether the poller's interval has elapsed since last
func pollDue(p *core.AnglePoller, last uint32) bool {
	return core.GetTime()-last >= p.PollRate
}
