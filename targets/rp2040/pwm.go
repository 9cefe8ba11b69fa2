//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"machine"

	"gofoc/core"
)

var errPeriodMismatch = errors.New("phase slices disagree on counter top")

// pwmGroup is the method set of TinyGo's unexported PWM slice type
type pwmGroup interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
	SetCounter(ctr uint32)
	Enable(enable bool)
}

type phaseOutput struct {
	pin     machine.Pin
	slice   uint8
	channel uint8
}

// Inverter drives the three half bridges from RP2040 PWM slices and the
// gate driver enable pin. It implements core.Inverter.
type Inverter struct {
	phases [3]phaseOutput
	groups map[uint8]pwmGroup
	gate   machine.Pin
	top    uint32
}

// NewInverter assigns the phase pins. GPIO N belongs to slice (N>>1)&7,
// channel N&1; phases sharing a slice share its counter.
func NewInverter(a, b, c, gate machine.Pin) *Inverter {
	inv := &Inverter{groups: make(map[uint8]pwmGroup), gate: gate}
	for i, pin := range [3]machine.Pin{a, b, c} {
		slice := uint8((pin >> 1) & 0x7)
		inv.phases[i] = phaseOutput{pin: pin, slice: slice}
		inv.groups[slice] = pwmSlice(slice)
	}
	gate.Configure(machine.PinConfig{Mode: machine.PinOutput})
	gate.Low()
	return inv
}

// Configure sets every slice to periodTicks core timer ticks and restarts
// their counters together so the phases stay aligned
func (inv *Inverter) Configure(periodTicks uint32) (uint32, error) {
	period := uint64(periodTicks) * 1000000000 / core.TimerFreq

	for _, g := range inv.groups {
		g.Enable(false)
		if err := g.Configure(machine.PWMConfig{Period: period}); err != nil {
			return 0, err
		}
	}

	inv.top = 0
	for i := range inv.phases {
		p := &inv.phases[i]
		g := inv.groups[p.slice]
		ch, err := g.Channel(p.pin)
		if err != nil {
			return 0, err
		}
		p.channel = ch
		if inv.top == 0 {
			inv.top = g.Top()
		} else if g.Top() != inv.top {
			return 0, errPeriodMismatch
		}
	}

	for _, g := range inv.groups {
		g.SetCounter(0)
	}
	for _, g := range inv.groups {
		g.Enable(true)
	}
	return inv.top, nil
}

// Top returns the counter top set by Configure
func (inv *Inverter) Top() uint32 { return inv.top }

// SetCompare latches the compare values; the slices apply them at wrap
func (inv *Inverter) SetCompare(a, b, c uint32) {
	for i, v := range [3]uint32{a, b, c} {
		p := &inv.phases[i]
		inv.groups[p.slice].Set(p.channel, v)
	}
}

// Enable switches the gate drivers
func (inv *Inverter) Enable(on bool) {
	inv.gate.Set(on)
}

// controlSlice raises the wrap interrupt that runs the control timer. It
// must be the slice of phase A.
const controlSlice = uint8((phaseAPin >> 1) & 0x7)

func enableWrapInterrupt() {
	rp.PWM.INTR.Set(1 << controlSlice)
	rp.PWM.INTE.SetBits(1 << controlSlice)
}

// pwmSlice returns the PWM peripheral for a slice number
func pwmSlice(slice uint8) pwmGroup {
	switch slice {
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	case 7:
		return machine.PWM7
	}
	return machine.PWM0
}
