//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"gofoc/core"
)

// RP2040 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x08 // Raw timer high word
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word

	// The hardware timer counts microseconds; core time runs at TimerFreq
	ticksPerUS = core.TimerFreq / 1000000
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// InitClock publishes the clock constants the host uses to convert times
func InitClock() {
	core.RegisterConstant("MCU", "rp2040")
	core.RegisterConstant("CLOCK_FREQ", uint32(core.TimerFreq))
}

// GetHardwareUptime reads the full 64-bit RP2040 hardware timer
func GetHardwareUptime() uint64 {
	// Must read high first, then low, then high again to detect rollover
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// UpdateSystemTime scales the microsecond timer to core ticks. Only the
// PWM wrap interrupt calls it, so core time has a single writer.
func UpdateSystemTime() {
	core.SetTime(uint32(GetHardwareUptime() * ticksPerUS))
}
