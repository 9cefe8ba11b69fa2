package core

// TimerFreq is the system tick rate
const TimerFreq = 12000000

var uptimeHigh uint32

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the current system time. Targets call this from their clock
// interrupt; tests call it to step time.
func SetTime(ticks uint32) {
	if ticks < getSystemTicks() {
		uptimeHigh++
	}
	setSystemTicks(ticks)
}

// GetUptime returns the 64-bit uptime in timer ticks
func GetUptime() uint64 {
	return uint64(uptimeHigh)<<32 | uint64(GetTime())
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// TimerFromSeconds converts a period in seconds to timer ticks, rounding to
// the nearest tick
func TimerFromSeconds(s float32) uint32 {
	return uint32(float64(s)*TimerFreq + 0.5)
}

// ProcessTimers runs all timers due at the current time
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
