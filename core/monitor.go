package core

import (
	"math"
	"sync/atomic"

	"gofoc/protocol"
)

// Monitor states
const (
	MonitorIdle          = 0
	MonitorRunning       = 1
	MonitorReportPending = 2
)

// BusMonitor watches the DC bus voltage seen by the control loop and shuts
// the drive down when it stays outside [Min, Max]. It also reports the
// averaged bus voltage to the host every RestTime ticks.
type BusMonitor struct {
	drive *Drive
	Timer Timer
	State uint8

	SampleTime  uint32 // ticks between samples
	SampleCount uint8  // samples averaged per report
	RestTime    uint32 // ticks between reports

	Min, Max        float32
	RangeCheckCount uint8 // consecutive violations before shutdown; 0 shuts down on the first
	InvalidCount    uint8

	sum     float32
	samples uint8
	next    uint32

	pendingValue float32
	pendingClock uint32
	wake         atomic.Bool
}

// NewBusMonitor creates an idle monitor for d
func NewBusMonitor(d *Drive) *BusMonitor {
	m := &BusMonitor{drive: d}
	m.Timer.Handler = m.event
	return m
}

// InitMonitorCommands registers the bus monitor commands
func InitMonitorCommands(m *BusMonitor) {
	RegisterCommand("query_bus_voltage",
		"clock=%u sample_ticks=%u sample_count=%c rest_ticks=%u min=%u max=%u range_check_count=%c",
		m.handleQuery)
	RegisterResponse("bus_voltage_state", "next_clock=%u voltage=%u")
	GetGlobalDictionary().Invalidate()
}

func (m *BusMonitor) handleQuery(data *[]byte) error {
	var args [4]uint32
	for i := range args {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		args[i] = v
	}
	var min, max float32
	if err := decodeFloats(data, &min, &max); err != nil {
		return err
	}
	rangeCheck, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	m.Start(args[0], args[1], uint8(args[2]), args[3], min, max, uint8(rangeCheck))
	return nil
}

// Start begins sampling at clock. A zero count stops the monitor.
func (m *BusMonitor) Start(clock, sampleTicks uint32, count uint8, rest uint32, min, max float32, rangeCheck uint8) {
	CancelTimer(&m.Timer)

	state := disableInterrupts()
	m.SampleTime = sampleTicks
	m.SampleCount = count
	m.RestTime = rest
	m.Min, m.Max = min, max
	m.RangeCheckCount = rangeCheck
	m.InvalidCount = 0
	m.sum, m.samples = 0, 0
	m.next = clock
	if count == 0 {
		m.State = MonitorIdle
		restoreInterrupts(state)
		return
	}
	m.State = MonitorRunning
	m.Timer.WakeTime = clock
	restoreInterrupts(state)

	ScheduleTimer(&m.Timer)
}

// Stop cancels sampling
func (m *BusMonitor) Stop() {
	CancelTimer(&m.Timer)
	m.State = MonitorIdle
}

func (m *BusMonitor) event(t *Timer) uint8 {
	if m.State == MonitorIdle {
		return SF_DONE
	}

	m.sum += m.drive.BusVoltage()
	m.samples++
	if m.samples < m.SampleCount {
		t.WakeTime += m.SampleTime
		return SF_RESCHEDULE
	}

	avg := m.sum / float32(m.samples)
	m.sum, m.samples = 0, 0

	if !(avg >= m.Min && avg <= m.Max) {
		m.InvalidCount++
		if m.RangeCheckCount == 0 || m.InvalidCount >= m.RangeCheckCount {
			m.InvalidCount = 0
			ShutdownFromTimer()
		}
	} else {
		m.InvalidCount = 0
	}

	m.next += m.RestTime
	m.pendingValue = avg
	m.pendingClock = m.next
	m.State = MonitorReportPending
	m.wake.Store(true)

	t.WakeTime = m.next
	return SF_RESCHEDULE
}

// Task sends a pending bus voltage report. Call from the main loop.
func (m *BusMonitor) Task() {
	if !m.wake.Swap(false) {
		return
	}

	state := disableInterrupts()
	if m.State != MonitorReportPending {
		restoreInterrupts(state)
		return
	}
	value, clock := m.pendingValue, m.pendingClock
	m.State = MonitorRunning
	restoreInterrupts(state)

	SendResponse("bus_voltage_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
		protocol.EncodeVLQFloat(output, value)
	})
}

// BusVoltage returns the bus voltage measured on the last tick
func (d *Drive) BusVoltage() float32 {
	return math.Float32frombits(d.bus.Load())
}
