package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TickEvent captures a control-loop event for post-mortem analysis
type TickEvent struct {
	EventType uint8
	Clock     uint32 // System clock at event
	Tick      uint32 // Pipeline tick counter
	Status    uint16 // foc.Status of the tick
}

// Event type codes
const (
	EvtInvalidInput = 1 // Tick ran with invalid input
	EvtTrip         = 2 // Fault tolerance exceeded, dropped to idle
	EvtEnable       = 3 // Enable requested
	EvtDisable      = 4 // Disable requested
	EvtOverrun      = 5 // Control timer fired a full period late
	EvtConfig       = 6 // Configuration published
	EvtConfigReject = 7 // Configuration rejected
)

const TickRingSize = 32

var (
	debugPrintln DebugWriter = func(string) {}
	debugEnabled bool

	tickRing     [TickRingSize]TickEvent
	tickRingHead uint8
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// DebugPrintln writes a debug message when debug output is enabled
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordTick stores an event in the ring. Safe to call from the control
// timer: it neither allocates nor blocks.
func RecordTick(eventType uint8, tick uint32, status uint16) {
	idx := tickRingHead
	tickRing[idx] = TickEvent{
		EventType: eventType,
		Clock:     GetTime(),
		Tick:      tick,
		Status:    status,
	}
	tickRingHead = (idx + 1) % TickRingSize
}

// TickEvents copies the recorded events, oldest first
func TickEvents() []TickEvent {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	events := make([]TickEvent, 0, TickRingSize)
	for i := uint8(0); i < TickRingSize; i++ {
		evt := tickRing[(tickRingHead+i)%TickRingSize]
		if evt.EventType != 0 {
			events = append(events, evt)
		}
	}
	return events
}

func eventName(t uint8) string {
	switch t {
	case EvtInvalidInput:
		return "INVALID"
	case EvtTrip:
		return "TRIP"
	case EvtEnable:
		return "ENABLE"
	case EvtDisable:
		return "DISABLE"
	case EvtOverrun:
		return "OVERRUN"
	case EvtConfig:
		return "CONFIG"
	case EvtConfigReject:
		return "CONFIG_REJECT"
	}
	return "UNKNOWN"
}

// DumpTickRing writes the ring through the debug writer. Call from task
// context only.
func DumpTickRing() {
	if debugPrintln == nil {
		return
	}
	debugPrintln("[FOC] === Tick Ring Dump ===")
	for _, evt := range TickEvents() {
		debugPrintln("[FOC] " + eventName(evt.EventType) +
			" clock=" + utoa(evt.Clock) +
			" tick=" + utoa(evt.Tick) +
			" status=" + utoa(uint32(evt.Status)))
	}
	debugPrintln("[FOC] === End Dump ===")
}

// ClearTickRing clears the ring
func ClearTickRing() {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	for i := range tickRing {
		tickRing[i] = TickEvent{}
	}
	tickRingHead = 0
}
