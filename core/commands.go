package core

import (
	"sync/atomic"

	"gofoc/protocol"
)

var (
	isShutdown     atomic.Bool
	shutdownNotify atomic.Bool
	shutdownClock  atomic.Uint32
	resetPending   atomic.Bool
	shutdownHooks  []func()

	globalTransport    *protocol.Transport
	globalResetHandler func()
)

// InitCoreCommands registers the protocol-level commands.
// identify_response and identify must keep ids 0 and 1: the host knows
// them before it has downloaded the dictionary.
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%*s")       // ID 0
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify) // ID 1

	RegisterCommand("get_uptime", "", handleGetUptime)
	RegisterCommand("get_clock", "", handleGetClock)
	RegisterCommand("emergency_stop", "", handleEmergencyStop)
	RegisterCommand("clear_shutdown", "", handleClearShutdown)
	RegisterCommand("reset", "", handleReset)
	RegisterCommand("query_tick_events", "", handleQueryTickEvents)

	RegisterResponse("clock", "clock=%u")
	RegisterResponse("uptime", "high=%u clock=%u")
	RegisterResponse("shutdown", "clock=%u")
	RegisterResponse("tick_event", "type=%c clock=%u tick=%u status=%hu")

	RegisterConstant("CLOCK_FREQ", uint32(TimerFreq))
	RegisterConstant("FLOAT_ENCODING", "ieee754")
}

func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))
	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func handleGetUptime(data *[]byte) error {
	uptime := GetUptime()
	SendResponse("uptime", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(uptime>>32))
		protocol.EncodeVLQUint(output, uint32(uptime))
	})
	return nil
}

func handleGetClock(data *[]byte) error {
	clock := GetTime()
	SendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})
	return nil
}

func handleEmergencyStop(data *[]byte) error {
	TryShutdown()
	return nil
}

func handleClearShutdown(data *[]byte) error {
	isShutdown.Store(false)
	return nil
}

// handleReset defers the reset until after the ACK has been sent
func handleReset(_ *[]byte) error {
	resetPending.Store(true)
	return nil
}

func handleQueryTickEvents(data *[]byte) error {
	for _, evt := range TickEvents() {
		evt := evt
		SendResponse("tick_event", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, uint32(evt.EventType))
			protocol.EncodeVLQUint(output, evt.Clock)
			protocol.EncodeVLQUint(output, evt.Tick)
			protocol.EncodeVLQUint(output, uint32(evt.Status))
		})
	}
	return nil
}

// RegisterShutdownHook adds a function run on emergency stop. Hooks must
// leave the power stage in a safe state.
func RegisterShutdownHook(hook func()) {
	shutdownHooks = append(shutdownHooks, hook)
}

// TryShutdown runs the shutdown hooks and notifies the host
func TryShutdown() {
	if enterShutdown() {
		notifyShutdown()
	}
}

// ShutdownFromTimer is TryShutdown for timer handlers. The hooks run at
// once; the host notification waits for ShutdownTask.
func ShutdownFromTimer() {
	if enterShutdown() {
		shutdownNotify.Store(true)
	}
}

// ShutdownTask sends a notification raised by ShutdownFromTimer. Call from
// the main loop.
func ShutdownTask() {
	if shutdownNotify.Swap(false) {
		notifyShutdown()
	}
}

func enterShutdown() bool {
	if isShutdown.Swap(true) {
		return false
	}
	for _, hook := range shutdownHooks {
		hook()
	}
	shutdownClock.Store(GetTime())
	return true
}

func notifyShutdown() {
	clock := shutdownClock.Load()
	SendResponse("shutdown", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})
}

// IsShutdown reports whether the firmware is shut down
func IsShutdown() bool {
	return isShutdown.Load()
}

// ResetFirmwareState clears the shutdown state after a host reconnect
func ResetFirmwareState() {
	isShutdown.Store(false)
	shutdownNotify.Store(false)
	resetPending.Store(false)
}

// SendResponse sends a registered response through the global transport
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(responseName)
	if !ok {
		panic("response not registered: " + responseName)
	}
	globalTransport.SendCommand(cmd.ID, args)
}

// SetGlobalTransport sets the transport used by SendResponse
func SetGlobalTransport(transport *protocol.Transport) {
	globalTransport = transport
}

// SetResetHandler sets the platform-specific reset handler
func SetResetHandler(handler func()) {
	globalResetHandler = handler
}

// CheckPendingReset performs a requested reset. Call from the main loop
// after pending output has been flushed.
func CheckPendingReset() {
	if resetPending.Load() && globalResetHandler != nil {
		globalResetHandler()
	}
}
