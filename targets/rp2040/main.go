//go:build rp2040

package main

import (
	"device/rp"
	"machine"
	"runtime/interrupt"
	"time"

	"gofoc/core"
	"gofoc/foc/angle"
	"gofoc/foc/config"
	"gofoc/protocol"
)

// Reference board wiring
const (
	phaseAPin = machine.GP2 // slice 1 A
	phaseBPin = machine.GP3 // slice 1 B
	phaseCPin = machine.GP4 // slice 2 A
	gatePin   = machine.GP6

	polePairs     = 7
	encoderOffset = 0

	offsetSamples = 256
)

var (
	// Buffers for communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	drive   *core.Drive
	monitor *core.BusMonitor
	poller  *core.AnglePoller

	// Debug counters
	msgerrors uint32

	// USB connection state tracking
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Disable the watchdog left running by a previous reset
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	initDebugUART()
	InitClock()
	UpdateSystemTime()

	core.InitCoreCommands()

	cfg := config.Default()
	inv := NewInverter(phaseAPin, phaseBPin, phaseCPin, gatePin)
	sampler := NewPhaseSampler()
	core.SetInverter(inv)
	core.SetPhaseSampler(sampler)

	// Gates are off, so the phase channels read zero current
	cal := boardCalibration()
	if err := core.CalibrateOffsets(&cal, sampler, offsetSamples); err != nil {
		core.DebugPrintln("offset calibration failed: " + err.Error())
	}

	poller, err = initEncoder(polePairs, encoderOffset)
	if err != nil {
		// Run sensorless: the pipeline integrates its own angle
		core.DebugPrintln("encoder unavailable: " + err.Error())
		cfg.AngleMode = angle.Integrating
		core.SetAngleSource(&core.FixedAngle{})
	} else {
		core.SetAngleSource(poller)
	}

	drive, err = core.NewDrive(core.MustInverter(), core.MustPhaseSampler(), core.MustAngleSource(), cal, cfg)
	if err != nil {
		panic(err)
	}
	core.InitFOCCommands(drive)
	monitor = core.NewBusMonitor(drive)
	core.InitMonitorCommands(monitor)

	core.GetGlobalDictionary().SetVersion("gofoc-rp2040")
	core.GetGlobalDictionary().Generate()

	inputBuffer = protocol.NewFifoBuffer(512)
	outputBuffer = protocol.NewScratchOutput()

	transport = protocol.NewTransport(outputBuffer, handleCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
		core.ResetFirmwareState()
	})
	// Responses and the ACK must reach the host in the order written
	transport.SetFlushCallback(func() {
		writeUSB()
	})
	core.SetGlobalTransport(transport)

	// Watchdog reset re-enumerates USB cleanly after FIRMWARE_RESTART
	core.SetResetHandler(func() {
		drive.Stop()
		err = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
		if err != nil {
			return
		}
		err = machine.Watchdog.Start()
		if err != nil {
			return
		}
		for {
			time.Sleep(1 * time.Millisecond)
		}
	})

	if err := drive.Start(); err != nil {
		panic(err)
	}
	enableWrapInterrupt()
	interrupt.New(rp.IRQ_PWM_IRQ_WRAP, pwmWrap).Enable()

	go usbReaderLoop()

	var lastPoll uint32
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				in := protocol.NewSliceInputBuffer(data)
				transport.Receive(in)
				if consumed := len(data) - in.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			if poller != nil && pollDue(poller, lastPoll) {
				lastPoll = core.GetTime()
				poller.Poll()
			}

			core.ShutdownTask()
			monitor.Task()

			if len(outputBuffer.Result()) > 0 {
				writeUSB()
			}

			// After the ACK has gone out
			core.CheckPendingReset()
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// pwmWrap runs once per switching period at the counter wrap of the
// control slice, after the compare values have latched
func pwmWrap(interrupt.Interrupt) {
	rp.PWM.INTR.Set(1 << controlSlice)
	UpdateSystemTime()
	core.ProcessTimers()
}

// usbReaderLoop moves received bytes into the input FIFO
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			data, err := USBRead()
			if err != nil {
				msgerrors++
				time.Sleep(1 * time.Millisecond)
				continue
			}

			// A new host session: forget the old one
			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				core.ResetFirmwareState()
				consecutiveWriteFailures = 0
			}

			if inputBuffer.Write([]byte{data}) == 0 {
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// initDebugUART sends debug output to UART0 on GP0/GP1, away from the
// host link
func initDebugUART() {
	err := machine.UART0.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART0_TX_PIN,
		RX:       machine.UART0_RX_PIN,
	})
	if err != nil {
		return
	}
	core.SetDebugWriter(func(msg string) {
		machine.UART0.Write([]byte(msg + "\r\n"))
	})
	core.SetDebugEnabled(true)
}

// handleCommand dispatches received commands to the command registry
func handleCommand(cmdID uint16, data *[]byte) error {
	return core.DispatchCommand(cmdID, data)
}

// writeUSB writes the output buffer to USB. Repeated failures mean the
// host has gone; the drive is disabled and pending data dropped.
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				drive.Disable()
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
