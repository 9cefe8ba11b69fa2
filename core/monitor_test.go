package core

import (
	"testing"

	"gofoc/foc/config"
	"gofoc/protocol"
)

func TestBusMonitorReports(t *testing.T) {
	r := newTestRig(config.Default())
	InitCoreCommands()
	m := NewBusMonitor(r.drive)
	InitMonitorCommands(m)
	tr, out := link()

	cfg := config.Default()
	r.drive.Step(&cfg)

	send(tr, "query_bus_voltage", func(o protocol.OutputBuffer) {
		for _, v := range []uint32{100, 10, 2, 1000} {
			protocol.EncodeVLQUint(o, v)
		}
		floats(10, 30)(o)
		protocol.EncodeVLQUint(o, 2)
	})
	out.Reset()

	for _, now := range []uint32{100, 110} {
		SetTime(now)
		ProcessTimers()
	}
	if m.State != MonitorReportPending {
		t.Fatalf("state %d after a full sample cycle", m.State)
	}
	m.Task()

	resp, ok := responses(out)["bus_voltage_state"]
	if !ok {
		t.Fatal("no bus_voltage_state")
	}
	next, _ := protocol.DecodeVLQUint(&resp)
	v, _ := protocol.DecodeVLQFloat(&resp)
	if next != 1100 || abs32(v-24) > 1e-3 {
		t.Errorf("next=%d voltage=%v", next, v)
	}
	if IsShutdown() {
		t.Error("shut down with the bus in range")
	}
}

func TestBusMonitorOvervoltageShutdown(t *testing.T) {
	r := newTestRig(config.Default())
	InitCoreCommands()
	m := NewBusMonitor(r.drive)
	_, out := link()

	stopped := false
	RegisterShutdownHook(func() { stopped = true })

	cfg := config.Default()
	r.sampler.raw.Bus = 4000
	r.drive.Step(&cfg)

	m.Start(10, 1, 1, 10, 10, 30, 2)

	SetTime(10)
	ProcessTimers()
	if stopped {
		t.Fatal("shut down after one violation with range_check_count=2")
	}
	SetTime(20)
	ProcessTimers()
	if !stopped || !IsShutdown() {
		t.Error("no shutdown after two violations")
	}
	if _, ok := responses(out)["shutdown"]; ok {
		t.Error("shutdown sent from the timer handler")
	}

	ShutdownTask()
	resp, ok := responses(out)["shutdown"]
	if !ok {
		t.Fatal("ShutdownTask sent nothing")
	}
	if clock, _ := protocol.DecodeVLQUint(&resp); clock != 20 {
		t.Errorf("shutdown clock %d, want 20", clock)
	}
}

func TestBusMonitorZeroCountIdle(t *testing.T) {
	r := newTestRig(config.Default())
	m := NewBusMonitor(r.drive)
	m.Start(10, 1, 0, 10, 10, 30, 0)

	SetTime(100)
	ProcessTimers()
	if m.State != MonitorIdle {
		t.Errorf("state %d", m.State)
	}
}
