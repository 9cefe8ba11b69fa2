package core

import (
	"gofoc/foc/config"
	"gofoc/protocol"
)

type mockInverter struct {
	top     uint32
	period  uint32
	a, b, c uint32
	writes  int
	enabled bool
	toggles int
}

func (m *mockInverter) Configure(periodTicks uint32) (uint32, error) {
	m.period = periodTicks
	if m.top == 0 {
		m.top = 1000
	}
	return m.top, nil
}

func (m *mockInverter) Top() uint32 { return m.top }

func (m *mockInverter) SetCompare(a, b, c uint32) {
	m.a, m.b, m.c = a, b, c
	m.writes++
}

func (m *mockInverter) Enable(on bool) {
	m.enabled = on
	m.toggles++
}

type mockSampler struct {
	raw RawSample
}

func (m *mockSampler) Sample() RawSample { return m.raw }

type mockAngle struct {
	theta, omega float32
	ok           bool
}

func (m *mockAngle) Angle() (float32, float32, bool) { return m.theta, m.omega, m.ok }

// testCalibration maps 2048 counts to 0A at 10mA per count, and the bus at
// 10mV per count
var testCalibration = Calibration{
	A:   Channel{Offset: 2048, Gain: 0.01},
	B:   Channel{Offset: 2048, Gain: 0.01},
	C:   Channel{Offset: 2048, Gain: 0.01},
	Bus: Channel{Gain: 0.01},
}

// restRaw is zero current on a 24V bus
var restRaw = RawSample{A: 2048, B: 2048, C: 2048, Bus: 2400}

func resetGlobals() {
	globalRegistry = NewCommandRegistry()
	globalDictionary = NewDictionary(globalRegistry)
	globalTransport = nil
	shutdownHooks = nil
	isShutdown.Store(false)
	shutdownNotify.Store(false)
	resetPending.Store(false)
	resetTimers()
	setSystemTicks(0)
	ClearTickRing()
}

type testRig struct {
	drive   *Drive
	inv     *mockInverter
	sampler *mockSampler
	angle   *mockAngle
}

func newTestRig(cfg config.Config) *testRig {
	resetGlobals()
	r := &testRig{
		inv:     &mockInverter{},
		sampler: &mockSampler{raw: restRaw},
		angle:   &mockAngle{ok: true},
	}
	d, err := NewDrive(r.inv, r.sampler, r.angle, testCalibration, cfg)
	if err != nil {
		panic(err)
	}
	r.drive = d
	return r
}

// advance moves time forward by n control periods, dispatching timers at
// each one
func (r *testRig) advance(n int) {
	for i := 0; i < n; i++ {
		SetTime(GetTime() + r.drive.period)
		ProcessTimers()
	}
}

// link wires a transport to the global registry and returns the output
// buffer holding everything the firmware sent
func link() (*protocol.Transport, *protocol.ScratchOutput) {
	out := protocol.NewScratchOutput()
	tr := protocol.NewTransport(out, func(id uint16, data *[]byte) error {
		return DispatchCommand(id, data)
	})
	SetGlobalTransport(tr)
	hostSeq = protocol.MessageDest
	return tr, out
}

var hostSeq uint8 = protocol.MessageDest

// send frames one command to the firmware
func send(tr *protocol.Transport, name string, args func(protocol.OutputBuffer)) {
	cmd, ok := globalRegistry.GetCommandByName(name)
	if !ok {
		panic("unknown command " + name)
	}
	payload := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(payload, uint32(cmd.ID))
	if args != nil {
		args(payload)
	}
	frame, err := protocol.AppendFrame(nil, hostSeq, payload.Result())
	if err != nil {
		panic(err)
	}
	hostSeq = protocol.NextSeq(hostSeq)
	tr.Receive(protocol.NewSliceInputBuffer(frame))
}

// responses decodes the non-empty frames in out and clears it
func responses(out *protocol.ScratchOutput) map[string][]byte {
	found := make(map[string][]byte)
	data := out.Result()
	for len(data) > 0 {
		frame, n, err := protocol.DecodeFrame(data)
		if err != nil {
			break
		}
		data = data[n:]
		if len(frame.Payload) == 0 {
			continue
		}
		p := frame.Payload
		id, _ := protocol.DecodeVLQUint(&p)
		if cmd, ok := globalRegistry.GetCommand(uint16(id)); ok {
			found[cmd.Name] = append([]byte(nil), p...)
		}
	}
	out.Reset()
	return found
}

func floats(vs ...float32) func(protocol.OutputBuffer) {
	return func(o protocol.OutputBuffer) {
		for _, v := range vs {
			protocol.EncodeVLQFloat(o, v)
		}
	}
}
