package core

import (
	"errors"
	"math"
	"sync/atomic"

	"gofoc/foc"
	"gofoc/foc/config"
	"gofoc/foc/transform"
)

var ErrDriveRunning = errors.New("drive timer already running")

// Drive runs the control pipeline from the control timer. Task code talks
// to it through SetReference, Enable, Disable and Publish; the timer handler
// is the only place Tick is called.
type Drive struct {
	pipeline *foc.Pipeline
	store    *config.Store

	inverter Inverter
	sampler  PhaseSampler
	angle    AngleSource
	cal      Calibration

	timer   Timer
	period  uint32 // control period in timer ticks
	top     uint32
	running bool
	gates   bool

	reference atomic.Uint64 // d bits << 32 | q bits
	bus       atomic.Uint32 // float bits of the last bus voltage
	overruns  atomic.Uint32
	trips     atomic.Uint32
	lastOut   foc.Output
	in        foc.Input
}

// NewDrive builds a drive around the given hardware with cfg as the
// initial configuration
func NewDrive(inv Inverter, sampler PhaseSampler, angle AngleSource, cal Calibration, cfg config.Config) (*Drive, error) {
	store, err := config.NewStore(cfg)
	if err != nil {
		return nil, err
	}
	d := &Drive{
		pipeline: foc.New(),
		store:    store,
		inverter: inv,
		sampler:  sampler,
		angle:    angle,
		cal:      cal,
	}
	d.timer.Handler = d.controlEvent
	return d, nil
}

// Start configures the inverter for the current period and schedules the
// control timer. The pipeline stays idle until Enable.
func (d *Drive) Start() error {
	if d.running {
		return ErrDriveRunning
	}
	d.period = TimerFromSeconds(d.store.Current().Period)
	top, err := d.inverter.Configure(d.period)
	if err != nil {
		return err
	}
	d.top = top
	d.setGates(false)

	d.running = true
	d.timer.WakeTime = GetTime() + d.period
	ScheduleTimer(&d.timer)
	return nil
}

// Stop cancels the control timer, leaves the pipeline idle and turns the
// gates off
func (d *Drive) Stop() {
	if !d.running {
		return
	}
	CancelTimer(&d.timer)
	d.running = false

	// One last tick applies the disable and writes the zero duty
	d.pipeline.Disable()
	d.Step(d.store.Current())
	d.pipeline.Reset()
	d.setGates(false)
}

// Enable requests the idle to running transition at the next tick
func (d *Drive) Enable() {
	d.pipeline.Enable()
	RecordTick(EvtEnable, d.pipeline.Telemetry().Ticks, 0)
}

// Disable requests the running to idle transition at the next tick
func (d *Drive) Disable() {
	d.pipeline.Disable()
	RecordTick(EvtDisable, d.pipeline.Telemetry().Ticks, 0)
}

// SetReference sets the d/q current references in amps
func (d *Drive) SetReference(id, iq float32) {
	d.reference.Store(uint64(math.Float32bits(id))<<32 | uint64(math.Float32bits(iq)))
}

// Reference returns the current d/q references
func (d *Drive) Reference() transform.Rotating {
	v := d.reference.Load()
	return transform.Rotating{
		D: math.Float32frombits(uint32(v >> 32)),
		Q: math.Float32frombits(uint32(v)),
	}
}

// Config returns a copy of the active configuration
func (d *Drive) Config() config.Config {
	return *d.store.Current()
}

// Publish validates cfg and makes it active from the next tick. The
// control period can only change while the timer is stopped.
func (d *Drive) Publish(cfg *config.Config) error {
	if d.running && TimerFromSeconds(cfg.Period) != d.period {
		RecordTick(EvtConfigReject, 0, 0)
		return config.ErrPeriod
	}
	state := disableInterrupts()
	err := d.store.Publish(cfg)
	restoreInterrupts(state)
	if err != nil {
		RecordTick(EvtConfigReject, 0, 0)
		return err
	}
	RecordTick(EvtConfig, 0, 0)
	return nil
}

// Telemetry returns a copy of the last tick's intermediate values
func (d *Drive) Telemetry() foc.Telemetry {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return d.pipeline.Telemetry()
}

// Faults returns the number of timer overruns and fault trips
func (d *Drive) Faults() (overruns, trips uint32) {
	return d.overruns.Load(), d.trips.Load()
}

// GatesEnabled reports whether the inverter outputs are switching
func (d *Drive) GatesEnabled() bool {
	return d.gates
}

// Calibration returns the ADC calibration in use
func (d *Drive) Calibration() Calibration {
	return d.cal
}

// SetCalibration replaces the ADC calibration. The drive must be stopped.
func (d *Drive) SetCalibration(c Calibration) error {
	if d.running {
		return ErrDriveRunning
	}
	d.cal = c
	return nil
}

func (d *Drive) setGates(on bool) {
	d.gates = on
	d.inverter.Enable(on)
}

// controlEvent is the control timer handler: one pipeline tick per period
func (d *Drive) controlEvent(t *Timer) uint8 {
	if !d.running {
		return SF_DONE
	}
	cfg := d.store.Current()
	d.Step(cfg)

	t.WakeTime += d.period
	if now := GetTime(); !timerIsBefore(now, t.WakeTime+d.period) {
		// A full period was missed; skip ahead rather than run back to back
		d.overruns.Add(1)
		RecordTick(EvtOverrun, d.lastTick(), 0)
		t.WakeTime = now + d.period
	}
	return SF_RESCHEDULE
}

// Step samples the hardware, runs one tick with cfg and applies the duty
func (d *Drive) Step(cfg *config.Config) foc.Output {
	currents, bus := d.cal.Convert(d.sampler.Sample())
	d.bus.Store(math.Float32bits(bus))
	theta, omega, ok := d.angle.Angle()
	if !ok {
		theta = float32(math.NaN())
	}

	d.in = foc.Input{
		Currents:   currents,
		BusVoltage: bus,
		Angle:      theta,
		Omega:      omega,
		Reference:  d.Reference(),
	}

	prev := d.lastOut.State
	out := d.pipeline.Tick(cfg, &d.in)
	d.lastOut = out

	a, b, c := out.Duty.Compare(d.top)
	d.inverter.SetCompare(a, b, c)

	switch {
	case out.State == foc.Running && prev != foc.Running:
		d.setGates(true)
	case out.State == foc.Idle && prev == foc.Running:
		d.setGates(false)
	}

	if out.Status.Has(foc.StatusFault) {
		d.trips.Add(1)
		RecordTick(EvtTrip, d.lastTick(), uint16(out.Status))
	} else if out.Status.Has(foc.StatusInvalidInput) {
		RecordTick(EvtInvalidInput, d.lastTick(), uint16(out.Status))
	}
	return out
}

func (d *Drive) lastTick() uint32 {
	return d.pipeline.Telemetry().Ticks
}
