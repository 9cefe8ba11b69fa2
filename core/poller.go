package core

import "sync/atomic"

// AngleReader reads the rotor angle from a device that is too slow to
// access from the control timer, such as an I2C encoder
type AngleReader interface {
	ReadAngle() (theta, omega float32, err error)
}

// AnglePoller reads an AngleReader on its own timer and serves the latest
// reading to the control loop without blocking. Between reads it
// extrapolates the angle with the measured speed.
type AnglePoller struct {
	reader   AngleReader
	Timer    Timer
	PollRate uint32 // ticks between reads
	MaxAge   uint32 // readings older than this are reported as invalid

	// Poll fills the slot Angle is not reading, then flips current, so an
	// interrupt between the writes still sees a whole reading
	readings [2]angleReading
	current  atomic.Uint32
	valid    atomic.Bool
	errors   atomic.Uint32
}

type angleReading struct {
	theta float32
	omega float32
	stamp uint32 // clock of the read
}

// NewAnglePoller creates a poller for r. Start must be called to begin
// polling.
func NewAnglePoller(r AngleReader, pollRate uint32) *AnglePoller {
	p := &AnglePoller{reader: r, PollRate: pollRate, MaxAge: 4 * pollRate}
	p.Timer.Handler = p.event
	return p
}

// Start schedules the first read at the next poll interval
func (p *AnglePoller) Start() {
	p.Poll()
	p.Timer.WakeTime = GetTime() + p.PollRate
	ScheduleTimer(&p.Timer)
}

// Stop cancels polling and invalidates the cached angle
func (p *AnglePoller) Stop() {
	CancelTimer(&p.Timer)
	p.valid.Store(false)
}

// Poll performs one read immediately. Call it from one context only: the
// poller's own timer or the main loop.
func (p *AnglePoller) Poll() {
	theta, omega, err := p.reader.ReadAngle()
	if err != nil {
		p.errors.Add(1)
		return
	}
	p.stage(angleReading{theta: theta, omega: omega, stamp: GetTime()})
	p.commit()
}

func (p *AnglePoller) stage(r angleReading) {
	p.readings[1-p.current.Load()] = r
}

func (p *AnglePoller) commit() {
	p.current.Store(1 - p.current.Load())
	p.valid.Store(true)
}

func (p *AnglePoller) event(t *Timer) uint8 {
	p.Poll()
	t.WakeTime += p.PollRate
	return SF_RESCHEDULE
}

// Angle implements AngleSource
func (p *AnglePoller) Angle() (float32, float32, bool) {
	if !p.valid.Load() {
		return 0, 0, false
	}
	r := p.readings[p.current.Load()]
	age := GetTime() - r.stamp
	if age > p.MaxAge {
		return 0, 0, false
	}
	// The pipeline normalizes the angle, so no wrap is needed here
	return r.theta + r.omega*float32(age)/TimerFreq, r.omega, true
}

// Errors returns the number of failed reads
func (p *AnglePoller) Errors() uint32 {
	return p.errors.Load()
}
