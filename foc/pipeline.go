// Package foc sequences the field-oriented current loop: Clarke, Park,
// PI regulation, inverse Park and space-vector modulation, once per control
// tick.
//
// A Pipeline owns all state carried between ticks (regulator integrators,
// electrical angle, last duties), so independent motors each get their own
// Pipeline. Tick performs no allocation and no I/O and always runs the same
// sequence of stages.
package foc

import (
	"sync/atomic"

	"github.com/chewxy/math32"

	"gofoc/foc/angle"
	"gofoc/foc/config"
	"gofoc/foc/regulator"
	"gofoc/foc/svm"
	"gofoc/foc/transform"
)

const (
	requestNone uint32 = iota
	requestEnable
	requestDisable
)

// Pipeline is the per-motor control pipeline
type Pipeline struct {
	state   State
	request atomic.Uint32 // pending Enable/Disable, applied at the next tick

	regulator regulator.State
	angle     angle.State
	last      svm.Duty
	bad       uint8 // consecutive invalid ticks

	telemetry Telemetry
}

// New returns an idle pipeline
func New() *Pipeline {
	return &Pipeline{}
}

// Enable requests the Idle to Running transition.
// It is safe to call from a context other than the tick and takes effect at
// the start of the next tick.
func (p *Pipeline) Enable() {
	p.request.Store(requestEnable)
}

// Disable requests the Running to Idle transition at the next tick
func (p *Pipeline) Disable() {
	p.request.Store(requestDisable)
}

// State returns the current orchestrator state
func (p *Pipeline) State() State {
	return p.state
}

// Regulator returns a copy of the regulator state
func (p *Pipeline) Regulator() regulator.State {
	return p.regulator
}

// Angle returns a copy of the angle tracker state
func (p *Pipeline) Angle() angle.State {
	return p.angle
}

// Telemetry returns a copy of the intermediate quantities of the last tick
func (p *Pipeline) Telemetry() Telemetry {
	return p.telemetry
}

// Reset re-initialises the regulator and the angle tracker.
// Call it only between ticks.
func (p *Pipeline) Reset() {
	p.regulator.Reset()
	p.angle.Reset()
	p.bad = 0
}

// Tick runs one control period with the configuration snapshot cfg
func (p *Pipeline) Tick(cfg *config.Config, in *Input) Output {
	p.applyRequest(cfg)
	p.telemetry.Ticks++

	if p.state == Idle {
		duty := svm.Uniform(cfg.ZeroDuty)
		// Nothing was measured or regulated this tick
		p.telemetry = Telemetry{
			Theta:          p.angle.Theta,
			Omega:          p.angle.Omega,
			Duty:           duty,
			Status:         StatusIdle,
			State:          Idle,
			Ticks:          p.telemetry.Ticks,
			IntegralD:      p.regulator.IntegralD,
			IntegralQ:      p.regulator.IntegralQ,
			ConsecutiveBad: p.bad,
		}
		return Output{Duty: duty, Status: StatusIdle, State: Idle}
	}
	return p.run(cfg, in)
}

func (p *Pipeline) applyRequest(cfg *config.Config) {
	switch p.request.Swap(requestNone) {
	case requestEnable:
		if p.state == Idle {
			p.regulator.Reset()
			p.last = svm.Uniform(cfg.ZeroDuty)
			p.bad = 0
			p.state = Running
		}
	case requestDisable:
		p.state = Idle
	}
}

func (p *Pipeline) run(cfg *config.Config, in *Input) Output {
	dt := in.Dt
	if dt == 0 {
		dt = cfg.Period
	}
	if !validInput(cfg, in, dt) {
		return p.fault(cfg)
	}

	var status Status
	conv := cfg.Convention

	// Stage 1: angle (sensor-fed angles are taken at entry)
	if cfg.AngleMode == angle.PassThrough {
		p.angle.Set(in.Angle, in.Omega)
	}
	sin, cos := p.angle.Sincos()

	// Stage 2: forward transforms
	var iab transform.Stationary
	if cfg.Sensing == transform.TwoShunt {
		iab = transform.ClarkeBalanced(in.Currents.A, in.Currents.B, conv)
	} else {
		iab = transform.Clarke(in.Currents, conv)
		if cfg.ImbalanceTolerance > 0 &&
			math32.Abs(transform.Imbalance(in.Currents)) > cfg.ImbalanceTolerance {
			status |= StatusImbalance
		}
	}
	idq := transform.Park(iab, sin, cos)

	// Stage 3: current regulation
	rp := cfg.RegulatorParams()
	mp := cfg.ModulatorParams()
	vdq, rs := regulator.Step(&p.regulator, &rp, &regulator.Input{
		Measured:   idq,
		Reference:  in.Reference,
		Omega:      in.Omega,
		MaxVoltage: conv.FromAmplitude(mp.MaxVoltage(in.BusVoltage)),
		Dt:         dt,
	})
	if rs&regulator.Fault != 0 {
		return p.fault(cfg)
	}
	if rs&regulator.Saturated != 0 {
		status |= StatusRegulatorSaturated
	}

	// Stage 4: inverse Park
	vab := transform.InversePark(vdq, sin, cos)

	// Stage 5: modulation
	res := svm.Modulate(&mp, conv.ToAmplitude(vab), in.BusVoltage)
	if res.Saturated {
		status |= StatusModulatorSaturated
	}

	// Integrated angles advance after regulation
	if cfg.AngleMode == angle.Integrating {
		p.angle.Advance(in.Omega, dt)
	}

	p.last = res.Duty
	p.bad = 0

	p.telemetry = Telemetry{
		Current:   iab,
		CurrentDQ: idq,
		Voltage:   vdq,
		VoltageAB: vab,
		Theta:     p.angle.Theta,
		Omega:     p.angle.Omega,
		Sector:    res.Sector,
		Duty:      res.Duty,
		Status:    status,
		State:     Running,
		Ticks:     p.telemetry.Ticks,
		IntegralD: p.regulator.IntegralD,
		IntegralQ: p.regulator.IntegralQ,
	}
	return Output{Duty: res.Duty, Status: status, State: Running}
}

// fault emits the configured fault output without touching the regulator or
// angle state, and drops to Idle once the fault tolerance is exceeded
func (p *Pipeline) fault(cfg *config.Config) Output {
	status := StatusInvalidInput
	duty := p.last
	if cfg.FaultOutput == config.SafeDefault {
		duty = svm.Uniform(cfg.ZeroDuty)
	}

	if p.bad < 255 {
		p.bad++
	}
	if p.bad > cfg.FaultTolerance {
		p.state = Idle
		status |= StatusFault
	}

	p.telemetry.Duty = duty
	p.telemetry.Status = status
	p.telemetry.State = p.state
	p.telemetry.ConsecutiveBad = p.bad
	return Output{Duty: duty, Status: status, State: p.state}
}

func validInput(cfg *config.Config, in *Input, dt float32) bool {
	ok := finite(in.Currents.A) && finite(in.Currents.B) &&
		finite(in.Reference.D) && finite(in.Reference.Q) &&
		finite(in.Omega) && finite(dt) && dt > 0 &&
		finite(in.BusVoltage) && in.BusVoltage > 0
	if cfg.Sensing == transform.ThreeShunt {
		ok = ok && finite(in.Currents.C)
	}
	if cfg.AngleMode == angle.PassThrough {
		ok = ok && finite(in.Angle)
	}
	return ok
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}
