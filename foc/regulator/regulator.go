package regulator

import "gofoc/foc/transform"

// Status flags reported by Step
type Status uint8

const (
	// Saturated is set when the voltage vector was clamped this tick
	Saturated Status = 1 << iota
	// Fault is set when an input was not finite and the previous output
	// was held
	Fault
)

// Decoupling is the optional motor-parameter block used for cross-axis
// feedforward. The zero value contributes nothing.
type Decoupling struct {
	Enabled     bool
	Ld          float32 // d-axis inductance, H
	Lq          float32 // q-axis inductance, H
	FluxLinkage float32 // permanent magnet flux linkage, Wb
}

// Feedforward returns the voltage needed to cancel the speed-dependent
// coupling between the axes and the back-EMF
func (d Decoupling) Feedforward(omega float32, i transform.Rotating) transform.Rotating {
	if !d.Enabled {
		return transform.Rotating{}
	}
	return transform.Rotating{
		D: -omega * d.Lq * i.Q,
		Q: omega * (d.Ld*i.D + d.FluxLinkage),
	}
}

// Params is the regulator configuration for one tick
type Params struct {
	D             Gains
	Q             Gains
	VoltageLimit  float32 // configured bound on |v_dq|
	IntegralLimit float32 // bound on each integrator
	Decoupling    Decoupling
}

// Input is everything the regulator consumes in one tick
type Input struct {
	Measured   transform.Rotating
	Reference  transform.Rotating
	Omega      float32 // electrical rad/s, only used for decoupling
	MaxVoltage float32 // largest |v_dq| the modulator can produce at the present bus voltage
	Dt         float32
}

// State is the regulator state persisted across ticks
type State struct {
	IntegralD float32
	IntegralQ float32
	Output    transform.Rotating // last valid voltage command
}

// Reset clears the integrators and the held output
func (s *State) Reset() {
	*s = State{}
}

// Step runs both axes for one tick and returns the voltage command.
//
// The two axis outputs are limited as a vector to min(VoltageLimit,
// MaxVoltage), keeping the direction. While limited, an axis only integrates
// if its error would pull the output back towards the limit.
func Step(st *State, p *Params, in *Input) (transform.Rotating, Status) {
	if !valid(in) {
		return st.Output, Fault
	}

	limit := p.VoltageLimit
	if in.MaxVoltage < limit {
		limit = in.MaxVoltage
	}

	ff := p.Decoupling.Feedforward(in.Omega, in.Measured)
	errD := in.Reference.D - in.Measured.D
	errQ := in.Reference.Q - in.Measured.Q

	d := PI{Gains: p.D, Limit: limit, IntegralLimit: p.IntegralLimit}
	q := PI{Gains: p.Q, Limit: limit, IntegralLimit: p.IntegralLimit}
	rawD, nextD := d.Propose(st.IntegralD, errD, ff.D, in.Dt)
	rawQ, nextQ := q.Propose(st.IntegralQ, errQ, ff.Q, in.Dt)

	out := transform.Rotating{D: rawD, Q: rawQ}
	var status Status

	mag := out.Magnitude()
	saturated := mag > limit
	if saturated {
		status |= Saturated
		k := limit / mag
		out.D *= k
		out.Q *= k
	}
	if !holdIntegral(saturated, rawD, errD) {
		st.IntegralD = nextD
	}
	if !holdIntegral(saturated, rawQ, errQ) {
		st.IntegralQ = nextQ
	}

	st.Output = out
	return out, status
}

func valid(in *Input) bool {
	return finite(in.Measured.D) && finite(in.Measured.Q) &&
		finite(in.Reference.D) && finite(in.Reference.Q) &&
		finite(in.Omega) && finite(in.MaxVoltage) && finite(in.Dt) &&
		in.Dt > 0 && in.MaxVoltage > 0
}
