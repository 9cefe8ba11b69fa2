// Package regulator implements the d/q current regulator: one PI controller
// per rotating-frame axis with anti-windup, optional decoupling feedforward,
// and composite voltage-vector saturation.
package regulator

import "github.com/chewxy/math32"

// Gains are the proportional and integral gains of one axis
type Gains struct {
	Kp float32 // V/A
	Ki float32 // V/(A·s)
}

// PI is a single-axis proportional-integral controller.
// The integrator is the only state and is owned by the caller so that
// several axes can share one State struct.
type PI struct {
	Gains
	Limit         float32 // |output| bound
	IntegralLimit float32 // |integrator| bound
}

// Propose returns the unsaturated output and the integrator value this tick
// would commit, without changing any state.
// ff is added to the output but never integrated.
func (p PI) Propose(integral, err, ff, dt float32) (raw, next float32) {
	next = clamp(integral+p.Ki*err*dt, p.IntegralLimit)
	raw = p.Kp*err + next + ff
	return raw, next
}

// holdIntegral reports whether a saturated output should keep its
// integrator: integrating err would push raw further past the limit
func holdIntegral(saturated bool, raw, err float32) bool {
	return saturated && raw*err > 0
}

// PID is a single-axis controller with the derivative taken on the
// measurement, so setpoint steps do not kick the output. It carries its own
// state and shares the PI anti-windup rule.
type PID struct {
	PI
	Kd float32 // derivative gain

	integral float32
	last     float32
	primed   bool
}

// Step returns the clamped output for one tick
func (c *PID) Step(setpoint, measured, dt float32) float32 {
	err := setpoint - measured
	raw, next := c.Propose(c.integral, err, 0, dt)

	if c.primed && dt > 0 {
		raw -= c.Kd * (measured - c.last) / dt
	}
	c.last = measured
	c.primed = true

	if !holdIntegral(math32.Abs(raw) > c.Limit, raw, err) {
		c.integral = next
	}
	return clamp(raw, c.Limit)
}

// Integral returns the integrator
func (c *PID) Integral() float32 { return c.integral }

// Reset clears the integrator and the stored measurement
func (c *PID) Reset() {
	c.integral = 0
	c.primed = false
}

func clamp(v, limit float32) float32 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}
