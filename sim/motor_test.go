package sim

import (
	"math"
	"testing"

	"gofoc/foc/svm"
	"gofoc/foc/transform"
)

func TestMotorAtRestWithZeroVoltage(t *testing.T) {
	m := NewMotor(DefaultParams())
	for i := 0; i < 1000; i++ {
		m.Step(svm.Uniform(0.5), 24, 50e-6)
	}
	if m.Id != 0 || m.Iq != 0 || m.OmegaM != 0 {
		t.Errorf("motor moved with zero voltage: %+v", m)
	}
}

func TestLockedRotorSteadyCurrent(t *testing.T) {
	p := DefaultParams()
	p.Locked = true
	m := NewMotor(p)

	// 1V on the d axis (rotor at zero angle) settles at V/R
	res := svm.Modulate(&svm.Params{Method: svm.SpaceVector, Limit: 1, Zero: 0.5},
		transform.Stationary{Alpha: 1}, 24)
	for i := 0; i < 2000; i++ {
		m.Step(res.Duty, 24, 50e-6)
	}
	if math.Abs(m.Id-2) > 0.01 || math.Abs(m.Iq) > 0.01 {
		t.Errorf("id=%v iq=%v, want 2, 0", m.Id, m.Iq)
	}

	abc := m.Currents()
	if math.Abs(float64(abc.A)-2) > 0.01 || math.Abs(float64(transform.Imbalance(abc))) > 1e-4 {
		t.Errorf("phase currents %+v", abc)
	}
}

func TestElectricalAngleWraps(t *testing.T) {
	m := NewMotor(DefaultParams())
	m.ThetaM = -0.1
	theta := m.ElectricalAngle()
	if theta < 0 || theta >= 2*math.Pi {
		t.Errorf("angle %v outside [0, 2π)", theta)
	}
}
