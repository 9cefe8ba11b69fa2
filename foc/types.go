package foc

import (
	"gofoc/foc/svm"
	"gofoc/foc/transform"
)

// State is the orchestrator state
type State uint8

const (
	// Idle emits the zero duty and does not advance controller state.
	Idle State = iota
	// Running executes the full pipeline every tick.
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Status is a set of per-tick condition flags
type Status uint16

const (
	StatusIdle               Status = 1 << iota // Pipeline not driving
	StatusInvalidInput                          // Non-finite or out-of-range input; fault output emitted
	StatusFault                                 // Fault tolerance exceeded; dropped to Idle
	StatusRegulatorSaturated                    // Voltage command clamped
	StatusModulatorSaturated                    // Vector clamped to the modulation limit
	StatusImbalance                             // |ia+ib+ic| above tolerance
)

// Has reports whether all flags in f are set
func (s Status) Has(f Status) bool {
	return s&f == f
}

var statusNames = [...]string{"idle", "invalid", "fault", "reg_sat", "mod_sat", "imbalance"}

func (s Status) String() string {
	if s == 0 {
		return "ok"
	}
	str := ""
	for i, name := range statusNames {
		if s&(1<<i) != 0 {
			if str != "" {
				str += "|"
			}
			str += name
		}
	}
	return str
}

// Input is the per-tick data supplied by the collaborators
type Input struct {
	Currents   transform.ThreePhase // Phase currents in amps; C unused with two-shunt sensing
	BusVoltage float32              // DC link voltage
	Angle      float32              // Electrical angle for PassThrough mode
	Omega      float32              // Electrical rad/s; integrated in Integrating mode, used for decoupling in both
	Reference  transform.Rotating   // i_d*, i_q*
	Dt         float32              // Tick duration in seconds; 0 uses the configured period
}

// Output is the per-tick result handed to the PWM collaborator
type Output struct {
	Duty   svm.Duty
	Status Status
	State  State // State after this tick
}

// Telemetry is a read-only copy of the intermediate quantities of the most
// recent tick
type Telemetry struct {
	Current        transform.Stationary // i_alpha, i_beta
	CurrentDQ      transform.Rotating   // i_d, i_q
	Voltage        transform.Rotating   // v_d, v_q
	VoltageAB      transform.Stationary // v_alpha, v_beta
	Theta          float32
	Omega          float32
	Sector         svm.Sector
	Duty           svm.Duty
	Status         Status
	State          State
	Ticks          uint32
	IntegralD      float32
	IntegralQ      float32
	ConsecutiveBad uint8
}
