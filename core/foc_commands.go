package core

import (
	"gofoc/foc/angle"
	"gofoc/foc/config"
	"gofoc/foc/svm"
	"gofoc/foc/transform"
	"gofoc/protocol"
)

// InitFOCCommands registers the drive commands for d. Configuration
// commands are answered with foc_config_result.
func InitFOCCommands(d *Drive) {
	RegisterCommand("config_foc",
		"period=%u angle_mode=%c convention=%c sensing=%c method=%c fault_output=%c fault_tolerance=%c zero_duty=%u imbalance=%u",
		func(data *[]byte) error { return d.handleConfig(data) })
	RegisterCommand("foc_gains", "d_kp=%u d_ki=%u q_kp=%u q_ki=%u",
		func(data *[]byte) error { return d.handleGains(data) })
	RegisterCommand("foc_limits", "voltage=%u integral=%u modulation=%u",
		func(data *[]byte) error { return d.handleLimits(data) })
	RegisterCommand("foc_decoupling", "enable=%c ld=%u lq=%u flux=%u",
		func(data *[]byte) error { return d.handleDecoupling(data) })
	RegisterCommand("foc_reference", "d=%u q=%u",
		func(data *[]byte) error { return d.handleReference(data) })
	RegisterCommand("foc_enable", "", func(*[]byte) error {
		if IsShutdown() {
			return nil
		}
		d.Enable()
		return nil
	})
	RegisterCommand("foc_disable", "", func(*[]byte) error {
		d.Disable()
		return nil
	})
	RegisterCommand("query_foc_status", "",
		func(*[]byte) error { d.sendStatus(); return nil })

	RegisterResponse("foc_config_result", "ok=%c msg=%*s")
	RegisterResponse("foc_status",
		"clock=%u state=%c status=%hu sector=%c ticks=%u id=%u iq=%u vd=%u vq=%u theta=%u omega=%u duty_a=%u duty_b=%u duty_c=%u overruns=%u trips=%u")

	RegisterEnumeration("angle_mode", []string{angle.PassThrough.String(), angle.Integrating.String()})
	RegisterEnumeration("convention", []string{transform.AmplitudeInvariant.String(), transform.PowerInvariant.String()})
	RegisterEnumeration("sensing", []string{transform.ThreeShunt.String(), transform.TwoShunt.String()})
	RegisterEnumeration("method", []string{
		svm.SpaceVector.String(), svm.Sinusoidal.String(), svm.Trapezoidal.String(), svm.Square.String(),
	})
	RegisterEnumeration("fault_output", []string{config.HoldLast.String(), config.SafeDefault.String()})

	RegisterShutdownHook(d.Stop)
	GetGlobalDictionary().Invalidate()
}

// decodeFloats fills dst from consecutive float arguments
func decodeFloats(data *[]byte, dst ...*float32) error {
	for _, p := range dst {
		v, err := protocol.DecodeVLQFloat(data)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

func decodeBytes(data *[]byte, dst ...*uint8) error {
	for _, p := range dst {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		*p = uint8(v)
	}
	return nil
}

func (d *Drive) handleConfig(data *[]byte) error {
	cfg := d.Config()
	var mode, conv, sensing, method, fault, tol uint8
	if err := decodeFloats(data, &cfg.Period); err != nil {
		return err
	}
	if err := decodeBytes(data, &mode, &conv, &sensing, &method, &fault, &tol); err != nil {
		return err
	}
	if err := decodeFloats(data, &cfg.ZeroDuty, &cfg.ImbalanceTolerance); err != nil {
		return err
	}
	cfg.AngleMode = angle.Mode(mode)
	cfg.Convention = transform.Convention(conv)
	cfg.Sensing = transform.Sensing(sensing)
	cfg.Method = svm.Method(method)
	cfg.FaultOutput = config.FaultOutput(fault)
	cfg.FaultTolerance = tol
	return d.publishAndReport(&cfg)
}

func (d *Drive) handleGains(data *[]byte) error {
	cfg := d.Config()
	if err := decodeFloats(data, &cfg.D.Kp, &cfg.D.Ki, &cfg.Q.Kp, &cfg.Q.Ki); err != nil {
		return err
	}
	return d.publishAndReport(&cfg)
}

func (d *Drive) handleLimits(data *[]byte) error {
	cfg := d.Config()
	if err := decodeFloats(data, &cfg.VoltageLimit, &cfg.IntegralLimit, &cfg.ModulationLimit); err != nil {
		return err
	}
	return d.publishAndReport(&cfg)
}

func (d *Drive) handleDecoupling(data *[]byte) error {
	cfg := d.Config()
	var enable uint8
	if err := decodeBytes(data, &enable); err != nil {
		return err
	}
	dec := &cfg.Decoupling
	if err := decodeFloats(data, &dec.Ld, &dec.Lq, &dec.FluxLinkage); err != nil {
		return err
	}
	dec.Enabled = enable != 0
	return d.publishAndReport(&cfg)
}

func (d *Drive) handleReference(data *[]byte) error {
	var id, iq float32
	if err := decodeFloats(data, &id, &iq); err != nil {
		return err
	}
	d.SetReference(id, iq)
	return nil
}

func (d *Drive) publishAndReport(cfg *config.Config) error {
	err := d.Publish(cfg)
	SendResponse("foc_config_result", func(output protocol.OutputBuffer) {
		if err != nil {
			protocol.EncodeVLQUint(output, 0)
			protocol.EncodeVLQBytes(output, []byte(err.Error()))
			return
		}
		protocol.EncodeVLQUint(output, 1)
		protocol.EncodeVLQBytes(output, nil)
	})
	return nil
}

func (d *Drive) sendStatus() {
	tel := d.Telemetry()
	overruns, trips := d.Faults()
	clock := GetTime()
	SendResponse("foc_status", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
		protocol.EncodeVLQUint(output, uint32(tel.State))
		protocol.EncodeVLQUint(output, uint32(tel.Status))
		protocol.EncodeVLQUint(output, uint32(tel.Sector))
		protocol.EncodeVLQUint(output, tel.Ticks)
		for _, v := range [...]float32{
			tel.CurrentDQ.D, tel.CurrentDQ.Q,
			tel.Voltage.D, tel.Voltage.Q,
			tel.Theta, tel.Omega,
			tel.Duty.A, tel.Duty.B, tel.Duty.C,
		} {
			protocol.EncodeVLQFloat(output, v)
		}
		protocol.EncodeVLQUint(output, overruns)
		protocol.EncodeVLQUint(output, trips)
	})
}
