package link

import (
	"context"
	"errors"
	"fmt"

	"gofoc/foc"
	"gofoc/foc/config"
	"gofoc/foc/svm"
	"gofoc/protocol"
)

// ErrRejected wraps a configuration the drive refused
var ErrRejected = errors.New("drive rejected configuration")

// Status is a decoded foc_status report
type Status struct {
	Clock    uint32     `json:"clock"`
	State    foc.State  `json:"-"`
	Flags    foc.Status `json:"-"`
	Sector   svm.Sector `json:"sector"`
	Ticks    uint32     `json:"ticks"`
	Id       float32    `json:"id"`
	Iq       float32    `json:"iq"`
	Vd       float32    `json:"vd"`
	Vq       float32    `json:"vq"`
	Theta    float32    `json:"theta"`
	Omega    float32    `json:"omega"`
	Duty     [3]float32 `json:"duty"`
	Overruns uint32     `json:"overruns"`
	Trips    uint32     `json:"trips"`
}

// DecodeStatus parses the arguments of a foc_status response
func DecodeStatus(args []byte) (Status, error) {
	var s Status
	var ints [4]uint32
	for i := range ints {
		v, err := protocol.DecodeVLQUint(&args)
		if err != nil {
			return s, err
		}
		ints[i] = v
	}
	s.Clock = ints[0]
	s.State = foc.State(ints[1])
	s.Flags = foc.Status(ints[2])
	s.Sector = svm.Sector(ints[3])

	var err error
	if s.Ticks, err = protocol.DecodeVLQUint(&args); err != nil {
		return s, err
	}
	for _, p := range []*float32{
		&s.Id, &s.Iq, &s.Vd, &s.Vq, &s.Theta, &s.Omega,
		&s.Duty[0], &s.Duty[1], &s.Duty[2],
	} {
		if *p, err = protocol.DecodeVLQFloat(&args); err != nil {
			return s, err
		}
	}
	if s.Overruns, err = protocol.DecodeVLQUint(&args); err != nil {
		return s, err
	}
	s.Trips, err = protocol.DecodeVLQUint(&args)
	return s, err
}

// BusVoltage is a decoded bus_voltage_state report
type BusVoltage struct {
	NextClock uint32  `json:"next_clock"`
	Voltage   float32 `json:"voltage"`
}

// DecodeBusVoltage parses the arguments of a bus_voltage_state response
func DecodeBusVoltage(args []byte) (BusVoltage, error) {
	var b BusVoltage
	var err error
	if b.NextClock, err = protocol.DecodeVLQUint(&args); err != nil {
		return b, err
	}
	b.Voltage, err = protocol.DecodeVLQFloat(&args)
	return b, err
}

// TickEvent is one entry of the drive's control tick event ring
type TickEvent struct {
	Type   uint8      `json:"type"`
	Clock  uint32     `json:"clock"`
	Tick   uint32     `json:"tick"`
	Status foc.Status `json:"status"`
}

// QueryStatus requests a status report
func (l *Link) QueryStatus(ctx context.Context) (Status, error) {
	args, err := l.Query(ctx, "query_foc_status", nil, "foc_status")
	if err != nil {
		return Status{}, err
	}
	return DecodeStatus(args)
}

// Clock returns the drive's timer counter
func (l *Link) Clock(ctx context.Context) (uint32, error) {
	args, err := l.Query(ctx, "get_clock", nil, "clock")
	if err != nil {
		return 0, err
	}
	return protocol.DecodeVLQUint(&args)
}

// PushConfig sends cfg to the drive one command group at a time.
// The first rejected group stops the push.
func (l *Link) PushConfig(ctx context.Context, cfg *config.Config) error {
	groups := []struct {
		name string
		args func(protocol.OutputBuffer)
	}{
		{"config_foc", func(o protocol.OutputBuffer) {
			protocol.EncodeVLQFloat(o, cfg.Period)
			for _, v := range []uint8{
				uint8(cfg.AngleMode), uint8(cfg.Convention), uint8(cfg.Sensing),
				uint8(cfg.Method), uint8(cfg.FaultOutput), cfg.FaultTolerance,
			} {
				protocol.EncodeVLQUint(o, uint32(v))
			}
			protocol.EncodeVLQFloat(o, cfg.ZeroDuty)
			protocol.EncodeVLQFloat(o, cfg.ImbalanceTolerance)
		}},
		{"foc_gains", floats(cfg.D.Kp, cfg.D.Ki, cfg.Q.Kp, cfg.Q.Ki)},
		{"foc_limits", floats(cfg.VoltageLimit, cfg.IntegralLimit, cfg.ModulationLimit)},
		{"foc_decoupling", func(o protocol.OutputBuffer) {
			enable := uint32(0)
			if cfg.Decoupling.Enabled {
				enable = 1
			}
			protocol.EncodeVLQUint(o, enable)
			floats(cfg.Decoupling.Ld, cfg.Decoupling.Lq, cfg.Decoupling.FluxLinkage)(o)
		}},
	}

	for _, g := range groups {
		args, err := l.Query(ctx, g.name, g.args, "foc_config_result")
		if err != nil {
			return fmt.Errorf("%s: %w", g.name, err)
		}
		ok, err := protocol.DecodeVLQUint(&args)
		if err != nil {
			return fmt.Errorf("%s: %w", g.name, err)
		}
		if ok == 0 {
			msg, _ := protocol.DecodeVLQBytes(&args)
			return fmt.Errorf("%s: %w: %s", g.name, ErrRejected, msg)
		}
	}
	return nil
}

func floats(vs ...float32) func(protocol.OutputBuffer) {
	return func(o protocol.OutputBuffer) {
		for _, v := range vs {
			protocol.EncodeVLQFloat(o, v)
		}
	}
}

// SetReference sets the d and q current references in amps
func (l *Link) SetReference(ctx context.Context, id, iq float32) error {
	return l.Send(ctx, "foc_reference", floats(id, iq))
}

// Enable requests the transition to Running
func (l *Link) Enable(ctx context.Context) error {
	return l.Send(ctx, "foc_enable", nil)
}

// Disable requests the transition to Idle
func (l *Link) Disable(ctx context.Context) error {
	return l.Send(ctx, "foc_disable", nil)
}

// EmergencyStop shuts the drive down until ClearShutdown
func (l *Link) EmergencyStop(ctx context.Context) error {
	return l.Send(ctx, "emergency_stop", nil)
}

// ClearShutdown leaves the shutdown state
func (l *Link) ClearShutdown(ctx context.Context) error {
	return l.Send(ctx, "clear_shutdown", nil)
}

// BusMonitorParams configures the drive's bus voltage monitor
type BusMonitorParams struct {
	Clock       uint32  // first sample time in drive clock ticks
	SampleTicks uint32  `mapstructure:"sample_ticks" yaml:"sample_ticks"`
	SampleCount uint8   `mapstructure:"sample_count" yaml:"sample_count"`
	RestTicks   uint32  `mapstructure:"rest_ticks" yaml:"rest_ticks"`
	Min         float32 `mapstructure:"min" yaml:"min"`
	Max         float32 `mapstructure:"max" yaml:"max"`
	RangeCheck  uint8   `mapstructure:"range_check_count" yaml:"range_check_count"`
}

// StartBusMonitor starts periodic bus_voltage_state reports. A zero
// SampleCount stops them.
func (l *Link) StartBusMonitor(ctx context.Context, p BusMonitorParams) error {
	return l.Send(ctx, "query_bus_voltage", func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, p.Clock)
		protocol.EncodeVLQUint(o, p.SampleTicks)
		protocol.EncodeVLQUint(o, uint32(p.SampleCount))
		protocol.EncodeVLQUint(o, p.RestTicks)
		protocol.EncodeVLQFloat(o, p.Min)
		protocol.EncodeVLQFloat(o, p.Max)
		protocol.EncodeVLQUint(o, uint32(p.RangeCheck))
	})
}

// TickEvents returns the drive's recorded control tick events, oldest first
func (l *Link) TickEvents(ctx context.Context) ([]TickEvent, error) {
	msgs, err := l.Collect(ctx, "query_tick_events", nil, "tick_event")
	if err != nil {
		return nil, err
	}
	events := make([]TickEvent, 0, len(msgs))
	for _, args := range msgs {
		var v [4]uint32
		for i := range v {
			if v[i], err = protocol.DecodeVLQUint(&args); err != nil {
				return events, err
			}
		}
		events = append(events, TickEvent{
			Type:   uint8(v[0]),
			Clock:  v[1],
			Tick:   v[2],
			Status: foc.Status(v[3]),
		})
	}
	return events, nil
}
