package core

import (
	"errors"
	"testing"

	"gofoc/foc"
	"gofoc/foc/config"
)

func TestDriveStartConfiguresInverter(t *testing.T) {
	r := newTestRig(config.Default())
	if err := r.drive.Start(); err != nil {
		t.Fatal(err)
	}
	if r.inv.period != 600 {
		t.Errorf("inverter period %d ticks, want 600", r.inv.period)
	}
	if r.inv.enabled {
		t.Error("gates enabled before the pipeline runs")
	}
	if err := r.drive.Start(); err != ErrDriveRunning {
		t.Errorf("second Start: %v", err)
	}
}

func TestDriveIdleWritesZeroDuty(t *testing.T) {
	r := newTestRig(config.Default())
	r.drive.Start()
	r.advance(3)

	if r.inv.writes != 3 {
		t.Errorf("%d compare writes after 3 periods", r.inv.writes)
	}
	if r.inv.a != 500 || r.inv.b != 500 || r.inv.c != 500 {
		t.Errorf("idle compares %d %d %d, want 500", r.inv.a, r.inv.b, r.inv.c)
	}
}

func TestDriveEnableRunsPipeline(t *testing.T) {
	r := newTestRig(config.Default())
	r.drive.Start()
	r.drive.SetReference(0, 1)
	r.drive.Enable()
	r.advance(1)

	if !r.inv.enabled {
		t.Fatal("gates not enabled after the first running tick")
	}
	tel := r.drive.Telemetry()
	if tel.State != foc.Running {
		t.Fatalf("state %v", tel.State)
	}
	// theta = 0 puts the whole q voltage on beta: phase A stays centred
	if r.inv.a != 500 || r.inv.b <= 500 || r.inv.c >= 500 {
		t.Errorf("compares %d %d %d", r.inv.a, r.inv.b, r.inv.c)
	}
	if ref := r.drive.Reference(); ref.D != 0 || ref.Q != 1 {
		t.Errorf("reference %+v", ref)
	}

	r.drive.Disable()
	r.advance(1)
	if r.inv.enabled {
		t.Error("gates still enabled after disable")
	}
	if r.inv.a != 500 || r.inv.b != 500 || r.inv.c != 500 {
		t.Errorf("disabled compares %d %d %d", r.inv.a, r.inv.b, r.inv.c)
	}
}

func TestDriveLostAngleTrips(t *testing.T) {
	r := newTestRig(config.Default())
	r.drive.Start()
	r.drive.SetReference(0, 1)
	r.drive.Enable()
	r.advance(2)
	held := [3]uint32{r.inv.a, r.inv.b, r.inv.c}

	r.angle.ok = false
	r.advance(1)

	if [3]uint32{r.inv.a, r.inv.b, r.inv.c} != held {
		t.Errorf("fault tick did not hold the last duty")
	}
	if r.inv.enabled {
		t.Error("gates still enabled after trip")
	}
	if _, trips := r.drive.Faults(); trips != 1 {
		t.Errorf("trips = %d", trips)
	}

	events := TickEvents()
	if len(events) == 0 || events[len(events)-1].EventType != EvtTrip {
		t.Errorf("trip not recorded: %+v", events)
	}

	// Stays idle until re-enabled even with a good angle
	r.angle.ok = true
	r.advance(1)
	if r.drive.Telemetry().State != foc.Idle {
		t.Error("left idle without enable")
	}
}

func TestDriveStepWithoutTimer(t *testing.T) {
	r := newTestRig(config.Default())
	r.drive.Enable()

	cfg := config.Default()
	cfg.FaultTolerance = 2
	r.sampler.raw.Bus = 0
	out := r.drive.Step(&cfg)

	if !out.Status.Has(foc.StatusInvalidInput) || out.State != foc.Running {
		t.Errorf("zero bus within tolerance: %+v", out)
	}
	if r.drive.BusVoltage() != 0 {
		t.Errorf("bus voltage %v", r.drive.BusVoltage())
	}
}

func TestDrivePublish(t *testing.T) {
	r := newTestRig(config.Default())
	r.drive.Start()

	cfg := config.Default()
	cfg.Q.Kp = 2
	if err := r.drive.Publish(&cfg); err != nil {
		t.Fatal(err)
	}
	if r.drive.Config().Q.Kp != 2 {
		t.Error("published config not active")
	}

	bad := cfg
	bad.D.Ki = -1
	if err := r.drive.Publish(&bad); !errors.Is(err, config.ErrNegativeGain) {
		t.Errorf("negative gain: %v", err)
	}
	if r.drive.Config().D.Ki != cfg.D.Ki {
		t.Error("rejected config replaced the active one")
	}

	period := cfg
	period.Period = 100e-6
	if err := r.drive.Publish(&period); !errors.Is(err, config.ErrPeriod) {
		t.Errorf("period change while running: %v", err)
	}

	r.drive.Stop()
	if err := r.drive.Publish(&period); err != nil {
		t.Errorf("period change while stopped: %v", err)
	}
}

func TestDriveStop(t *testing.T) {
	r := newTestRig(config.Default())
	r.drive.Start()
	r.drive.Enable()
	r.advance(2)

	r.drive.Stop()
	writes := r.inv.writes
	r.advance(3)

	if r.inv.writes != writes {
		t.Error("control timer still running after Stop")
	}
	if r.inv.enabled {
		t.Error("gates enabled after Stop")
	}
	if r.drive.Telemetry().State != foc.Idle {
		t.Error("pipeline not idle after Stop")
	}
}

func TestDriveOverrun(t *testing.T) {
	r := newTestRig(config.Default())
	r.drive.Start()

	SetTime(GetTime() + 5*r.drive.period)
	ProcessTimers()

	if r.inv.writes != 1 {
		t.Errorf("%d ticks run for a late timer, want 1", r.inv.writes)
	}
	if overruns, _ := r.drive.Faults(); overruns != 1 {
		t.Errorf("overruns = %d", overruns)
	}

	r.advance(1)
	if r.inv.writes != 2 {
		t.Errorf("timer did not resume after overrun")
	}
}

func TestDriveSetCalibration(t *testing.T) {
	r := newTestRig(config.Default())
	cal := testCalibration
	cal.Bus.Gain = 0.02
	if err := r.drive.SetCalibration(cal); err != nil {
		t.Fatal(err)
	}
	r.drive.Start()
	if err := r.drive.SetCalibration(testCalibration); err != ErrDriveRunning {
		t.Errorf("calibration while running: %v", err)
	}
	r.advance(1)
	if v := r.drive.BusVoltage(); abs32(v-48) > 1e-3 {
		t.Errorf("bus %v, want 48", v)
	}
}
