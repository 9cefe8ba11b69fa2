package core

import (
	"errors"
	"testing"
)

type fakeReader struct {
	theta, omega float32
	err          error
	reads        int
}

func (f *fakeReader) ReadAngle() (float32, float32, error) {
	f.reads++
	return f.theta, f.omega, f.err
}

func TestAnglePollerServesLatest(t *testing.T) {
	resetGlobals()
	reader := &fakeReader{theta: 1, omega: 0}
	p := NewAnglePoller(reader, 1200)
	p.Start()

	theta, _, ok := p.Angle()
	if !ok || theta != 1 {
		t.Fatalf("angle %v ok=%v", theta, ok)
	}

	reader.theta = 2
	SetTime(1200)
	ProcessTimers()
	if theta, _, _ := p.Angle(); theta != 2 || reader.reads != 2 {
		t.Errorf("after poll: theta %v reads %d", theta, reader.reads)
	}
}

func TestAnglePollerExtrapolates(t *testing.T) {
	resetGlobals()
	p := NewAnglePoller(&fakeReader{theta: 1, omega: 100}, 12000)
	p.Poll()

	// 100us at 100 rad/s
	SetTime(1200)
	theta, omega, ok := p.Angle()
	if !ok || omega != 100 || abs32(theta-1.01) > 1e-5 {
		t.Errorf("theta %v omega %v ok %v", theta, omega, ok)
	}
}

func TestAnglePollerStale(t *testing.T) {
	resetGlobals()
	reader := &fakeReader{theta: 1}
	p := NewAnglePoller(reader, 100)
	p.Start()

	reader.err = errors.New("nack")
	for now := uint32(100); now <= 500; now += 100 {
		SetTime(now)
		ProcessTimers()
	}
	if _, _, ok := p.Angle(); ok {
		t.Error("stale angle reported valid")
	}
	if p.Errors() != 5 {
		t.Errorf("errors %d, want 5", p.Errors())
	}

	p.Stop()
	reader.err = nil
	SetTime(600)
	ProcessTimers()
	if reader.reads != 6 {
		t.Errorf("stopped poller kept reading: %d reads", reader.reads)
	}
}

func TestAnglePollerReadDuringUpdate(t *testing.T) {
	resetGlobals()
	p := NewAnglePoller(&fakeReader{theta: 1, omega: 100}, 12000)
	p.Poll()

	// A read that lands while the main loop is part way through Poll
	SetTime(1200)
	p.stage(angleReading{theta: 3, omega: -50, stamp: 1200})
	theta, omega, ok := p.Angle()
	if !ok || omega != 100 || abs32(theta-1.01) > 1e-5 {
		t.Errorf("mid-update read: theta %v omega %v ok %v, want the previous reading", theta, omega, ok)
	}

	p.commit()
	theta, omega, ok = p.Angle()
	if !ok || theta != 3 || omega != -50 {
		t.Errorf("after commit: theta %v omega %v ok %v", theta, omega, ok)
	}
}
