package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFanControl struct {
	speeds   []FanSpeed
	feedback Feedback
	err      error
}

func (f *fakeFanControl) SetSpeed(speed FanSpeed) error {
	f.speeds = append(f.speeds, speed)
	return nil
}

func (f *fakeFanControl) ReadFeedback() (Feedback, error) {
	return f.feedback, f.err
}

func (f *fakeFanControl) lastSpeed() FanSpeed {
	if len(f.speeds) == 0 {
		return 0
	}
	return f.speeds[len(f.speeds)-1]
}

func TestMonitorTickAppliesPIDFromChainTemperature(t *testing.T) {
	fan := &fakeFanControl{feedback: Feedback{TachPerFan: []int{400, 400}}}
	cfg := Config{
		FanConfig:  &FanControlConfig{MinFans: 1, Mode: FanControlMode{TargetTemperature: 70}},
		TempConfig: &TempControlConfig{DangerousTempC: 100, HotTempC: 95},
	}
	m := New(cfg, fan, NewPID(2, 0, 0), nil)

	now := time.Now()
	m.Notify(0, EventOn, Temperature{})
	m.Notify(0, EventRunning, Temperature{ValueC: 60, Known: true})
	m.tick(now)

	assert.Greater(t, int(fan.lastSpeed()), 0)
}

func TestMonitorTickShutsDownOnDangerousTemperature(t *testing.T) {
	fan := &fakeFanControl{feedback: Feedback{TachPerFan: []int{400}}}
	var fatalReason string
	cfg := Config{
		FanConfig:  &FanControlConfig{MinFans: 1, Mode: FanControlMode{TargetTemperature: 70}},
		TempConfig: &TempControlConfig{DangerousTempC: 100, HotTempC: 95},
	}
	m := New(cfg, fan, NewPID(2, 0, 0), func(reason string) { fatalReason = reason })

	now := time.Now()
	m.Notify(0, EventOn, Temperature{})
	m.Notify(0, EventRunning, Temperature{ValueC: 101, Known: true})
	m.tick(now)

	assert.Equal(t, "dangerous temperature", fatalReason)
	assert.Equal(t, FanFull, fan.lastSpeed())
}

func TestMonitorTickShutsDownWhenAChainGoesBroken(t *testing.T) {
	fan := &fakeFanControl{feedback: Feedback{TachPerFan: []int{400}}}
	var fatalReason string
	cfg := Config{FanConfig: &FanControlConfig{MinFans: 1}}
	m := New(cfg, fan, NewPID(2, 0, 0), func(reason string) { fatalReason = reason })

	now := time.Now()
	m.Notify(0, EventOn, Temperature{})
	m.mu.Lock()
	m.chains[0].EnteredAt = now.Add(-StartTimeout)
	m.mu.Unlock()

	m.tick(now)

	assert.Equal(t, "chain broken", fatalReason)
}

func TestMonitorTickEscalatesToShutdownBelowMinFans(t *testing.T) {
	fan := &fakeFanControl{feedback: Feedback{TachPerFan: []int{}}}
	var fatalReason string
	cfg := Config{FanConfig: &FanControlConfig{MinFans: 1, Mode: FanControlMode{Fixed: true, FixedSpeed: 50}}}
	m := New(cfg, fan, NewPID(2, 0, 0), func(reason string) { fatalReason = reason })

	now := time.Now()
	m.Notify(0, EventOn, Temperature{})
	m.tick(now)

	assert.Equal(t, "not enough fans", fatalReason)
}

func TestMonitorSubscribePublishesAfterTick(t *testing.T) {
	fan := &fakeFanControl{feedback: Feedback{TachPerFan: []int{400}}}
	cfg := Config{FanConfig: &FanControlConfig{MinFans: 1, Mode: FanControlMode{Fixed: true, FixedSpeed: 30}}}
	m := New(cfg, fan, NewPID(2, 0, 0), nil)
	sub := m.Subscribe()

	now := time.Now()
	m.Notify(0, EventOn, Temperature{})
	m.tick(now)

	select {
	case status := <-sub:
		snap, ok := status.Chains[0]
		require.True(t, ok)
		assert.Equal(t, On, snap.State)
		assert.Equal(t, FanSpeed(30), snap.FanDuty)
	default:
		t.Fatal("expected a published status")
	}
}
