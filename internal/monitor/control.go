package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TickLength is how often the Monitor's control tick runs, per
// spec.md §4.9: "every TICK_LENGTH (5 s)".
const TickLength = 5 * time.Second

// Monitor is the control-tick orchestrator spec.md §4.9 describes: it
// tracks every chain's ChainStatus, aggregates their temperatures,
// reads fan feedback, applies Decide, drives the fan controller and
// PID, and publishes a Status snapshot each tick.
type Monitor struct {
	mu       sync.Mutex
	cfg      Config
	chains   map[int]*ChainStatus
	temps    map[int]Temperature
	fan      FanControl
	pid      *PID
	onFatal  func(reason string)
	bcast    Broadcaster
	lastTick time.Time
	fanDuty  FanSpeed
}

// New builds a Monitor driving fanCtl under cfg, feeding pid on
// PID-mode decisions, and calling onFatal when a chain breaks, the
// temperature goes dangerous, or too few fans report running — the
// three "fatal to the system" conditions spec.md §7 names.
func New(cfg Config, fanCtl FanControl, pid *PID, onFatal func(reason string)) *Monitor {
	return &Monitor{
		cfg:     cfg,
		chains:  make(map[int]*ChainStatus),
		temps:   make(map[int]Temperature),
		fan:     fanCtl,
		pid:     pid,
		onFatal: onFatal,
	}
}

// Subscribe returns a channel receiving every future published Status.
func (m *Monitor) Subscribe() <-chan Status {
	return m.bcast.Subscribe()
}

// Notify reports a chain's status-channel message, per spec.md §6:
// On | Running(TempReading) | Off. A temp reading only applies on
// EventRunning; it is ignored for On/Off messages.
func (m *Monitor) Notify(chainID int, event ChainEvent, temp Temperature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.chains[chainID]
	if !ok {
		cs = &ChainStatus{State: Off}
		m.chains[chainID] = cs
	}
	cs.Apply(event, time.Now())
	if event == EventRunning {
		m.temps[chainID] = temp
	}
}

// Run drives the control tick every TickLength until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(TickLength)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.tick(now)
		}
	}
}

// tick implements spec.md §4.9 steps 1-5 for a single control period.
func (m *Monitor) tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Step 1: advance every chain's state; a chain in Broken, whether
	// it timed out here or was demoted by an illegal message, is fatal
	// to the whole miner.
	broken := false
	for _, cs := range m.chains {
		cs.Tick(now)
		if cs.State == Broken {
			broken = true
		}
	}

	// Step 2: aggregate max temperature and warm-up status.
	accTemp, warmingUp := m.aggregate(now)

	// Step 3: read fan feedback.
	var feedback Feedback
	if m.fan != nil {
		fb, err := m.fan.ReadFeedback()
		if err == nil {
			feedback = fb
		}
	}

	// Step 4: decide and act.
	decision := Decide(m.cfg, accTemp, feedback.NumFansRunning())
	if broken {
		decision = Decision{Kind: DecisionShutdown, Reason: "chain broken"}
	}

	dt := TickLength.Seconds()
	if !m.lastTick.IsZero() {
		dt = now.Sub(m.lastTick).Seconds()
	}
	m.lastTick = now

	if warmingUp && m.cfg.FansOnWhileWarmingUp {
		m.pid.SetWarmUpLimits()
	} else {
		m.pid.SetNormalLimits()
	}
	m.act(decision, dt)

	// Step 5: publish a status snapshot.
	snapshot := make(map[int]ChainSnapshot, len(m.chains))
	for id, cs := range m.chains {
		snapshot[id] = ChainSnapshot{
			State:       cs.State,
			Temperature: m.temps[id],
			FanDuty:     m.fanDuty,
			Decision:    decision,
		}
	}
	m.bcast.Publish(Status{Chains: snapshot})
}

// aggregate computes acc_temp (the max known reading across chains)
// and whether any chain is within its warm-up period.
func (m *Monitor) aggregate(now time.Time) (Temperature, bool) {
	acc := Temperature{Known: false}
	warmingUp := false
	for id, cs := range m.chains {
		if cs.IsWarmingUp(now) {
			warmingUp = true
		}
		t, ok := m.temps[id]
		if !ok || !t.Known {
			continue
		}
		if !acc.Known || t.ValueC > acc.ValueC {
			acc = t
		}
	}
	return acc, warmingUp
}

// act carries out decision: shutting the system down, driving the fan
// controller to a fixed duty, or feeding the PID loop and applying its
// output, per spec.md §4.9 step 4 and §7.
func (m *Monitor) act(decision Decision, dtSeconds float64) {
	switch decision.Kind {
	case DecisionShutdown:
		// A fatal shutdown leaves fans at full speed rather than
		// stopping them, per spec.md §7.
		if m.fan != nil {
			_ = m.fan.SetSpeed(FanFull)
		}
		m.fanDuty = FanFull
		if m.onFatal != nil {
			reason := decision.Reason
			if reason == "" {
				reason = "monitor requested shutdown"
			}
			m.onFatal(reason)
		}
	case DecisionUseFixedSpeed:
		if m.fan != nil {
			_ = m.fan.SetSpeed(decision.FixedSpeed)
		}
		m.fanDuty = decision.FixedSpeed
	case DecisionUsePID:
		out := m.pid.Update(decision.TargetTempC, decision.InputTempC, dtSeconds)
		if m.fan != nil {
			_ = m.fan.SetSpeed(out)
		}
		m.fanDuty = out
	case DecisionNothing:
		// no action.
	}
}

// String renders a Decision for logging.
func (d Decision) String() string {
	return fmt.Sprintf("kind=%d reason=%q", d.Kind, d.Reason)
}
