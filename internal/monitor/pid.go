package monitor

// PID is a basic controller driving fan duty from a target-minus-input
// temperature error. Its output is clamped to the active limits; the
// integral term itself is not bounded. It exposes SetWarmUpLimits and
// SetNormalLimits as two distinct clamp-sets, confirming (per
// monitor.rs's single conditional set_warm_up_limits() call inside
// do_tick) that a running chain's "higher minimum duty while warming
// up" behavior (spec.md §4.9) is implemented as a clamp swap, not a
// separate code path.
type PID struct {
	Kp, Ki, Kd float64

	minOutput, maxOutput FanSpeed
	integral             float64
	prevError            float64
	hasPrev              bool
}

// NewPID builds a PID pre-set to its normal operating limits.
func NewPID(kp, ki, kd float64) *PID {
	p := &PID{Kp: kp, Ki: ki, Kd: kd}
	p.SetNormalLimits()
	return p
}

// SetWarmUpLimits raises the controller's minimum output so fans don't
// idle while chips are still reaching operating temperature.
func (p *PID) SetWarmUpLimits() {
	p.minOutput = 40
	p.maxOutput = FanFull
}

// SetNormalLimits restores the controller's steady-state clamp range.
func (p *PID) SetNormalLimits() {
	p.minOutput = FanStopped
	p.maxOutput = FanFull
}

// Update computes the next fan duty for a given target/input pair over
// dtSeconds since the last call.
func (p *PID) Update(targetC, inputC float64, dtSeconds float64) FanSpeed {
	errVal := targetC - inputC
	p.integral += errVal * dtSeconds
	var derivative float64
	if p.hasPrev && dtSeconds > 0 {
		derivative = (errVal - p.prevError) / dtSeconds
	}
	p.prevError = errVal
	p.hasPrev = true

	out := p.Kp*errVal + p.Ki*p.integral + p.Kd*derivative
	return p.clamp(out)
}

func (p *PID) clamp(v float64) FanSpeed {
	if v < float64(p.minOutput) {
		return p.minOutput
	}
	if v > float64(p.maxOutput) {
		return p.maxOutput
	}
	return FanSpeed(v)
}
