package monitor

// FanSpeed is a fan PWM duty, 0 (stopped) to 100 (full speed).
type FanSpeed uint8

const (
	FanStopped FanSpeed = 0
	FanFull    FanSpeed = 100
)

// Feedback is the fan controller's tachometer report, per spec.md §6:
// Feedback{tach_per_fan[], num_fans_running()}.
type Feedback struct {
	TachPerFan []int
}

// NumFansRunning counts fans reporting a nonzero tach reading, the
// input decide() compares against a chain's MinFans floor.
func (f Feedback) NumFansRunning() int {
	n := 0
	for _, t := range f.TachPerFan {
		if t > 0 {
			n++
		}
	}
	return n
}

// FanControl is the hardware capability the Monitor drives, per
// spec.md §6: set_speed(Speed) and read_feedback() -> Feedback.
type FanControl interface {
	SetSpeed(speed FanSpeed) error
	ReadFeedback() (Feedback, error)
}

// FanControlMode mirrors bosminer-antminer's FanControlMode enum: a
// chain either runs its fans at a fixed speed, or targets a
// temperature via PID.
type FanControlMode struct {
	Fixed          bool
	FixedSpeed     FanSpeed
	TargetTemperature float64 // only meaningful when Fixed == false
}

// FanControlConfig mirrors FanControlConfig.
type FanControlConfig struct {
	Mode    FanControlMode
	MinFans int
}

// TempControlConfig mirrors TempControlConfig.
type TempControlConfig struct {
	DangerousTempC float64
	HotTempC       float64
}

// Config mirrors monitor.rs's Config: both sub-configs are optional,
// and a chain can ask for fans to spin during warm-up even with a
// fan_config that would otherwise idle them.
type Config struct {
	FanConfig           *FanControlConfig
	TempConfig          *TempControlConfig
	FansOnWhileWarmingUp bool
}

// TemperatureStatus classifies the current reading for reporting,
// mirroring bosminer's TemperatureStatus enum.
type TemperatureStatus int

const (
	StatusNone TemperatureStatus = iota
	StatusDangerous
	StatusHot
	StatusNormal
	StatusCold
)

// DecisionKind mirrors bosminer's ControlDecision enum.
type DecisionKind int

const (
	DecisionNothing DecisionKind = iota
	DecisionShutdown
	DecisionUsePID
	DecisionUseFixedSpeed
)

// Decision mirrors ControlDecisionExplained.
type Decision struct {
	Kind              DecisionKind
	FixedSpeed        FanSpeed
	TargetTempC       float64
	InputTempC        float64
	Reason            string
	TemperatureStatus TemperatureStatus
}

// Temperature is an Option<f32> reading, matching bosminer's
// Result<f32, SensorError>/Option collapse at the monitor boundary.
type Temperature struct {
	ValueC float64
	Known  bool
}

// Decide is the chain's fan/shutdown decision function, a byte-for-byte
// port of bosminer-antminer's monitor.rs decide(): dangerous
// temperature always wins, then fan policy runs, then a running-fan
// floor check can still escalate to Shutdown.
func Decide(cfg Config, temp Temperature, numFansRunning int) Decision {
	if cfg.TempConfig != nil && temp.Known && temp.ValueC >= cfg.TempConfig.DangerousTempC {
		return Decision{Kind: DecisionShutdown, Reason: "dangerous temperature", TemperatureStatus: StatusDangerous}
	}

	if cfg.FanConfig == nil {
		return Decision{Kind: DecisionNothing, Reason: "control disabled"}
	}

	var decision Decision
	if cfg.TempConfig != nil {
		decision = decideFanControl(*cfg.FanConfig, *cfg.TempConfig, temp)
	} else {
		decision = decideFanControlNoTemp(*cfg.FanConfig)
	}

	if decision.Kind == DecisionUseFixedSpeed && decision.FixedSpeed == FanStopped {
		return decision
	}
	if numFansRunning < cfg.FanConfig.MinFans {
		return Decision{Kind: DecisionShutdown, Reason: "not enough fans"}
	}
	return decision
}

func decideFanControl(fanCfg FanControlConfig, tempCfg TempControlConfig, temp Temperature) Decision {
	if !temp.Known {
		return Decision{Kind: DecisionUseFixedSpeed, FixedSpeed: FanFull, Reason: "unknown temperature"}
	}
	if fanCfg.Mode.Fixed {
		return Decision{Kind: DecisionUseFixedSpeed, FixedSpeed: fanCfg.Mode.FixedSpeed, Reason: "user defined fan", TemperatureStatus: StatusNormal}
	}
	if temp.ValueC >= tempCfg.HotTempC {
		return Decision{Kind: DecisionUseFixedSpeed, FixedSpeed: FanFull, TemperatureStatus: StatusHot}
	}
	return Decision{
		Kind:              DecisionUsePID,
		TargetTempC:       fanCfg.Mode.TargetTemperature,
		InputTempC:        temp.ValueC,
		TemperatureStatus: StatusNormal,
	}
}

func decideFanControlNoTemp(fanCfg FanControlConfig) Decision {
	if fanCfg.Mode.Fixed {
		return Decision{Kind: DecisionUseFixedSpeed, FixedSpeed: fanCfg.Mode.FixedSpeed}
	}
	return Decision{Kind: DecisionUseFixedSpeed, FixedSpeed: FanFull, Reason: "wrong configuration - temp control off"}
}
