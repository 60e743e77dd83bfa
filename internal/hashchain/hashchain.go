// Package hashchain implements HashChain: the per-chain controller
// that brings chips up, programs their baud rate/midstate count/PLL
// frequency/ticket mask, and runs the work-tx, solution-rx, and
// temperature-watchdog background tasks, per spec.md §4.4 and §4.7,
// grounded on bosminer's hashchain.rs.
package hashchain

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rrybarczyk/braiins/internal/errs"
	"github.com/rrybarczyk/braiins/internal/frequency"
	"github.com/rrybarczyk/braiins/internal/halt"
	"github.com/rrybarczyk/braiins/internal/iocore"
	"github.com/rrybarczyk/braiins/internal/midstate"
	"github.com/rrybarczyk/braiins/internal/regs"
	"github.com/rrybarczyk/braiins/internal/tempsensor"
	"github.com/rrybarczyk/braiins/internal/voltage"
	"github.com/rrybarczyk/braiins/internal/work"
)

// Config holds the parameters a chain is brought up with.
type Config struct {
	ExpectedChips  int
	MidstateCount  uint
	InitialFreqHz  uint64
	VoltageMv      uint16
	AsicDifficulty uint32
	BaseClockHz    uint64
	BaseClockDiv   uint64
	FPGAFreqHz     uint64
}

// Counters are the chain's error/solution counters, copied into the
// daemon's status hub for the status API.
type Counters struct {
	SolutionsAccepted uint64
	SolutionsRejected uint64
	Duplicates        uint64
	MismatchedNonces  uint64
	GlitchCount       uint64
}

// Timing and error-budget constants for the temperature watchdog task,
// matching spec.md §4.8 / the named-constants table in §6.
const (
	tempSettleDelay          = 5 * time.Second
	tempUpdateInterval       = 5 * time.Second
	maxSuddenTemperatureJump = 12.0
	maxSensorErrors          = 10.0
	maxTempRereadAttempts    = 3
	sensorErrorDecay         = 0.9995
)

// Boundary-visible named constants from spec.md §6.
const (
	MaxChipsOnChain      = 63
	ExpectedChipsOnChain = 63
	ChipOscClkHz         = 25_000_000
	InitChipBaudRate     = 115740
	TargetChipBaudRate   = 1_562_500
	TempChipAddress      = 61
)

// NumCoresOnChip is the BM1387's per-chip SHA-256 core count. Not part
// of the retrieved original_source/ files (the bm1387 register module
// itself wasn't in the pack); 114 is the chip's well-known core count
// used to size the opencore init-work burst below.
const NumCoresOnChip = 114

// Chain drives a single hashboard.
type Chain struct {
	cfg      Config
	io       *iocore.IoCore
	voltage  *voltage.Control
	temp     *tempsensor.Sensor
	registry *work.Registry
	freq     frequency.Settings
	halt     *halt.Bus

	counters Counters

	solutionSink chan work.Solution
	workSource   func(ctx context.Context) (work.Item, bool)

	glitchReader func() (uint64, error)

	tempErrorCounter float64
	lastMaxTemp      float64
	haveLastMaxTemp  bool
	onTemperature    func(reading tempsensor.Reading, sensorless bool)
}

// SetTemperatureSink wires a callback the temperature watchdog invokes
// once per tick with the latest reading, matching spec.md §4.8 step 6
// (broadcast to the per-chain temperature channel and Monitor). A nil
// sink is valid; the watchdog still enforces limitC.
func (c *Chain) SetTemperatureSink(fn func(reading tempsensor.Reading, sensorless bool)) {
	c.onTemperature = fn
}

// New assembles a chain from its components. workSource supplies the
// next work item to dispatch (backed by a stratum job translator out
// of scope for this module); solutionSink receives accepted unique
// solutions meeting the backend target.
func New(cfg Config, io *iocore.IoCore, v *voltage.Control, t *tempsensor.Sensor, solutionSink chan work.Solution, workSource func(ctx context.Context) (work.Item, bool)) *Chain {
	return &Chain{
		cfg:          cfg,
		io:           io,
		voltage:      v,
		temp:         t,
		registry:     work.NewRegistry(256),
		freq:         frequency.FromFrequency(cfg.InitialFreqHz, cfg.ExpectedChips),
		halt:         halt.New(),
		solutionSink: solutionSink,
		workSource:   workSource,
	}
}

// ResetAndEnumerate runs spec.md §4.4 step 3.a's power sequence (reset
// asserted, voltage cycled off then on, reset released, each step
// separated by a settle delay) before enumerating, matching bosminer's
// reset_and_enumerate_and_init ordering.
func (c *Chain) ResetAndEnumerate(ctx context.Context) (int, error) {
	if err := c.io.WriteRegister(iocore.RegReset, 1); err != nil {
		return 0, errs.New(errs.Hashboard, "ResetAndEnumerate", err)
	}
	if err := c.voltage.DisableVoltage(); err != nil {
		return 0, err
	}
	if err := sleepCtx(ctx, time.Second); err != nil {
		return 0, err
	}
	if err := c.voltage.EnableVoltage(); err != nil {
		return 0, err
	}
	if err := sleepCtx(ctx, 2*time.Second); err != nil {
		return 0, err
	}
	if err := c.io.WriteRegister(iocore.RegReset, 0); err != nil {
		return 0, errs.New(errs.Hashboard, "ResetAndEnumerate", err)
	}
	if err := sleepCtx(ctx, time.Second); err != nil {
		return 0, err
	}
	return c.Enumerate(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Enumerate walks the command channel's daisy chain, probing at most
// cfg.ExpectedChips addresses and stopping at the first chip that does
// not answer. It fails when no chip responds or when more than
// MaxChipsOnChain do; a count below cfg.ExpectedChips is returned
// without error and left for the caller to accept or reject.
func (c *Chain) Enumerate(ctx context.Context) (int, error) {
	found := 0
	for addr := 0; addr < c.cfg.ExpectedChips; addr++ {
		frame := []byte{byte(addr), 0xEE} // enumeration probe frame
		if err := c.io.WriteCommand(frame); err != nil {
			return found, errs.New(errs.ChipEnumerate, "Enumerate", err)
		}
		resp, err := c.io.ReadCommand(1)
		if err != nil || len(resp) == 0 {
			break
		}
		found++
	}
	if found == 0 {
		return 0, errs.New(errs.ChipEnumerate, "Enumerate", fmt.Errorf("no chips responded"))
	}
	if found > MaxChipsOnChain {
		return found, errs.New(errs.ChipEnumerate, "Enumerate", fmt.Errorf("%d chips exceeds MAX_CHIPS_ON_CHAIN (%d)", found, MaxChipsOnChain))
	}
	if err := c.freq.SetChipCount(found); err != nil {
		return found, errs.New(errs.ChipEnumerate, "Enumerate", err)
	}
	return found, nil
}

// IPCoreInit programs the common-control registers: baud divisor then
// midstate count, matching bosminer's ip_core_init ordering.
func (c *Chain) IPCoreInit(baudRate uint64) error {
	div, err := regs.BaudDivisor(baudRate, c.cfg.BaseClockHz, c.cfg.BaseClockDiv)
	if err != nil {
		return err
	}
	if err := c.io.WriteRegister(iocore.RegBaudDiv, uint32(div)); err != nil {
		return err
	}
	mc, err := midstate.NewCount(c.cfg.MidstateCount)
	if err != nil {
		return errs.New(errs.Hashboard, "IPCoreInit", err)
	}
	return c.io.WriteRegister(iocore.RegMidstateCount, uint32(mc.ToBits()))
}

// SetAsicDiff writes the derived ticket mask to the difficulty
// register, mirroring bosminer's set_asic_diff.
func (c *Chain) SetAsicDiff(difficulty uint32) error {
	mask := regs.TicketMask(difficulty)
	return c.io.WriteRegister(iocore.RegErrorCounter, mask)
}

// ProgramPLL selects the nearest table entry not exceeding freqHz and
// programs it via the command channel.
func (c *Chain) ProgramPLL(freqHz uint64) (regs.PLLEntry, error) {
	entry, ok := regs.NearestNotExceeding(regs.DefaultPLLTable, freqHz)
	if !ok {
		return regs.PLLEntry{}, errs.New(errs.Hashboard, "ProgramPLL", fmt.Errorf("no PLL entry at or below %d Hz", freqHz))
	}
	frame := []byte{0xFD, byte(entry.Register >> 8), byte(entry.Register)}
	if err := c.io.WriteCommand(frame); err != nil {
		return regs.PLLEntry{}, errs.New(errs.Hashboard, "ProgramPLL", err)
	}
	return entry, nil
}

// RaiseToTargetBaud configures hashchain communication to run at
// TARGET_CHIP_BAUD_RATE (spec.md §4.4 step 3.e): a chip-side baud
// command frame with gate_block set and not_set_baud cleared, followed
// by raising the IP core's own baud divisor to match.
func (c *Chain) RaiseToTargetBaud() error {
	frame := []byte{0xFC, 0x01} // gate_block=true, not_set_baud=false
	if err := c.io.WriteCommand(frame); err != nil {
		return errs.New(errs.BaudRate, "RaiseToTargetBaud", err)
	}
	div, err := regs.BaudDivisor(TargetChipBaudRate, c.cfg.BaseClockHz, c.cfg.BaseClockDiv)
	if err != nil {
		return err
	}
	return c.io.WriteRegister(iocore.RegBaudDiv, uint32(div))
}

// SendOpenCoreWork dispatches one dummy work item per hashing core
// (spec.md §4.4 step 5), storing each in the registry flagged
// InitialWork so solutionRxTask silently drops any solution traced
// back to it instead of forwarding bring-up noise downstream.
func (c *Chain) SendOpenCoreWork(ctx context.Context) error {
	mc, err := midstate.NewCount(c.cfg.MidstateCount)
	if err != nil {
		return errs.New(errs.Hashboard, "SendOpenCoreWork", err)
	}
	midstates := make([][]byte, mc.ToCount())
	for i := range midstates {
		midstates[i] = make([]byte, 32)
	}
	for i := 0; i < NumCoresOnChip; i++ {
		item := &work.Item{Midstates: midstates, InitialWork: true}
		id := c.registry.Store(item)
		frame := encodeWorkFrame(id, *item)
		if err := c.io.PushWork(ctx, frame); err != nil {
			return errs.New(errs.IO, "SendOpenCoreWork", err)
		}
	}
	return nil
}

// WorkDelay returns the current per-item delay budget, derived from
// this chain's midstate count and initial PLL frequency.
func (c *Chain) WorkDelay() time.Duration {
	secs := regs.WorkDelay(c.cfg.MidstateCount, c.cfg.InitialFreqHz)
	return time.Duration(secs * float64(time.Second))
}

// Counters returns a copy of the chain's current counters.
func (c *Chain) Counters() Counters {
	return Counters{
		SolutionsAccepted: atomic.LoadUint64(&c.counters.SolutionsAccepted),
		SolutionsRejected: atomic.LoadUint64(&c.counters.SolutionsRejected),
		Duplicates:        atomic.LoadUint64(&c.counters.Duplicates),
		MismatchedNonces:  atomic.LoadUint64(&c.counters.MismatchedNonces),
		GlitchCount:       atomic.LoadUint64(&c.counters.GlitchCount),
	}
}

// SetGlitchReader wires the chain's glitch-counter diagnostic (see
// glitch.go / DESIGN.md's supplemented-features entry) to a reader of
// the underlying I2C/UART glitch counters.
func (c *Chain) SetGlitchReader(reader func() (uint64, error)) {
	c.glitchReader = reader
}

// Halt returns the chain's halt bus, so callers can register
// additional clients or trigger shutdown.
func (c *Chain) Halt() *halt.Bus { return c.halt }

// Run starts the chain's three background tasks (work-tx,
// solution-rx, temperature watchdog) and blocks until ctx is
// cancelled or a fatal error occurs in any of them.
func (c *Chain) Run(ctx context.Context, tempLimitC float64) error {
	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(3)
	c.halt.SpawnHaltHandler("work-tx", func(hc *halt.Client) {
		defer wg.Done()
		defer hc.Acknowledge()
		errCh <- c.workTxTask(ctx, hc)
	})
	c.halt.SpawnHaltHandler("solution-rx", func(hc *halt.Client) {
		defer wg.Done()
		defer hc.Acknowledge()
		errCh <- c.solutionRxTask(ctx, hc)
	})
	c.halt.SpawnHaltHandler("temp-watchdog", func(hc *halt.Client) {
		defer wg.Done()
		defer hc.Acknowledge()
		errCh <- c.tempWatchdogTask(ctx, hc, tempLimitC)
	})

	go func() {
		wg.Wait()
		close(errCh)
	}()

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) workTxTask(ctx context.Context, hc *halt.Client) error {
	delay := c.WorkDelay()
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hc.Done:
			return nil
		case <-ticker.C:
			item, ok := c.workSource(ctx)
			if !ok {
				continue
			}
			id := c.registry.Store(&item)
			frame := encodeWorkFrame(id, item)
			if err := c.io.PushWork(ctx, frame); err != nil {
				return err
			}
		}
	}
}

func (c *Chain) solutionRxTask(ctx context.Context, hc *halt.Client) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hc.Done:
			return nil
		default:
		}

		frame, ok, err := c.io.PopSolution()
		if err != nil {
			return err
		}
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		sol, err := decodeSolutionFrame(frame)
		if err != nil {
			continue
		}

		outcome, item := c.registry.InsertSolution(sol)
		switch {
		case item == nil, item.InitialWork:
			continue
		case outcome.Duplicate:
			atomic.AddUint64(&c.counters.Duplicates, 1)
		case outcome.MismatchedNonce:
			atomic.AddUint64(&c.counters.MismatchedNonces, 1)
		case outcome.UniqueSolution:
			if work.MeetsTarget(sol.Hash, item.BackendTarget) {
				atomic.AddUint64(&c.counters.SolutionsAccepted, 1)
				if c.solutionSink != nil {
					select {
					case c.solutionSink <- sol:
					case <-ctx.Done():
						return nil
					}
				}
			} else {
				atomic.AddUint64(&c.counters.SolutionsRejected, 1)
			}
		}
	}
}

// tempWatchdogTask implements spec.md §4.8: a settle delay, then either
// a sensor-backed loop (jump filter, decaying error budget, permanent
// fall-back to sensor-less heartbeats once the error counter reaches
// MAX_SENSOR_ERRORS) or, if no sensor is reachable at all, the sensor-less
// heartbeat loop from the start.
func (c *Chain) tempWatchdogTask(ctx context.Context, hc *halt.Client, limitC float64) error {
	select {
	case <-ctx.Done():
		return nil
	case <-hc.Done:
		return nil
	case <-time.After(tempSettleDelay):
	}

	if c.temp == nil {
		return c.sensorlessLoop(ctx, hc)
	}
	if _, err := c.temp.Read(); err != nil {
		return c.sensorlessLoop(ctx, hc)
	}

	ticker := time.NewTicker(tempUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hc.Done:
			return nil
		case <-ticker.C:
			dangerous, err := c.tempTick(limitC)
			if err != nil {
				return err
			}
			if dangerous {
				return errs.New(errs.Sensors, "tempWatchdogTask", fmt.Errorf("temperature at or above limit %.1fC", limitC))
			}
			if c.tempErrorCounter >= maxSensorErrors {
				return c.sensorlessLoop(ctx, hc)
			}
			if c.glitchReader != nil {
				if n, err := c.glitchReader(); err == nil {
					atomic.StoreUint64(&c.counters.GlitchCount, n)
				}
			}
		}
	}
}

// tempTick runs one read-and-filter cycle of spec.md §4.8 steps 1-6.
func (c *Chain) tempTick(limitC float64) (bool, error) {
	var reading tempsensor.Reading
	var maxTemp float64
	var known bool

	for attempt := 0; attempt < maxTempRereadAttempts; attempt++ {
		r, err := c.temp.Read()
		if err != nil {
			c.tempErrorCounter++
			reading, known = tempsensor.Reading{}, false
			break
		}
		reading = r
		maxTemp, known = reading.Max()
		if !known || !c.haveLastMaxTemp {
			break
		}
		jump := maxTemp - c.lastMaxTemp
		if jump < 0 {
			jump = -jump
		}
		if jump < maxSuddenTemperatureJump {
			break
		}
		c.tempErrorCounter++
		time.Sleep(200 * time.Millisecond)
	}

	if known {
		c.lastMaxTemp = maxTemp
		c.haveLastMaxTemp = true
	}
	c.tempErrorCounter *= sensorErrorDecay

	if c.onTemperature != nil {
		c.onTemperature(reading, false)
	}

	return known && maxTemp >= limitC, nil
}

// sensorlessLoop degrades to a heartbeat-only loop once the sensor is
// unreachable (at start-up) or has exceeded its error budget mid-run.
func (c *Chain) sensorlessLoop(ctx context.Context, hc *halt.Client) error {
	ticker := time.NewTicker(tempUpdateInterval)
	defer ticker.Stop()
	for {
		if c.onTemperature != nil {
			c.onTemperature(tempsensor.Reading{}, true)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-hc.Done:
			return nil
		case <-ticker.C:
		}
	}
}

func encodeWorkFrame(id uint32, item work.Item) []byte {
	frame := make([]byte, 4+len(item.Midstates)*32)
	frame[0] = byte(id >> 24)
	frame[1] = byte(id >> 16)
	frame[2] = byte(id >> 8)
	frame[3] = byte(id)
	off := 4
	for _, ms := range item.Midstates {
		copy(frame[off:], ms)
		off += 32
	}
	return frame
}

func decodeSolutionFrame(frame []byte) (work.Solution, error) {
	if len(frame) < 9 {
		return work.Solution{}, fmt.Errorf("short solution frame: %d bytes", len(frame))
	}
	id := uint32(frame[0])<<24 | uint32(frame[1])<<16 | uint32(frame[2])<<8 | uint32(frame[3])
	nonce := uint32(frame[4])<<24 | uint32(frame[5])<<16 | uint32(frame[6])<<8 | uint32(frame[7])
	return work.Solution{WorkID: id, Nonce: nonce, MidstateIdx: frame[8]}, nil
}
