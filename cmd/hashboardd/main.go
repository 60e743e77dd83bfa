// hashboardd is the hashboard controller daemon: it brings up a
// hashchain under Manager's retry budget, runs HashChain's work-tx /
// solution-rx / temperature-watchdog tasks, drives Monitor's fan
// control, and serves the status/health HTTP surface, all torn down
// cleanly on SIGINT/SIGTERM via the halt bus.
//
// Flag-based CLI and signal handling follow the teacher's
// cmd/driver/hasher-host/main.go wiring.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cilium/ebpf/ringbuf"

	"github.com/rrybarczyk/braiins/internal/api"
	"github.com/rrybarczyk/braiins/internal/config"
	"github.com/rrybarczyk/braiins/internal/fan"
	"github.com/rrybarczyk/braiins/internal/halt"
	"github.com/rrybarczyk/braiins/internal/hashchain"
	"github.com/rrybarczyk/braiins/internal/hostdiag"
	"github.com/rrybarczyk/braiins/internal/iocore"
	"github.com/rrybarczyk/braiins/internal/manager"
	"github.com/rrybarczyk/braiins/internal/monitor"
	"github.com/rrybarczyk/braiins/internal/tempsensor"
	"github.com/rrybarczyk/braiins/internal/tracer"
	"github.com/rrybarczyk/braiins/internal/voltage"
	"github.com/rrybarczyk/braiins/internal/work"
)

type statusHub struct {
	mu       sync.Mutex
	chains   map[int]monitor.ChainSnapshot
	counters map[int]hashchain.Counters
}

func newStatusHub() *statusHub {
	return &statusHub{chains: map[int]monitor.ChainSnapshot{}, counters: map[int]hashchain.Counters{}}
}

func (h *statusHub) Status() monitor.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := make(map[int]monitor.ChainSnapshot, len(h.chains))
	for k, v := range h.chains {
		snap[k] = v
	}
	return monitor.Status{Chains: snap}
}

func (h *statusHub) Counters() map[int]hashchain.Counters {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := make(map[int]hashchain.Counters, len(h.counters))
	for k, v := range h.counters {
		snap[k] = v
	}
	return snap
}

func (h *statusHub) update(chainID int, snap monitor.ChainSnapshot, counters hashchain.Counters) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chains[chainID] = snap
	h.counters[chainID] = counters
}

// readingToTemperature translates a tempsensor.Reading into the
// Temperature the Monitor's control tick aggregates over.
func readingToTemperature(reading tempsensor.Reading, sensorless bool) monitor.Temperature {
	if sensorless {
		return monitor.Temperature{Known: false}
	}
	if v, ok := reading.Max(); ok {
		return monitor.Temperature{ValueC: v, Known: true}
	}
	return monitor.Temperature{Known: false}
}

func main() {
	apiAddr := flag.String("api-addr", "", "address for the status/health HTTP surface (empty uses config default)")
	useUSB := flag.Bool("usb", false, "use the USB bring-up bridge (the only backend implemented; it is used with or without this flag)")
	bpfObjPath := flag.String("bpf-trace-obj", "", "path to a compiled eBPF nonce-tracer object to attach for solution timing (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("hashboardd: load config: %v", err)
	}
	if *apiAddr != "" {
		cfg.APIAddr = *apiAddr
	}

	diag := hostdiag.Collect()
	log.Printf("hashboardd: host diagnostics: %s", diag)
	if !diag.ASICPresent {
		log.Printf("hashboardd: warning: %s", diag.ASICReason)
	}

	var opener func() (iocore.Backend, error)
	if *useUSB {
		opener = iocore.OpenUSB
	} else {
		opener = iocore.OpenUSB // production memory-mapped bridge backend not available on this platform; USB is the only wired backend
	}

	io, err := iocore.Open(opener)
	if err != nil {
		log.Fatalf("hashboardd: open IoCore backend: %v", err)
	}
	defer io.Close()
	log.Printf("hashboardd: backend %s ready", io.BackendName())

	voltageCtrl := voltage.New(io)
	tempSensor := tempsensor.New(io)
	fanCtrl := fan.New(io)
	hub := newStatusHub()

	ctx, cancel := context.WithCancel(context.Background())

	shutdownReason := make(chan string, 1)
	monCfg := monitor.Config{
		FanConfig: &monitor.FanControlConfig{
			Mode:    monitor.FanControlMode{TargetTemperature: cfg.TargetTempC},
			MinFans: cfg.MinFans,
		},
		TempConfig: &monitor.TempControlConfig{
			DangerousTempC: cfg.DangerousTempC,
			HotTempC:       cfg.HotTempC,
		},
		FansOnWhileWarmingUp: cfg.FansOnWhileWarmingUp,
	}
	pid := monitor.NewPID(cfg.FanKp, cfg.FanKi, cfg.FanKd)
	mon := monitor.New(monCfg, fanCtrl, pid, func(reason string) {
		log.Printf("hashboardd: monitor declared a fatal condition: %s", reason)
		select {
		case shutdownReason <- reason:
		default:
		}
		cancel()
	})

	chainCfg := hashchain.Config{
		ExpectedChips:  cfg.ExpectedChips,
		MidstateCount:  cfg.MidstateCount,
		InitialFreqHz:  cfg.InitialFreqHz,
		VoltageMv:      cfg.VoltageMv,
		AsicDifficulty: cfg.AsicDifficulty,
		BaseClockHz:    cfg.BaseClockHz,
		BaseClockDiv:   cfg.BaseClockDiv,
		FPGAFreqHz:     cfg.FPGAFreqHz,
	}

	solutions := make(chan work.Solution, 64)
	chain := hashchain.New(chainCfg, io, voltageCtrl, tempSensor, solutions, noWorkSource)
	chain.SetTemperatureSink(func(reading tempsensor.Reading, sensorless bool) {
		mon.Notify(0, monitor.EventRunning, readingToTemperature(reading, sensorless))
	})

	mgr := manager.New(manager.Config{ExpectedChips: cfg.ExpectedChips, MaxAttempts: manager.EnumRetryCount}, func(ctx context.Context, acceptLess bool) (int, error) {
		found, err := chain.ResetAndEnumerate(ctx)
		if err != nil {
			return 0, err
		}
		if !acceptLess && found < cfg.ExpectedChips {
			return found, nil
		}
		if err := chain.IPCoreInit(hashchain.InitChipBaudRate); err != nil {
			return 0, err
		}
		if err := chain.SetAsicDiff(cfg.AsicDifficulty); err != nil {
			return 0, err
		}
		if _, err := chain.ProgramPLL(cfg.InitialFreqHz); err != nil {
			return 0, err
		}
		if err := chain.RaiseToTargetBaud(); err != nil {
			return 0, err
		}
		if err := chain.SendOpenCoreWork(ctx); err != nil {
			return 0, err
		}
		if err := voltageCtrl.SetVoltage(cfg.VoltageMv); err != nil {
			return 0, err
		}
		return found, nil
	})

	mgr.SetCancel(cancel)

	chips, err := mgr.Start(ctx)
	if err != nil {
		log.Fatalf("hashboardd: bring-up failed: %v", err)
	}
	log.Printf("hashboardd: brought up %d/%d chips", chips, cfg.ExpectedChips)
	mon.Notify(0, monitor.EventOn, monitor.Temperature{})
	go mon.Run(ctx)

	if *bpfObjPath != "" {
		if _, err := tracer.New(); err != nil {
			log.Printf("hashboardd: nonce tracer unavailable: %v", err)
		} else if reader, cleanup, err := tracer.AttachProgram(*bpfObjPath, "bitmain_asic", "trace_solution"); err != nil {
			log.Printf("hashboardd: nonce tracer attach failed: %v", err)
		} else {
			defer cleanup()
			go runTracerReader(reader)
		}
	}

	go voltageCtrl.RunHeartbeat(ctx)

	server := api.New(hub)
	go func() {
		if err := server.Run(cfg.APIAddr); err != nil {
			log.Printf("hashboardd: status API stopped: %v", err)
		}
	}()
	log.Printf("hashboardd: status API listening on %s", cfg.APIAddr)

	go pollStatus(ctx, chain, hub, mon)

	runErr := make(chan error, 1)
	go func() { runErr <- chain.Run(ctx, cfg.DangerousTempC) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("hashboardd: received %s, shutting down", sig)
	case reason := <-shutdownReason:
		log.Printf("hashboardd: shutting down: %s", reason)
	case err := <-runErr:
		if err != nil {
			log.Printf("hashboardd: chain run loop exited with error: %v", err)
		}
	}

	mgr.Stop()
	mon.Notify(0, monitor.EventOff, monitor.Temperature{})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), halt.DefaultTimeout)
	defer shutdownCancel()
	if err := chain.Halt().SendHalt(shutdownCtx, halt.DefaultTimeout); err != nil {
		log.Printf("hashboardd: halt did not complete cleanly: %v", err)
	}
	log.Printf("hashboardd: shutdown complete")
}

// pollStatus mirrors every Monitor status publication into hub so the
// status API reports the real per-chain state, temperature, and fan
// decision instead of a hardcoded value.
func pollStatus(ctx context.Context, chain *hashchain.Chain, hub *statusHub, mon *monitor.Monitor) {
	sub := mon.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case status := <-sub:
			counters := chain.Counters()
			for id, snap := range status.Chains {
				hub.update(id, snap, counters)
			}
		}
	}
}

// runTracerReader drains the attached eBPF program's ring buffer,
// logging each decoded nonce event until the reader is closed at
// shutdown, following the teacher's eBPF_driver.go ReadNonce loop.
func runTracerReader(reader *ringbuf.Reader) {
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return
			}
			log.Printf("hashboardd: nonce tracer read failed: %v", err)
			return
		}
		ev, err := tracer.Decode(record.RawSample)
		if err != nil {
			continue
		}
		log.Printf("hashboardd: nonce event work_id=%d nonce=%#x chip=%d", ev.WorkID, ev.Nonce, ev.ChipID)
	}
}

// noWorkSource is a placeholder until a stratum job translator is
// wired in; spec.md places pool protocol handling out of scope, so
// this daemon idles its work-tx task rather than dispatching garbage
// work.
func noWorkSource(ctx context.Context) (work.Item, bool) {
	return work.Item{}, false
}
