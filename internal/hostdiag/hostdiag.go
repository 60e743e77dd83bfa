// Package hostdiag runs a one-shot host-health check before a
// Manager's first bring-up attempt, and probes for a real ASIC device
// file. Adapted from the teacher's gopsutil calls in
// internal/cli/ui/ui.go (there driving a live TUI refresh; here a
// single startup log line) and from pkg/hashing/hardware/device_detector.go's
// detectASIC (its CUDA/uBPF/software branches have no equivalent in a
// single-hashboard daemon and were dropped, see DESIGN.md).
package hostdiag

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Report summarizes host health at startup.
type Report struct {
	Uptime      time.Duration
	LoadAvg1    float64
	MemUsedPct  float64
	CPUCount    int
	ASICPresent bool
	ASICPath    string
	ASICReason  string
}

const defaultASICDevicePath = "/dev/bitmain-asic"

// Collect gathers a startup snapshot. Individual sub-collections that
// fail (no /proc/loadavg on this platform, etc.) are left zero rather
// than failing the whole report, matching the teacher's permissive
// gopsutil usage.
func Collect() Report {
	var r Report

	if info, err := host.Info(); err == nil {
		r.Uptime = time.Duration(info.Uptime) * time.Second
	}
	if avg, err := load.Avg(); err == nil {
		r.LoadAvg1 = avg.Load1
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		r.MemUsedPct = vm.UsedPercent
	}
	if counts, err := cpu.Counts(true); err == nil {
		r.CPUCount = counts
	}

	r.ASICPath = defaultASICDevicePath
	r.ASICPresent, r.ASICReason = probeASIC(defaultASICDevicePath)
	return r
}

func probeASIC(path string) (bool, string) {
	if _, err := os.Stat(path); err != nil {
		return false, fmt.Sprintf("device not found: %v", err)
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return false, fmt.Sprintf("cannot access device: %v", err)
	}
	f.Close()
	return true, ""
}

// String renders the report as a single log line, in the teacher's
// terse log.Printf style.
func (r Report) String() string {
	return fmt.Sprintf(
		"uptime=%s load1=%.2f mem_used=%.1f%% cpus=%d asic_present=%t asic_path=%s",
		r.Uptime.Round(time.Second), r.LoadAvg1, r.MemUsedPct, r.CPUCount, r.ASICPresent, r.ASICPath,
	)
}
