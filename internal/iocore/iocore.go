// Package iocore implements the IoCore façade: the single point of
// contact between a HashChain and its FPGA bridge, covering the
// common-control register block, the chip command channel, the
// work-tx FIFO, and the work-rx solution stream. Grounded on spec.md
// §4.5 and, for its backend-selection and stats-snapshot idioms, on
// the teacher's internal/driver/device/controller.go (DeviceStats /
// DeviceStatsSnapshot pattern and OpenDevice backend fallback chain).
package iocore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rrybarczyk/braiins/internal/errs"
)

// Backend is anything capable of performing the FPGA bridge's raw
// register and FIFO operations. The only concrete backend in this
// module is usbbackend.go's gousb-based bridge for bench bring-up; no
// memory-mapped /dev/mem backend is implemented.
type Backend interface {
	Name() string
	ReadRegister(addr uint32) (uint32, error)
	WriteRegister(addr uint32, value uint32) error
	WriteCommand(b []byte) error
	ReadCommand(n int) ([]byte, error)
	PushWork(b []byte) error
	PopSolution() ([]byte, bool, error)
	Close() error
}

// Common-control register offsets, matching spec.md's named-constants
// table.
const (
	RegWorkTime       = 0x00
	RegBaudDiv        = 0x04
	RegMidstateCount  = 0x08
	RegErrorCounter   = 0x0C
	RegSolutionCount  = 0x10
	RegReset          = 0x14
)

// Stats is the mutable, mutex-guarded counter block an IoCore
// accumulates, following the teacher's DeviceStats/DeviceStatsSnapshot
// split: callers read a point-in-time copy rather than locking the
// live struct.
type Stats struct {
	mu              sync.Mutex
	WorkSent        uint64
	SolutionsRead   uint64
	RegisterErrors  uint64
	LastActivity    time.Time
}

// Snapshot is a copied, lock-free view of Stats for callers (the
// status API, logging) that shouldn't hold iocore's internal lock.
type Snapshot struct {
	WorkSent       uint64
	SolutionsRead  uint64
	RegisterErrors uint64
	LastActivity   time.Time
}

func (s *Stats) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		WorkSent:       s.WorkSent,
		SolutionsRead:  s.SolutionsRead,
		RegisterErrors: s.RegisterErrors,
		LastActivity:   s.LastActivity,
	}
}

// IoCore wraps a Backend with the counters and convenience helpers a
// HashChain needs, independent of which transport is underneath.
type IoCore struct {
	backend Backend
	stats   Stats
}

// Open tries each candidate opener in order and returns the first
// that succeeds, mirroring the teacher's OpenDevice fallback chain
// (CGMiner -> kernel device -> USB). Callers pass the candidates in
// order of preference.
func Open(openers ...func() (Backend, error)) (*IoCore, error) {
	var lastErr error
	for _, open := range openers {
		backend, err := open()
		if err == nil {
			return &IoCore{backend: backend}, nil
		}
		lastErr = err
	}
	return nil, errs.New(errs.IO, "Open", fmt.Errorf("no backend available: %w", lastErr))
}

// NewWithBackend wraps an already-opened backend directly, used by
// tests and by callers that have already chosen a transport.
func NewWithBackend(b Backend) *IoCore {
	return &IoCore{backend: b}
}

func (io *IoCore) BackendName() string { return io.backend.Name() }

func (io *IoCore) ReadRegister(addr uint32) (uint32, error) {
	v, err := io.backend.ReadRegister(addr)
	if err != nil {
		io.stats.mu.Lock()
		io.stats.RegisterErrors++
		io.stats.mu.Unlock()
		return 0, errs.New(errs.IO, "ReadRegister", err)
	}
	return v, nil
}

func (io *IoCore) WriteRegister(addr uint32, value uint32) error {
	if err := io.backend.WriteRegister(addr, value); err != nil {
		io.stats.mu.Lock()
		io.stats.RegisterErrors++
		io.stats.mu.Unlock()
		return errs.New(errs.IO, "WriteRegister", err)
	}
	return nil
}

// WriteCommand sends a chip-command-channel frame (chip enumeration,
// register read/write, midstate-count and baud programming all travel
// this path before a chain is fully brought up).
func (io *IoCore) WriteCommand(b []byte) error {
	if err := io.backend.WriteCommand(b); err != nil {
		return errs.New(errs.IO, "WriteCommand", err)
	}
	return nil
}

// ReadCommand reads up to n bytes of a command-channel response.
func (io *IoCore) ReadCommand(n int) ([]byte, error) {
	b, err := io.backend.ReadCommand(n)
	if err != nil {
		return nil, errs.New(errs.IO, "ReadCommand", err)
	}
	return b, nil
}

// PushWork enqueues a work item's wire frame onto the work-tx FIFO.
func (io *IoCore) PushWork(ctx context.Context, frame []byte) error {
	if err := io.backend.PushWork(frame); err != nil {
		return errs.New(errs.IO, "PushWork", err)
	}
	io.stats.mu.Lock()
	io.stats.WorkSent++
	io.stats.LastActivity = time.Now()
	io.stats.mu.Unlock()
	return nil
}

// PopSolution reads the next available solution frame from the
// work-rx stream, returning ok=false if none is pending.
func (io *IoCore) PopSolution() ([]byte, bool, error) {
	frame, ok, err := io.backend.PopSolution()
	if err != nil {
		return nil, false, errs.New(errs.IO, "PopSolution", err)
	}
	if ok {
		io.stats.mu.Lock()
		io.stats.SolutionsRead++
		io.stats.LastActivity = time.Now()
		io.stats.mu.Unlock()
	}
	return frame, ok, nil
}

func (io *IoCore) Stats() Snapshot { return io.stats.snapshot() }

func (io *IoCore) Close() error { return io.backend.Close() }
