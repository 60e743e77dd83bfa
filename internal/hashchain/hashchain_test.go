package hashchain

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rrybarczyk/braiins/internal/halt"
	"github.com/rrybarczyk/braiins/internal/iocore"
	"github.com/rrybarczyk/braiins/internal/tempsensor"
	"github.com/rrybarczyk/braiins/internal/voltage"
	"github.com/rrybarczyk/braiins/internal/work"
)

type fakeBackend struct {
	regs         map[uint32]uint32
	enumResp     []bool
	enumIdx      int
	solutions    [][]byte
}

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) ReadRegister(addr uint32) (uint32, error) { return f.regs[addr], nil }
func (f *fakeBackend) WriteRegister(addr, value uint32) error   { f.regs[addr] = value; return nil }
func (f *fakeBackend) WriteCommand(b []byte) error              { return nil }
func (f *fakeBackend) ReadCommand(n int) ([]byte, error) {
	if f.enumIdx < len(f.enumResp) {
		ok := f.enumResp[f.enumIdx]
		f.enumIdx++
		if ok {
			return []byte{0x01}, nil
		}
		return nil, nil
	}
	return make([]byte, n), nil
}
func (f *fakeBackend) PushWork(b []byte) error { return nil }
func (f *fakeBackend) PopSolution() ([]byte, bool, error) {
	if len(f.solutions) == 0 {
		return nil, false, nil
	}
	s := f.solutions[0]
	f.solutions = f.solutions[1:]
	return s, true, nil
}
func (f *fakeBackend) Close() error { return nil }

func newTestChain(backend *fakeBackend) *Chain {
	io := iocore.NewWithBackend(backend)
	cfg := Config{
		ExpectedChips:  3,
		MidstateCount:  1,
		InitialFreqHz:  650_000_000,
		AsicDifficulty: 256,
		BaseClockHz:    25_000_000,
		BaseClockDiv:   8,
		FPGAFreqHz:     650_000_000,
	}
	return New(cfg, io, voltage.New(io), nil, make(chan work.Solution, 4), func(ctx context.Context) (work.Item, bool) {
		return work.Item{Midstates: [][]byte{make([]byte, 32)}}, true
	})
}

func TestEnumerateCountsRespondingChips(t *testing.T) {
	backend := &fakeBackend{regs: make(map[uint32]uint32), enumResp: []bool{true, true, false}}
	c := newTestChain(backend)
	n, err := c.Enumerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestResetAndEnumerateCyclesResetAndVoltage(t *testing.T) {
	backend := &fakeBackend{regs: make(map[uint32]uint32), enumResp: []bool{true, true, true}}
	c := newTestChain(backend)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	n, err := c.ResetAndEnumerate(ctx)
	require.Error(t, err) // the 4s settle-delay sequence outlives the 1s test deadline
	assert.Equal(t, 0, n)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, uint32(1), backend.regs[iocore.RegReset]) // reset asserted, never released before the deadline
}

func TestIPCoreInitProgramsBaudAndMidstate(t *testing.T) {
	backend := &fakeBackend{regs: make(map[uint32]uint32)}
	c := newTestChain(backend)
	require.NoError(t, c.IPCoreInit(115200))
	assert.NotZero(t, backend.regs[iocore.RegBaudDiv])
	assert.Contains(t, backend.regs, uint32(iocore.RegMidstateCount))
}

func TestSetAsicDiffWritesTicketMask(t *testing.T) {
	backend := &fakeBackend{regs: make(map[uint32]uint32)}
	c := newTestChain(backend)
	require.NoError(t, c.SetAsicDiff(256))
	assert.Equal(t, uint32(255), backend.regs[iocore.RegErrorCounter])
}

func TestSolutionRxTaskAcceptsMeetingTarget(t *testing.T) {
	backend := &fakeBackend{regs: make(map[uint32]uint32)}
	c := newTestChain(backend)

	item := work.Item{Midstates: [][]byte{make([]byte, 32)}}
	item.BackendTarget[31] = 0xFF
	id := c.registry.Store(&item)

	frame := make([]byte, 9)
	frame[0], frame[1], frame[2], frame[3] = byte(id>>24), byte(id>>16), byte(id>>8), byte(id)
	backend.solutions = [][]byte{frame}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	hc := c.halt.Register("test-solution-rx")

	done := make(chan struct{})
	go func() {
		c.solutionRxTask(ctx, hc)
		close(done)
	}()
	<-done

	assert.Equal(t, uint64(1), c.Counters().SolutionsAccepted)
}

func TestGlitchCountersFirstFetchIsBaseline(t *testing.T) {
	gc := NewGlitchCounters(func() (uint32, uint32, uint32, error) {
		return 10, 10, 10, nil
	})
	delta, err := gc.Fetch()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), delta)
}

func TestRaiseToTargetBaudProgramsDivisorForTargetRate(t *testing.T) {
	backend := &fakeBackend{regs: make(map[uint32]uint32)}
	c := newTestChain(backend)
	require.NoError(t, c.RaiseToTargetBaud())
	assert.NotZero(t, backend.regs[iocore.RegBaudDiv])
}

func TestEnumerateRejectsMoreThanMaxChipsOnChain(t *testing.T) {
	backend := &fakeBackend{regs: make(map[uint32]uint32)}
	cfg := Config{
		ExpectedChips:  MaxChipsOnChain + 1,
		MidstateCount:  1,
		InitialFreqHz:  650_000_000,
		AsicDifficulty: 256,
		BaseClockHz:    25_000_000,
		BaseClockDiv:   8,
		FPGAFreqHz:     650_000_000,
	}
	resp := make([]bool, MaxChipsOnChain+1)
	for i := range resp {
		resp[i] = true
	}
	backend.enumResp = resp
	io := iocore.NewWithBackend(backend)
	c := New(cfg, io, voltage.New(io), nil, make(chan work.Solution, 4), func(ctx context.Context) (work.Item, bool) {
		return work.Item{}, false
	})
	n, err := c.Enumerate(context.Background())
	require.Error(t, err)
	assert.Equal(t, MaxChipsOnChain+1, n)
}

func TestSendOpenCoreWorkStoresInitialFlaggedEntries(t *testing.T) {
	backend := &fakeBackend{regs: make(map[uint32]uint32)}
	c := newTestChain(backend)

	require.NoError(t, c.SendOpenCoreWork(context.Background()))

	item := c.registry.FindWork(0)
	require.NotNil(t, item)
	assert.True(t, item.InitialWork)
}

func TestTempWatchdogTaskNoSensorDegradesToSensorless(t *testing.T) {
	backend := &fakeBackend{regs: make(map[uint32]uint32)}
	c := newTestChain(backend)

	var calls int32
	c.SetTemperatureSink(func(reading tempsensor.Reading, sensorless bool) {
		if sensorless {
			atomic.AddInt32(&calls, 1)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Second)
	defer cancel()
	hc := c.halt.Register("test-temp-watchdog")

	done := make(chan struct{})
	go func() {
		_ = c.tempWatchdogTask(ctx, hc, 105)
		close(done)
	}()
	<-done

	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestGlitchCountersAccumulatesDelta(t *testing.T) {
	calls := 0
	gc := NewGlitchCounters(func() (uint32, uint32, uint32, error) {
		calls++
		if calls == 1 {
			return 0, 0, 0, nil
		}
		return 5, 3, 2, nil
	})
	_, _ = gc.Fetch()
	delta, err := gc.Fetch()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), delta)
}
