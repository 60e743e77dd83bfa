package hashchain

import "github.com/rrybarczyk/braiins/internal/errs"

// GlitchCounters reads a hashboard's I2C SCL/SDA and UART RX glitch
// hardware counters and reports the wrapped-subtraction delta since
// the last read, mirroring bosminer's glitch.rs Monitor. This is a
// diagnostic feature spec.md's own counters are silent on (see
// DESIGN.md's supplemented-features entry); it never gates a decision,
// it only feeds Counters.GlitchCount for observability.
type GlitchCounters struct {
	readRaw func() (scl, sda, uartRx uint32, err error)
	last    struct {
		scl, sda, uartRx uint32
		valid            bool
	}
}

// NewGlitchCounters wraps a raw hardware-counter reader.
func NewGlitchCounters(readRaw func() (scl, sda, uartRx uint32, err error)) *GlitchCounters {
	return &GlitchCounters{readRaw: readRaw}
}

// Fetch returns the combined glitch delta since the previous Fetch
// call (or since construction, on the first call).
func (g *GlitchCounters) Fetch() (uint64, error) {
	scl, sda, uartRx, err := g.readRaw()
	if err != nil {
		return 0, errs.New(errs.I2C, "GlitchCounters.Fetch", err)
	}
	if !g.last.valid {
		g.last.scl, g.last.sda, g.last.uartRx, g.last.valid = scl, sda, uartRx, true
		return 0, nil
	}
	delta := uint64(wrapDiff(scl, g.last.scl)) + uint64(wrapDiff(sda, g.last.sda)) + uint64(wrapDiff(uartRx, g.last.uartRx))
	g.last.scl, g.last.sda, g.last.uartRx = scl, sda, uartRx
	return delta, nil
}

// wrapDiff computes cur-prev treating both as free-running uint32
// hardware counters that wrap rather than saturate.
func wrapDiff(cur, prev uint32) uint32 {
	return cur - prev
}
