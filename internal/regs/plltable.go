package regs

import "sort"

// PLLEntry is one row of the chip's PLL frequency table: the actual
// output frequency a given register value produces off the reference
// clock.
type PLLEntry struct {
	FrequencyHz uint64
	Register    uint16
}

// ReferenceClockHz is the BM1387 PLL reference clock bosminer's table
// is built against.
const ReferenceClockHz = 25_000_000

// DefaultPLLTable is a representative subset of the chip's PLL table,
// spaced in the 6.25 MHz steps the real table uses around the chain's
// typical 600-700 MHz operating range.
var DefaultPLLTable = buildPLLTable()

func buildPLLTable() []PLLEntry {
	const step = 6_250_000
	const minFreq = 100_000_000
	const maxFreq = 1_000_000_000
	table := make([]PLLEntry, 0, (maxFreq-minFreq)/step+1)
	reg := uint16(0)
	for f := uint64(minFreq); f <= maxFreq; f += step {
		table = append(table, PLLEntry{FrequencyHz: f, Register: reg})
		reg++
	}
	return table
}

// NearestNotExceeding returns the table entry with the highest
// frequency not exceeding requestedHz, matching bosminer's PLL
// selection policy of never overshooting the requested frequency. The
// table must be sorted ascending by FrequencyHz; DefaultPLLTable is.
func NearestNotExceeding(table []PLLEntry, requestedHz uint64) (PLLEntry, bool) {
	if len(table) == 0 {
		return PLLEntry{}, false
	}
	idx := sort.Search(len(table), func(i int) bool {
		return table[i].FrequencyHz > requestedHz
	})
	if idx == 0 {
		return table[0], false
	}
	return table[idx-1], true
}
