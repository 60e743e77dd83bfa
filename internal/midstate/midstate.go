// Package midstate holds the small value types shared across the
// hashchain command path: the number of midstates a work item carries,
// and the chip/core addressing scheme chips are enumerated and
// addressed by.
package midstate

import "fmt"

// Count is the number of SHA-256 midstates bundled into a single work
// item: 1, 2, or 4, mirroring bosminer's MidstateCount value object
// (stored as its base-2 log so the bit count and mask fall out of
// simple shifts).
type Count struct {
	log2 uint
}

// NewCount validates n is a supported midstate count and returns its
// Count representation.
func NewCount(n uint) (Count, error) {
	switch n {
	case 1, 2, 4:
		return Count{log2: log2(n)}, nil
	default:
		return Count{}, fmt.Errorf("midstate count must be 1, 2, or 4, got %d", n)
	}
}

func log2(n uint) uint {
	var l uint
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

// ToCount returns the number of midstates (1, 2, or 4).
func (c Count) ToCount() uint { return 1 << c.log2 }

// ToBits returns log2 of the midstate count, the bit width used when
// packing the midstate count into control registers.
func (c Count) ToBits() uint { return c.log2 }

// ToMask returns the bitmask selecting which midstate slot a given
// work item occupies (ToCount()-1).
func (c Count) ToMask() uint { return c.ToCount() - 1 }

// ChipAddress identifies a single chip's position on the command
// channel's daisy-chain bus.
type ChipAddress uint8

// Broadcast addresses every chip on the chain at once.
const Broadcast ChipAddress = 0xFF

// CoreAddress identifies a single hashing core within a chip.
type CoreAddress uint8
