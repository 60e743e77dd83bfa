package work

import "github.com/rrybarczyk/braiins/internal/midstate"

// Nonce bit layout, reconstructed from bosminer's work-delay constant
// (each core searches a 2^19 nonce space): a 32-bit nonce splits as
// chip_address:6 | core_address:7 | search:19, MSB to LSB. See
// DESIGN.md's Open Questions — the bm1387::CoreAddress packing itself
// was not in the retrieved sources.
const (
	coreAddressShift = 19
	coreAddressBits  = 7
	chipAddressShift = coreAddressShift + coreAddressBits
	chipAddressBits  = 6
)

// CoreAddressFromNonce extracts the core address a nonce was found by.
func CoreAddressFromNonce(nonce uint32) midstate.CoreAddress {
	mask := uint32(1<<coreAddressBits) - 1
	return midstate.CoreAddress((nonce >> coreAddressShift) & mask)
}

// ChipAddressFromNonce extracts the chip address a nonce was found on,
// for diagnostics alongside the command-channel's own chip addressing.
func ChipAddressFromNonce(nonce uint32) midstate.ChipAddress {
	mask := uint32(1<<chipAddressBits) - 1
	return midstate.ChipAddress((nonce >> chipAddressShift) & mask)
}
