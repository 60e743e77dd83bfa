// Package work models mining work items, their solutions, and the
// registry that correlates a solution's work-id back to the work item
// that produced it, grounded on spec.md §3-4.4/4.7 and bosminer's
// hashchain.rs solution_rx_task.
package work

import (
	"github.com/rrybarczyk/braiins/internal/midstate"
)

// Item is a unit of work dispatched to a chain: a set of midstates
// derived from a block header plus the merkle-branch/target context
// needed to validate any solution it produces.
type Item struct {
	ID            uint32
	Midstates     [][]byte // one 32-byte midstate per bundled midstate
	MerkleRoot    [4]byte  // last 4 bytes of the block header's merkle root, varied per midstate
	Timestamp     uint32
	Bits          uint32
	InitialWork   bool // true for bring-up/enumeration placeholder work
	BackendTarget [32]byte
}

// MidstateCount reports how many midstates this item carries.
func (it *Item) MidstateCount() (midstate.Count, error) {
	return midstate.NewCount(uint(len(it.Midstates)))
}

// Solution is a candidate nonce reported by a chip for a given work-id.
type Solution struct {
	WorkID      uint32
	Nonce       uint32
	MidstateIdx uint8
	Hash        [32]byte
}

// InsertOutcome reports the result of correlating a Solution with the
// Item that produced it, mirroring bosminer's solution_rx_task's
// unique_solution/duplicate/mismatched_nonce trio.
type InsertOutcome struct {
	UniqueSolution bool
	Duplicate      bool
	MismatchedNonce bool
}

// InsertSolution records sol against this work item, detecting
// duplicate nonces (same nonce already seen for this item) and
// mismatched nonces (a solution whose nonce falls outside any
// midstate this item could have produced).
func (it *Item) InsertSolution(sol Solution, seen map[uint32]struct{}) InsertOutcome {
	if int(sol.MidstateIdx) >= len(it.Midstates) {
		return InsertOutcome{MismatchedNonce: true}
	}
	if _, ok := seen[sol.Nonce]; ok {
		return InsertOutcome{Duplicate: true}
	}
	seen[sol.Nonce] = struct{}{}
	return InsertOutcome{UniqueSolution: true}
}

// MeetsTarget reports whether hash, interpreted as a little-endian
// 256-bit number, is numerically at or below the backend target —
// the difficulty check applied before a unique solution is forwarded
// upstream.
func MeetsTarget(hash [32]byte, target [32]byte) bool {
	for i := 31; i >= 0; i-- {
		if hash[i] != target[i] {
			return hash[i] < target[i]
		}
	}
	return true
}
