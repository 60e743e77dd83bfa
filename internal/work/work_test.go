package work

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryStoreAndFind(t *testing.T) {
	reg := NewRegistry(8)
	item := &Item{Midstates: [][]byte{make([]byte, 32)}}
	id := reg.Store(item)

	found := reg.FindWork(id)
	require.NotNil(t, found)
	assert.Same(t, item, found)
}

func TestRegistryWraparoundEvicts(t *testing.T) {
	reg := NewRegistry(2)
	first := &Item{Midstates: [][]byte{make([]byte, 32)}}
	firstID := reg.Store(first)
	reg.Store(&Item{Midstates: [][]byte{make([]byte, 32)}})
	reg.Store(&Item{Midstates: [][]byte{make([]byte, 32)}})

	assert.Nil(t, reg.FindWork(firstID))
}

func TestInsertSolutionUniqueThenDuplicate(t *testing.T) {
	reg := NewRegistry(8)
	item := &Item{Midstates: [][]byte{make([]byte, 32)}}
	id := reg.Store(item)

	sol := Solution{WorkID: id, Nonce: 42, MidstateIdx: 0}
	outcome, found := reg.InsertSolution(sol)
	require.NotNil(t, found)
	assert.True(t, outcome.UniqueSolution)

	outcome2, _ := reg.InsertSolution(sol)
	assert.True(t, outcome2.Duplicate)
}

func TestInsertSolutionMismatchedMidstate(t *testing.T) {
	reg := NewRegistry(8)
	item := &Item{Midstates: [][]byte{make([]byte, 32)}}
	id := reg.Store(item)

	sol := Solution{WorkID: id, Nonce: 1, MidstateIdx: 5}
	outcome, _ := reg.InsertSolution(sol)
	assert.True(t, outcome.MismatchedNonce)
}

func TestInsertSolutionUnknownWorkID(t *testing.T) {
	reg := NewRegistry(8)
	outcome, found := reg.InsertSolution(Solution{WorkID: 999})
	assert.Nil(t, found)
	assert.False(t, outcome.UniqueSolution)
}

func TestCoreAddressFromNonce(t *testing.T) {
	var nonce uint32 = (5 << chipAddressShift) | (37 << coreAddressShift) | 123
	assert.EqualValues(t, 37, CoreAddressFromNonce(nonce))
	assert.EqualValues(t, 5, ChipAddressFromNonce(nonce))
}

func TestMeetsTarget(t *testing.T) {
	var hash, target [32]byte
	hash[31] = 0x00
	target[31] = 0x01
	assert.True(t, MeetsTarget(hash, target))

	hash[31] = 0x02
	assert.False(t, MeetsTarget(hash, target))
}

func TestBuildHeaderRoundTripsNonce(t *testing.T) {
	var f HeaderFields
	f.Version = 2
	f.Timestamp = 1234
	f.Bits = 0x1d00ffff
	header := BuildHeader(f, 0xdeadbeef)
	require.True(t, ValidateHeader(header))
	assert.Equal(t, uint32(0xdeadbeef), ExtractNonce(header))
}
