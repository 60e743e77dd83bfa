package frequency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFrequency(t *testing.T) {
	s := FromFrequency(650_000_000, 63)
	assert.Equal(t, 63, s.Len())
	assert.Equal(t, uint64(650_000_000), s.Min())
	assert.Equal(t, uint64(650_000_000), s.Max())
	assert.Equal(t, float64(650_000_000), s.Avg())
}

func TestSetChipCountShrinks(t *testing.T) {
	s := FromFrequency(600_000_000, 63)
	require.NoError(t, s.SetChipCount(60))
	assert.Equal(t, 60, s.Len())
}

func TestSetChipCountRejectsGrowth(t *testing.T) {
	s := FromFrequency(600_000_000, 10)
	assert.Error(t, s.SetChipCount(63))
}

func TestTotalMinMaxAvg(t *testing.T) {
	s := Settings{}
	s.chip = []uint64{100, 200, 300}
	assert.Equal(t, uint64(600), s.Total())
	assert.Equal(t, uint64(100), s.Min())
	assert.Equal(t, uint64(300), s.Max())
	assert.InDelta(t, 200.0, s.Avg(), 1e-9)
}
