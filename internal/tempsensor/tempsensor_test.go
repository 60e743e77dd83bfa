package tempsensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBothChannels(t *testing.T) {
	bus := &stubBus{
		local:  []byte{45, 128},
		remote: []byte{50, 0},
	}
	s := New(bus)
	r, err := s.Read()
	require.NoError(t, err)
	assert.True(t, r.LocalKnown)
	assert.InDelta(t, 45.5, r.LocalC, 1e-9)
	assert.True(t, r.RemoteKnown)
	assert.InDelta(t, 50.0, r.RemoteC, 1e-9)
}

func TestMaxPrefersHigherKnownReading(t *testing.T) {
	r := Reading{LocalC: 40, LocalKnown: true, RemoteC: 55, RemoteKnown: true}
	v, ok := r.Max()
	require.True(t, ok)
	assert.Equal(t, 55.0, v)
}

func TestMaxTreatsUnknownAsIdentity(t *testing.T) {
	r := Reading{RemoteC: 55, RemoteKnown: true}
	v, ok := r.Max()
	require.True(t, ok)
	assert.Equal(t, 55.0, v)
}

func TestMaxUnknownBothSides(t *testing.T) {
	r := Reading{}
	_, ok := r.Max()
	assert.False(t, ok)
}

type stubBus struct {
	local, remote []byte
	lastChannel   byte
}

func (s *stubBus) WriteCommand(b []byte) error {
	s.lastChannel = b[1]
	return nil
}

func (s *stubBus) ReadCommand(n int) ([]byte, error) {
	if s.lastChannel == 0x00 {
		return s.local, nil
	}
	return s.remote, nil
}
