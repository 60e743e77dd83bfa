package midstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCountValid(t *testing.T) {
	c, err := NewCount(4)
	require.NoError(t, err)
	assert.Equal(t, uint(4), c.ToCount())
	assert.Equal(t, uint(2), c.ToBits())
	assert.Equal(t, uint(3), c.ToMask())
}

func TestNewCountSingle(t *testing.T) {
	c, err := NewCount(1)
	require.NoError(t, err)
	assert.Equal(t, uint(0), c.ToBits())
	assert.Equal(t, uint(0), c.ToMask())
}

func TestNewCountInvalid(t *testing.T) {
	_, err := NewCount(3)
	assert.Error(t, err)
}
