package voltage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	writes [][]byte
	fault  byte
}

func (f *fakeBus) WriteCommand(b []byte) error {
	f.writes = append(f.writes, append([]byte(nil), b...))
	return nil
}
func (f *fakeBus) ReadCommand(n int) ([]byte, error) {
	return []byte{f.fault}, nil
}

func TestSetVoltageTracksCurrent(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus)
	require.NoError(t, c.SetVoltage(850))
	assert.Equal(t, uint16(850), c.CurrentVoltage())
	assert.Equal(t, []byte{cmdSetVoltage, 0x03, 0x52}, bus.writes[0])
}

func TestEnableDisableVoltageSendsExpectedCommands(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus)
	require.NoError(t, c.DisableVoltage())
	require.NoError(t, c.EnableVoltage())
	assert.Equal(t, []byte{cmdDisable}, bus.writes[0])
	assert.Equal(t, []byte{cmdEnable}, bus.writes[1])
}

func TestFaultReadsRegisterViaWriteThenRead(t *testing.T) {
	bus := &fakeBus{fault: 0x01}
	c := New(bus)
	f, err := c.Fault()
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), f)
}

func TestRunHeartbeatStopsOnCancel(t *testing.T) {
	bus := &fakeBus{}
	c := New(bus)
	c.heartbeatIv = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.RunHeartbeat(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, bus.writes)
}
