package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRetryDelay = time.Millisecond

func TestStartSucceedsOnFullChipCount(t *testing.T) {
	m := New(Config{ExpectedChips: 63, MaxAttempts: 4, RetryDelay: testRetryDelay}, func(ctx context.Context, acceptLess bool) (int, error) {
		return 63, nil
	})
	chips, err := m.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 63, chips)
	assert.Equal(t, Running, m.State())
}

func TestStartEscalatesToAcceptLessChipsAfterHalfBudget(t *testing.T) {
	attempts := 0
	m := New(Config{ExpectedChips: 63, MaxAttempts: 4, RetryDelay: testRetryDelay}, func(ctx context.Context, acceptLess bool) (int, error) {
		attempts++
		if !acceptLess {
			return 0, nil // simulate repeated partial bring-up failures
		}
		return 40, nil
	})
	chips, err := m.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, chips)
	assert.GreaterOrEqual(t, attempts, 3)
}

func TestStartFailsAfterExhaustingBudget(t *testing.T) {
	m := New(Config{ExpectedChips: 63, MaxAttempts: 2, RetryDelay: testRetryDelay}, func(ctx context.Context, acceptLess bool) (int, error) {
		return 0, nil
	})
	_, err := m.Start(context.Background())
	assert.Error(t, err)
}

func TestStartIsNoopWhenAlreadyRunning(t *testing.T) {
	calls := 0
	m := New(Config{ExpectedChips: 1, MaxAttempts: 2, RetryDelay: testRetryDelay}, func(ctx context.Context, acceptLess bool) (int, error) {
		calls++
		return 1, nil
	})
	_, err := m.Start(context.Background())
	require.NoError(t, err)
	_, err = m.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestStopResetsToStopped(t *testing.T) {
	m := New(Config{ExpectedChips: 1, MaxAttempts: 1, RetryDelay: testRetryDelay}, func(ctx context.Context, acceptLess bool) (int, error) {
		return 1, nil
	})
	_, err := m.Start(context.Background())
	require.NoError(t, err)
	m.Stop()
	assert.Equal(t, Stopped, m.State())
}
