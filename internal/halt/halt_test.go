package halt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendHaltWaitsForAcknowledgement(t *testing.T) {
	b := New()
	done := make(chan struct{})
	b.SpawnHaltHandler("worker", func(c *Client) {
		<-c.Done
		close(done)
		c.Acknowledge()
	})

	err := b.SendHalt(context.Background(), time.Second)
	require.NoError(t, err)
	select {
	case <-done:
	default:
		t.Fatal("worker was not signalled")
	}
}

func TestSendHaltTimesOutOnMissingAck(t *testing.T) {
	b := New()
	b.SpawnHaltHandler("stuck", func(c *Client) {
		<-c.Done
		// never acknowledges
	})

	err := b.SendHalt(context.Background(), 20*time.Millisecond)
	assert.Error(t, err)
}

func TestSendHaltIsIdempotent(t *testing.T) {
	b := New()
	b.SpawnHaltHandler("worker", func(c *Client) {
		<-c.Done
		c.Acknowledge()
	})

	require.NoError(t, b.SendHalt(context.Background(), time.Second))
	require.NoError(t, b.SendHalt(context.Background(), time.Second))
}
