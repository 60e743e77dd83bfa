// Package halt implements the cooperative shutdown bus that
// coordinates the hashchain's background tasks, grounded on spec.md §5:
// named client registration and a bounded-deadline acknowledgement
// handshake rather than an unguarded context cancellation.
package halt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rrybarczyk/braiins/internal/errs"
)

// DefaultTimeout is spec.md's HALT_TIMEOUT: how long SendHalt waits
// for every registered client to acknowledge before giving up and
// reporting an error.
const DefaultTimeout = 30 * time.Second

// Client is a handle a task uses to observe and acknowledge a halt
// request.
type Client struct {
	Name string
	Done <-chan struct{}
	ack  chan struct{}
}

// Acknowledge signals that this client has finished tearing down.
// Later calls from the same goroutine are no-ops; concurrent calls are
// not synchronized.
func (c *Client) Acknowledge() {
	select {
	case <-c.ack:
	default:
		close(c.ack)
	}
}

// Bus is the halt coordinator. One Bus per hashchain/chain instance.
type Bus struct {
	mu       sync.Mutex
	done     chan struct{}
	clients  map[string]chan struct{}
	halted   bool
}

// New creates a halt bus with no registered clients.
func New() *Bus {
	return &Bus{
		done:    make(chan struct{}),
		clients: make(map[string]chan struct{}),
	}
}

// Register adds a named client to the bus. Registering the same name
// twice replaces the earlier registration, mirroring a task restarting
// under its own name.
func (b *Bus) Register(name string) *Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	ack := make(chan struct{})
	b.clients[name] = ack
	return &Client{Name: name, Done: b.done, ack: ack}
}

// SpawnHaltHandler runs fn in its own goroutine, passing it the client
// handle it should watch for shutdown and acknowledge from, following
// the teacher's task-spawning idiom of one goroutine per responsibility.
func (b *Bus) SpawnHaltHandler(name string, fn func(c *Client)) {
	c := b.Register(name)
	go fn(c)
}

// SendHalt closes the shared done channel and waits up to timeout for
// every registered client to acknowledge, returning an error naming
// any that didn't.
func (b *Bus) SendHalt(ctx context.Context, timeout time.Duration) error {
	b.mu.Lock()
	if b.halted {
		b.mu.Unlock()
		return nil
	}
	b.halted = true
	close(b.done)
	clients := make(map[string]chan struct{}, len(b.clients))
	for name, ack := range b.clients {
		clients[name] = ack
	}
	b.mu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	acked := make(chan string, len(clients))
	for name, ack := range clients {
		go func(name string, ack chan struct{}) {
			<-ack
			acked <- name
		}(name, ack)
	}

	pending := make(map[string]struct{}, len(clients))
	for name := range clients {
		pending[name] = struct{}{}
	}

	for len(pending) > 0 {
		select {
		case name := <-acked:
			delete(pending, name)
		case <-ctx.Done():
			return errs.New(errs.Halt, "SendHalt", ctx.Err())
		case <-deadline.C:
			return errs.New(errs.Halt, "SendHalt", fmt.Errorf("timed out waiting for: %v", names(pending)))
		}
	}
	return nil
}

func names(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
