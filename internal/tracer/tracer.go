// Package tracer implements an optional, low-overhead nonce-event
// tracer: AttachProgram loads a compiled eBPF object, attaches it to a
// kernel tracepoint and returns a reader over its ring buffer, and
// Decode parses each record into an Event. Adapted from the teacher's
// eBPF_driver.go XDP/ring-buffer plumbing (there used to snoop USB bulk
// traffic for nonce headers). Events come only from the attached eBPF
// program; HashChain's solution-rx task does not write to the ring
// buffer.
package tracer

import (
	"encoding/binary"
	"fmt"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
)

// Event is one nonce-found record published to the ring buffer.
type Event struct {
	WorkID uint32
	Nonce  uint32
	ChipID uint8
}

// Tracer is the handle New returns once the memlock limit is lifted.
// It has no method for publishing Events; they reach the ring buffer
// only from a program attached with AttachProgram.
type Tracer struct {
	writer *ringbuf.Reader // not set by New; Close releases it when non-nil
}

// New removes the process's memlock limit (required for any ring
// buffer map, per cilium/ebpf's rlimit.RemoveMemlock convention) and
// returns a Tracer. Returns an error on
// platforms without ring buffer support (non-Linux, or insufficient
// privilege), which callers should treat as "tracing unavailable" and
// continue without it rather than failing hashboard bring-up.
func New() (*Tracer, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("remove memlock limit for ring buffer: %w", err)
	}
	return &Tracer{}, nil
}

// Encode serializes an Event into the 9-byte wire format the ring
// buffer carries, matching the teacher's fixed-width nonce-event
// records.
func Encode(e Event) []byte {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint32(buf[0:4], e.WorkID)
	binary.LittleEndian.PutUint32(buf[4:8], e.Nonce)
	buf[8] = e.ChipID
	return buf
}

// Decode parses a 9-byte ring-buffer record back into an Event.
func Decode(buf []byte) (Event, error) {
	if len(buf) < 9 {
		return Event{}, fmt.Errorf("short tracer record: %d bytes", len(buf))
	}
	return Event{
		WorkID: binary.LittleEndian.Uint32(buf[0:4]),
		Nonce:  binary.LittleEndian.Uint32(buf[4:8]),
		ChipID: buf[8],
	}, nil
}

// Close releases the tracer's ring buffer reader, if one was attached.
func (t *Tracer) Close() error {
	if t.writer == nil {
		return nil
	}
	return t.writer.Close()
}
