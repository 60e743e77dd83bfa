package tracer

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
)

// AttachProgram loads a compiled eBPF object (produced out-of-band by
// a bpf2go-generated build step, out of scope for this module) and
// attaches it to the given tracepoint, returning a ring-buffer reader
// over its "events" map. This mirrors the teacher's eBPF_driver.go
// shape (CollectionSpec -> NewCollection -> link.Tracepoint ->
// ringbuf.NewReader) with the XDP attach point swapped for a
// tracepoint, since there's no network interface in this domain to
// hang an XDP program off of.
func AttachProgram(objPath, group, name string) (*ringbuf.Reader, func(), error) {
	spec, err := ebpf.LoadCollectionSpec(objPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load eBPF object %s: %w", objPath, err)
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, nil, fmt.Errorf("load eBPF collection: %w", err)
	}

	prog, ok := coll.Programs["trace_solution"]
	if !ok {
		coll.Close()
		return nil, nil, fmt.Errorf("eBPF object %s has no trace_solution program", objPath)
	}
	tp, err := link.Tracepoint(group, name, prog, nil)
	if err != nil {
		coll.Close()
		return nil, nil, fmt.Errorf("attach tracepoint %s:%s: %w", group, name, err)
	}

	eventsMap, ok := coll.Maps["events"]
	if !ok {
		tp.Close()
		coll.Close()
		return nil, nil, fmt.Errorf("eBPF object %s has no events ring buffer map", objPath)
	}
	reader, err := ringbuf.NewReader(eventsMap)
	if err != nil {
		tp.Close()
		coll.Close()
		return nil, nil, fmt.Errorf("open ring buffer reader: %w", err)
	}

	cleanup := func() {
		reader.Close()
		tp.Close()
		coll.Close()
	}
	return reader, cleanup, nil
}
