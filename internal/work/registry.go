package work

import "sync"

// Registry correlates work-ids with the Item that was dispatched under
// that id, using a fixed-size ring buffer so ids wrap and stale slots
// are naturally evicted — mirroring bosminer's WorkRegistry, sized to
// the chain's in-flight work-id space.
type Registry struct {
	mu      sync.Mutex
	slots   []*Item
	seen    []map[uint32]struct{}
	nextID  uint32
	size    uint32
}

// NewRegistry creates a registry covering size distinct work-ids
// (size must be a power of two so id wrapping is a simple mask).
func NewRegistry(size uint32) *Registry {
	return &Registry{
		slots: make([]*Item, size),
		seen:  make([]map[uint32]struct{}, size),
		size:  size,
	}
}

func (r *Registry) mask(id uint32) uint32 { return id & (r.size - 1) }

// Store assigns the next work-id to item and records it, returning the
// assigned id. Overwriting a slot still awaiting a solution discards
// that slot's pending nonce-dedup state, matching the ring buffer's
// wrap-and-evict behavior.
func (r *Registry) Store(item *Item) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	slot := r.mask(id)
	item.ID = id
	r.slots[slot] = item
	r.seen[slot] = make(map[uint32]struct{})
	return id
}

// FindWork returns the Item registered for id, or nil if no item is
// currently registered under that id (evicted by wraparound, or never
// issued) — the solution-rx task logs and drops in that case.
func (r *Registry) FindWork(id uint32) *Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot := r.mask(id)
	item := r.slots[slot]
	if item == nil || item.ID != id {
		return nil
	}
	return item
}

// InsertSolution looks up the work item for sol.WorkID and records the
// solution against it, returning the outcome and the matched item (nil
// if no work was found for that id).
func (r *Registry) InsertSolution(sol Solution) (InsertOutcome, *Item) {
	r.mu.Lock()
	slot := r.mask(sol.WorkID)
	item := r.slots[slot]
	if item == nil || item.ID != sol.WorkID {
		r.mu.Unlock()
		return InsertOutcome{}, nil
	}
	seen := r.seen[slot]
	r.mu.Unlock()

	return item.InsertSolution(sol, seen), item
}
