package aggregate

import "sync"

// History remembers every origin a node has reported per name, so the
// contributor count never decreases when a child dies or the tree is
// rebuilt. It lives as long as the node.
type History struct {
	mu   sync.Mutex
	seen map[string][]string
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{seen: make(map[string][]string)}
}

// Clamp extends each entry's origin set with the recorded origins, records
// the union and sets Contributors to its size. t is modified in place; call
// it before publishing t.
func (h *History) Clamp(t Table) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for name, e := range t {
		union := unionSorted(h.seen[name], e.Seen)
		h.seen[name] = union
		e.Seen = union
		e.Contributors = contributors(union)
		t[name] = e
	}
}

// Count returns the number of recorded origins for name.
func (h *History) Count(name string) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return contributors(h.seen[name])
}

// Len returns the number of names with recorded history.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}
