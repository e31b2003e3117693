package aggregate

import (
	"fmt"
	"sync"

	"github.com/xtxerr/treemon/internal/errors"
	"github.com/xtxerr/treemon/internal/logging"
)

var log = logging.Component("aggregate")

// Registry binds counter names to merge policies.
//
// Resolution order: configured policy, then an existing binding, then the
// policy carried by the first observation, then the default. A binding never
// changes afterwards; conflicting observations are logged and merged under
// the bound policy.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	configured map[string]Policy
	bound      map[string]Policy
	def        Policy
	conflicts  map[string]bool
}

// NewRegistry creates a Registry from static configuration.
func NewRegistry(configured map[string]Policy, def Policy) *Registry {
	if !def.Valid() {
		def = PolicySum
	}
	c := make(map[string]Policy, len(configured))
	for name, p := range configured {
		if p.Valid() {
			c[name] = p
		}
	}
	return &Registry{
		configured: c,
		bound:      make(map[string]Policy),
		def:        def,
		conflicts:  make(map[string]bool),
	}
}

// Default returns the policy used for names nobody described.
func (r *Registry) Default() Policy { return r.def }

// Bind binds name to p on behalf of a local writer that asked for p.
// It fails with ErrPolicyConflict when name is already bound differently.
func (r *Registry) Bind(name string, p Policy) error {
	if !p.Valid() {
		return fmt.Errorf("counter %q: %w", name, errors.ErrInvalidPolicy)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.lookupLocked(name); ok {
		if cur != p {
			return fmt.Errorf("counter %q bound to %s, requested %s: %w",
				name, cur, p, errors.ErrPolicyConflict)
		}
		return nil
	}
	r.bound[name] = p
	return nil
}

// Resolve returns the policy for name, binding it on first use.
// observed is the policy carried by the entry being merged, or PolicyUnset.
func (r *Registry) Resolve(name string, observed Policy) Policy {
	r.mu.RLock()
	cur, ok := r.lookupLocked(name)
	r.mu.RUnlock()
	if ok {
		if observed.Valid() && observed != cur {
			r.noteConflict(name, cur, observed)
		}
		return cur
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.lookupLocked(name); ok {
		return cur
	}
	p := observed
	if !p.Valid() {
		p = r.def
	}
	r.bound[name] = p
	return p
}

// Lookup returns the policy for name without binding.
func (r *Registry) Lookup(name string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(name)
}

// Bindings returns every configured and bound policy.
func (r *Registry) Bindings() map[string]Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Policy, len(r.configured)+len(r.bound))
	for name, p := range r.bound {
		out[name] = p
	}
	for name, p := range r.configured {
		out[name] = p
	}
	return out
}

func (r *Registry) lookupLocked(name string) (Policy, bool) {
	if p, ok := r.configured[name]; ok {
		return p, true
	}
	p, ok := r.bound[name]
	return p, ok
}

// noteConflict logs a conflicting observation once per name.
func (r *Registry) noteConflict(name string, bound, observed Policy) {
	r.mu.Lock()
	seen := r.conflicts[name]
	r.conflicts[name] = true
	r.mu.Unlock()

	if !seen {
		log.Warn("merge policy conflict, keeping bound policy",
			"name", name, "bound", bound.String(), "observed", observed.String())
	}
}
