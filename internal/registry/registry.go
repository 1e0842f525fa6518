package registry

import (
	"slices"
	"sync"
)

// Entry is a device record that can be stored in a Registry.
type Entry[T any] interface {
	// Identity returns the immutable merge key.
	Identity() string

	// Clone returns a deep copy.
	Clone() T
}

// Policy describes how a channel merges and orders its devices.
type Policy[T any] struct {
	// Merge applies an observation to the stored record for the same identity.
	// When nil, the observation replaces the stored record.
	Merge func(existing *T, obs T)

	// Less orders the visible view. When nil, insertion order is kept.
	Less func(a, b T) bool

	// ResortOnUpdate re-sorts the view after every in-place update, for
	// channels whose sort key is a mutable field.
	ResortOnUpdate bool
}

// Registry is an identity-keyed, ordered collection of device records.
type Registry[T Entry[T]] struct {
	mu     sync.RWMutex
	policy Policy[T]
	index  map[string]int
	order  []T
}

// New creates an empty registry with the given policy.
func New[T Entry[T]](policy Policy[T]) *Registry[T] {
	return &Registry[T]{
		policy: policy,
		index:  make(map[string]int),
	}
}

// Upsert merges obs into the record with the same identity, inserting it if
// absent. It reports whether a new identity was added.
func (r *Registry[T]) Upsert(obs T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := obs.Identity()
	if i, ok := r.index[id]; ok {
		if r.policy.Merge != nil {
			r.policy.Merge(&r.order[i], obs)
		} else {
			r.order[i] = obs.Clone()
		}
		if r.policy.ResortOnUpdate {
			r.resortLocked()
		}
		return false
	}

	r.order = append(r.order, obs.Clone())
	r.index[id] = len(r.order) - 1
	r.resortLocked()
	return true
}

// Update applies fn to the stored record for id. It reports whether the
// identity was present. fn must not change the identity.
func (r *Registry[T]) Update(id string, fn func(*T)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		return false
	}
	fn(&r.order[i])
	if r.policy.ResortOnUpdate {
		r.resortLocked()
	}
	return true
}

// UpdateAll applies fn to every stored record.
func (r *Registry[T]) UpdateAll(fn func(*T)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.order {
		fn(&r.order[i])
	}
	if r.policy.ResortOnUpdate {
		r.resortLocked()
	}
}

// Get returns a copy of the record for id.
func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return r.order[i].Clone(), true
}

// Contains reports whether id is present.
func (r *Registry[T]) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[id]
	return ok
}

// All returns a copy of the ordered view.
func (r *Registry[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, len(r.order))
	for i, d := range r.order {
		out[i] = d.Clone()
	}
	return out
}

// Filter returns copies of the records for which keep returns true, in view
// order.
func (r *Registry[T]) Filter(keep func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []T
	for _, d := range r.order {
		if keep(d) {
			out = append(out, d.Clone())
		}
	}
	return out
}

// Len returns the number of distinct identities.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Clear removes every record.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = nil
	r.index = make(map[string]int)
}

// Resort re-applies the policy ordering to the view.
func (r *Registry[T]) Resort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resortLocked()
}

func (r *Registry[T]) resortLocked() {
	if r.policy.Less != nil {
		less := r.policy.Less
		slices.SortStableFunc(r.order, func(a, b T) int {
			switch {
			case less(a, b):
				return -1
			case less(b, a):
				return 1
			default:
				return 0
			}
		})
	}
	for i, d := range r.order {
		r.index[d.Identity()] = i
	}
}
