package event

import (
	"slices"
	"sync"
)

// Registry maps event names to the weak set of listeners registered for them.
//
// A name's set is created by the first Add and deleted when a removal leaves
// it empty, so the map only holds names with at least one listener. Readers
// racing with a removal may still observe a transiently empty set.
type Registry struct {
	sets sync.Map // map[string]*WeakSet
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers ref for every name. Adding the same listener twice to a name
// is a no-op.
func (r *Registry) Add(ref Ref, names ...string) {
	if ref == nil {
		return
	}
	for _, name := range names {
		r.add(ref, name)
	}
}

func (r *Registry) add(ref Ref, name string) {
	for {
		v, _ := r.sets.LoadOrStore(name, &WeakSet{})
		set := v.(*WeakSet)
		if _, live := set.add(ref); live {
			return
		}
		// The set was retired after we loaded it; make sure it is gone
		// from the map and try again with a fresh one.
		r.sets.CompareAndDelete(name, set)
	}
}

// Set returns the listener set for name, or nil if none is registered.
func (r *Registry) Set(name string) *WeakSet {
	if v, ok := r.sets.Load(name); ok {
		return v.(*WeakSet)
	}
	return nil
}

// Remove removes l from name. Reports whether l was registered for it.
func (r *Registry) Remove(l Listener, name string) bool {
	set := r.Set(name)
	if set == nil {
		return false
	}
	removed, retired := set.remove(l, true)
	if retired {
		r.sets.CompareAndDelete(name, set)
	}
	return removed
}

// RemoveAll removes l from every name and returns how many names it was
// registered for.
func (r *Registry) RemoveAll(l Listener) int {
	n := 0
	for _, name := range r.Names() {
		if r.Remove(l, name) {
			n++
		}
	}
	return n
}

// Prune deletes the set for name if it is empty, which happens when all of
// its listeners were reclaimed rather than removed. Reports whether the name
// is now absent.
func (r *Registry) Prune(name string) bool {
	set := r.Set(name)
	if set == nil {
		return true
	}
	if set.retireIfEmpty() {
		r.sets.CompareAndDelete(name, set)
		return true
	}
	return false
}

// Snapshot returns the live listeners for name in registration order.
func (r *Registry) Snapshot(name string) []Listener {
	set := r.Set(name)
	if set == nil {
		return nil
	}
	var out []Listener
	set.ForEachLive(func(l Listener) {
		out = append(out, l)
	})
	return out
}

// Contains reports whether l is registered for name.
func (r *Registry) Contains(l Listener, name string) bool {
	set := r.Set(name)
	return set != nil && set.Contains(l)
}

// IsEmpty reports whether name has no live listeners.
func (r *Registry) IsEmpty(name string) bool {
	set := r.Set(name)
	return set == nil || set.IsEmpty()
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	var names []string
	r.sets.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	slices.Sort(names)
	return names
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	n := 0
	r.sets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
