package event

import (
	"sync"
	"weak"
)

// Ref is a non-owning handle to a listener.
type Ref interface {
	// Value returns the listener, or nil once it has been reclaimed.
	Value() Listener
}

type weakRef[T any, PT interface {
	*T
	Listener
}] struct {
	p weak.Pointer[T]
}

func (r weakRef[T, PT]) Value() Listener {
	v := r.p.Value()
	if v == nil {
		return nil
	}
	return PT(v)
}

// WeakRef returns a weak handle to l. Holding the handle does not keep l
// alive. Returns nil for a nil l.
//
// l should point to a non-zero-size value: all zero-size allocations share
// one address and are never reclaimed.
func WeakRef[T any, PT interface {
	*T
	Listener
}](l PT) Ref {
	if l == nil {
		return nil
	}
	return weakRef[T, PT]{p: weak.Make((*T)(l))}
}

// WeakSet is an ordered set of weak listener handles.
//
// Handles whose listener has been reclaimed are dropped lazily by the next
// operation that scans the set. All methods are safe for concurrent use.
type WeakSet struct {
	mu   sync.Mutex
	refs []Ref

	// retired is set by the owning Registry once the set has been removed
	// from its map; adds through the registry must then go to a new set.
	retired bool
}

// Add appends ref unless it is nil, already reclaimed, or its listener is
// already present. Reports whether it appended.
func (s *WeakSet) Add(ref Ref) bool {
	added, _ := s.add(ref)
	return added
}

// add is Add for the registry; live is false if the set was retired.
func (s *WeakSet) add(ref Ref) (added, live bool) {
	if ref == nil {
		return false, true
	}
	l := ref.Value()
	if l == nil {
		return false, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retired {
		return false, false
	}
	s.flushLocked()
	if s.indexLocked(l) >= 0 {
		return false, true
	}
	s.refs = append(s.refs, ref)
	return true, true
}

// Remove deletes l from the set. Reports whether it was present.
func (s *WeakSet) Remove(l Listener) bool {
	removed, _ := s.remove(l, false)
	return removed
}

// remove deletes l and, if retire is set and the set is left empty, retires
// the set. Reports whether l was removed and whether the set is now retired.
func (s *WeakSet) remove(l Listener, retire bool) (removed, retired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
	if i := s.indexLocked(l); i >= 0 {
		s.refs = append(s.refs[:i], s.refs[i+1:]...)
		removed = true
	}
	if retire && len(s.refs) == 0 {
		s.retired = true
	}
	return removed, s.retired
}

// retireIfEmpty marks an empty set retired. Reports whether it is retired.
func (s *WeakSet) retireIfEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
	if len(s.refs) == 0 {
		s.retired = true
	}
	return s.retired
}

// Contains reports whether a live handle to l is in the set.
func (s *WeakSet) Contains(l Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
	return s.indexLocked(l) >= 0
}

// IsEmpty reports whether no live handles remain.
func (s *WeakSet) IsEmpty() bool {
	return s.Len() == 0
}

// Len returns the number of live handles.
func (s *WeakSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
	return len(s.refs)
}

// ForEachLive calls fn for every live listener in insertion order.
//
// The set is locked while fn runs: fn must not call back into this set.
// Copy the listeners out and act on them after ForEachLive returns.
func (s *WeakSet) ForEachLive(fn func(Listener)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
	for _, r := range s.refs {
		// A listener can be reclaimed between the flush and this read.
		if l := r.Value(); l != nil {
			fn(l)
		}
	}
}

func (s *WeakSet) indexLocked(l Listener) int {
	if l == nil {
		return -1
	}
	for i, r := range s.refs {
		if r.Value() == l {
			return i
		}
	}
	return -1
}

// flushLocked drops reclaimed handles, keeping order.
func (s *WeakSet) flushLocked() {
	n := 0
	for _, r := range s.refs {
		if r.Value() != nil {
			s.refs[n] = r
			n++
		}
	}
	clear(s.refs[n:])
	s.refs = s.refs[:n]
}
