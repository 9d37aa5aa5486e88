package event

import (
	"context"
	"sync/atomic"
)

// ManagedListener is a function listener kept alive by its bus.
//
// The bus holds a strong reference to it from Listen until Detach, so an
// inline function does not get reclaimed while it is still wanted. A managed
// listener that is never detached stays referenced until the bus is closed.
type ManagedListener struct {
	bus      *Bus
	fn       ListenerFunc
	detached atomic.Bool
}

// Listen creates a managed listener for fn, registers it for names and
// returns it together with its detach function.
//
//	_, detach := bus.Listen(func(ctx context.Context, sender any, name string, args event.Args) {
//	    if done {
//	        detach()
//	    }
//	}, "download.finished")
func (b *Bus) Listen(fn ListenerFunc, names ...string) (*ManagedListener, func()) {
	m := &ManagedListener{bus: b, fn: fn}

	b.managedMu.Lock()
	if b.Running() {
		b.managed[m] = struct{}{}
	}
	b.managedMu.Unlock()

	m.Subscribe(names...)
	return m, m.Detach
}

// OnEvent calls the listener function unless the listener has been detached.
// Deliveries already queued when Detach was called are skipped.
func (m *ManagedListener) OnEvent(ctx context.Context, sender any, name string, args Args) {
	if m.detached.Load() || m.fn == nil {
		return
	}
	m.fn(ctx, sender, name, args)
}

// Subscribe registers the listener for more names. No-op after Detach.
func (m *ManagedListener) Subscribe(names ...string) {
	if m.detached.Load() {
		return
	}
	AddListener(m.bus, m, names...)
}

// Detach removes the listener from every name and releases the bus's strong
// reference. It is idempotent and may be called from inside OnEvent.
func (m *ManagedListener) Detach() {
	if !m.detached.CompareAndSwap(false, true) {
		return
	}
	m.bus.registry.RemoveAll(m)

	m.bus.managedMu.Lock()
	delete(m.bus.managed, m)
	m.bus.managedMu.Unlock()
}

// Detached reports whether Detach has been called.
func (m *ManagedListener) Detached() bool {
	return m.detached.Load()
}

func (b *Bus) managedCount() int {
	b.managedMu.Lock()
	defer b.managedMu.Unlock()
	return len(b.managed)
}
