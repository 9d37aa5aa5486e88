package event

import "context"

// Listener receives posted events.
//
// OnEvent always runs on the bus transport's delivery goroutine, never on the
// poster's. It must not block: a blocked listener stalls every later batch.
// Listeners are compared by identity, so they must be pointers.
type Listener interface {
	OnEvent(ctx context.Context, sender any, name string, args Args)
}

// ListenerFunc adapts a function to Listener.
// A bare function cannot be weakly referenced; register it through Bus.Listen.
type ListenerFunc func(ctx context.Context, sender any, name string, args Args)

// OnEvent calls f.
func (f ListenerFunc) OnEvent(ctx context.Context, sender any, name string, args Args) {
	f(ctx, sender, name, args)
}

// Args is the ordered payload attached to a posted event.
type Args []any

// At returns the argument at i, or false if i is out of range.
func (a Args) At(i int) (any, bool) {
	if i < 0 || i >= len(a) {
		return nil, false
	}
	return a[i], true
}

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a)
}

// ArgAt returns args[index], or (nil, false) when index is out of range or
// args is empty.
func ArgAt(index int, args ...any) (any, bool) {
	return Args(args).At(index)
}

// ArgAs returns the argument at i converted to T.
// Returns the zero value and false if i is out of range or the argument is
// not a T.
func ArgAs[T any](args Args, i int) (T, bool) {
	var zero T
	v, ok := args.At(i)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
