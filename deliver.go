package event

import (
	"context"
	"fmt"
	"runtime/debug"
)

// deliver calls one listener. With recovery enabled a panic is logged,
// reported to the error handler and swallowed so that the rest of the batch
// still runs.
func (b *Bus) deliver(ctx context.Context, l Listener, name, batchID string, sender any, args Args) {
	if b.recoveryEnabled {
		defer func() {
			if r := recover(); r != nil {
				err := &PanicError{
					Event:     name,
					BatchID:   batchID,
					Recovered: r,
					Stack:     debug.Stack(),
				}
				b.logger.Error("listener panic recovered",
					"event", name,
					"listener", fmt.Sprintf("%T", l),
					"error", r,
					"stack", string(err.Stack),
				)
				b.metrics.Panicked(ctx, name)
				b.onError(err)
			}
		}()
	}
	l.OnEvent(ctx, sender, name, args)
	b.metrics.Delivered(ctx, name)
}
