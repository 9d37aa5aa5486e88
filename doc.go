// Package event provides an in-process event bus that lets unrelated objects
// communicate by event name without holding references to each other.
//
// Architecture:
//   - The bus keeps only weak references to listeners. A listener that nothing
//     else references is reclaimed by the garbage collector and silently drops
//     out of the registry; forgetting to unregister does not leak it.
//   - Deliveries run on one designated delivery goroutine provided by a
//     transport. PostEvent snapshots the listeners and submits them as a single
//     batch, so the listeners of one post are notified back to back, in
//     registration order, and never interleaved with another post.
//   - A listener that posts from inside OnEvent queues a new batch instead of
//     recursing.
//
// Basic example:
//
//	bus, err := event.NewBus("app", event.WithBusTransport(channel.New()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bus.Close(ctx)
//
//	type netWatcher struct{ online bool }
//
//	func (w *netWatcher) OnEvent(ctx context.Context, sender any, name string, args event.Args) {
//	    w.online = name == event.NetworkOn
//	}
//
//	w := &netWatcher{}
//	event.AddListener(bus, w, event.NetworkOn, event.NetworkOff)
//
//	bus.PostEvent(ctx, observer, event.NetworkOn)
//
// The caller owns w: the bus stops delivering to it once w is unreachable.
//
// Inline listeners:
// A bare function has nothing else referencing it and would be reclaimed at
// once. Bus.Listen keeps it alive until its detach function is called:
//
//	_, detach := bus.Listen(func(ctx context.Context, sender any, name string, args event.Args) {
//	    if path, ok := event.ArgAs[string](args, 0); ok {
//	        show(path)
//	    }
//	    detach()
//	}, "download.finished")
//
// Bus Options:
//   - WithBusTransport: set transport (required). Use channel.New() or manual.New().
//   - WithBusTracing: enable/disable OpenTelemetry tracing. Default is true.
//   - WithBusRecovery: enable/disable panic recovery around each listener. Default is true.
//   - WithBusMetrics: enable/disable OpenTelemetry metrics. Default is true.
//   - WithBusLogger: set logger for the bus.
//   - WithBusErrorHandler: receive recovered listener panics as *PanicError.
//
// Listeners must not block: a blocked listener stalls the delivery goroutine
// and every batch queued behind it.
package event
