package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mobilib/event/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NewID generates a new unique ID
func NewID() string {
	return transport.NewID()
}

const (
	busRunning = 1
	busStopped = 0
)

const (
	spanKeyEventName  = "event.name"
	spanKeyBatchID    = "event.batch_id"
	spanKeyEventBus   = "event.bus"
	spanKeyListeners  = "event.listeners"
	spanKeyBusID      = "event.source"
	dropNoListeners   = "no_listeners"
	managedComponent  = "managed_listeners"
	registryComponent = "events"
)

// StatusCode represents the health state of the bus
type StatusCode string

const (
	// StatusHealthy indicates the bus is functioning normally
	StatusHealthy StatusCode = "healthy"
	// StatusDegraded indicates the bus is functioning but with issues
	StatusDegraded StatusCode = "degraded"
	// StatusUnhealthy indicates the bus is not functioning
	StatusUnhealthy StatusCode = "unhealthy"
)

// Status contains detailed status information for the bus
type Status struct {
	Code       StatusCode         `json:"status"`
	Message    string             `json:"message,omitempty"`
	Latency    time.Duration      `json:"latency,omitempty"`
	Details    map[string]any     `json:"details,omitempty"`
	Components map[string]*Status `json:"components,omitempty"`
	CheckedAt  time.Time          `json:"checked_at"`
}

// IsHealthy returns true if the status code is healthy
func (s *Status) IsHealthy() bool {
	return s.Code == StatusHealthy
}

// Bus delivers named events to weakly held listeners.
//
// Each bus owns its registry, its managed listeners and its transport; there
// is no package-level default bus.
type Bus struct {
	status          int32
	id              string
	name            string
	registry        *Registry
	transport       transport.Transport
	logger          *slog.Logger
	onError         func(error)
	tracingEnabled  bool
	recoveryEnabled bool
	metrics         busMetrics

	managedMu sync.Mutex
	managed   map[*ManagedListener]struct{}
}

// NewBus creates a new event bus.
// Returns ErrTransportRequired if no transport is given via WithBusTransport.
func NewBus(name string, opts ...BusOption) (*Bus, error) {
	o := newBusOptions(opts...)

	if name == "" {
		name = DefaultBusName
	}

	// For channel transport: NewBus(name, WithBusTransport(channel.New()))
	if o.transport == nil {
		return nil, ErrTransportRequired
	}

	bus := &Bus{
		name:            name,
		status:          busRunning,
		id:              NewID(),
		registry:        NewRegistry(),
		transport:       o.transport,
		logger:          o.logger.With("component", "bus>"+name),
		onError:         o.onError,
		tracingEnabled:  o.tracingEnabled,
		recoveryEnabled: o.recoveryEnabled,
		managed:         make(map[*ManagedListener]struct{}),
	}
	if o.metricsEnabled {
		bus.metrics = newBusMetrics(name)
	}
	return bus, nil
}

// ID returns the bus ID
func (b *Bus) ID() string {
	return b.id
}

// Name returns the bus name
func (b *Bus) Name() string {
	return b.name
}

// Running returns true if bus is running
func (b *Bus) Running() bool {
	return atomic.LoadInt32(&b.status) == busRunning
}

// Registry returns the name to listener registry of the bus
func (b *Bus) Registry() *Registry {
	return b.registry
}

// Transport returns the bus transport
func (b *Bus) Transport() transport.Transport {
	return b.transport
}

// Logger returns the bus logger
func (b *Bus) Logger() *slog.Logger {
	return b.logger
}

// AddListener registers l for each of names. The bus only keeps a weak
// reference: once nothing else references l it stops receiving events and is
// dropped from the registry without being removed explicitly.
//
// Registering a listener twice for the same name is a no-op. Use Bus.Listen
// for listeners that nothing else would keep alive.
func AddListener[T any, PT interface {
	*T
	Listener
}](b *Bus, l PT, names ...string) {
	if b == nil || l == nil || len(names) == 0 {
		return
	}
	b.registry.Add(WeakRef[T, PT](l), names...)
	b.logger.Debug("added listener", "events", names)
}

// RemoveListenerFromEvent unregisters l from name.
// Reports whether l was registered for name.
func (b *Bus) RemoveListenerFromEvent(l Listener, name string) bool {
	if l == nil {
		return false
	}
	return b.registry.Remove(l, name)
}

// RemoveListenerFromAllEvents unregisters l from every name and returns the
// number of names it was removed from.
func (b *Bus) RemoveListenerFromAllEvents(l Listener) int {
	if l == nil {
		return 0
	}
	return b.registry.RemoveAll(l)
}

// PostEvent delivers an event to every live listener of name.
//
// The listeners are captured when PostEvent is called: a listener added
// afterwards does not receive this event, and one removed afterwards still
// does. All deliveries are submitted to the transport as a single batch, so
// they run back to back in registration order on the delivery goroutine.
// PostEvent does not wait for delivery.
//
// Posting to a name without listeners is a no-op. Returns ErrBusClosed after
// Close, or the transport's error if it rejects the batch.
func (b *Bus) PostEvent(ctx context.Context, sender any, name string, args ...any) error {
	if !b.Running() {
		return ErrBusClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	listeners := b.registry.Snapshot(name)
	if len(listeners) == 0 {
		b.registry.Prune(name)
		b.metrics.Dropped(ctx, name, dropNoListeners)
		b.logger.Debug("dropping event, no listeners", "event", name)
		return nil
	}

	batchID := NewID()
	var link trace.Link
	if b.tracingEnabled {
		tracer := otel.Tracer(b.name)
		var span trace.Span
		ctx, span = tracer.Start(ctx, fmt.Sprintf("%s.post", name),
			trace.WithAttributes(
				attribute.String(spanKeyBatchID, batchID),
				attribute.String(spanKeyBusID, b.id),
				attribute.String(spanKeyEventBus, b.name),
				attribute.String(spanKeyEventName, name),
				attribute.Int(spanKeyListeners, len(listeners))),
			trace.WithSpanKind(trace.SpanKindProducer))
		link = trace.Link{SpanContext: span.SpanContext()}
		defer span.End()
	}

	payload := Args(slices.Clone(args))
	b.metrics.Posted(ctx, name, len(listeners))

	batch := func() {
		b.deliverBatch(name, batchID, sender, payload, listeners, link)
	}
	if err := b.transport.Submit(ctx, batch); err != nil {
		return fmt.Errorf("post %q: %w", name, err)
	}
	return nil
}

// deliverBatch runs on the delivery goroutine.
func (b *Bus) deliverBatch(name, batchID string, sender any, args Args, listeners []Listener, link trace.Link) {
	ctx := contextWithInfo(context.Background(), name, b.id, batchID, sender)
	if b.tracingEnabled {
		tracer := otel.Tracer(b.name)
		var span trace.Span
		ctx, span = tracer.Start(ctx, fmt.Sprintf("%s.deliver", name),
			trace.WithAttributes(
				attribute.String(spanKeyBatchID, batchID),
				attribute.String(spanKeyEventBus, b.name),
				attribute.String(spanKeyEventName, name)),
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithLinks(link))
		defer span.End()
	}
	for _, l := range listeners {
		b.deliver(ctx, l, name, batchID, sender, args)
	}
}

// Flush waits until every batch submitted before the call has run.
// Called from a listener with its delivery context it returns
// ErrFlushFromDelivery.
func (b *Bus) Flush(ctx context.Context) error {
	if !b.Running() {
		return ErrBusClosed
	}
	// the barrier would queue behind the running batch
	if ContextSource(ctx) == b.id {
		return ErrFlushFromDelivery
	}
	done := make(chan struct{})
	if err := b.transport.Submit(ctx, func() { close(done) }); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the bus. Posts fail with ErrBusClosed afterwards, managed
// listeners lose their keep-alive reference and the transport is closed,
// which lets queued batches finish.
func (b *Bus) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&b.status, busRunning, busStopped) {
		return nil
	}

	b.managedMu.Lock()
	clear(b.managed)
	b.managedMu.Unlock()

	if err := b.transport.Close(ctx); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	b.logger.Debug("bus closed")
	return nil
}

// Status returns detailed status information about the bus and its transport.
// If the transport implements HealthChecker, its status is included.
func (b *Bus) Status(ctx context.Context) *Status {
	start := time.Now()
	result := &Status{
		CheckedAt:  start,
		Details:    make(map[string]any),
		Components: make(map[string]*Status),
	}
	result.Details["bus_name"] = b.name

	if !b.Running() {
		result.Code = StatusUnhealthy
		result.Message = "bus is closed"
		result.Latency = time.Since(start)
		return result
	}

	result.Details[registryComponent] = b.registry.Len()
	result.Details[managedComponent] = b.managedCount()

	if hc, ok := b.transport.(transport.HealthChecker); ok {
		transportHealth := hc.Health(ctx)
		result.Components["transport"] = convertTransportStatus(transportHealth)

		switch transportHealth.Status {
		case transport.HealthStatusUnhealthy:
			result.Code = StatusUnhealthy
			result.Message = "transport is unhealthy"
		case transport.HealthStatusDegraded:
			result.Code = StatusDegraded
			result.Message = "transport is degraded"
		default:
			result.Code = StatusHealthy
			result.Message = "bus is healthy"
		}
	} else {
		result.Code = StatusHealthy
		result.Message = "bus is healthy (transport health not available)"
	}
	result.Latency = time.Since(start)
	return result
}

// Health performs a health check suitable for health probes.
// Returns nil if the bus is healthy, or an error describing the issue.
func (b *Bus) Health(ctx context.Context) error {
	status := b.Status(ctx)
	if status.Code == StatusUnhealthy {
		return errors.New(status.Message)
	}
	return nil
}

// convertTransportStatus converts transport.HealthCheckResult to bus Status
func convertTransportStatus(th *transport.HealthCheckResult) *Status {
	if th == nil {
		return nil
	}

	result := &Status{
		Code:      StatusCode(th.Status),
		Message:   th.Message,
		Latency:   th.Latency,
		Details:   th.Details,
		CheckedAt: th.CheckedAt,
	}

	if len(th.Components) > 0 {
		result.Components = make(map[string]*Status, len(th.Components))
		for k, v := range th.Components {
			result.Components[k] = convertTransportStatus(v)
		}
	}

	return result
}
