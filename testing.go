package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mobilib/event/transport"
)

// TestBus creates a new bus configured for testing.
// The transport parameter is required - use manual.New() to run deliveries
// by hand or channel.New() for a real delivery goroutine.
// Has tracing/metrics disabled for simpler testing.
// Panics if transport is nil (test setup error).
//
// Example:
//
//	import "github.com/mobilib/event/transport/manual"
//	tr := manual.New()
//	bus := event.TestBus(tr)
func TestBus(t transport.Transport, opts ...BusOption) *Bus {
	opts = append([]BusOption{
		WithBusTransport(t),
		WithBusTracing(false),
		WithBusMetrics(false),
	}, opts...)
	bus, err := NewBus("test-bus", opts...)
	if err != nil {
		panic("event.TestBus: " + err.Error())
	}
	return bus
}

// Delivery is one event received by a Recorder
type Delivery struct {
	Label   string
	Sender  any
	Name    string
	Args    Args
	BatchID string
}

// Recorder is a Listener that records every delivery it receives.
// Useful for testing which events reached a listener, and in which order.
type Recorder struct {
	label string
	log   *DeliveryLog

	mu         sync.Mutex
	deliveries []Delivery
}

// NewRecorder creates a recorder. If log is not nil, deliveries are also
// appended to it, so that several recorders can share one global order.
func NewRecorder(label string, log *DeliveryLog) *Recorder {
	return &Recorder{label: label, log: log}
}

// OnEvent records the delivery
func (r *Recorder) OnEvent(ctx context.Context, sender any, name string, args Args) {
	d := Delivery{
		Label:   r.label,
		Sender:  sender,
		Name:    name,
		Args:    args,
		BatchID: ContextBatchID(ctx),
	}
	r.mu.Lock()
	r.deliveries = append(r.deliveries, d)
	r.mu.Unlock()
	if r.log != nil {
		r.log.Append(d)
	}
}

// Label returns the recorder label
func (r *Recorder) Label() string {
	return r.label
}

// Deliveries returns a copy of all recorded deliveries
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]Delivery, len(r.deliveries))
	copy(result, r.deliveries)
	return result
}

// Count returns the number of recorded deliveries
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deliveries)
}

// CountFor returns the number of deliveries for a specific event
func (r *Recorder) CountFor(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.deliveries {
		if d.Name == name {
			n++
		}
	}
	return n
}

// Reset clears all recorded deliveries
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.deliveries = nil
	r.mu.Unlock()
}

// DeliveryLog collects deliveries from several recorders in arrival order.
type DeliveryLog struct {
	mu         sync.Mutex
	deliveries []Delivery
}

// Append adds a delivery
func (l *DeliveryLog) Append(d Delivery) {
	l.mu.Lock()
	l.deliveries = append(l.deliveries, d)
	l.mu.Unlock()
}

// Deliveries returns a copy of the log
func (l *DeliveryLog) Deliveries() []Delivery {
	l.mu.Lock()
	defer l.mu.Unlock()
	result := make([]Delivery, len(l.deliveries))
	copy(result, l.deliveries)
	return result
}

// Labels returns the recorder labels in delivery order
func (l *DeliveryLog) Labels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	labels := make([]string, len(l.deliveries))
	for i, d := range l.deliveries {
		labels[i] = d.Label
	}
	return labels
}

// RecordingTransport wraps a transport and counts submitted batches.
// Useful for testing that each post is scheduled as one batch.
type RecordingTransport struct {
	transport.Transport
	submitted atomic.Int64
}

// NewRecordingTransport creates a transport that counts submitted batches.
// It wraps the provided transport (which is required).
func NewRecordingTransport(t transport.Transport) *RecordingTransport {
	if t == nil {
		panic("event: transport is required for NewRecordingTransport")
	}
	return &RecordingTransport{Transport: t}
}

// Submit counts the batch and delegates to the underlying transport
func (t *RecordingTransport) Submit(ctx context.Context, b transport.Batch) error {
	t.submitted.Add(1)
	return t.Transport.Submit(ctx, b)
}

// Submitted returns the number of batches submitted so far
func (t *RecordingTransport) Submitted() int {
	return int(t.submitted.Load())
}

// Health forwards to the wrapped transport if it is a HealthChecker
func (t *RecordingTransport) Health(ctx context.Context) *transport.HealthCheckResult {
	if hc, ok := t.Transport.(transport.HealthChecker); ok {
		return hc.Health(ctx)
	}
	return &transport.HealthCheckResult{Status: transport.HealthStatusHealthy, Message: "no health check"}
}
