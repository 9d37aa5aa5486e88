// Package channel provides the default delivery transport: a single goroutine
// draining an unbounded FIFO of batches.
//
// Submit never blocks, so a handler running on the delivery goroutine may post
// further events; they are queued behind the current batch instead of being
// delivered recursively.
//
// A handler that blocks stalls every batch behind it. There is no timeout and
// no cancellation of a running batch.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/mobilib/event/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

// Transport implements transport.Transport with one delivery goroutine
type Transport struct {
	mu      sync.Mutex // guards queue and closed
	queue   *queue.Queue
	closed  bool
	wake    chan struct{}
	closing chan struct{}
	done    chan struct{}

	backlogWarning int
	warn           rate.Sometimes
	logger         *slog.Logger
	onError        func(error)

	// Metrics
	submittedCounter metric.Int64Counter
	executedCounter  metric.Int64Counter
	panicCounter     metric.Int64Counter
}

// New creates a channel transport and starts its delivery goroutine.
func New(opts ...Option) *Transport {
	o := newOptions(opts...)

	meter := otel.Meter("event.transport.channel")
	submitted, _ := meter.Int64Counter("event.transport.channel.submitted",
		metric.WithDescription("Number of batches submitted to the channel transport"),
		metric.WithUnit("{batch}"),
	)
	executed, _ := meter.Int64Counter("event.transport.channel.executed",
		metric.WithDescription("Number of batches run by the channel transport"),
		metric.WithUnit("{batch}"),
	)
	panics, _ := meter.Int64Counter("event.transport.channel.panics",
		metric.WithDescription("Number of batches that panicked"),
		metric.WithUnit("{batch}"),
	)

	t := &Transport{
		queue:            queue.New(),
		wake:             make(chan struct{}, 1),
		closing:          make(chan struct{}),
		done:             make(chan struct{}),
		backlogWarning:   o.backlogWarning,
		warn:             rate.Sometimes{Interval: o.warnInterval},
		logger:           o.logger,
		onError:          o.onError,
		submittedCounter: submitted,
		executedCounter:  executed,
		panicCounter:     panics,
	}
	go t.loop()
	return t
}

// Submit enqueues a batch for the delivery goroutine.
func (t *Transport) Submit(ctx context.Context, b transport.Batch) error {
	if b == nil {
		return transport.ErrNilBatch
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrTransportClosed
	}
	t.queue.Add(b)
	backlog := t.queue.Length()
	t.mu.Unlock()

	if t.submittedCounter != nil {
		t.submittedCounter.Add(ctx, 1)
	}
	if t.backlogWarning > 0 && backlog > t.backlogWarning {
		t.warn.Do(func() {
			t.logger.Warn("delivery backlog is growing, a handler may be blocking",
				"backlog", backlog,
				"threshold", t.backlogWarning)
		})
	}

	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// Backlog returns the number of batches waiting to run.
func (t *Transport) Backlog() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.Length()
}

func (t *Transport) next() (transport.Batch, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.queue.Length() == 0 {
		return nil, false
	}
	return t.queue.Remove().(transport.Batch), true
}

func (t *Transport) drain() {
	for {
		b, ok := t.next()
		if !ok {
			return
		}
		t.run(b)
	}
}

func (t *Transport) loop() {
	defer close(t.done)
	for {
		t.drain()
		select {
		case <-t.wake:
		case <-t.closing:
			// No new batches can be queued once closing is closed.
			t.drain()
			return
		}
	}
}

func (t *Transport) run(b transport.Batch) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("batch panic recovered",
				"error", r,
				"stack", string(debug.Stack()))
			if t.panicCounter != nil {
				t.panicCounter.Add(context.Background(), 1)
			}
			t.onError(fmt.Errorf("channel transport: batch panic: %v", r))
		}
	}()
	b()
	if t.executedCounter != nil {
		t.executedCounter.Add(context.Background(), 1)
	}
}

// Close stops accepting batches and waits for the queued ones to run.
// Calling Close from inside a batch waits until ctx is done.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.closing)
	}
	t.mu.Unlock()

	select {
	case <-t.done:
		t.logger.Debug("transport closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Health performs a health check on the channel transport
func (t *Transport) Health(ctx context.Context) *transport.HealthCheckResult {
	start := time.Now()

	result := &transport.HealthCheckResult{
		CheckedAt: start,
		Details:   make(map[string]any),
	}

	t.mu.Lock()
	closed := t.closed
	backlog := t.queue.Length()
	t.mu.Unlock()

	result.Details["type"] = "channel"
	result.Details["backlog"] = backlog

	switch {
	case closed:
		result.Status = transport.HealthStatusUnhealthy
		result.Message = "transport is closed"
	case t.backlogWarning > 0 && backlog > t.backlogWarning:
		result.Status = transport.HealthStatusDegraded
		result.Message = "delivery backlog above threshold"
		result.Details["threshold"] = t.backlogWarning
	default:
		result.Status = transport.HealthStatusHealthy
		result.Message = "channel transport is healthy"
	}
	result.Latency = time.Since(start)
	return result
}

// Compile-time interface checks
var _ transport.Transport = (*Transport)(nil)
var _ transport.HealthChecker = (*Transport)(nil)
