// Package manual provides a transport that only runs batches when told to.
//
// It stands in for the delivery thread in tests: Submit queues the batch and
// RunPending runs everything queued so far on the caller's goroutine, including
// batches queued by the batches it runs.
package manual

import (
	"context"
	"sync"

	"github.com/eapache/queue"
	"github.com/mobilib/event/transport"
)

// Transport is a hand-pumped transport.Transport
type Transport struct {
	mu     sync.Mutex
	queue  *queue.Queue
	closed bool
}

// New creates an empty manual transport.
func New() *Transport {
	return &Transport{queue: queue.New()}
}

// Submit queues b. It never runs it.
func (t *Transport) Submit(ctx context.Context, b transport.Batch) error {
	if b == nil {
		return transport.ErrNilBatch
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrTransportClosed
	}
	t.queue.Add(b)
	return nil
}

// RunOne runs the oldest queued batch. Returns false if nothing was queued.
func (t *Transport) RunOne() bool {
	t.mu.Lock()
	if t.queue.Length() == 0 {
		t.mu.Unlock()
		return false
	}
	b := t.queue.Remove().(transport.Batch)
	t.mu.Unlock()

	b()
	return true
}

// RunPending runs batches until the queue is empty and returns how many ran.
func (t *Transport) RunPending() int {
	n := 0
	for t.RunOne() {
		n++
	}
	return n
}

// Pending returns the number of queued batches.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.Length()
}

// Close rejects further batches. Queued batches stay queued until RunPending.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

var _ transport.Transport = (*Transport)(nil)
