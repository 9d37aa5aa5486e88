// Package transport provides the shared types for delivery transports.
//
// A transport is the designated delivery thread of a bus: it accepts batches
// from any goroutine and runs them one at a time, fully, in submission order.
// Transport implementations (channel, manual) import this package rather than
// the parent event package to avoid import cycles.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Transport errors
var (
	ErrTransportClosed = errors.New("transport closed")
	ErrNilBatch        = errors.New("nil batch")
)

// Batch is one unit of scheduling on the delivery thread.
type Batch func()

// Transport runs batches on a single logical thread.
type Transport interface {
	// Submit enqueues a batch. It must not block on the delivery thread, so it
	// is safe to call from inside a running batch.
	// Returns ErrTransportClosed once Close has been called.
	Submit(ctx context.Context, b Batch) error

	// Close stops accepting batches. Implementations that own a goroutine
	// drain what is already queued before returning, bounded by ctx.
	Close(ctx context.Context) error
}

// HealthStatus represents the health state of a component
type HealthStatus string

const (
	// HealthStatusHealthy indicates the component is functioning normally
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusDegraded indicates the component is functioning but with issues
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusUnhealthy indicates the component is not functioning
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResult contains detailed health information
type HealthCheckResult struct {
	Status     HealthStatus                  `json:"status"`
	Message    string                        `json:"message,omitempty"`
	Latency    time.Duration                 `json:"latency,omitempty"`
	Details    map[string]any                `json:"details,omitempty"`
	Components map[string]*HealthCheckResult `json:"components,omitempty"`
	CheckedAt  time.Time                     `json:"checked_at"`
}

// IsHealthy returns true if the status is healthy
func (h *HealthCheckResult) IsHealthy() bool {
	return h.Status == HealthStatusHealthy
}

// HealthChecker is an optional interface that transports can implement
// to provide health check capabilities for monitoring and readiness probes.
type HealthChecker interface {
	Health(ctx context.Context) *HealthCheckResult
}

// ID generation
var counter uint64

// NewID generates a new unique ID
func NewID() string {
	u, err := uuid.NewRandom()
	if err == nil {
		return u.String()
	}
	return strconv.FormatUint(atomic.AddUint64(&counter, 1), 10)
}

// Logger returns a logger with the given component name
func Logger(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
