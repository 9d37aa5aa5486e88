package event

import (
	"log/slog"

	"github.com/mobilib/event/transport"
)

// DefaultBusName is used when NewBus is given an empty name.
var DefaultBusName = "event-bus"

// busOptions holds configuration for bus (unexported)
type busOptions struct {
	transport       transport.Transport
	logger          *slog.Logger
	onError         func(error)
	tracingEnabled  bool
	recoveryEnabled bool
	metricsEnabled  bool
}

// BusOption option function for bus configuration
type BusOption func(*busOptions)

// WithBusTransport sets the transport that runs deliveries
func WithBusTransport(t transport.Transport) BusOption {
	return func(o *busOptions) {
		if t != nil {
			o.transport = t
		}
	}
}

// WithBusTracing enables/disables tracing for posts and deliveries
func WithBusTracing(enabled bool) BusOption {
	return func(o *busOptions) {
		o.tracingEnabled = enabled
	}
}

// WithBusRecovery enables/disables panic recovery around each listener.
// With recovery disabled a panicking listener aborts the rest of its batch;
// recovery should only be disabled in tests.
func WithBusRecovery(enabled bool) BusOption {
	return func(o *busOptions) {
		o.recoveryEnabled = enabled
	}
}

// WithBusMetrics enables/disables OpenTelemetry metrics for the bus
func WithBusMetrics(enabled bool) BusOption {
	return func(o *busOptions) {
		o.metricsEnabled = enabled
	}
}

// WithBusLogger sets a custom logger for the bus
func WithBusLogger(l *slog.Logger) BusOption {
	return func(o *busOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBusErrorHandler sets a callback for recovered listener panics.
// The error passed is a *PanicError. It runs on the delivery goroutine.
func WithBusErrorHandler(fn func(error)) BusOption {
	return func(o *busOptions) {
		if fn != nil {
			o.onError = fn
		}
	}
}

// newBusOptions creates options with defaults and applies provided options
func newBusOptions(opts ...BusOption) *busOptions {
	o := &busOptions{
		logger:          slog.Default(),
		onError:         func(error) {},
		tracingEnabled:  true,
		recoveryEnabled: true,
		metricsEnabled:  true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
