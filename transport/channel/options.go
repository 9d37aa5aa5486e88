package channel

import (
	"log/slog"
	"time"

	"github.com/mobilib/event/transport"
)

// Default configuration values
var (
	// DefaultBacklogWarning is the queued batch count above which the
	// transport logs a warning and reports itself degraded.
	DefaultBacklogWarning = 1000

	// DefaultWarnInterval is the minimum gap between two backlog warnings.
	DefaultWarnInterval = 10 * time.Second
)

// options holds configuration for transport (unexported)
type options struct {
	backlogWarning int
	warnInterval   time.Duration
	onError        func(error)
	logger         *slog.Logger
}

// Option configures the channel transport
type Option func(*options)

// WithBacklogWarning sets the backlog threshold for warnings and health.
// Set to 0 to disable backlog warnings.
func WithBacklogWarning(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.backlogWarning = n
		}
	}
}

// WithWarnInterval sets the minimum interval between backlog warnings.
func WithWarnInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.warnInterval = d
		}
	}
}

// WithErrorHandler sets the error handler callback.
// Called when a batch panics on the delivery goroutine.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.onError = fn
		}
	}
}

// WithLogger sets the logger for transport
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// newOptions creates options with defaults and applies provided options
func newOptions(opts ...Option) *options {
	o := &options{
		backlogWarning: DefaultBacklogWarning,
		warnInterval:   DefaultWarnInterval,
		onError:        func(error) {}, // no-op default
		logger:         transport.Logger("transport>channel"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
