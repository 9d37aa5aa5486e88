package event

import (
	"errors"
	"fmt"
)

// Bus errors
var (
	ErrBusClosed         = errors.New("bus is closed")
	ErrTransportRequired = errors.New("transport is required: use WithBusTransport(channel.New()) or similar")
	ErrFlushFromDelivery = errors.New("flush called from a delivery context")
)

// PanicError reports a listener that panicked while handling an event.
// The panic is recovered; the remaining listeners of the batch still run.
type PanicError struct {
	Event     string
	BatchID   string
	Recovered any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("listener panic handling %q: %v", e.Event, e.Recovered)
}

// Unwrap returns the recovered value if it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Recovered.(error); ok {
		return err
	}
	return nil
}

// IsPanic checks if an error reports a recovered listener panic.
func IsPanic(err error) bool {
	var panicErr *PanicError
	return errors.As(err, &panicErr)
}
