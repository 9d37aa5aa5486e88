package event

import "context"

const (
	eventContextKey contextKey = iota
)

// eventContextData is attached to the context passed to Listener.OnEvent.
type eventContextData struct {
	name    string
	source  string
	batchID string
	sender  any
}

// contextKey
type contextKey int

func contextData(ctx context.Context) *eventContextData {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(eventContextKey).(*eventContextData)
	return s
}

// ContextEventName returns the name of the event being delivered.
func ContextEventName(ctx context.Context) string {
	if s := contextData(ctx); s != nil {
		return s.name
	}
	return ""
}

// ContextSource returns the ID of the bus delivering the event.
func ContextSource(ctx context.Context) string {
	if s := contextData(ctx); s != nil {
		return s.source
	}
	return ""
}

// ContextBatchID returns the ID shared by every delivery of one PostEvent call.
func ContextBatchID(ctx context.Context) string {
	if s := contextData(ctx); s != nil {
		return s.batchID
	}
	return ""
}

// ContextSender returns the sender passed to PostEvent.
func ContextSender(ctx context.Context) any {
	if s := contextData(ctx); s != nil {
		return s.sender
	}
	return nil
}

func contextWithInfo(ctx context.Context, name, source, batchID string, sender any) context.Context {
	return context.WithValue(ctx, eventContextKey, &eventContextData{
		name:    name,
		source:  source,
		batchID: batchID,
		sender:  sender,
	})
}
