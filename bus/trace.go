package bus

import (
	"context"
)

// traceKey is the context key for the ambient trace id.
type traceKey struct{}

// WithTrace returns a context carrying the trace id. The bus sets it
// before invoking each handler; handlers and the code they call read
// it back with TraceFrom for log correlation.
func WithTrace(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceFrom returns the ambient trace id, or "" outside a dispatch.
func TraceFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
