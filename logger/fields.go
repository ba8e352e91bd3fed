package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across tickd.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldTraceID = "trace_id"
	FieldBatchID = "batch_id"
	FieldFlushID = "flush_id"

	// Components
	FieldComponent = "component"
	FieldQueue     = "queue"
	FieldWorker    = "worker"

	// Market data
	FieldInstrument = "instrument"
	FieldExchange   = "exchange"
	FieldInterval   = "interval"
	FieldTradingDay = "trading_day"
	FieldKind       = "kind"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldStartTime  = "start_time"
	FieldEndTime    = "end_time"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldRows    = "rows"
	FieldCount   = "count"
	FieldDropped = "dropped"
	FieldPending = "pending"

	// Status
	FieldState   = "state"
	FieldHealthy = "healthy"

	// Files and paths
	FieldFile = "file"
	FieldPath = "path"
	FieldDay  = "day"

	// Symbol marker (꩜, ⊔, ⌾, etc.)
	FieldSymbol = "symbol"
)

// Context keys for propagating logging context
type contextKey string

const (
	traceIDKey   contextKey = "logger_trace_id"
	componentKey contextKey = "logger_component"
)

// WithTraceID adds a trace ID to the context for logging.
// The event bus stamps every dispatched event's context with this.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext returns the trace ID carried by ctx, or "".
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if traceID, ok := ctx.Value(traceIDKey).(string); ok && traceID != "" {
		fields = append(fields, FieldTraceID, traceID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns a logger with fields extracted from context.
// Use this inside event handlers so every line carries the event's trace id.
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Writer struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewWriter() *Writer {
//	    return &Writer{
//	        logger: logger.ComponentLogger("store.hot"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
// Use for sub-operations that need extra context fields.
//
// Example:
//
//	dayLogger := logger.ChildLogger(baseLogger, "trading_day", day)
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
