package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging.
// Use these constants instead of raw strings to keep log queries stable.
const (
	// Identity and context
	FieldJobID     = "job_id"
	FieldRequestID = "request_id"

	// Components
	FieldComponent = "component"

	// Operations
	FieldMethod = "method"
	FieldPath   = "path"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError     = "error"
	FieldErrorType = "error_type"

	// Counts and sizes
	FieldCount = "count"

	// Status
	FieldState = "state"

	// Resolution
	FieldEntityType  = "entity_type"
	FieldHop         = "hop"
	FieldCollection  = "collection"
	FieldQueryIndex  = "query"
	FieldTermination = "termination"
)

type fieldsKey struct{}

// WithFields returns a context whose logger fields are those of ctx plus kv.
// A later value for the same key replaces the earlier one.
func WithFields(ctx context.Context, kv ...interface{}) context.Context {
	prev, _ := ctx.Value(fieldsKey{}).([]interface{})
	fields := make([]interface{}, 0, len(prev)+len(kv))
	for i := 0; i+1 < len(prev); i += 2 {
		if !hasKey(kv, prev[i]) {
			fields = append(fields, prev[i], prev[i+1])
		}
	}
	fields = append(fields, kv...)
	return context.WithValue(ctx, fieldsKey{}, fields)
}

func hasKey(kv []interface{}, key interface{}) bool {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] == key {
			return true
		}
	}
	return false
}

func WithJobID(ctx context.Context, jobID string) context.Context {
	return WithFields(ctx, FieldJobID, jobID)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return WithFields(ctx, FieldRequestID, requestID)
}

func WithComponent(ctx context.Context, component string) context.Context {
	return WithFields(ctx, FieldComponent, component)
}

// FieldsFromContext returns the key-value pairs attached with WithFields, in
// the order they were added
func FieldsFromContext(ctx context.Context) []interface{} {
	fields, _ := ctx.Value(fieldsKey{}).([]interface{})
	return fields
}

// LoggerFromContext returns the global logger with the fields of ctx
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns the global logger named for component, e.g.
// "store" or "server"
func ComponentLogger(component string) *zap.SugaredLogger {
	return Logger.Named(component)
}
