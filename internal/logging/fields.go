package logging

import (
	"context"
	"log/slog"

	"syndicate/internal/services"
)

// Structured field keys shared across packages.
const (
	FieldComponent     = "component"
	FieldQueueID       = "queue_id"
	FieldEntryID       = "entry_id"
	FieldStage         = "stage"
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a line for filtering, e.g. queue_refreshed.
	FieldEventType = "event_type"
	// FieldErrorHint is the operator's next step.
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
)

// promotedKeys are rendered first by the console handler.
var promotedKeys = []string{FieldQueueID, FieldEntryID, FieldCorrelationID}

// ContextFields returns the identifiers carried by ctx as attributes.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	if id, ok := services.QueueIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldQueueID, id))
	}
	if id, ok := services.EntryIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldEntryID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns logger annotated with ContextFields(ctx). A nil logger
// becomes a no-op logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
