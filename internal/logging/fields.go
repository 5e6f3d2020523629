package logging

import "go.uber.org/zap"

// Standard field names shared by every component.
const (
	FieldComponent   = "component"
	FieldJobID       = "job_id"
	FieldClient      = "client"
	FieldContentType = "content_type"
	FieldPath        = "path"
	FieldETA         = "eta"
	FieldReason      = "reason"
	FieldAttempt     = "attempt"
	FieldMediaID     = "media_id"
	FieldMode        = "mode"
	FieldCount       = "count"
	FieldEventType   = "event_type"
	FieldErrorHint   = "error_hint"
	FieldImpact      = "impact"
	FieldRunID       = "run_id"
)

// WarnWithContext logs a warning with enforced event_type, error_hint, and
// impact fields. Missing fields are filled with defaults.
func WarnWithContext(logger *zap.Logger, msg, eventType string, fields ...zap.Field) {
	if logger == nil {
		return
	}
	logger.Warn(msg, withContextFields(fields, eventType, "operation completed with warnings")...)
}

// ErrorWithContext logs an error with the same enforced fields as WarnWithContext.
func ErrorWithContext(logger *zap.Logger, msg, eventType string, fields ...zap.Field) {
	if logger == nil {
		return
	}
	logger.Error(msg, withContextFields(fields, eventType, "operation failed")...)
}

func withContextFields(fields []zap.Field, eventType, impact string) []zap.Field {
	if !hasField(fields, FieldEventType) {
		fields = append(fields, zap.String(FieldEventType, eventType))
	}
	if !hasField(fields, FieldErrorHint) {
		fields = append(fields, zap.String(FieldErrorHint, "check logs for details"))
	}
	if !hasField(fields, FieldImpact) {
		fields = append(fields, zap.String(FieldImpact, impact))
	}
	return fields
}

func hasField(fields []zap.Field, key string) bool {
	for _, f := range fields {
		if f.Key == key {
			return true
		}
	}
	return false
}
