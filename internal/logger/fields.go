package logger

// Standard field key constants for structured logging.
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldUserID    = "user_id"
	FieldPurpose   = "purpose"
	FieldAction    = "action"
	FieldDuration  = "duration_ms"
	FieldErrorCode = "error_code"
)
