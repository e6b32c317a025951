// Package apperrors provides unified error handling for the generation
// service. It implements structured error types with machine-readable codes
// and HTTP status mapping; the wire format is the flat
// {code, message, ...details} body the service's clients already depend on.
package apperrors

import (
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// HTTPStatus is the HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context merged into the response body.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// --- Constructors, one per error class ---

// InvalidInput creates a 400 error carrying schema violation details.
func InvalidInput(violations any) *AppError {
	e := &AppError{
		Code: ErrCodeInvalidInput, Message: "Request body does not satisfy the input contract.",
		HTTPStatus: http.StatusBadRequest,
	}
	if violations != nil {
		e.WithDetail("errors", violations)
	}
	return e
}

// InvalidType creates a 400 error for an unknown insight type.
func InvalidType() *AppError {
	return &AppError{
		Code: ErrCodeInvalidType, Message: "Invalid insight type",
		HTTPStatus: http.StatusBadRequest,
	}
}

// APIKeyMissing creates a 401 error for a request with no usable key.
func APIKeyMissing() *AppError {
	return &AppError{
		Code:       ErrCodeAPIKeyMissing,
		Message:    "请提供 API Key。您可以在应用设置中输入自己的 DashScope API Key，或联系开发者获取帮助。",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// QuotaExceeded creates a 403 error embedding the current usage counts.
func QuotaExceeded(used, total int) *AppError {
	return &AppError{
		Code:       ErrCodeQuotaExceeded,
		Message:    fmt.Sprintf("免费配额已用完（已使用 %d/%d 次）。请设置您自己的 DashScope API Key 以继续使用。", used, total),
		HTTPStatus: http.StatusForbidden,
		Details:    map[string]any{"quota": map[string]int{"used": used, "total": total}},
	}
}

// InvalidJSONOutput creates a 502 error for unparseable model output.
func InvalidJSONOutput(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInvalidJSONOutput, Message: "Model returned non-JSON output.",
		HTTPStatus: http.StatusBadGateway, Cause: cause,
	}
}

// Upstream creates an error for a failed model call. Timeouts map to 504,
// everything else to 500; code varies by purpose (QWEN_ERROR vs
// INSIGHT_GENERATION_FAILED).
func Upstream(code ErrorCode, cause error, timeout bool) *AppError {
	status := http.StatusInternalServerError
	if timeout {
		status = http.StatusGatewayTimeout
	}
	msg := "model call failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &AppError{
		Code: code, Message: msg,
		HTTPStatus: status, Cause: cause,
	}
}
