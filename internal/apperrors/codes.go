package apperrors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Caller errors
const (
	// ErrCodeInvalidInput indicates the request body failed the input contract.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeInvalidType indicates an unknown insight type.
	ErrCodeInvalidType ErrorCode = "INVALID_TYPE"
)

// Authorization errors
const (
	// ErrCodeAPIKeyMissing indicates no usable API key was resolved.
	ErrCodeAPIKeyMissing ErrorCode = "API_KEY_MISSING"
	// ErrCodeQuotaExceeded indicates the free allowance is exhausted.
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
)

// Upstream errors
const (
	// ErrCodeInvalidJSONOutput indicates the model returned unparseable text.
	ErrCodeInvalidJSONOutput ErrorCode = "INVALID_JSON_OUTPUT"
	// ErrCodeQwenError indicates the chart-generation model call failed.
	ErrCodeQwenError ErrorCode = "QWEN_ERROR"
	// ErrCodeInsightFailed indicates the insight-generation model call failed.
	ErrCodeInsightFailed ErrorCode = "INSIGHT_GENERATION_FAILED"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeQwenError:     true,
	ErrCodeInsightFailed: true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
// Caller and authorization errors are resolved by caller action, not retries.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
