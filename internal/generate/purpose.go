// Package generate implements the request-orchestration pipeline shared by
// every generation handler: input validation, credential and quota
// authorization, the bounded model call, output validation, and
// degrade-or-succeed semantics. The three handler variants of the original
// service are collapsed into one orchestrator parameterized by a Purpose.
package generate

import (
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kbukum/aiviz/internal/apperrors"
)

// Purpose describes one handler variant: its contracts, prompts, deadline,
// authorization policy, and fallback.
type Purpose struct {
	// Name identifies the purpose in logs and metrics.
	Name string
	// LogAction is the action prefix for structured log records
	// (e.g. "chart_generation" -> chart_generation_start/success/error).
	LogAction string

	// InputSchema is the contract the request payload must satisfy before
	// any side-effecting work begins.
	InputSchema *jsonschema.Schema
	// OutputSchema is the contract the model output must satisfy.
	OutputSchema *jsonschema.Schema
	// MandatoryText names a top-level field that must additionally be
	// non-blank after trimming; empty disables the check.
	MandatoryText string

	// Deadline bounds the whole model invocation including retries.
	Deadline time.Duration
	// QuotaGated enables the authorization stage: caller-funded requests
	// skip the quota check, service-funded ones consume allowance.
	QuotaGated bool
	// TimeoutDegrades substitutes the fallback on deadline expiry instead
	// of failing with 504 (the insight paths shield callers from slowness).
	TimeoutDegrades bool
	// ErrorCode is the code surfaced when the model call fails.
	ErrorCode apperrors.ErrorCode

	// SystemPrompt is the instruction message for the model.
	SystemPrompt string
	// BuildUserMessage renders the user message from the validated payload.
	BuildUserMessage func(payload any) string
	// Fallback builds the static degraded payload. It must trivially
	// satisfy OutputSchema.
	Fallback func(now time.Time) map[string]any
	// Finalize applies derived defaults to a schema-valid payload before it
	// is returned (nil when the purpose has none).
	Finalize func(payload map[string]any, model string, now time.Time)
}
