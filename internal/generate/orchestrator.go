package generate

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/aiviz/internal/apperrors"
	"github.com/kbukum/aiviz/internal/credential"
	"github.com/kbukum/aiviz/internal/logger"
	"github.com/kbukum/aiviz/internal/observability"
	"github.com/kbukum/aiviz/internal/quota"
	"github.com/kbukum/aiviz/internal/qwen"
	"github.com/kbukum/aiviz/internal/schema"
)

// Invoker sends a chat prompt to the model endpoint.
type Invoker interface {
	Invoke(ctx context.Context, messages []qwen.Message, apiKey string) (string, error)
	Model() string
}

// Ledger reads and consumes per-identity quota.
type Ledger interface {
	Get(ctx context.Context, identity string) *quota.Quota
	Consume(ctx context.Context, identity string) bool
}

// Request is one generation request after HTTP decoding.
type Request struct {
	// RequestID correlates log records for this execution.
	RequestID string
	// Identity attributes quota usage.
	Identity string
	// CallerKey is the caller-supplied API key header value ("" if absent).
	CallerKey string
	// Payload is the decoded JSON body.
	Payload any
}

// Outcomes recorded in metrics and logs.
const (
	outcomeSuccess  = "success"
	outcomeDegraded = "degraded"
	outcomeError    = "error"
)

// Orchestrator composes the pipeline: validate, authorize, invoke, validate
// output, degrade or succeed, record usage. Every execution is stateless;
// the only shared state lives in the external quota store.
type Orchestrator struct {
	resolver *credential.Resolver
	ledger   Ledger
	invoker  Invoker
	metrics  *observability.Metrics
	log      *logger.Logger
	now      func() time.Time
}

// New creates an orchestrator.
func New(resolver *credential.Resolver, ledger Ledger, invoker Invoker, metrics *observability.Metrics, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		resolver: resolver,
		ledger:   ledger,
		invoker:  invoker,
		metrics:  metrics,
		log:      log.WithComponent("orchestrator"),
		now:      time.Now,
	}
}

// Run executes the pipeline for one request. On success (including the
// degraded path) it returns the payload to serve with HTTP 200; otherwise an
// *apperrors.AppError carrying the status and wire body.
func (o *Orchestrator) Run(ctx context.Context, p Purpose, req Request) (result any, err error) {
	ctx, span := otel.Tracer("github.com/kbukum/aiviz/internal/generate").Start(ctx, "generate."+p.Name,
		trace.WithAttributes(attribute.String("purpose", p.Name)))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := o.now()
	log := o.log.WithFields(map[string]interface{}{
		logger.FieldRequestID: req.RequestID,
		logger.FieldPurpose:   p.Name,
	})

	key, hasKey := o.resolver.Resolve(req.CallerKey)

	log.Info(p.LogAction+"_start", map[string]interface{}{
		"has_key":       hasKey,
		"caller_funded": key.CallerFunded,
		logger.FieldUserID: req.Identity,
	})

	// Validating: no side-effecting work before the input contract holds.
	if violations := schema.Validate(p.InputSchema, req.Payload); violations != nil {
		return nil, o.fail(ctx, log, p, start, apperrors.InvalidInput(violations))
	}

	// Authorizing. Caller-funded requests skip the quota gate entirely.
	// Quota is evaluated before the missing-key check: an exhausted caller
	// learns about the allowance even when the service has no key either.
	serviceFunded := p.QuotaGated && !key.CallerFunded
	if serviceFunded {
		q := o.ledger.Get(ctx, req.Identity)
		if q == nil || q.Remaining <= 0 {
			used, total := 0, quota.DefaultAllowance
			if q != nil {
				used, total = q.Used, q.Total
			}
			o.metrics.RecordQuotaRejection(ctx)
			return nil, o.fail(ctx, log, p, start, apperrors.QuotaExceeded(used, total))
		}
		log.Info("quota_check", map[string]interface{}{
			"remaining": q.Remaining,
			"used":      q.Used,
			"total":     q.Total,
		})
	}
	if p.QuotaGated && !hasKey {
		return nil, o.fail(ctx, log, p, start, apperrors.APIKeyMissing())
	}

	// Invoking: one system message plus one user message, no history, under
	// the purpose's deadline. Retries live inside the invoker; there is no
	// retry across the state machine.
	invokeCtx, cancel := context.WithTimeout(ctx, p.Deadline)
	defer cancel()

	messages := []qwen.Message{
		{Role: qwen.RoleSystem, Content: p.SystemPrompt},
		{Role: qwen.RoleUser, Content: p.BuildUserMessage(req.Payload)},
	}

	content, err := o.invoker.Invoke(invokeCtx, messages, key.Value)
	if err != nil {
		timeout := qwen.IsTimeout(err)
		if timeout && p.TimeoutDegrades {
			return o.degrade(ctx, log, p, req, start, serviceFunded), nil
		}
		return nil, o.fail(ctx, log, p, start, apperrors.Upstream(p.ErrorCode, err, timeout))
	}

	// ValidatingOutput: lenient parse first, then the output contract.
	value, err := schema.ExtractJSON(content)
	if err != nil {
		return nil, o.fail(ctx, log, p, start, apperrors.InvalidJSONOutput(err))
	}
	if violations := schema.Validate(p.OutputSchema, value); violations != nil {
		log.Warn("output validation failed, degrading", map[string]interface{}{
			"violations": violations,
		})
		return o.degrade(ctx, log, p, req, start, serviceFunded), nil
	}

	payload, _ := value.(map[string]any)
	if p.MandatoryText != "" {
		text, _ := payload[p.MandatoryText].(string)
		if strings.TrimSpace(text) == "" {
			return o.degrade(ctx, log, p, req, start, serviceFunded), nil
		}
	}

	// Succeeding: apply derived defaults.
	if p.Finalize != nil {
		p.Finalize(payload, o.invoker.Model(), o.now())
	}

	o.recordUsage(ctx, log, req, serviceFunded)
	o.finish(ctx, log, p, start, outcomeSuccess)
	return payload, nil
}

// degrade substitutes the purpose's static fallback. A degraded answer is a
// successful response from the caller's perspective, so usage is still
// recorded for service-funded calls.
func (o *Orchestrator) degrade(ctx context.Context, log *logger.Logger, p Purpose, req Request, start time.Time, serviceFunded bool) map[string]any {
	fallback := p.Fallback(o.now())
	o.recordUsage(ctx, log, req, serviceFunded)
	o.finish(ctx, log, p, start, outcomeDegraded)
	return fallback
}

// recordUsage consumes quota for service-funded calls. A consumption failure
// is logged but never changes the response already prepared.
func (o *Orchestrator) recordUsage(ctx context.Context, log *logger.Logger, req Request, serviceFunded bool) {
	if !serviceFunded {
		return
	}
	if o.ledger.Consume(ctx, req.Identity) {
		log.Info("quota_consumed", map[string]interface{}{logger.FieldUserID: req.Identity})
	} else {
		log.Warn("quota_consume_failed", map[string]interface{}{logger.FieldUserID: req.Identity})
	}
}

// fail logs and returns a terminal error record.
func (o *Orchestrator) fail(ctx context.Context, log *logger.Logger, p Purpose, start time.Time, appErr *apperrors.AppError) error {
	duration := o.now().Sub(start)
	log.WithError(appErr).Error(p.LogAction+"_error", map[string]interface{}{
		logger.FieldDuration:  duration.Milliseconds(),
		logger.FieldErrorCode: string(appErr.Code),
	})
	o.metrics.RecordGeneration(ctx, p.Name, outcomeError, float64(duration.Milliseconds()))
	return appErr
}

// finish logs a success or degraded record.
func (o *Orchestrator) finish(ctx context.Context, log *logger.Logger, p Purpose, start time.Time, outcome string) {
	duration := o.now().Sub(start)
	log.Info(p.LogAction+"_"+outcome, map[string]interface{}{
		logger.FieldDuration: duration.Milliseconds(),
		"outcome":            outcome,
	})
	o.metrics.RecordGeneration(ctx, p.Name, outcome, float64(duration.Milliseconds()))
}
