package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/kbukum/aiviz/internal/apperrors"
	"github.com/kbukum/aiviz/internal/credential"
	"github.com/kbukum/aiviz/internal/logger"
	"github.com/kbukum/aiviz/internal/observability"
	"github.com/kbukum/aiviz/internal/quota"
	"github.com/kbukum/aiviz/internal/qwen"
	"github.com/kbukum/aiviz/internal/schema"
)

type fakeInvoker struct {
	content  string
	err      error
	calls    int
	messages []qwen.Message
	apiKey   string
}

func (f *fakeInvoker) Invoke(_ context.Context, messages []qwen.Message, apiKey string) (string, error) {
	f.calls++
	f.messages = messages
	f.apiKey = apiKey
	if f.err != nil {
		return "", f.err
	}
	return f.content, nil
}

func (f *fakeInvoker) Model() string { return "qwen-plus" }

type fakeLedger struct {
	quota     *quota.Quota
	gets      int
	consumes  int
	consumeOK bool
}

func (f *fakeLedger) Get(context.Context, string) *quota.Quota { f.gets++; return f.quota }
func (f *fakeLedger) Consume(context.Context, string) bool     { f.consumes++; return f.consumeOK }

func newTestOrchestrator(t *testing.T, defaultKey string, ledger Ledger, invoker Invoker) *Orchestrator {
	t.Helper()
	metrics, err := observability.NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return New(credential.NewResolver(defaultKey), ledger, invoker, metrics, logger.NewDefault("test"))
}

func freshQuota() *quota.Quota {
	return &quota.Quota{Total: 10, Used: 0, Remaining: 10}
}

func chartRequest(payload any) Request {
	return Request{RequestID: "req-1", Identity: "user-1", Payload: payload}
}

func asAppError(t *testing.T, err error) *apperrors.AppError {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		t.Fatalf("error %v is not an AppError", err)
	}
	return appErr
}

func TestRun_ChartSuccess(t *testing.T) {
	invoker := &fakeInvoker{content: `{"title":{"text":"销售额"},"series":[{"type":"bar","data":[120,200,150]}]}`}
	ledger := &fakeLedger{quota: freshQuota(), consumeOK: true}
	o := newTestOrchestrator(t, "sk-default", ledger, invoker)

	payload := map[string]any{"一月": 120.0, "二月": 200.0, "三月": 150.0}
	out, err := o.Run(context.Background(), ChartPurpose(), chartRequest(payload))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	result, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("Run() returned %T, want map", out)
	}
	series, ok := result["series"].([]any)
	if !ok || len(series) != 1 {
		t.Fatalf("series = %v, want one entry", result["series"])
	}
	if invoker.calls != 1 {
		t.Errorf("invoker calls = %d, want 1", invoker.calls)
	}
	if len(invoker.messages) != 2 || invoker.messages[0].Role != qwen.RoleSystem || invoker.messages[1].Role != qwen.RoleUser {
		t.Errorf("messages = %+v, want system+user pair", invoker.messages)
	}
	if ledger.consumes != 1 {
		t.Errorf("consumes = %d, want 1", ledger.consumes)
	}
}

func TestRun_NullInputRejected(t *testing.T) {
	invoker := &fakeInvoker{}
	ledger := &fakeLedger{quota: freshQuota()}
	o := newTestOrchestrator(t, "sk-default", ledger, invoker)

	_, err := o.Run(context.Background(), ChartPurpose(), chartRequest(nil))
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.ErrCodeInvalidInput {
		t.Errorf("code = %s, want %s", appErr.Code, apperrors.ErrCodeInvalidInput)
	}
	if appErr.HTTPStatus != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", appErr.HTTPStatus)
	}
	if invoker.calls != 0 {
		t.Errorf("invoker calls = %d, want 0", invoker.calls)
	}
	if ledger.gets != 0 {
		t.Errorf("ledger gets = %d, want 0", ledger.gets)
	}
}

func TestRun_QuotaExhausted(t *testing.T) {
	invoker := &fakeInvoker{}
	ledger := &fakeLedger{quota: &quota.Quota{Total: 10, Used: 10, Remaining: 0}}
	o := newTestOrchestrator(t, "sk-default", ledger, invoker)

	_, err := o.Run(context.Background(), ChartPurpose(), chartRequest("sales data"))
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.ErrCodeQuotaExceeded {
		t.Fatalf("code = %s, want %s", appErr.Code, apperrors.ErrCodeQuotaExceeded)
	}
	if appErr.HTTPStatus != http.StatusForbidden {
		t.Errorf("status = %d, want 403", appErr.HTTPStatus)
	}
	counts, ok := appErr.Details["quota"].(map[string]int)
	if !ok || counts["used"] != 10 || counts["total"] != 10 {
		t.Errorf("quota detail = %v, want used 10 total 10", appErr.Details["quota"])
	}
	if invoker.calls != 0 {
		t.Errorf("invoker calls = %d, want 0", invoker.calls)
	}
	if ledger.consumes != 0 {
		t.Errorf("consumes = %d, want 0", ledger.consumes)
	}
}

func TestRun_QuotaUnavailableBlocks(t *testing.T) {
	o := newTestOrchestrator(t, "sk-default", &fakeLedger{quota: nil}, &fakeInvoker{})

	_, err := o.Run(context.Background(), ChartPurpose(), chartRequest("sales data"))
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.ErrCodeQuotaExceeded {
		t.Fatalf("code = %s, want %s", appErr.Code, apperrors.ErrCodeQuotaExceeded)
	}
	counts, ok := appErr.Details["quota"].(map[string]int)
	if !ok || counts["used"] != 0 || counts["total"] != quota.DefaultAllowance {
		t.Errorf("quota detail = %v, want used 0 total %d", appErr.Details["quota"], quota.DefaultAllowance)
	}
}

func TestRun_QuotaCheckedBeforeMissingKey(t *testing.T) {
	// No key anywhere AND quota exhausted: the caller must learn about the
	// allowance, so the 403 wins over the 401.
	ledger := &fakeLedger{quota: &quota.Quota{Total: 10, Used: 10, Remaining: 0}}
	o := newTestOrchestrator(t, "", ledger, &fakeInvoker{})

	_, err := o.Run(context.Background(), ChartPurpose(), chartRequest("data"))
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.ErrCodeQuotaExceeded {
		t.Errorf("code = %s, want %s", appErr.Code, apperrors.ErrCodeQuotaExceeded)
	}
}

func TestRun_MissingKeyAfterQuotaOK(t *testing.T) {
	o := newTestOrchestrator(t, "", &fakeLedger{quota: freshQuota()}, &fakeInvoker{})

	_, err := o.Run(context.Background(), ChartPurpose(), chartRequest("data"))
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.ErrCodeAPIKeyMissing {
		t.Fatalf("code = %s, want %s", appErr.Code, apperrors.ErrCodeAPIKeyMissing)
	}
	if appErr.HTTPStatus != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", appErr.HTTPStatus)
	}
}

func TestRun_CallerFundedSkipsQuota(t *testing.T) {
	invoker := &fakeInvoker{content: `{"series":[{"type":"line","data":[1]}]}`}
	ledger := &fakeLedger{quota: &quota.Quota{Total: 10, Used: 10, Remaining: 0}}
	o := newTestOrchestrator(t, "sk-default", ledger, invoker)

	req := chartRequest("data")
	req.CallerKey = "sk-caller"
	if _, err := o.Run(context.Background(), ChartPurpose(), req); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ledger.gets != 0 || ledger.consumes != 0 {
		t.Errorf("ledger gets=%d consumes=%d, want 0/0", ledger.gets, ledger.consumes)
	}
	if invoker.apiKey != "sk-caller" {
		t.Errorf("apiKey = %q, want caller key", invoker.apiKey)
	}
}

func TestRun_ChartBasicSkipsAuthorization(t *testing.T) {
	invoker := &fakeInvoker{content: `{"series":[{"type":"pie","data":[]}]}`}
	ledger := &fakeLedger{quota: nil}
	o := newTestOrchestrator(t, "sk-default", ledger, invoker)

	if _, err := o.Run(context.Background(), ChartBasicPurpose(), chartRequest("data")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ledger.gets != 0 || ledger.consumes != 0 {
		t.Errorf("ledger gets=%d consumes=%d, want 0/0", ledger.gets, ledger.consumes)
	}
}

func TestRun_NonJSONOutput(t *testing.T) {
	invoker := &fakeInvoker{content: "I could not produce a chart, sorry."}
	o := newTestOrchestrator(t, "sk-default", &fakeLedger{quota: freshQuota()}, invoker)

	_, err := o.Run(context.Background(), ChartPurpose(), chartRequest("data"))
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.ErrCodeInvalidJSONOutput {
		t.Fatalf("code = %s, want %s", appErr.Code, apperrors.ErrCodeInvalidJSONOutput)
	}
	if appErr.HTTPStatus != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", appErr.HTTPStatus)
	}
}

func TestRun_OutputViolationDegrades(t *testing.T) {
	// Valid JSON, but no series: degrade to the static fallback, still a
	// success that consumes quota.
	invoker := &fakeInvoker{content: `{"title":{"text":"x"}}`}
	ledger := &fakeLedger{quota: freshQuota(), consumeOK: true}
	o := newTestOrchestrator(t, "sk-default", ledger, invoker)

	out, err := o.Run(context.Background(), ChartPurpose(), chartRequest("data"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	result := out.(map[string]any)
	title := result["title"].(map[string]any)
	if title["text"] != "AI 推荐图表" {
		t.Errorf("title = %v, want fallback title", title["text"])
	}
	if ledger.consumes != 1 {
		t.Errorf("consumes = %d, want 1 (degraded responses still count)", ledger.consumes)
	}
}

func TestRun_BlankMandatoryTextDegrades(t *testing.T) {
	invoker := &fakeInvoker{content: `{"insightText":"   ","confidence":0.9}`}
	o := newTestOrchestrator(t, "sk-default", &fakeLedger{}, invoker)

	out, err := o.Run(context.Background(), InsightChartPurpose(), chartRequest(map[string]any{
		"type": "chart", "data": map[string]any{"rawData": []any{1.0, 2.0}},
	}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	result := out.(map[string]any)
	if result["insightText"] != chartInsightFallbackText {
		t.Errorf("insightText = %v, want fallback text", result["insightText"])
	}
}

func TestRun_EmptyObjectInsightDegrades(t *testing.T) {
	invoker := &fakeInvoker{content: `{}`}
	o := newTestOrchestrator(t, "sk-default", &fakeLedger{}, invoker)

	out, err := o.Run(context.Background(), InsightFocusPurpose(), chartRequest(map[string]any{
		"type": "focus", "data": map[string]any{"focusData": []any{}},
	}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	result := out.(map[string]any)
	if result["insightText"] != focusInsightFallbackText {
		t.Errorf("insightText = %v, want focus fallback text", result["insightText"])
	}
	if result["confidence"] != 0.5 {
		t.Errorf("confidence = %v, want 0.5", result["confidence"])
	}
}

func TestRun_InsightTimeoutDegrades(t *testing.T) {
	invoker := &fakeInvoker{err: context.DeadlineExceeded}
	o := newTestOrchestrator(t, "sk-default", &fakeLedger{}, invoker)

	out, err := o.Run(context.Background(), InsightChartPurpose(), chartRequest(map[string]any{
		"type": "chart", "data": map[string]any{},
	}))
	if err != nil {
		t.Fatalf("Run() error = %v, want degraded success", err)
	}
	result := out.(map[string]any)
	metadata := result["metadata"].(map[string]any)
	if metadata["model"] != "fallback" {
		t.Errorf("metadata.model = %v, want fallback", metadata["model"])
	}
}

func TestRun_ChartTimeoutFails(t *testing.T) {
	invoker := &fakeInvoker{err: context.DeadlineExceeded}
	o := newTestOrchestrator(t, "sk-default", &fakeLedger{quota: freshQuota()}, invoker)

	_, err := o.Run(context.Background(), ChartPurpose(), chartRequest("data"))
	appErr := asAppError(t, err)
	if appErr.Code != apperrors.ErrCodeQwenError {
		t.Errorf("code = %s, want %s", appErr.Code, apperrors.ErrCodeQwenError)
	}
	if appErr.HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", appErr.HTTPStatus)
	}
}

func TestRun_UpstreamErrorFails(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("upstream unavailable")}
	o := newTestOrchestrator(t, "sk-default", &fakeLedger{quota: freshQuota()}, invoker)

	_, err := o.Run(context.Background(), ChartPurpose(), chartRequest("data"))
	appErr := asAppError(t, err)
	if appErr.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", appErr.HTTPStatus)
	}
}

func TestRun_InsightFinalizeDefaults(t *testing.T) {
	invoker := &fakeInvoker{content: `{"insightText":"趋势分析：整体上升。关键点：三月峰值。建议：关注二月回落。"}`}
	o := newTestOrchestrator(t, "sk-default", &fakeLedger{}, invoker)

	out, err := o.Run(context.Background(), InsightChartPurpose(), chartRequest(map[string]any{
		"type": "chart", "data": map[string]any{"chartConfig": map[string]any{}},
	}))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	result := out.(map[string]any)
	if result["confidence"] != 0.8 {
		t.Errorf("confidence = %v, want default 0.8", result["confidence"])
	}
	if suggestions, ok := result["suggestions"].([]any); !ok || len(suggestions) != 0 {
		t.Errorf("suggestions = %v, want empty list", result["suggestions"])
	}
	metadata := result["metadata"].(map[string]any)
	if metadata["model"] != "qwen-plus" {
		t.Errorf("metadata.model = %v, want qwen-plus", metadata["model"])
	}
	if _, err := time.Parse(time.RFC3339, metadata["generatedAt"].(string)); err != nil {
		t.Errorf("generatedAt = %v, not RFC3339", metadata["generatedAt"])
	}
}

func TestFallbacksSatisfyOutputContracts(t *testing.T) {
	cases := []struct {
		name    string
		purpose Purpose
	}{
		{"chart", ChartPurpose()},
		{"chart-basic", ChartBasicPurpose()},
		{"insight-chart", InsightChartPurpose()},
		{"insight-focus", InsightFocusPurpose()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Round-trip through JSON so the validator sees generic values.
			raw, err := json.Marshal(tc.purpose.Fallback(time.Now()))
			if err != nil {
				t.Fatalf("marshal fallback: %v", err)
			}
			var value any
			if err := json.Unmarshal(raw, &value); err != nil {
				t.Fatalf("unmarshal fallback: %v", err)
			}
			if violations := schema.Validate(tc.purpose.OutputSchema, value); violations != nil {
				t.Errorf("fallback violates output contract: %v", violations)
			}
		})
	}
}
