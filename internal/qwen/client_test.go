package qwen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/aiviz/internal/logger"
)

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:     srv.URL,
		BackoffStep: time.Millisecond,
	}, logger.NewDefault("test"))
}

func TestInvoke_SendsDeterministicJSONRequest(t *testing.T) {
	var got completionRequest
	var auth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(completionBody(`{"series":[{"type":"line"}]}`)))
	})

	content, err := client.Invoke(context.Background(), []Message{
		{Role: RoleSystem, Content: "system prompt"},
		{Role: RoleUser, Content: "user data"},
	}, "sk-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if content != `{"series":[{"type":"line"}]}` {
		t.Errorf("unexpected content: %s", content)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("unexpected auth: %s", auth)
	}
	if got.Model != DefaultModel {
		t.Errorf("expected default model, got %s", got.Model)
	}
	if got.Temperature != 0 {
		t.Errorf("temperature must be 0, got %v", got.Temperature)
	}
	if got.ResponseFormat.Type != "json_object" {
		t.Errorf("expected json_object response format, got %s", got.ResponseFormat.Type)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != RoleSystem || got.Messages[1].Role != RoleUser {
		t.Errorf("expected one system + one user message, got %v", got.Messages)
	}
}

func TestInvoke_4xxIsNeverRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	})

	_, err := client.Invoke(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, "bad-key")
	if err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("4xx must be terminal: expected 1 call, observed %d", n)
	}
}

func TestInvoke_5xxRetriedUpToBudget(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	})

	_, err := client.Invoke(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, "sk")
	if err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 attempts (2 retries), observed %d", n)
	}
}

func TestInvoke_RecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(completionBody(`{"ok":true}`)))
	})

	content, err := client.Invoke(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, "sk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != `{"ok":true}` {
		t.Errorf("unexpected content: %s", content)
	}
}

func TestInvoke_EmptyResponseIsRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := client.Invoke(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, "sk")
	if err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("empty responses are transient: expected 3 attempts, observed %d", n)
	}
}

func TestInvoke_DeadlineAbortsInFlightCallAndRetries(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Invoke(ctx, []Message{{Role: RoleUser, Content: "x"}}, "sk")

	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTimeout(err) {
		t.Errorf("expected timeout classification, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("deadline must short-circuit retries: observed %d calls", n)
	}
	if time.Since(start) > time.Second {
		t.Error("in-flight call was not aborted on deadline")
	}
}

func TestInvoke_OnRetryHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var retries atomic.Int32
	client := New(Config{
		BaseURL:     srv.URL,
		BackoffStep: time.Millisecond,
		OnRetry:     func(attempt int) { retries.Add(1) },
	}, logger.NewDefault("test"))

	_, _ = client.Invoke(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, "sk")
	if n := retries.Load(); n != 2 {
		t.Errorf("expected 2 retry callbacks, got %d", n)
	}
}

func TestInvoke_MissingKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request must be sent without a key")
	})

	if _, err := client.Invoke(context.Background(), nil, ""); err == nil {
		t.Fatal("expected error")
	}
}
