package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/retry"
)

func testOptions() ProviderOptions {
	return ProviderOptions{
		Timeout:   2 * time.Second,
		MaxTokens: 64,
		Retry: &retry.Config{
			MaxRetries:   2,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
		CircuitBreaker: CircuitBreakerConfig{Threshold: 100, ResetAfter: time.Minute},
	}
}

func openAIChatResponse(content string, promptTokens, completionTokens int) string {
	resp := map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

// fakeOpenAI serves /v1/chat/completions with the given handler and counts requests.
func fakeOpenAI(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var count atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &count
}

func newTestOpenAI(t *testing.T, srv *httptest.Server, ledger *TokenLedger, opts ProviderOptions) Provider {
	t.Helper()
	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "gpt-4o-mini"}, ledger, opts, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestOpenAIProvider_SuccessRecordsUsage(t *testing.T) {
	srv, _ := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "which tables?")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, openAIChatResponse(`{"item1":"employees"}`, 42, 7))
	})

	ledger := NewTokenLedger(nil)
	p := newTestOpenAI(t, srv, ledger, testOptions())

	got := p.Generate(WithPurpose(context.Background(), PurposeEntityExtraction), "which tables?")

	assert.Equal(t, `{"item1":"employees"}`, got)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "gpt-4o-mini", p.Model())

	records := ledger.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "openai", records[0].Source)
	assert.Equal(t, PurposeEntityExtraction, records[0].Purpose)
	assert.Equal(t, 42, records[0].InputTokens)
	assert.Equal(t, 7, records[0].OutputTokens)
}

func TestOpenAIProvider_EmptyPayload(t *testing.T) {
	srv, _ := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, openAIChatResponse("   ", 5, 0))
	})

	ledger := NewTokenLedger(nil)
	p := newTestOpenAI(t, srv, ledger, testOptions())

	assert.Equal(t, ResponseEmpty, p.Generate(context.Background(), "hi"))
	assert.Len(t, ledger.Records(), 1, "usage is recorded even for an empty payload")
}

func TestOpenAIProvider_ServerErrorIsRetriedThenSentinel(t *testing.T) {
	srv, count := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})

	ledger := NewTokenLedger(nil)
	p := newTestOpenAI(t, srv, ledger, testOptions())

	assert.Equal(t, ResponseLLMError, p.Generate(context.Background(), "hi"))
	assert.Equal(t, int32(3), count.Load(), "one attempt plus two retries")
	assert.Empty(t, ledger.Records())
}

func TestOpenAIProvider_AuthErrorIsNotRetried(t *testing.T) {
	srv, count := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	})

	p := newTestOpenAI(t, srv, nil, testOptions())

	assert.Equal(t, ResponseLLMError, p.Generate(context.Background(), "hi"))
	assert.Equal(t, int32(1), count.Load())
}

func TestOpenAIProvider_TimeoutYieldsSentinel(t *testing.T) {
	release := make(chan struct{})
	srv, _ := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	// Registered after fakeOpenAI so it runs before srv.Close (cleanups are LIFO).
	t.Cleanup(func() { close(release) })

	opts := testOptions()
	opts.Timeout = 50 * time.Millisecond
	p := newTestOpenAI(t, srv, nil, opts)

	start := time.Now()
	assert.Equal(t, ResponseLLMError, p.Generate(context.Background(), "hi"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestOpenAIProvider_CallerCancellationDoesNotAbortCall(t *testing.T) {
	srv, _ := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, openAIChatResponse("still here", 1, 1))
	})

	p := newTestOpenAI(t, srv, nil, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, "still here", p.Generate(ctx, "hi"))
}

func TestOpenAIProvider_CircuitBreakerShortCircuits(t *testing.T) {
	srv, count := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"unauthorized"}}`)
	})

	opts := testOptions()
	opts.CircuitBreaker = CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Hour}
	p := newTestOpenAI(t, srv, nil, opts)

	assert.Equal(t, ResponseLLMError, p.Generate(context.Background(), "hi"))
	assert.Equal(t, ResponseLLMError, p.Generate(context.Background(), "hi"))
	assert.Equal(t, int32(1), count.Load(), "second call must not reach the upstream")
}

func TestNewOpenAIProvider_Validation(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Model: "m"}, nil, ProviderOptions{}, zap.NewNop())
	assert.Error(t, err)
	_, err = NewOpenAIProvider(OpenAIConfig{APIKey: "k"}, nil, ProviderOptions{}, zap.NewNop())
	assert.Error(t, err)
}

func TestAzureProvider_UsesDeploymentPath(t *testing.T) {
	srv, _ := fakeOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/gpt-4o-prod/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-06-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, openAIChatResponse("from azure", 3, 4))
	})

	ledger := NewTokenLedger(nil)
	p, err := NewAzureProvider(AzureConfig{
		APIKey:     "azure-key",
		Endpoint:   srv.URL,
		Deployment: "gpt-4o-prod",
		APIVersion: "2024-06-01",
	}, ledger, testOptions(), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "from azure", p.Generate(context.Background(), "hi"))
	assert.Equal(t, "azure", p.Name())
	assert.Equal(t, int64(7), ledger.ByProvider()["azure"].TotalTokens)
}

func TestAnthropicProvider_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "anthropic-key", r.Header.Get("x-api-key"))
		body, _ := io.ReadAll(r.Body)
		assert.True(t, strings.Contains(string(body), `"model":"claude-test"`))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "The employees table has "}, {"type": "text", "text": "3 fields."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 11, "output_tokens": 5}
		}`)
	}))
	t.Cleanup(srv.Close)

	ledger := NewTokenLedger(nil)
	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "anthropic-key", BaseURL: srv.URL + "/v1", Model: "claude-test"}, ledger, testOptions(), zap.NewNop())
	require.NoError(t, err)

	got := p.Generate(WithPurpose(context.Background(), PurposeAnswerComposition), "describe employees")
	assert.Equal(t, "The employees table has 3 fields.", got)

	totals := ledger.ByProvider()["anthropic"]
	assert.Equal(t, int64(11), totals.InputTokens)
	assert.Equal(t, int64(5), totals.OutputTokens)
}

func TestIsSentinel(t *testing.T) {
	assert.True(t, IsSentinel(ResponseLLMError))
	assert.True(t, IsSentinel(ResponseEmpty))
	assert.False(t, IsSentinel("LLM Error: extra"))
}

type failingCompletion struct{ err error }

func (f failingCompletion) complete(ctx context.Context, prompt string) (string, Usage, error) {
	return "", Usage{}, f.err
}

func TestProvider_FailureIsLoggedAsProviderFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	p := newProvider("openai", "gpt-4o-mini", failingCompletion{err: errors.New("connection reset")}, nil, testOptions(), zap.New(core))

	assert.Equal(t, ResponseLLMError, p.Generate(context.Background(), "q"))

	entries := logs.FilterMessage("Provider call failed").All()
	require.Len(t, entries, 1)
	var logged error
	for _, f := range entries[0].Context {
		if f.Key == "error" {
			logged, _ = f.Interface.(error)
		}
	}
	require.Error(t, logged)
	assert.ErrorIs(t, logged, apperrors.ErrProviderFailure)
	assert.Contains(t, logged.Error(), "connection reset")
}
