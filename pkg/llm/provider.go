// Package llm provides the model providers used to extract entity names and
// compose answers, together with the token ledger they report to.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/retry"
)

// Sentinel strings returned by Generate in place of errors.
const (
	ResponseLLMError = "LLM Error"
	ResponseEmpty    = "Empty Response Error"
)

// IsSentinel reports whether s is one of the Generate failure sentinels.
func IsSentinel(s string) bool {
	return s == ResponseLLMError || s == ResponseEmpty
}

// Provider generates text from a prompt. Generate never returns an error:
// upstream failures and timeouts yield ResponseLLMError and an empty
// payload yields ResponseEmpty.
type Provider interface {
	Generate(ctx context.Context, prompt string) string
	// Name is the provider tag used in usage records, e.g. "openai".
	Name() string
	Model() string
}

// Usage is the token usage reported by an upstream for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// completion is the upstream-specific part of a provider.
type completion interface {
	complete(ctx context.Context, prompt string) (string, Usage, error)
}

// ProviderOptions are the shared knobs of every provider.
type ProviderOptions struct {
	Timeout        time.Duration
	MaxTokens      int
	Temperature    float32
	Retry          *retry.Config
	CircuitBreaker CircuitBreakerConfig
}

// DefaultProviderOptions returns the defaults used when a field is left zero.
func DefaultProviderOptions() ProviderOptions {
	return ProviderOptions{
		Timeout:   60 * time.Second,
		MaxTokens: 1024,
		Retry: &retry.Config{
			MaxRetries:       2,
			InitialDelay:     500 * time.Millisecond,
			MaxDelay:         5 * time.Second,
			Multiplier:       2.0,
			JitterFactor:     0.1,
			MaxSameErrorType: 3,
		},
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

func (o ProviderOptions) withDefaults() ProviderOptions {
	d := DefaultProviderOptions()
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.Retry == nil {
		o.Retry = d.Retry
	}
	if o.CircuitBreaker.Threshold <= 0 {
		o.CircuitBreaker.Threshold = d.CircuitBreaker.Threshold
	}
	if o.CircuitBreaker.ResetAfter <= 0 {
		o.CircuitBreaker.ResetAfter = d.CircuitBreaker.ResetAfter
	}
	return o
}

// provider is the shared Generate implementation. It bounds each call with
// a timeout, retries transient failures, trips a circuit breaker on repeated
// failures and records usage in the ledger on every successful call.
type provider struct {
	name    string
	model   string
	backend completion
	ledger  *TokenLedger
	breaker *CircuitBreaker
	opts    ProviderOptions
	logger  *zap.Logger
}

func newProvider(name, model string, backend completion, ledger *TokenLedger, opts ProviderOptions, logger *zap.Logger) *provider {
	opts = opts.withDefaults()
	opts.CircuitBreaker.Name = name
	if ledger == nil {
		ledger = NewTokenLedger(nil)
	}
	return &provider{
		name:    name,
		model:   model,
		backend: backend,
		ledger:  ledger,
		breaker: NewCircuitBreaker(opts.CircuitBreaker),
		opts:    opts,
		logger:  logger.Named("llm").With(zap.String("provider", name), zap.String("model", model)),
	}
}

func (p *provider) Name() string  { return p.name }
func (p *provider) Model() string { return p.model }

// Generate implements Provider.
func (p *provider) Generate(ctx context.Context, prompt string) string {
	purpose := PurposeFrom(ctx)

	if allowed, err := p.breaker.Allow(); !allowed {
		p.logger.Warn("Provider call rejected", zap.String("purpose", purpose), zap.Error(providerFailure(err)))
		return ResponseLLMError
	}

	// A client disconnect must not abort an in-flight call; only the timeout does.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.Timeout)
	defer cancel()

	start := time.Now()
	var (
		content string
		usage   Usage
	)
	err := retry.DoIfRetryable(callCtx, p.opts.Retry, func() error {
		var cerr error
		content, usage, cerr = p.backend.complete(callCtx, prompt)
		if cerr != nil {
			classified := ClassifyError(cerr)
			classified.Provider = p.name
			classified.Model = p.model
			return classified
		}
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		p.breaker.RecordFailure()
		p.logger.Error("Provider call failed",
			zap.String("purpose", purpose),
			zap.String("error_type", string(GetErrorType(err))),
			zap.Duration("elapsed", elapsed),
			zap.Error(providerFailure(err)))
		return ResponseLLMError
	}

	p.breaker.RecordSuccess()
	p.ledger.Record(p.name, p.model, purpose, usage.InputTokens, usage.OutputTokens)

	p.logger.Info("Provider call completed",
		zap.String("purpose", purpose),
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Duration("elapsed", elapsed))

	if strings.TrimSpace(content) == "" {
		p.logger.Warn("Provider returned an empty payload", zap.String("purpose", purpose))
		return ResponseEmpty
	}
	return content
}

// providerFailure marks an error that Generate absorbs into ResponseLLMError.
func providerFailure(err error) error {
	return fmt.Errorf("%w: %w", apperrors.ErrProviderFailure, err)
}

var _ Provider = (*provider)(nil)
