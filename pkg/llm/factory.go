package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/config"
	"github.com/ekaya-inc/schema-graph/pkg/retry"
)

// Provider names accepted in configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
)

// OptionsFromConfig maps configuration to provider options.
func OptionsFromConfig(cfg *config.LLMConfig) ProviderOptions {
	opts := DefaultProviderOptions()
	if cfg.Timeout > 0 {
		opts.Timeout = cfg.Timeout
	}
	if cfg.MaxTokens > 0 {
		opts.MaxTokens = cfg.MaxTokens
	}
	opts.Temperature = cfg.Temperature
	opts.Retry = &retry.Config{
		MaxRetries:       cfg.MaxRetries,
		InitialDelay:     cfg.RetryInitialDelay,
		MaxDelay:         opts.Retry.MaxDelay,
		Multiplier:       opts.Retry.Multiplier,
		JitterFactor:     opts.Retry.JitterFactor,
		MaxSameErrorType: opts.Retry.MaxSameErrorType,
	}
	if cfg.BreakerThreshold > 0 {
		opts.CircuitBreaker.Threshold = cfg.BreakerThreshold
	}
	if cfg.BreakerCooldown > 0 {
		opts.CircuitBreaker.ResetAfter = cfg.BreakerCooldown
	}
	return opts
}

// NewNamedProvider builds a single provider by name.
func NewNamedProvider(name string, cfg *config.LLMConfig, ledger *TokenLedger, logger *zap.Logger) (Provider, error) {
	opts := OptionsFromConfig(cfg)
	switch name {
	case ProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}, ledger, opts, logger)
	case ProviderAzure:
		return NewAzureProvider(AzureConfig{
			APIKey:     cfg.AzureAPIKey,
			Endpoint:   cfg.AzureEndpoint,
			Deployment: cfg.AzureDeployment,
			APIVersion: cfg.AzureAPIVersion,
		}, ledger, opts, logger)
	case ProviderAnthropic:
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			BaseURL: cfg.AnthropicBaseURL,
			Model:   cfg.AnthropicModel,
		}, ledger, opts, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}

// NewProviderFromConfig selects the configured provider once at startup and
// wraps it with the fallback provider when one is configured.
func NewProviderFromConfig(cfg *config.LLMConfig, ledger *TokenLedger, logger *zap.Logger) (Provider, error) {
	primary, err := NewNamedProvider(cfg.Provider, cfg, ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", cfg.Provider, err)
	}
	if cfg.FallbackProvider == "" {
		return primary, nil
	}

	secondary, err := NewNamedProvider(cfg.FallbackProvider, cfg, ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback %s provider: %w", cfg.FallbackProvider, err)
	}
	return NewFallbackProvider(primary, secondary, logger), nil
}

// FallbackProvider tries a secondary provider once when the primary returns
// ResponseLLMError. An empty response is not retried on the secondary.
type FallbackProvider struct {
	primary   Provider
	secondary Provider
	logger    *zap.Logger
}

// NewFallbackProvider wraps primary with secondary.
func NewFallbackProvider(primary, secondary Provider, logger *zap.Logger) *FallbackProvider {
	return &FallbackProvider{
		primary:   primary,
		secondary: secondary,
		logger:    logger.Named("llm-fallback"),
	}
}

// Generate implements Provider.
func (f *FallbackProvider) Generate(ctx context.Context, prompt string) string {
	resp := f.primary.Generate(ctx, prompt)
	if resp != ResponseLLMError {
		return resp
	}
	f.logger.Warn("Primary provider failed, trying fallback",
		zap.String("primary", f.primary.Name()),
		zap.String("fallback", f.secondary.Name()))
	return f.secondary.Generate(ctx, prompt)
}

// Name implements Provider.
func (f *FallbackProvider) Name() string { return f.primary.Name() }

// Model implements Provider.
func (f *FallbackProvider) Model() string { return f.primary.Model() }

var _ Provider = (*FallbackProvider)(nil)
