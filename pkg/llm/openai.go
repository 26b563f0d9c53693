package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // Optional, e.g. for an OpenAI-compatible proxy
	Model   string
}

// AzureConfig configures the Azure OpenAI provider.
type AzureConfig struct {
	APIKey     string
	Endpoint   string // e.g. https://my-resource.openai.azure.com/
	Deployment string
	APIVersion string
}

type openAICompletion struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func (c *openAICompletion) complete(ctx context.Context, prompt string) (string, Usage, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", Usage{}, err
	}

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 {
		return "", usage, nil
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// NewOpenAIProvider creates the fast/cheap provider backed by the OpenAI API.
func NewOpenAIProvider(cfg OpenAIConfig, ledger *TokenLedger, opts ProviderOptions, logger *zap.Logger) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	opts = opts.withDefaults()

	backend := &openAICompletion{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
	return newProvider("openai", cfg.Model, backend, ledger, opts, logger), nil
}

// NewAzureProvider creates the enterprise-gateway provider backed by an
// Azure OpenAI deployment.
func NewAzureProvider(cfg AzureConfig, ledger *TokenLedger, opts ProviderOptions, logger *zap.Logger) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("azure api key is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure endpoint is required")
	}
	if cfg.Deployment == "" {
		return nil, fmt.Errorf("azure deployment is required")
	}

	clientConfig := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	if cfg.APIVersion != "" {
		clientConfig.APIVersion = cfg.APIVersion
	}
	deployment := cfg.Deployment
	clientConfig.AzureModelMapperFunc = func(model string) string {
		return deployment
	}
	opts = opts.withDefaults()

	backend := &openAICompletion{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       deployment,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
	return newProvider("azure", deployment, backend, ledger, opts, logger), nil
}
