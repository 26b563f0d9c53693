package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type anthropicCompletion struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	temperature float32
}

func (c *anthropicCompletion) complete(ctx context.Context, prompt string) (string, Usage, error) {
	temperature := c.temperature
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return "", Usage{}, err
	}

	usage := Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			b.WriteString(*block.Text)
		}
	}
	return b.String(), usage, nil
}

// NewAnthropicProvider creates a provider backed by the Anthropic Messages API.
func NewAnthropicProvider(cfg AnthropicConfig, ledger *TokenLedger, opts ProviderOptions, logger *zap.Logger) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}

	var clientOpts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	opts = opts.withDefaults()

	backend := &anthropicCompletion{
		client:      anthropic.NewClient(cfg.APIKey, clientOpts...),
		model:       cfg.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
	return newProvider("anthropic", cfg.Model, backend, ledger, opts, logger), nil
}
