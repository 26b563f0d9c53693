package llm

import (
	"context"
	"sync"
)

// MockProvider is a configurable Provider for tests.
// Set GenerateFunc to control responses; calls are tracked for verification.
type MockProvider struct {
	// GenerateFunc is called when Generate is invoked.
	// If nil, Generate returns Response.
	GenerateFunc func(ctx context.Context, prompt string) string

	// Response is returned when GenerateFunc is nil.
	Response string

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string
	// ModelName is returned by Model. Defaults to "mock-model".
	ModelName string

	// Ledger, when set, receives a record for every non-error call.
	Ledger       *TokenLedger
	InputTokens  int
	OutputTokens int

	mu       sync.Mutex
	prompts  []string
	purposes []string
}

// NewMockProvider creates a mock that always answers with response.
func NewMockProvider(response string) *MockProvider {
	return &MockProvider{Response: response}
}

// Generate implements Provider.
func (m *MockProvider) Generate(ctx context.Context, prompt string) string {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.purposes = append(m.purposes, PurposeFrom(ctx))
	m.mu.Unlock()

	resp := m.Response
	if m.GenerateFunc != nil {
		resp = m.GenerateFunc(ctx, prompt)
	}
	if m.Ledger != nil && resp != ResponseLLMError {
		m.Ledger.Record(m.Name(), m.Model(), PurposeFrom(ctx), m.InputTokens, m.OutputTokens)
	}
	return resp
}

// Name implements Provider.
func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Model implements Provider.
func (m *MockProvider) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Calls returns the number of Generate invocations.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns a copy of every prompt received, in call order.
func (m *MockProvider) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Purposes returns the purpose attached to each call, in call order.
func (m *MockProvider) Purposes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.purposes...)
}

var _ Provider = (*MockProvider)(nil)
