package models

import "time"

// TokenUsageRecord is one entry of the token ledger log. Never mutated.
type TokenUsageRecord struct {
	Source       string    `json:"source"` // provider tag, e.g. "openai"
	Model        string    `json:"model"`
	Purpose      string    `json:"purpose,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Timestamp    time.Time `json:"timestamp"`
}

// TokenTotals is an input/output/total tuple.
type TokenTotals struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
	Calls        int64 `json:"calls"`
}

// TokenUsageReport is returned by the token usage query.
type TokenUsageReport struct {
	Totals     TokenTotals            `json:"totals"`
	ByProvider map[string]TokenTotals `json:"by_provider"`
	ByPurpose  map[string]TokenTotals `json:"by_purpose,omitempty"`
	Formatted  string                 `json:"formatted"`
	// Persisted holds all-time totals per provider from the usage log, when
	// persistence is enabled.
	Persisted map[string]TokenTotals `json:"persisted,omitempty"`
}
