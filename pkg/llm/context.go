package llm

import (
	"context"
)

type contextKey string

const (
	purposeContextKey contextKey = "llm_purpose"
)

// Purposes attached to usage records.
const (
	PurposeEntityExtraction  = "entity_extraction"
	PurposeAnswerComposition = "answer_composition"
	PurposeMCP               = "mcp"
)

// WithPurpose returns a context whose provider calls are recorded under purpose.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeContextKey, purpose)
}

// PurposeFrom returns the purpose attached to ctx, or "" if none.
func PurposeFrom(ctx context.Context) string {
	if p, ok := ctx.Value(purposeContextKey).(string); ok {
		return p
	}
	return ""
}
