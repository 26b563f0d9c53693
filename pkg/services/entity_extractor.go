package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-graph/pkg/apperrors"
	"github.com/ekaya-inc/schema-graph/pkg/jsonutil"
	"github.com/ekaya-inc/schema-graph/pkg/llm"
	"github.com/ekaya-inc/schema-graph/pkg/prompts"
)

// EntityExtractor turns a free-text question into candidate schema names.
type EntityExtractor interface {
	// IdentifyColumn returns the names the question mentions, keyed
	// "item1".."itemN". It never fails: unusable model output yields an
	// empty map.
	IdentifyColumn(ctx context.Context, query string) map[string]string
}

type entityExtractor struct {
	provider   llm.Provider
	strategies []jsonutil.Strategy
	logger     *zap.Logger
}

// NewEntityExtractor creates an extractor that decodes model output with the
// default strategy cascade.
func NewEntityExtractor(provider llm.Provider, logger *zap.Logger) EntityExtractor {
	return &entityExtractor{
		provider:   provider,
		strategies: jsonutil.DefaultStrategies,
		logger:     logger.Named("entity-extractor"),
	}
}

var _ EntityExtractor = (*entityExtractor)(nil)

func (e *entityExtractor) IdentifyColumn(ctx context.Context, query string) map[string]string {
	ctx = withDefaultPurpose(ctx, llm.PurposeEntityExtraction)
	resp := e.provider.Generate(ctx, prompts.BuildEntityExtractionPrompt(query))

	if llm.IsSentinel(resp) {
		e.logger.Warn("Entity extraction got no usable model response",
			zap.String("provider", e.provider.Name()),
			zap.String("response", resp))
		return map[string]string{}
	}

	entries, strategy, err := jsonutil.DecodeObject(resp, e.strategies...)
	if err != nil {
		e.logger.Warn("Entity extraction output could not be parsed",
			zap.Error(fmt.Errorf("%w: %w", apperrors.ErrParseFailure, err)),
			zap.Int("response_len", len(resp)))
		return map[string]string{}
	}

	result := make(map[string]string, len(entries))
	for _, entry := range entries {
		result[entry.Key] = entry.Value
	}

	e.logger.Debug("Extracted candidate names",
		zap.String("strategy", strategy),
		zap.Int("count", len(result)))
	return result
}

// OrderedCandidates returns the distinct non-empty values of an extraction
// result in item order: "itemN" keys by N, then any other keys by name.
func OrderedCandidates(items map[string]string) []string {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, iok := itemIndex(keys[i])
		nj, jok := itemIndex(keys[j])
		switch {
		case iok && jok:
			return ni < nj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})

	seen := make(map[string]bool, len(keys))
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		v := items[k]
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		names = append(names, v)
	}
	return names
}

func itemIndex(key string) (int, bool) {
	suffix, ok := strings.CutPrefix(key, "item")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return n, true
}

// withDefaultPurpose tags ctx with purpose unless a caller already did.
func withDefaultPurpose(ctx context.Context, purpose string) context.Context {
	if llm.PurposeFrom(ctx) != "" {
		return ctx
	}
	return llm.WithPurpose(ctx, purpose)
}
