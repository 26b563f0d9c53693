package llm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// UsageRecorder receives every record appended to the ledger.
type UsageRecorder interface {
	Record(rec models.TokenUsageRecord)
}

// TokenLedger accumulates token usage across all providers.
// Totals use atomic counters so concurrent Generate calls never lose updates;
// the per-source log and breakdowns are guarded by a mutex.
type TokenLedger struct {
	inputTokens  atomic.Int64
	outputTokens atomic.Int64
	calls        atomic.Int64

	mu         sync.Mutex
	records    []models.TokenUsageRecord
	byProvider map[string]*models.TokenTotals
	byPurpose  map[string]*models.TokenTotals

	sink UsageRecorder
	now  func() time.Time
}

// NewTokenLedger creates an empty ledger. sink may be nil.
func NewTokenLedger(sink UsageRecorder) *TokenLedger {
	return &TokenLedger{
		byProvider: make(map[string]*models.TokenTotals),
		byPurpose:  make(map[string]*models.TokenTotals),
		sink:       sink,
		now:        time.Now,
	}
}

// Record appends a usage entry. Negative counts are clamped to zero.
func (l *TokenLedger) Record(source, model, purpose string, inputTokens, outputTokens int) {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}

	l.inputTokens.Add(int64(inputTokens))
	l.outputTokens.Add(int64(outputTokens))
	l.calls.Add(1)

	rec := models.TokenUsageRecord{
		Source:       source,
		Model:        model,
		Purpose:      purpose,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Timestamp:    l.now().UTC(),
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	addTotals(l.byProvider, source, inputTokens, outputTokens)
	if purpose != "" {
		addTotals(l.byPurpose, purpose, inputTokens, outputTokens)
	}
	l.mu.Unlock()

	if l.sink != nil {
		l.sink.Record(rec)
	}
}

func addTotals(m map[string]*models.TokenTotals, key string, in, out int) {
	t, ok := m[key]
	if !ok {
		t = &models.TokenTotals{}
		m[key] = t
	}
	t.InputTokens += int64(in)
	t.OutputTokens += int64(out)
	t.TotalTokens += int64(in + out)
	t.Calls++
}

// Totals returns the running totals across every provider.
func (l *TokenLedger) Totals() models.TokenTotals {
	in := l.inputTokens.Load()
	out := l.outputTokens.Load()
	return models.TokenTotals{
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
		Calls:        l.calls.Load(),
	}
}

// ByProvider returns a copy of the totals keyed by provider tag.
func (l *TokenLedger) ByProvider() map[string]models.TokenTotals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyTotals(l.byProvider)
}

// ByPurpose returns a copy of the totals keyed by call purpose.
func (l *TokenLedger) ByPurpose() map[string]models.TokenTotals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyTotals(l.byPurpose)
}

func copyTotals(m map[string]*models.TokenTotals) map[string]models.TokenTotals {
	out := make(map[string]models.TokenTotals, len(m))
	for k, v := range m {
		out[k] = *v
	}
	return out
}

// Records returns a copy of the append-only usage log.
func (l *TokenLedger) Records() []models.TokenUsageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.TokenUsageRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Reset clears totals and the log. Records already handed to the sink are kept there.
func (l *TokenLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inputTokens.Store(0)
	l.outputTokens.Store(0)
	l.calls.Store(0)
	l.records = nil
	l.byProvider = make(map[string]*models.TokenTotals)
	l.byPurpose = make(map[string]*models.TokenTotals)
}

// Formatted renders the totals followed by one line per provider, sorted by tag:
//
//	input token: 1.50k
//	output token: 320
//	openai: input 1.50k, output 320
func (l *TokenLedger) Formatted() string {
	totals := l.Totals()
	byProvider := l.ByProvider()

	var b strings.Builder
	fmt.Fprintf(&b, "input token: %s\noutput token: %s", FormatTokenCount(totals.InputTokens), FormatTokenCount(totals.OutputTokens))

	sources := make([]string, 0, len(byProvider))
	for s := range byProvider {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		t := byProvider[s]
		fmt.Fprintf(&b, "\n%s: input %s, output %s", s, FormatTokenCount(t.InputTokens), FormatTokenCount(t.OutputTokens))
	}
	return b.String()
}

// Report bundles totals, breakdowns and the formatted summary.
func (l *TokenLedger) Report() *models.TokenUsageReport {
	return &models.TokenUsageReport{
		Totals:     l.Totals(),
		ByProvider: l.ByProvider(),
		ByPurpose:  l.ByPurpose(),
		Formatted:  l.Formatted(),
	}
}

// FormatTokenCount renders counts of 1000 or more as thousands with two decimals.
func FormatTokenCount(n int64) string {
	if n >= 1000 {
		return fmt.Sprintf("%.2fk", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}
