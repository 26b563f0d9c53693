package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ErrNoObject is returned by every strategy when it cannot recover a JSON object.
var ErrNoObject = errors.New("no JSON object found")

// Entry is one key/value pair of a decoded object, in document order.
type Entry struct {
	Key   string
	Value string
}

// Strategy is a pure parse attempt over a raw model response.
type Strategy struct {
	Name  string
	Parse func(raw string) ([]Entry, error)
}

// thinkTagPattern matches <think>...</think> blocks some models prepend.
var thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// braceCandidatePattern matches flat brace-delimited objects.
var braceCandidatePattern = regexp.MustCompile(`(?s)\{[^{}]*\}`)

// DefaultStrategies is the ordered cascade used to recover an object from
// free-form model output.
var DefaultStrategies = []Strategy{
	{Name: "direct", Parse: ParseDirect},
	{Name: "brace_candidates", Parse: ParseBraceCandidates},
	{Name: "first_last_brace", Parse: ParseFirstLastBrace},
}

// DecodeObject runs the strategies in order and returns the first success
// along with the name of the strategy that produced it. When none succeed it
// returns an empty slice and the last error.
func DecodeObject(raw string, strategies ...Strategy) ([]Entry, string, error) {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	lastErr := ErrNoObject
	for _, s := range strategies {
		entries, err := s.Parse(raw)
		if err == nil {
			return entries, s.Name, nil
		}
		lastErr = err
	}
	return []Entry{}, "", lastErr
}

// ParseDirect parses the whole response as a single JSON object.
func ParseDirect(raw string) ([]Entry, error) {
	return decodeOrdered(strings.TrimSpace(thinkTagPattern.ReplaceAllString(raw, "")))
}

// ParseBraceCandidates tries every flat {...} substring in order until one parses.
func ParseBraceCandidates(raw string) ([]Entry, error) {
	candidates := braceCandidatePattern.FindAllString(raw, -1)
	if len(candidates) == 0 {
		return nil, ErrNoObject
	}
	var lastErr error
	for _, c := range candidates {
		entries, err := decodeOrdered(c)
		if err == nil {
			return entries, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("no brace candidate parsed: %w", lastErr)
}

// ParseFirstLastBrace slices from the first '{' to the last '}' and replaces
// single quotes with double quotes before parsing.
func ParseFirstLastBrace(raw string) ([]Entry, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil, ErrNoObject
	}
	return decodeOrdered(strings.ReplaceAll(raw[start:end+1], "'", `"`))
}

// decodeOrdered decodes a JSON object keeping key order. Values that are not
// strings are converted with FlexibleStringValue.
func decodeOrdered(s string) ([]Entry, error) {
	if s == "" {
		return nil, ErrNoObject
	}
	dec := json.NewDecoder(strings.NewReader(s))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, ErrNoObject
	}

	entries := []Entry{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid JSON key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("invalid JSON key %v", keyTok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("invalid JSON value for %q: %w", key, err)
		}
		entries = append(entries, Entry{Key: key, Value: FlexibleStringValue(value)})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	// Anything after the closing brace means this was not a single object.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after JSON object")
	}
	return entries, nil
}
