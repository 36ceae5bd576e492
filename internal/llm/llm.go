// Package llm adapts generative providers to a single JSON-producing
// interface used by enrichment and entity recognition.
package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Generator produces a JSON document for a prompt. The returned text may
// still carry stray prose or code fences; callers run ExtractJSON on it.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// ErrNoJSON is returned when a response holds no JSON object.
var ErrNoJSON = eris.New("llm: no JSON object in response")

// CleanJSONBlock removes markdown code fences around a response.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// Drop a language tag such as "json" on the fence line.
	if idx := strings.Index(text, "\n"); idx >= 0 {
		tag := text[:idx]
		if len(tag) < 20 && !strings.ContainsAny(tag, " {[") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// ExtractJSON returns the outermost JSON object in text after removing code
// fences. Braces inside string literals are ignored.
func ExtractJSON(text string) (string, error) {
	text = CleanJSONBlock(text)
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSON
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSON
}
