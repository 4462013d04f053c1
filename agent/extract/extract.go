// Package extract recovers a structured JSON value from a raw model
// completion. Models wrap JSON in markdown fences, prepend prose, or
// truncate output; an ordered strategy chain handles each shape in turn.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
)

const diagnosticLimit = 200

// Error carries a truncated copy of the offending text for diagnostics.
type Error struct {
	Input string
}

func (e *Error) Error() string {
	return fmt.Sprintf("no structured value in response: %q", e.Input)
}

func (e *Error) Unwrap() error {
	return contractx.ErrExtraction
}

// Strategy tries one way of locating a parseable JSON value in the text.
type Strategy interface {
	TryExtract(text string) (json.RawMessage, bool)
}

// DefaultStrategies returns the chain in priority order; the first
// success wins.
func DefaultStrategies() []Strategy {
	return []Strategy{
		TaggedFence{Tag: "json"},
		UntaggedFence{},
		BracketSpan{},
		WholeText{},
	}
}

// Structured runs the default chain over the text. It is pure: no side
// effects, safe for concurrent use.
func Structured(text string) (json.RawMessage, error) {
	return Run(text, DefaultStrategies())
}

func Run(text string, strategies []Strategy) (json.RawMessage, error) {
	for _, s := range strategies {
		if value, ok := s.TryExtract(text); ok {
			return value, nil
		}
	}

	truncated := text
	if len(truncated) > diagnosticLimit {
		truncated = truncated[:diagnosticLimit]
	}
	return nil, &Error{Input: truncated}
}

// TaggedFence extracts the interior of the first fenced block tagged
// with the given language.
type TaggedFence struct {
	Tag string
}

func (s TaggedFence) TryExtract(text string) (json.RawMessage, bool) {
	marker := "```" + s.Tag
	start := strings.Index(text, marker)
	if start < 0 {
		return nil, false
	}
	interior := text[start+len(marker):]
	end := strings.Index(interior, "```")
	if end < 0 {
		return nil, false
	}
	return parseCandidate(interior[:end])
}

// UntaggedFence extracts the interior of the first fenced block whose
// opening fence carries no language tag.
type UntaggedFence struct{}

func (s UntaggedFence) TryExtract(text string) (json.RawMessage, bool) {
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			return nil, false
		}
		interior := rest[start+3:]
		end := strings.Index(interior, "```")
		if end < 0 {
			return nil, false
		}
		block := interior[:end]
		// A tagged fence has its language identifier on the opening line.
		firstLine, _, _ := strings.Cut(block, "\n")
		if strings.TrimSpace(firstLine) == "" {
			return parseCandidate(block)
		}
		rest = interior[end+3:]
	}
}

// BracketSpan locates the first balanced {...} or [...] span via
// bracket matching, skipping brackets inside string literals.
type BracketSpan struct{}

func (s BracketSpan) TryExtract(text string) (json.RawMessage, bool) {
	start := strings.IndexAny(text, "{[")
	for start >= 0 {
		if span, ok := balancedSpan(text[start:]); ok {
			if value, ok := parseCandidate(span); ok {
				return value, true
			}
		}
		next := strings.IndexAny(text[start+1:], "{[")
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return nil, false
}

func balancedSpan(text string) (string, bool) {
	open := text[0]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[:i+1], true
			}
		}
	}
	return "", false
}

// WholeText parses the entire trimmed text verbatim.
type WholeText struct{}

func (s WholeText) TryExtract(text string) (json.RawMessage, bool) {
	return parseCandidate(text)
}

func parseCandidate(candidate string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return nil, false
	}
	var probe any
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, false
	}
	return json.RawMessage(trimmed), true
}
