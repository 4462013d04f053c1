package extract

import (
	"errors"
	"strings"
	"testing"

	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
)

func TestStructuredTaggedFence(t *testing.T) {
	t.Parallel()

	raw := "Here is the analysis you asked for:\n```json\n{\"insights\": [\"a\", \"b\"]}\n```\nLet me know if you need more."
	value, err := Structured(raw)
	if err != nil {
		t.Fatalf("Structured() error = %v", err)
	}
	if string(value) != `{"insights": ["a", "b"]}` {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestStructuredTaggedFenceWinsOverLaterJSON(t *testing.T) {
	t.Parallel()

	raw := "```json\n{\"first\": true}\n```\n{\"second\": true}"
	value, err := Structured(raw)
	if err != nil {
		t.Fatalf("Structured() error = %v", err)
	}
	if !strings.Contains(string(value), "first") {
		t.Fatalf("expected tagged fence to win, got: %s", value)
	}
}

func TestStructuredUntaggedFence(t *testing.T) {
	t.Parallel()

	raw := "Result:\n```\n[1, 2, 3]\n```"
	value, err := Structured(raw)
	if err != nil {
		t.Fatalf("Structured() error = %v", err)
	}
	if string(value) != "[1, 2, 3]" {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestStructuredBracketSpanWithNestedBraces(t *testing.T) {
	t.Parallel()

	raw := `The model thinks {"outer": {"inner": {"depth": 3}}, "note": "a } inside a string"} and then rambles on.`
	value, err := Structured(raw)
	if err != nil {
		t.Fatalf("Structured() error = %v", err)
	}
	if !strings.Contains(string(value), `"depth": 3`) {
		t.Fatalf("unexpected value: %s", value)
	}
	if strings.Contains(string(value), "rambles") {
		t.Fatalf("trailing prose leaked into value: %s", value)
	}
}

func TestStructuredBracketSpanSkipsUnparseableSpan(t *testing.T) {
	t.Parallel()

	raw := `set {not json} but later {"ok": true} appears`
	value, err := Structured(raw)
	if err != nil {
		t.Fatalf("Structured() error = %v", err)
	}
	if string(value) != `{"ok": true}` {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestStructuredWholeText(t *testing.T) {
	t.Parallel()

	value, err := Structured(`  {"plain": 1}  `)
	if err != nil {
		t.Fatalf("Structured() error = %v", err)
	}
	if string(value) != `{"plain": 1}` {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestStructuredTruncatedFenceFallsThrough(t *testing.T) {
	t.Parallel()

	// Opening fence without a closing one; the object inside is still
	// recoverable by bracket matching.
	raw := "```json\n{\"recovered\": true}"
	value, err := Structured(raw)
	if err != nil {
		t.Fatalf("Structured() error = %v", err)
	}
	if string(value) != `{"recovered": true}` {
		t.Fatalf("unexpected value: %s", value)
	}
}

func TestStructuredNoStructure(t *testing.T) {
	t.Parallel()

	raw := "I am sorry, I cannot produce the requested output."
	_, err := Structured(raw)
	if err == nil {
		t.Fatal("expected extraction error")
	}
	if !errors.Is(err, contractx.ErrExtraction) {
		t.Fatalf("error should wrap ErrExtraction, got %v", err)
	}

	var extractErr *Error
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if extractErr.Input == "" {
		t.Fatal("diagnostic input must carry the original text")
	}
}

func TestStructuredTruncatedObjectFails(t *testing.T) {
	t.Parallel()

	_, err := Structured(`{"cut": "off`)
	if err == nil {
		t.Fatal("expected extraction error for truncated object")
	}
}

func TestStructuredDiagnosticInputTruncated(t *testing.T) {
	t.Parallel()

	raw := strings.Repeat("no structure here ", 100)
	_, err := Structured(raw)

	var extractErr *Error
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if len(extractErr.Input) > diagnosticLimit {
		t.Fatalf("diagnostic input not truncated: %d bytes", len(extractErr.Input))
	}
}
