package llm

import (
	"testing"

	"github.com/qaforge/qaforge/internal/errs"
)

func TestExtractJSONFenced(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"a\": 1}\n```\nDone."
	got, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"a": 1}` {
		t.Fatalf("got %q", got)
	}
}

func TestExtractJSONProseWrapped(t *testing.T) {
	raw := `Sure! The scenarios are: [{"title": "x"}] hope that helps`
	got, err := ExtractJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `[{"title": "x"}]` {
		t.Fatalf("got %q", got)
	}
}

func TestExtractJSONTrailingComma(t *testing.T) {
	got, err := ExtractJSON(`{"a": 1, "b": [1, 2,],}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"a": 1, "b": [1, 2]}` {
		t.Fatalf("got %q", got)
	}
}

func TestExtractJSONSingleQuotes(t *testing.T) {
	got, err := ExtractJSON(`{'a': 'x'}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != `{"a": "x"}` {
		t.Fatalf("got %q", got)
	}
}

func TestExtractJSONUnrecoverable(t *testing.T) {
	_, err := ExtractJSON("I could not produce any structured output")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errs.Is(err, errs.Parse) {
		t.Fatalf("kind = %v, want Parse", errs.KindOf(err))
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Title string `json:"title"`
	}
	if err := DecodeJSON("```json\n{\"title\": \"login\"}\n```", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Title != "login" {
		t.Fatalf("title = %q", out.Title)
	}

	if err := DecodeJSON(`{"title": 3}`, &out); !errs.Is(err, errs.Parse) {
		t.Fatalf("type mismatch should be Parse, got %v", err)
	}
}
