package privacy

import (
	"context"
	"testing"

	"github.com/ppiankov/researchpulse/internal/summarize"
)

func TestCompile_Valid(t *testing.T) {
	patterns, err := Compile([]string{`(?i)token`, `\bsecret\b`})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(patterns) != 2 {
		t.Errorf("got %d patterns, want 2", len(patterns))
	}
}

func TestCompile_Invalid(t *testing.T) {
	_, err := Compile([]string{`[invalid`})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestCompile_Empty(t *testing.T) {
	patterns, err := Compile(nil)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(patterns) != 0 {
		t.Errorf("got %d patterns, want 0", len(patterns))
	}
}

func TestApply_SinglePattern(t *testing.T) {
	patterns, _ := Compile([]string{`(?i)token`})
	result := Apply("My API Token is abc123", patterns)
	want := "My API [REDACTED] is abc123"
	if result != want {
		t.Errorf("got %q, want %q", result, want)
	}
}

func TestApply_MultiplePatterns(t *testing.T) {
	patterns, _ := Compile([]string{`(?i)token`, `(?i)secret`})
	result := Apply("Token and Secret values", patterns)
	want := "[REDACTED] and [REDACTED] values"
	if result != want {
		t.Errorf("got %q, want %q", result, want)
	}
}

func TestApply_MultipleMatches(t *testing.T) {
	patterns, _ := Compile([]string{`(?i)password`})
	result := Apply("password is password", patterns)
	want := "[REDACTED] is [REDACTED]"
	if result != want {
		t.Errorf("got %q, want %q", result, want)
	}
}

func TestApply_NoMatch(t *testing.T) {
	patterns, _ := Compile([]string{`(?i)token`})
	text := "nothing to redact here"
	result := Apply(text, patterns)
	if result != text {
		t.Errorf("got %q, want unchanged", result)
	}
}

func TestApply_EmptyPatterns(t *testing.T) {
	text := "should not change"
	result := Apply(text, nil)
	if result != text {
		t.Errorf("got %q, want unchanged", result)
	}
}

func TestDefaultPatterns(t *testing.T) {
	patterns, err := Compile(DefaultPatterns)
	if err != nil {
		t.Fatalf("compile defaults: %v", err)
	}

	tests := []struct{ in, want string }{
		{"mail jane.doe@example.org today", "mail [REDACTED] today"},
		{"key sk-abcdefghijklmnopqrstuv end", "key [REDACTED] end"},
		{"Authorization: Bearer abc.def-123", "Authorization: [REDACTED]"},
		{"nothing here", "nothing here"},
	}
	for _, tt := range tests {
		if got := Apply(tt.in, patterns); got != tt.want {
			t.Errorf("Apply(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedacting(t *testing.T) {
	patterns, _ := Compile([]string{`(?i)secret\w*`})

	var seen string
	next := summarize.Func(func(_ context.Context, text string) (string, error) {
		seen = text
		return "summary", nil
	})

	got, err := Redacting(next, patterns).Summarize(t.Context(), "the secret_plan leaks")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "summary" {
		t.Errorf("got %q", got)
	}
	if seen != "the [REDACTED] leaks" {
		t.Errorf("inner summarizer saw %q", seen)
	}
}

func TestRedacting_NoPatternsPassesThrough(t *testing.T) {
	next := &summarize.HeuristicSummarizer{}
	if got := Redacting(next, nil); got != summarize.Summarizer(next) {
		t.Error("expected the wrapped summarizer to be returned unchanged")
	}
}
