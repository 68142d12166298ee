// Package privacy scrubs text before it leaves the process, typically on
// its way to a hosted summarizer.
package privacy

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ppiankov/researchpulse/internal/summarize"
)

const redactedPlaceholder = "[REDACTED]"

// DefaultPatterns covers e-mail addresses and common API key shapes.
var DefaultPatterns = []string{
	`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
	`\bsk-[A-Za-z0-9_-]{16,}\b`,
	`(?i)\bbearer\s+[A-Za-z0-9._~+/-]+=*`,
}

// Compile compiles a list of regex pattern strings into compiled regexps.
// Returns an error if any pattern is invalid.
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Apply replaces all matches of the compiled patterns in text with [REDACTED].
func Apply(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		text = re.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

// Redacting wraps next so every input is scrubbed before next sees it.
// With no patterns it returns next unchanged.
func Redacting(next summarize.Summarizer, patterns []*regexp.Regexp) summarize.Summarizer {
	if len(patterns) == 0 {
		return next
	}
	return summarize.Func(func(ctx context.Context, text string) (string, error) {
		return next.Summarize(ctx, Apply(text, patterns))
	})
}
