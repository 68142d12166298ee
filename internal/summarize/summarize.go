// Package summarize turns a block of text into a short digest. Callers treat
// a Summarizer as opaque: the heuristic and LLM implementations are
// interchangeable.
package summarize

import (
	"context"
	"fmt"
)

// Summarizer produces a summary of text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Func adapts an ordinary function to the Summarizer interface.
type Func func(ctx context.Context, text string) (string, error)

func (f Func) Summarize(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// SummarizeError reports a summarizer that could not produce output.
type SummarizeError struct {
	Backend string
	Err     error
}

func (e *SummarizeError) Error() string {
	return fmt.Sprintf("summarize (%s): %v", e.Backend, e.Err)
}

func (e *SummarizeError) Unwrap() error { return e.Err }
