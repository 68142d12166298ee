package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultEndpoint  = "https://api.openai.com/v1/chat/completions"
	DefaultMaxTokens = 1024
	httpTimeout      = 60 * time.Second

	responseOpen  = "<RESPONSE>"
	responseClose = "</RESPONSE>"
)

// Prompt is the instruction pair sent with every request.
type Prompt struct {
	System string
	// Prefix is prepended to the user text, separated by a blank line.
	Prefix string
}

// SourcePrompt asks for a bullet summary of one source's recent items.
var SourcePrompt = Prompt{
	System: `You are an expert AI engineer and researcher. Summarize the following
recent developments from this source in concise language suitable for a
technical audience. Highlight key advancements and trends as a bullet list.

Return the summary and bullets within the following XML tags:
<RESPONSE></RESPONSE>`,
	Prefix: "Please summarize the following recent developments:",
}

// OverviewPrompt asks for a cross-source roundup.
var OverviewPrompt = Prompt{
	System: `You are a research coordinator sharing the recent developments across
several sources. Produce a three sentence overview titled "Research Roundup"
followed by a concise markdown bullet list. For each source give ONE line that
captures what to check out next, and note which categories apply:
Tools & Technologies, Foundational Knowledge, Risks & Governance.
Keep it crisp and scannable.

Return the overview and bullets within the following XML tags:
<RESPONSE></RESPONSE>`,
}

// LLMOptions configures an LLMSummarizer.
type LLMOptions struct {
	Endpoint  string
	APIKey    string
	Model     string
	MaxTokens int
	Prompt    Prompt
	Timeout   time.Duration
	Logger    *slog.Logger
}

// LLMSummarizer sends text to an OpenAI-compatible chat completions API.
// When a fallback is set, any failure is logged and the fallback answers.
type LLMSummarizer struct {
	apiKey    string
	model     string
	maxTokens int
	endpoint  string
	prompt    Prompt
	fallback  Summarizer
	client    *http.Client
	logger    *slog.Logger
}

// NewLLM creates an LLM summarizer. fallback may be nil.
func NewLLM(opts LLMOptions, fallback Summarizer) *LLMSummarizer {
	s := &LLMSummarizer{
		apiKey:    opts.APIKey,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		endpoint:  opts.Endpoint,
		prompt:    opts.Prompt,
		fallback:  fallback,
		client:    &http.Client{Timeout: opts.Timeout},
		logger:    opts.Logger,
	}
	if s.endpoint == "" {
		s.endpoint = DefaultEndpoint
	}
	if s.maxTokens <= 0 {
		s.maxTokens = DefaultMaxTokens
	}
	if s.client.Timeout <= 0 {
		s.client.Timeout = httpTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Summarize calls the API and returns the text inside the RESPONSE tags, or
// the whole reply when the model omitted them.
func (l *LLMSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	out, err := l.callAPI(ctx, text)
	if err == nil {
		return out, nil
	}
	if l.fallback == nil || ctx.Err() != nil {
		return "", &SummarizeError{Backend: "llm", Err: err}
	}
	l.logger.Warn("llm summarize failed, using fallback", "model", l.model, "error", err)
	return l.fallback.Summarize(ctx, text)
}

func (l *LLMSummarizer) callAPI(ctx context.Context, text string) (string, error) {
	user := text
	if l.prompt.Prefix != "" {
		user = l.prompt.Prefix + "\n\n" + text
	}

	messages := make([]chatMessage, 0, 2)
	if l.prompt.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: l.prompt.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	body, err := json.Marshal(chatRequest{Model: l.model, Messages: messages, MaxTokens: l.maxTokens})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", errors.New("empty choices in response")
	}

	out := extractResponse(chatResp.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("empty completion")
	}
	return out, nil
}

// extractResponse returns the trimmed text between the RESPONSE tags, or the
// whole trimmed content when the tags are missing.
func extractResponse(content string) string {
	start := strings.Index(content, responseOpen)
	end := strings.LastIndex(content, responseClose)
	if start == -1 || end == -1 || end < start {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(content[start+len(responseOpen) : end])
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}
