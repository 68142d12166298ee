package summarize

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var (
	urlRe      = regexp.MustCompile(`https?://[^\s)\]]+`)
	cveRe      = regexp.MustCompile(`CVE-\d{4}-\d{4,}`)
	versionRe  = regexp.MustCompile(`v?\d+\.\d+\.\d+`)
	mdLinkRe   = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	itemLineRe = regexp.MustCompile(`^[-*]\s+\*\*(.+?)\*\*`)
)

const (
	maxBullets       = 3
	maxItemBullets   = 5
	maxFirstSentence = 120
)

var alertKeywords = []string{"breaking change", "deprecated", "removed", "vulnerability", "release"}

// Summary is the structured result of heuristic extraction.
type Summary struct {
	Bullets []string
	Links   []string
	CVEs    []string
}

// String renders the bullets as a markdown list.
func (s Summary) String() string {
	lines := make([]string, len(s.Bullets))
	for i, b := range s.Bullets {
		lines[i] = "- " + b
	}
	return strings.Join(lines, "\n")
}

// HeuristicSummarizer summarizes text using rule-based extraction. It
// never fails and needs no network.
type HeuristicSummarizer struct{}

// Summarize renders Extract as a bullet list.
func (h *HeuristicSummarizer) Summarize(_ context.Context, text string) (string, error) {
	return h.Extract(text).String(), nil
}

// Extract pulls key points, URLs and CVE IDs from text. Rendered item lists
// ("- **title**: ...") yield one bullet per title; free text yields its
// first sentence, an alert sentence and a metadata line.
func (h *HeuristicSummarizer) Extract(text string) Summary {
	text = strings.TrimSpace(text)

	links := urlRe.FindAllString(text, -1)
	cves := cveRe.FindAllString(text, -1)

	if titles := itemTitles(text); len(titles) > 0 {
		bullets := titles
		if len(bullets) > maxItemBullets {
			rest := len(bullets) - maxItemBullets
			bullets = append(bullets[:maxItemBullets:maxItemBullets], fmt.Sprintf("and %d more", rest))
		}
		return Summary{Bullets: bullets, Links: links, CVEs: cves}
	}

	plain := strings.TrimSpace(mdLinkRe.ReplaceAllString(text, "$1"))
	versions := versionRe.FindAllString(plain, -1)

	var bullets []string

	first := firstSentence(plain, maxFirstSentence)
	if first == "" {
		first = "(empty)"
	}
	bullets = append(bullets, first)

	if sent := findSentenceContaining(plain, alertKeywords); sent != "" && sent != first {
		bullets = append(bullets, sent)
	}

	if len(bullets) < maxBullets {
		switch {
		case len(cves) > 0:
			bullets = append(bullets, "CVE: "+strings.Join(cves, ", "))
		case len(versions) > 0:
			bullets = append(bullets, "Versions: "+strings.Join(versions, ", "))
		case len(links) > 3:
			bullets = append(bullets, fmt.Sprintf("%d links included", len(links)))
		}
	}

	return Summary{Bullets: bullets, Links: links, CVEs: cves}
}

// itemTitles returns the bold titles of markdown item lines, in order.
func itemTitles(text string) []string {
	var titles []string
	for line := range strings.SplitSeq(text, "\n") {
		if m := itemLineRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			titles = append(titles, clip(strings.TrimSpace(m[1]), maxFirstSentence))
		}
	}
	return titles
}

// firstSentence returns text up to the first sentence boundary, capped at maxLen.
func firstSentence(text string, maxLen int) string {
	if text == "" {
		return ""
	}

	end := len(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		end = idx
	}
	for i := 0; i < end-1; i++ {
		if text[i] == '.' && (text[i+1] == ' ' || text[i+1] == '\n') {
			end = i + 1
			break
		}
	}
	if end > maxLen {
		// Cut at the last space before maxLen to avoid splitting words.
		if idx := strings.LastIndexByte(text[:maxLen], ' '); idx > 0 {
			return text[:idx] + "..."
		}
		return clip(text, maxLen)
	}
	return strings.TrimSpace(text[:end])
}

// findSentenceContaining returns the first sentence that contains any keyword.
func findSentenceContaining(text string, keywords []string) string {
	for _, sent := range splitSentences(text) {
		lower := strings.ToLower(sent)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return clip(sent, maxFirstSentence)
			}
		}
	}
	return ""
}

// splitSentences splits text into sentences by ". " or newline boundaries.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])
		switch {
		case text[i] == '\n':
			flush()
		case text[i] == '.' && i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\n'):
			flush()
		}
	}
	flush()
	return sentences
}

// clip shortens s to at most n runes, marking the cut with "...".
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
