package source

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// stripHTML returns the visible text of an HTML fragment with whitespace collapsed.
func stripHTML(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	text := s
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
		if err == nil {
			text = doc.Find("body").Text()
		}
	}
	return collapse(text)
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
