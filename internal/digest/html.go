package digest

import (
	"html/template"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/ppiankov/researchpulse/internal/pulse"
)

var (
	boldRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdLinkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	bulletRe = regexp.MustCompile(`^\s*(?:[-*]|\d+\.)\s+`)
)

var pageTmpl = template.Must(template.New("page").Funcs(template.FuncMap{
	"md":   renderMarkdown,
	"safe": safeURL,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Research Pulse {{.GeneratedAt.Format "2006-01-02"}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; max-width: 880px; margin: 2rem auto; padding: 0 1rem; color: #1f2328; line-height: 1.5; }
header p { color: #59636e; }
.overview { background: #f6f8fa; border-radius: 8px; padding: 1rem 1.5rem; }
.source { border: 1px solid #d1d9e0; border-radius: 8px; margin: 1.5rem 0; padding: 1rem 1.5rem; }
.source img.banner { width: 100%; max-height: 160px; object-fit: cover; border-radius: 6px; }
.source .description { color: #59636e; font-style: italic; }
.degraded { border-color: #d29922; }
.error { color: #9a6700; font-size: 0.9em; }
.items li { margin-bottom: 0.5rem; }
.date { color: #59636e; font-size: 0.85em; }
</style>
</head>
<body>
<header>
<h1>Research Pulse</h1>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}} &middot; last {{.DaysBack}} day(s)</p>
</header>
<section class="overview">
{{md .Overview}}
</section>
{{range .Sources}}
<section class="source{{if .Degraded}} degraded{{end}}" id="{{.Name}}">
{{with .BannerURL}}{{with safe .}}<img class="banner" src="{{.}}" alt="">{{end}}{{end}}
<h2>{{with safe .SourceURL}}<a href="{{.}}">{{end}}{{.Name}}{{with safe .SourceURL}}</a>{{end}}</h2>
{{with .Description}}<p class="description">{{.}}</p>{{end}}
{{if .Degraded}}<p class="error">Problem: {{.Error}}</p>{{end}}
<div class="summary">
{{md .Summary}}
</div>
{{if .Items}}
<ul class="items">
{{range .Items}}<li>{{with safe .Link}}<a href="{{.}}">{{end}}<strong>{{.Title}}</strong>{{with safe .Link}}</a>{{end}} <span class="date">{{.Published}}</span>{{with .Summary}}<br>{{.}}{{end}}</li>
{{end}}</ul>
{{end}}
</section>
{{end}}
</body>
</html>
`))

// HTMLFormatter writes a standalone HTML page.
type HTMLFormatter struct{}

// NewHTML creates an HTML formatter.
func NewHTML() *HTMLFormatter {
	return &HTMLFormatter{}
}

// Format writes the report as an HTML page to w.
func (f *HTMLFormatter) Format(w io.Writer, report pulse.Report) error {
	return pageTmpl.Execute(w, report)
}

// safeURL returns u when it is an absolute http(s) URL, otherwise "".
func safeURL(u string) string {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ""
	}
	return parsed.String()
}

// renderMarkdown converts the small markdown subset summaries use (headings,
// bullets, bold and links) into escaped HTML.
func renderMarkdown(s string) template.HTML {
	var b strings.Builder
	inList := false
	closeList := func() {
		if inList {
			b.WriteString("</ul>\n")
			inList = false
		}
	}

	for line := range strings.SplitSeq(s, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "" || trimmed == "---":
			closeList()
		case strings.HasPrefix(trimmed, "#"):
			closeList()
			level := min(len(trimmed)-len(strings.TrimLeft(trimmed, "#"))+2, 6)
			text := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			tag := "h" + string(rune('0'+level))
			b.WriteString("<" + tag + ">" + inline(text) + "</" + tag + ">\n")
		case bulletRe.MatchString(trimmed):
			if !inList {
				b.WriteString("<ul>\n")
				inList = true
			}
			b.WriteString("<li>" + inline(bulletRe.ReplaceAllString(trimmed, "")) + "</li>\n")
		default:
			closeList()
			b.WriteString("<p>" + inline(trimmed) + "</p>\n")
		}
	}
	closeList()
	return template.HTML(b.String())
}

// inline escapes text, then restores bold spans and http(s) links.
func inline(s string) string {
	var out strings.Builder
	last := 0
	for _, m := range mdLinkRe.FindAllStringSubmatchIndex(s, -1) {
		out.WriteString(emphasize(s[last:m[0]]))
		label, href := s[m[2]:m[3]], s[m[4]:m[5]]
		if u := safeURL(href); u != "" {
			out.WriteString(`<a href="` + template.HTMLEscapeString(u) + `">` + emphasize(label) + `</a>`)
		} else {
			out.WriteString(emphasize(s[m[0]:m[1]]))
		}
		last = m[1]
	}
	out.WriteString(emphasize(s[last:]))
	return out.String()
}

func emphasize(s string) string {
	return boldRe.ReplaceAllString(template.HTMLEscapeString(s), "<strong>$1</strong>")
}
