package mime

import (
	"html"
	"regexp"
	"strings"
)

var (
	dropBlockRe = regexp.MustCompile(`(?is)<(script|style|head)\b[^>]*>.*?</(script|style|head)>`)
	breakTagRe  = regexp.MustCompile(`(?i)</?(p|div|br|hr|h[1-6]|li|tr|td|th|blockquote|pre|table|ul|ol)\b[^>]*>`)
	anyTagRe    = regexp.MustCompile(`<[^>]*>`)
)

// StripHTML renders an HTML body as plain text for previews: script, style
// and head content is dropped, block tags become line breaks, entities are
// decoded and blank-line runs collapse to one.
func StripHTML(s string) string {
	s = dropBlockRe.ReplaceAllString(s, "")
	s = breakTagRe.ReplaceAllString(s, "\n")
	s = anyTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\u00a0", " ").Replace(s)

	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
