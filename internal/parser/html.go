package parser

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	textPolicy = bluemonday.StrictPolicy()

	// Tags that end a visual line; replaced by a newline before sanitizing so
	// adjacent blocks do not run together.
	lineBreakTags = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|h[1-6]|li|tr|table|blockquote|pre)\s*>`)
)

// RenderHTML reduces an HTML body to readable plain text
func RenderHTML(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}

	text := lineBreakTags.ReplaceAllString(body, "\n")
	text = html.UnescapeString(textPolicy.Sanitize(text))

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if fields := strings.Fields(line); len(fields) > 0 {
			lines = append(lines, strings.Join(fields, " "))
		}
	}
	return strings.Join(lines, "\n")
}
