package gemini

import (
	"regexp"
	"strings"

	"jaytaylor.com/html2text"
)

const (
	// Prompt body limits. Batch mode packs many emails into one
	// prompt, so each gets a tighter slice; single mode keeps more
	// signal for the richer reply suggestion.
	batchBodyLimit  = 600
	singleBodyLimit = 1500
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

var htmlToTextOpts = html2text.Options{TextOnly: true}

// sanitizeBody reduces an email body to classification signal: markup
// stripped, URLs collapsed to a placeholder, whitespace collapsed, and
// the result truncated to limit characters. This caps backend cost and
// keeps prompts within size limits.
func sanitizeBody(body string, limit int) string {
	text := body
	if strings.Contains(text, "<") {
		if converted, err := html2text.FromString(text, htmlToTextOpts); err == nil {
			text = converted
		} else {
			text = tagPattern.ReplaceAllString(text, " ")
		}
	}

	text = urlPattern.ReplaceAllString(text, "[link]")
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if runes := []rune(text); len(runes) > limit {
		text = string(runes[:limit])
	}
	return text
}
