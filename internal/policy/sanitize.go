package policy

import (
	"regexp"
	"strings"
)

var (
	urlPattern    = regexp.MustCompile(`https?://\S+`)
	htmlTagPattern = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeKeys are the result-field names body sanitization applies to.
var SanitizeKeys = map[string]bool{"body": true, "snippet": true}

// SanitizeBody strips URLs and HTML-like tags, collapses whitespace, trims,
// and truncates to maxChars. It is applied to string-valued "body" and
// "snippet" fields on a view=body read.
func SanitizeBody(s string, maxChars int) string {
	s = urlPattern.ReplaceAllString(s, "")
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > maxChars {
		s = string(runes[:maxChars])
	}
	return s
}

// SanitizeValue walks a result value (expected to be a map) and sanitizes
// any string-valued "body"/"snippet" keys in place, returning the
// (possibly replaced) value.
func SanitizeValue(data any, maxChars int) any {
	m, ok := data.(map[string]any)
	if !ok {
		return data
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if SanitizeKeys[k] {
			if s, ok := v.(string); ok {
				out[k] = SanitizeBody(s, maxChars)
				continue
			}
		}
		out[k] = v
	}
	return out
}
