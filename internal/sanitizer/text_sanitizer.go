// Package sanitizer turns user supplied strings into plain, single-line text
// before they are stored or forwarded to the lyrics model.
package sanitizer

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer strips markup and normalizes whitespace
type TextSanitizer interface {
	Sanitize(input string) string
}

// DefaultTextSanitizer implements TextSanitizer using bluemonday's strict policy
type DefaultTextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer creates a sanitizer that allows no HTML at all
func NewTextSanitizer() *DefaultTextSanitizer {
	return &DefaultTextSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize removes tags (and script/style bodies), decodes entities, drops
// control characters and collapses runs of whitespace.
func (s *DefaultTextSanitizer) Sanitize(input string) string {
	if input == "" {
		return ""
	}

	stripped := html.UnescapeString(s.policy.Sanitize(input))

	var b strings.Builder
	b.Grow(len(stripped))
	space := false
	for _, r := range stripped {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsControl(r):
			continue
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
