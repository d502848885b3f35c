package feed

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips markup from text fields. Script and style bodies are
// dropped together with their tags.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// maxDecodeRounds bounds how many layers of entity encoding are peeled off.
const maxDecodeRounds = 4

// Text returns s without any markup, entities decoded and whitespace collapsed.
// Markup that only appears after decoding entities is stripped as well.
func (s *Sanitizer) Text(text string) string {
	if text == "" {
		return ""
	}

	stripped := text
	stable := false
	for range maxDecodeRounds {
		next := html.UnescapeString(s.policy.Sanitize(stripped))
		if next == stripped {
			stable = true
			break
		}
		stripped = next
	}
	if !stable {
		// still decoding into markup: keep the remaining layers escaped
		stripped = s.policy.Sanitize(stripped)
	}

	return strings.Join(strings.Fields(stripped), " ")
}
