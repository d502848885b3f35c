package content

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/lysyi3m/feed-archiver/app/feed"
)

// Elements that never carry article text.
const noiseSelector = "head, script, style, noscript, template, nav, header, footer, aside, form, iframe, embed, object, video, audio, canvas, svg"

var blockTag = regexp.MustCompile(`(?i)</?(p|div|br|li|ul|ol|h[1-6]|blockquote|pre|tr|td|th|section|article)\b[^>]*>`)

// Extractor turns a raw HTML page into plain article text.
type Extractor struct {
	sanitizer *feed.Sanitizer
}

func NewExtractor(sanitizer *feed.Sanitizer) *Extractor {
	return &Extractor{sanitizer: sanitizer}
}

// Run extracts the main article of page. The readability result is used when
// it has text, otherwise the cleaned page body.
func (e *Extractor) Run(page []byte, pageURL string) (string, error) {
	if len(page) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page)))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find(noiseSelector).Remove()

	cleaned, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to render cleaned HTML: %w", err)
	}

	var base *url.URL
	if u, err := url.Parse(pageURL); err == nil && u.IsAbs() {
		base = u
	}

	article, err := readability.FromReader(strings.NewReader(cleaned), base)
	if err == nil {
		if text := e.toText(article.Content); text != "" {
			slog.Debug("Content extracted", "url", pageURL, "title", article.Title, "content_length", len(text))
			return text, nil
		}
	} else {
		slog.Debug("Readability failed, using page body", "url", pageURL, "error", err)
	}

	body, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("failed to render page body: %w", err)
	}

	text := e.toText(body)
	if text == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	return text, nil
}

func (e *Extractor) toText(fragment string) string {
	// Keep words of adjacent blocks apart once the tags are stripped.
	spaced := blockTag.ReplaceAllStringFunc(fragment, func(tag string) string {
		return " " + tag + " "
	})
	return e.sanitizer.Text(spaced)
}
