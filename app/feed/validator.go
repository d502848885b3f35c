package feed

import (
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lysyi3m/feed-archiver/app/metrics"
)

const (
	MaxTitleLength   = 1024
	MaxSummaryLength = 200_000
	MaxContentLength = 500_000
)

type Validator struct {
	sanitizer *Sanitizer
	sink      metrics.Sink
}

func NewValidator(sanitizer *Sanitizer, sink metrics.Sink) *Validator {
	return &Validator{
		sanitizer: sanitizer,
		sink:      sink,
	}
}

// Run checks item against the field rules and returns a sanitized copy.
// Limits apply to the raw text; sanitization only happens once every rule passed.
// A title that is nothing but markup is rejected once sanitized.
func (v *Validator) Run(item FeedItem) (FeedItem, error) {
	if err := v.check(&item); err != nil {
		return FeedItem{}, v.reject(item, err)
	}

	v.sanitize(&item)
	if item.Title == "" {
		return FeedItem{}, v.reject(item, &ValidationError{Reason: ReasonEmptyTitle, GUID: item.GUID, Detail: "no text after sanitization"})
	}

	v.sink.ValidationPassed()

	return item, nil
}

func (v *Validator) reject(item FeedItem, err *ValidationError) error {
	v.sink.ValidationRejected(string(err.Reason))
	slog.Warn("Item rejected", "feed", item.FeedURL, "guid", item.GUID, "reason", err.Reason, "detail", err.Detail)
	return err
}

func (v *Validator) check(item *FeedItem) *ValidationError {
	reject := func(reason Reason, detail string) *ValidationError {
		return &ValidationError{Reason: reason, GUID: item.GUID, Detail: detail}
	}

	item.Title = strings.TrimSpace(item.Title)
	if item.Title == "" {
		return reject(ReasonEmptyTitle, "")
	}
	if n := utf8.RuneCountInString(item.Title); n > MaxTitleLength {
		return reject(ReasonTitleTooLong, lengthDetail(n, MaxTitleLength))
	}

	item.Summary = strings.TrimSpace(item.Summary)
	if n := utf8.RuneCountInString(item.Summary); n > MaxSummaryLength {
		return reject(ReasonSummaryTooLong, lengthDetail(n, MaxSummaryLength))
	}

	item.Content = strings.TrimSpace(item.Content)
	if n := utf8.RuneCountInString(item.Content); n > MaxContentLength {
		return reject(ReasonContentTooLong, lengthDetail(n, MaxContentLength))
	}

	if !isAbsoluteURL(item.Link) {
		return reject(ReasonInvalidLink, item.Link)
	}

	if strings.TrimSpace(item.GUID) == "" {
		return reject(ReasonMissingGUID, "")
	}

	return nil
}

func (v *Validator) sanitize(item *FeedItem) {
	item.Title = v.sanitizer.Text(item.Title)
	item.Summary = v.sanitizer.Text(item.Summary)
	item.Content = v.sanitizer.Text(item.Content)
	item.Author = v.sanitizer.Text(item.Author)
	item.FeedTitle = v.sanitizer.Text(item.FeedTitle)
	item.FeedDescription = v.sanitizer.Text(item.FeedDescription)

	if len(item.Categories) > 0 {
		categories := make([]string, 0, len(item.Categories))
		for _, c := range item.Categories {
			if c = v.sanitizer.Text(c); c != "" {
				categories = append(categories, c)
			}
		}
		item.Categories = categories
	}
}

func lengthDetail(got, limit int) string {
	return strconv.Itoa(got) + " > " + strconv.Itoa(limit) + " characters"
}
