package feed

import (
	"cmp"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"
	"golang.org/x/text/unicode/norm"
)

// Normalize maps a raw entry and its parent feed to a FeedItem. It never
// fails: invalid fields are left for the validator to reject.
func Normalize(entry *gofeed.Item, doc *gofeed.Feed, feedURL string) FeedItem {
	link := resolveLink(firstLink(entry), baseURL(doc, feedURL))

	item := FeedItem{
		GUID:         cmp.Or(strings.TrimSpace(entry.GUID), link),
		Title:        norm.NFC.String(strings.TrimSpace(entry.Title)),
		Link:         link,
		Published:    toUTC(entry.PublishedParsed),
		EntryUpdated: toUTC(entry.UpdatedParsed),
		Content:      selectContent(entry),
		Summary:      entry.Description,
		Author:       extractAuthor(entry),
		Categories:   normalizeCategories(entry.Categories),
		FeedURL:      feedURL,
	}

	if doc != nil {
		item.FeedTitle = doc.Title
		item.FeedDescription = doc.Description
		item.FeedLanguage = doc.Language
		item.FeedUpdated = toUTC(doc.UpdatedParsed)
		if doc.Image != nil {
			item.FeedIcon = doc.Image.URL
		}
	}

	return item
}

// selectContent prefers the full body over the summary.
func selectContent(entry *gofeed.Item) string {
	if strings.TrimSpace(entry.Content) != "" {
		return entry.Content
	}
	return entry.Description
}

func firstLink(entry *gofeed.Item) string {
	for _, l := range entry.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return strings.TrimSpace(entry.Link)
}

func baseURL(doc *gofeed.Feed, feedURL string) string {
	if doc != nil && isAbsoluteURL(doc.Link) {
		return doc.Link
	}
	return feedURL
}

// resolveLink keeps absolute links verbatim, joins relative ones against base
// and falls back to the raw string when neither works.
func resolveLink(raw, base string) string {
	if raw == "" || isAbsoluteURL(raw) {
		return raw
	}

	baseU, err := url.Parse(base)
	if err != nil || !baseU.IsAbs() {
		return raw
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	return baseU.ResolveReference(ref).String()
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs() && u.Host != ""
}

func toUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func extractAuthor(entry *gofeed.Item) string {
	for _, author := range entry.Authors {
		if author == nil {
			continue
		}
		if s := formatAuthor(author.Name, author.Email); s != "" {
			return s
		}
	}
	if entry.Author != nil {
		return formatAuthor(entry.Author.Name, entry.Author.Email)
	}
	return ""
}

func formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" && email != "" {
		return fmt.Sprintf("%s (%s)", email, name)
	} else if name != "" {
		return name
	} else if email != "" {
		return email
	}

	return ""
}

func normalizeCategories(categories []string) []string {
	if len(categories) == 0 {
		return nil
	}
	trimmed := lo.FilterMap(categories, func(c string, _ int) (string, bool) {
		c = strings.TrimSpace(c)
		return c, c != ""
	})
	return lo.Uniq(trimmed)
}
