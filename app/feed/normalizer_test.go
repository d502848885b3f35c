package feed

import (
	"context"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
)

const testRSS = `<?xml version="1.0"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <description>Test Description</description>
    <language>en-us</language>
    <lastBuildDate>Mon, 03 Jul 2023 12:00:00 GMT</lastBuildDate>
    <image>
      <url>https://example.com/icon.png</url>
      <title>Test Feed</title>
      <link>https://example.com</link>
    </image>
    <item>
      <title>  Test Item 1  </title>
      <link>https://example.com/item1</link>
      <description>Test Item 1 Description</description>
      <content:encoded><![CDATA[<p>Full body of item 1</p>]]></content:encoded>
      <guid>item-1</guid>
      <pubDate>Mon, 03 Jul 2023 10:00:00 +0200</pubDate>
      <author>test@example.com (Test Author)</author>
      <category>Technology</category>
      <category>Programming</category>
      <category>Technology</category>
    </item>
    <item>
      <title>Test Item 2</title>
      <link>https://example.com/item2</link>
      <guid>item-2</guid>
    </item>
  </channel>
</rss>`

func parseTestFeed(t *testing.T) *gofeed.Feed {
	t.Helper()
	doc, err := NewFetcher(nil, "test").Parse([]byte(testRSS))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	return doc
}

func TestNormalizeRSS2(t *testing.T) {
	doc := parseTestFeed(t)
	if len(doc.Items) != 2 {
		t.Fatalf("Expected 2 items, got: %d", len(doc.Items))
	}

	item := Normalize(doc.Items[0], doc, "https://example.com/feed.xml")

	if item.GUID != "item-1" {
		t.Errorf("Expected GUID 'item-1', got: %s", item.GUID)
	}
	if item.Title != "Test Item 1" {
		t.Errorf("Expected trimmed title 'Test Item 1', got: %q", item.Title)
	}
	if item.Link != "https://example.com/item1" {
		t.Errorf("Expected link 'https://example.com/item1', got: %s", item.Link)
	}
	if item.Content != "<p>Full body of item 1</p>" {
		t.Errorf("Expected full body as content, got: %q", item.Content)
	}
	if item.Summary != "Test Item 1 Description" {
		t.Errorf("Expected description as summary, got: %q", item.Summary)
	}
	if item.Author != "test@example.com (Test Author)" {
		t.Errorf("Expected author 'test@example.com (Test Author)', got: %s", item.Author)
	}
	if len(item.Categories) != 2 {
		t.Errorf("Expected 2 unique categories, got: %v", item.Categories)
	}

	if item.Published == nil {
		t.Fatal("Expected published time to be set")
	}
	if item.Published.Location() != time.UTC {
		t.Errorf("Expected published time in UTC, got: %v", item.Published.Location())
	}
	if item.Published.Hour() != 8 {
		t.Errorf("Expected published hour 8 UTC, got: %d", item.Published.Hour())
	}
	if item.EntryUpdated != nil {
		t.Errorf("Expected no updated time, got: %v", item.EntryUpdated)
	}

	if item.FeedURL != "https://example.com/feed.xml" {
		t.Errorf("Expected feed URL to be kept, got: %s", item.FeedURL)
	}
	if item.FeedTitle != "Test Feed" {
		t.Errorf("Expected feed title 'Test Feed', got: %s", item.FeedTitle)
	}
	if item.FeedLanguage != "en-us" {
		t.Errorf("Expected feed language 'en-us', got: %s", item.FeedLanguage)
	}
	if item.FeedIcon != "https://example.com/icon.png" {
		t.Errorf("Expected feed icon 'https://example.com/icon.png', got: %s", item.FeedIcon)
	}
	if item.FeedUpdated == nil {
		t.Error("Expected feed updated time to be set")
	}
}

func TestNormalizeWithoutContent(t *testing.T) {
	doc := parseTestFeed(t)

	item := Normalize(doc.Items[1], doc, "https://example.com/feed.xml")

	if item.Content != "" {
		t.Errorf("Expected empty content, got: %q", item.Content)
	}
	if item.Summary != "" {
		t.Errorf("Expected empty summary, got: %q", item.Summary)
	}
	if item.Published != nil {
		t.Errorf("Expected absent published time to stay absent, got: %v", item.Published)
	}
}

func TestNormalizeContentPrecedence(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		description string
		expected    string
	}{
		{"full body wins", "<p>body</p>", "teaser", "<p>body</p>"},
		{"blank body falls back to summary", "   ", "teaser", "teaser"},
		{"both absent", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &gofeed.Item{
				Title:       "Title",
				Link:        "https://example.com/a",
				Content:     tt.content,
				Description: tt.description,
			}
			item := Normalize(entry, &gofeed.Feed{}, "https://example.com/feed.xml")
			if item.Content != tt.expected {
				t.Errorf("Expected content %q, got: %q", tt.expected, item.Content)
			}
		})
	}
}

func TestNormalizeLinkResolution(t *testing.T) {
	tests := []struct {
		name     string
		entry    *gofeed.Item
		doc      *gofeed.Feed
		expected string
	}{
		{
			name:     "absolute link kept verbatim",
			entry:    &gofeed.Item{Link: "https://other.org/post?id=1"},
			doc:      &gofeed.Feed{Link: "https://example.com/blog/"},
			expected: "https://other.org/post?id=1",
		},
		{
			name:     "relative link joined with feed link",
			entry:    &gofeed.Item{Link: "posts/1"},
			doc:      &gofeed.Feed{Link: "https://example.com/blog/"},
			expected: "https://example.com/blog/posts/1",
		},
		{
			name:     "relative link joined with source URL",
			entry:    &gofeed.Item{Link: "/posts/2"},
			doc:      &gofeed.Feed{},
			expected: "https://example.com/posts/2",
		},
		{
			name:     "first of links wins",
			entry:    &gofeed.Item{Links: []string{"https://example.com/first", "https://example.com/second"}, Link: "https://example.com/link"},
			doc:      &gofeed.Feed{},
			expected: "https://example.com/first",
		},
		{
			name:     "unresolvable link kept raw",
			entry:    &gofeed.Item{Link: "not a url"},
			doc:      &gofeed.Feed{Link: "also not a url"},
			expected: "not a url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := Normalize(tt.entry, tt.doc, "https://example.com/feed.xml")
			if item.Link != tt.expected {
				t.Errorf("Expected link %q, got: %q", tt.expected, item.Link)
			}
		})
	}
}

func TestNormalizeGUIDFallsBackToLink(t *testing.T) {
	entry := &gofeed.Item{Title: "No guid", Link: "/posts/3"}
	item := Normalize(entry, &gofeed.Feed{Link: "https://example.com"}, "https://example.com/feed.xml")

	if item.GUID != "https://example.com/posts/3" {
		t.Errorf("Expected GUID to fall back to resolved link, got: %s", item.GUID)
	}
}

func TestNormalizeTitleNFC(t *testing.T) {
	// "e" followed by a combining acute accent
	entry := &gofeed.Item{Title: "Cafe\u0301", Link: "https://example.com/cafe"}
	item := Normalize(entry, nil, "https://example.com/feed.xml")

	if item.Title != "Caf\u00e9" {
		t.Errorf("Expected composed title, got: %q", item.Title)
	}
}

func TestFormatAuthor(t *testing.T) {
	tests := []struct {
		name, email, expected string
	}{
		{"John Doe", "john@example.com", "john@example.com (John Doe)"},
		{"John Doe", "", "John Doe"},
		{"", "john@example.com", "john@example.com"},
		{"", "", ""},
	}

	for _, tt := range tests {
		if got := formatAuthor(tt.name, tt.email); got != tt.expected {
			t.Errorf("Expected %q, got: %q", tt.expected, got)
		}
	}
}

func TestNormalizeFromFetcher(t *testing.T) {
	server := newFeedServer(t, testRSS)

	doc, err := NewFetcher(NewHTTPClient(5*time.Second), "test").Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	item := Normalize(doc.Items[1], doc, server.URL)
	if item.FeedURL != server.URL {
		t.Errorf("Expected feed URL %s, got: %s", server.URL, item.FeedURL)
	}
}
