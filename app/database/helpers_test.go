package database

import (
	"testing"
	"time"

	"github.com/lysyi3m/feed-archiver/app/feed"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Expected no error opening database, got: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Expected no error running migrations, got: %v", err)
	}

	return db
}

func testItem(guid string) feed.FeedItem {
	published := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return feed.FeedItem{
		GUID:       guid,
		Title:      "Title " + guid,
		Link:       "https://example.com/" + guid,
		Published:  &published,
		Content:    "",
		Summary:    "Summary " + guid,
		Author:     "alice@example.com (Alice)",
		Categories: []string{"go", "feeds"},
		FeedURL:    "https://example.com/feed.xml",
		FeedTitle:  "Example",
	}
}
