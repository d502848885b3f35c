package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"

	"github.com/lysyi3m/feed-archiver/app/feed"
)

const (
	archiveTable = "archive"
	currentTable = "current_items"
)

var itemColumns = []string{
	"guid", "title", "link", "published", "entry_updated",
	"content", "summary", "full_content", "author", "categories",
	"feed_url", "feed_title", "feed_description", "feed_language", "feed_icon", "feed_updated",
}

var _ ItemStore = (*ItemRepository)(nil)

// ItemRepository owns the archive and current_items tables.
type ItemRepository struct {
	db  *DB
	now func() time.Time
}

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db, now: time.Now}
}

// Save inserts item into the archive unless its guid is already there, then
// overwrites the current row. The two writes are independent: a failure
// between them is repaired by the next save of the same guid. archived
// reports whether a new archive row was written.
func (r *ItemRepository) Save(ctx context.Context, item feed.FeedItem, fullContent string) (bool, error) {
	archived, err := r.insertArchive(ctx, item, fullContent)
	if err != nil {
		return false, err
	}

	if err := r.upsertCurrent(ctx, item, fullContent); err != nil {
		return archived, err
	}

	return archived, nil
}

func (r *ItemRepository) insertArchive(ctx context.Context, item feed.FeedItem, fullContent string) (bool, error) {
	ib := r.insertBuilder(archiveTable, "first_seen_at", item, fullContent)
	ib.SQL("ON CONFLICT (guid) DO NOTHING")

	query, args := ib.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert archive item %s: %w", item.GUID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read archive insert result: %w", err)
	}

	return n == 1, nil
}

func (r *ItemRepository) upsertCurrent(ctx context.Context, item feed.FeedItem, fullContent string) error {
	ib := r.insertBuilder(currentTable, "updated_at", item, fullContent)

	assignments := lo.FilterMap(append(itemColumns, "updated_at"), func(col string, _ int) (string, bool) {
		return col + " = excluded." + col, col != "guid"
	})
	ib.SQL("ON CONFLICT (guid) DO UPDATE SET " + strings.Join(assignments, ", "))

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert current item %s: %w", item.GUID, err)
	}

	return nil
}

func (r *ItemRepository) insertBuilder(table, storedColumn string, item feed.FeedItem, fullContent string) *sqlbuilder.InsertBuilder {
	ib := r.db.flavor.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(append(itemColumns, storedColumn)...)
	ib.Values(
		item.GUID, item.Title, item.Link, utcPtr(item.Published), utcPtr(item.EntryUpdated),
		item.Content, item.Summary, fullContent, item.Author, r.db.stringList(item.Categories),
		item.FeedURL, item.FeedTitle, item.FeedDescription, item.FeedLanguage, item.FeedIcon, utcPtr(item.FeedUpdated),
		r.now().UTC(),
	)
	return ib
}

// GetFullContent returns the full content stored in the current view, or ""
// when the guid has never been saved.
func (r *ItemRepository) GetFullContent(ctx context.Context, guid string) (string, error) {
	sb := r.db.flavor.NewSelectBuilder()
	sb.Select("full_content").From(currentTable).Where(sb.Equal("guid", guid))

	query, args := sb.Build()

	var fullContent string
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&fullContent)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get full content: %w", err)
	}

	return fullContent, nil
}

func (r *ItemRepository) GetArchived(ctx context.Context, guid string) (*Record, error) {
	return r.getRecord(ctx, archiveTable, "first_seen_at", guid)
}

func (r *ItemRepository) GetCurrent(ctx context.Context, guid string) (*Record, error) {
	return r.getRecord(ctx, currentTable, "updated_at", guid)
}

func (r *ItemRepository) getRecord(ctx context.Context, table, storedColumn, guid string) (*Record, error) {
	sb := r.db.flavor.NewSelectBuilder()
	sb.Select(append(itemColumns, storedColumn)...).From(table).Where(sb.Equal("guid", guid))

	query, args := sb.Build()

	var rec Record
	var published, entryUpdated, feedUpdated sql.NullTime
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&rec.GUID, &rec.Title, &rec.Link, &published, &entryUpdated,
		&rec.Content, &rec.Summary, &rec.FullContent, &rec.Author, r.db.stringListDest(&rec.Categories),
		&rec.FeedURL, &rec.FeedTitle, &rec.FeedDescription, &rec.FeedLanguage, &rec.FeedIcon, &feedUpdated,
		&rec.StoredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s item: %w", table, err)
	}

	rec.Published = nullTimePtr(published)
	rec.EntryUpdated = nullTimePtr(entryUpdated)
	rec.FeedUpdated = nullTimePtr(feedUpdated)

	return &rec, nil
}

func (r *ItemRepository) Stats(ctx context.Context) (ItemStats, error) {
	var stats ItemStats
	var err error

	if stats.Archived, err = r.count(ctx, archiveTable); err != nil {
		return ItemStats{}, err
	}
	if stats.Current, err = r.count(ctx, currentTable); err != nil {
		return ItemStats{}, err
	}

	return stats, nil
}

func (r *ItemRepository) count(ctx context.Context, table string) (int, error) {
	sb := r.db.flavor.NewSelectBuilder()
	sb.Select("COUNT(*)").From(table)

	query, args := sb.Build()

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s items: %w", table, err)
	}
	return count, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}
