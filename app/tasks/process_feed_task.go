package tasks

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/feed-archiver/app/database"
	"github.com/lysyi3m/feed-archiver/app/enrich"
	"github.com/lysyi3m/feed-archiver/app/feed"
	"github.com/lysyi3m/feed-archiver/app/metrics"
)

// FeedResult holds the counters of one feed task.
type FeedResult struct {
	Feed           string        `json:"feed"`
	Error          string        `json:"error,omitempty"`
	FetchDuration  time.Duration `json:"fetch_duration"`
	Entries        int           `json:"entries"`
	Persisted      int           `json:"persisted"`
	Archived       int           `json:"archived"`
	Rejected       int           `json:"rejected"`
	PersistErrors  int           `json:"persist_errors"`
	EnrichAttempts int           `json:"enrich_attempts"`
	EnrichFailures int           `json:"enrich_failures"`
}

type ProcessFeedTask struct {
	Task
	FeedConfig *feed.Config
	Result     FeedResult
	source     feed.Source
	validator  *feed.Validator
	enricher   Enricher
	itemRepo   database.ItemStore
	sink       metrics.Sink
}

// NewProcessFeedTask builds the task for one feed. enricher may be nil, in
// which case entries keep the content their feed supplied.
func NewProcessFeedTask(feedConfig *feed.Config, source feed.Source, validator *feed.Validator, enricher Enricher, itemRepo database.ItemStore, sink metrics.Sink) *ProcessFeedTask {
	if !feedConfig.ExtractsContent() {
		enricher = nil
	}
	return &ProcessFeedTask{
		Task:       NewTask(TaskTypeProcessFeed, feedConfig.Name),
		FeedConfig: feedConfig,
		Result:     FeedResult{Feed: feedConfig.Name},
		source:     source,
		validator:  validator,
		enricher:   enricher,
		itemRepo:   itemRepo,
		sink:       sink,
	}
}

// Execute fetches the feed and runs every entry through validation,
// enrichment and persistence, one entry at a time. Only a feed that cannot be
// fetched or parsed makes it return an error; entry failures are counted.
func (t *ProcessFeedTask) Execute(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, t.FeedConfig.GetTimeout())
	fetchStart := time.Now()
	doc, err := t.source.Fetch(fetchCtx, t.FeedConfig.URL)
	cancel()
	t.Result.FetchDuration = time.Since(fetchStart)

	if err != nil {
		t.Result.Error = err.Error()
		t.sink.FeedFetchFailed()
		return err
	}
	t.sink.FeedFetched(t.Result.FetchDuration)

	for _, entry := range doc.Items {
		if entry == nil {
			continue
		}
		t.Result.Entries++
		t.processEntry(ctx, feed.Normalize(entry, doc, t.FeedConfig.URL))
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"entries", t.Result.Entries,
		"persisted", t.Result.Persisted,
		"new", t.Result.Archived,
		"rejected", t.Result.Rejected,
		"errors", t.Result.PersistErrors)

	return nil
}

func (t *ProcessFeedTask) processEntry(ctx context.Context, item feed.FeedItem) {
	valid, err := t.validator.Run(item)
	if err != nil {
		var validationErr *feed.ValidationError
		if !errors.As(err, &validationErr) {
			slog.Error("Unexpected validation error", "feed", t.FeedName, "guid", item.GUID, "error", err)
		}
		t.Result.Rejected++
		t.sink.EntryProcessed("rejected")
		return
	}

	fullContent := t.resolveFullContent(ctx, valid)

	archived, err := t.itemRepo.Save(ctx, valid, fullContent)
	if err != nil {
		slog.Error("Failed to persist item", "feed", t.FeedName, "guid", valid.GUID, "error", err)
		t.Result.PersistErrors++
		t.sink.Persistence("error")
		t.sink.EntryProcessed("error")
		return
	}

	t.Result.Persisted++
	if archived {
		t.Result.Archived++
	}
	t.sink.Persistence("ok")
	t.sink.EntryProcessed("persisted")
}

// resolveFullContent picks the body stored alongside the feed content: the
// live page when it was fetched, the feed content when the fetch failed, else
// the feed content or what an earlier cycle stored for the same guid.
func (t *ProcessFeedTask) resolveFullContent(ctx context.Context, item feed.FeedItem) string {
	if t.enricher != nil {
		outcome := t.enricher.Run(ctx, item)
		if outcome.Attempted() {
			t.Result.EnrichAttempts++
		}
		switch outcome.Status {
		case enrich.StatusEnriched:
			return outcome.Content
		case enrich.StatusFailed:
			t.Result.EnrichFailures++
			return item.Content
		}
	}

	if strings.TrimSpace(item.Content) != "" {
		return item.Content
	}

	stored, err := t.itemRepo.GetFullContent(ctx, item.GUID)
	if err != nil {
		slog.Warn("Failed to read stored content", "feed", t.FeedName, "guid", item.GUID, "error", err)
		return ""
	}
	return stored
}
