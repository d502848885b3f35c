// Package enrich decides per entry whether the live article page is fetched
// and keeps the cooldown and failure bookkeeping of those fetches.
package enrich

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/feed-archiver/app/content"
	"github.com/lysyi3m/feed-archiver/app/database"
	"github.com/lysyi3m/feed-archiver/app/feed"
	"github.com/lysyi3m/feed-archiver/app/metrics"
)

type Status string

const (
	StatusHasContent  Status = "has_content"
	StatusDisabled    Status = "disabled"
	StatusCoolingDown Status = "cooling_down"
	StatusEnriched    Status = "enriched"
	StatusFailed      Status = "failed"
)

var errBlankContent = errors.New("live page has no content")

// DefaultCooldown is the minimum time between two fetches of the same entry.
const DefaultCooldown = 24 * time.Hour

// Outcome is the result of running the gate for one item. Content holds the
// fetched text when Status is StatusEnriched, otherwise the feed content.
type Outcome struct {
	Status           Status
	Content          string
	FailedFetchCount int
	Err              error
}

// Attempted reports whether the live fetcher was called.
func (o Outcome) Attempted() bool {
	return o.Status == StatusEnriched || o.Status == StatusFailed
}

type Options struct {
	Cooldown time.Duration

	// MaxFailures disables an entry once its failure count reaches it. Zero never disables.
	MaxFailures int

	Now func() time.Time
}

type Gate struct {
	store   database.FetchStateStore
	fetcher content.Fetcher
	sink    metrics.Sink
	opts    Options
}

func NewGate(store database.FetchStateStore, fetcher content.Fetcher, sink metrics.Sink, opts Options) *Gate {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{
		store:   store,
		fetcher: fetcher,
		sink:    sink,
		opts:    opts,
	}
}

// Run fetches the live page of item when its own content is blank and the
// entry is not cooling down. State store failures never stop the item: a
// failed read counts as never attempted and failed writes are only logged.
func (g *Gate) Run(ctx context.Context, item feed.FeedItem) Outcome {
	outcome := g.run(ctx, item)
	g.sink.Enrichment(string(outcome.Status))
	return outcome
}

func (g *Gate) run(ctx context.Context, item feed.FeedItem) Outcome {
	if strings.TrimSpace(item.Content) != "" {
		return Outcome{Status: StatusHasContent, Content: item.Content}
	}

	fallback := Outcome{Content: item.Content}

	state, err := g.store.Get(ctx, item.GUID)
	if err != nil {
		slog.Warn("Failed to read fetch state, treating as never attempted", "guid", item.GUID, "error", err)
		state = nil
	}

	now := g.opts.Now().UTC()
	cutoff := now.Add(-g.opts.Cooldown)

	if state != nil {
		fallback.FailedFetchCount = state.FailedFetchCount

		if state.Disabled {
			fallback.Status = StatusDisabled
			return fallback
		}
		if state.LastFetchAttempt != nil && !state.LastFetchAttempt.Before(cutoff) {
			fallback.Status = StatusCoolingDown
			return fallback
		}
	}

	claimed, err := g.store.Claim(ctx, item.GUID, now, cutoff)
	if err != nil {
		slog.Error("Failed to record fetch attempt", "guid", item.GUID, "error", err)
	} else if !claimed {
		slog.Debug("Fetch attempt already claimed", "guid", item.GUID)
		fallback.Status = StatusCoolingDown
		return fallback
	}

	text, fetchErr := g.fetcher.FetchAndClean(ctx, item.Link)
	if fetchErr == nil && strings.TrimSpace(text) != "" {
		if err := g.store.RecordSuccess(ctx, item.GUID, now); err != nil {
			slog.Error("Failed to record fetch success", "guid", item.GUID, "error", err)
		}
		slog.Debug("Entry enriched", "guid", item.GUID, "url", item.Link, "content_length", len(text))
		return Outcome{Status: StatusEnriched, Content: text}
	}

	if fetchErr == nil {
		fetchErr = errBlankContent
	}

	fallback.Status = StatusFailed
	fallback.Err = fetchErr

	count, err := g.store.RecordFailure(ctx, item.GUID, now)
	if err != nil {
		slog.Error("Failed to record fetch failure", "guid", item.GUID, "error", err)
		fallback.FailedFetchCount++
		return fallback
	}
	fallback.FailedFetchCount = count

	slog.Warn("Failed to enrich entry", "guid", item.GUID, "url", item.Link, "failures", count, "error", fetchErr)

	if g.opts.MaxFailures > 0 && count >= g.opts.MaxFailures {
		if err := g.store.Disable(ctx, item.GUID); err != nil {
			slog.Error("Failed to disable fetch state", "guid", item.GUID, "error", err)
		} else {
			slog.Info("Enrichment disabled after repeated failures", "guid", item.GUID, "failures", count)
		}
	}

	return fallback
}
