package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/feed-archiver/app/database"
	"github.com/lysyi3m/feed-archiver/app/feed"
	"github.com/lysyi3m/feed-archiver/app/metrics"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// CycleResult aggregates the feed results of one ingestion cycle.
type CycleResult struct {
	ID              string        `json:"id"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	Feeds           int           `json:"feeds"`
	FeedFailures    int           `json:"feed_failures"`
	Entries         int           `json:"entries"`
	Persisted       int           `json:"persisted"`
	Archived        int           `json:"archived"`
	Rejected        int           `json:"rejected"`
	PersistErrors   int           `json:"persist_errors"`
	EnrichAttempts  int           `json:"enrich_attempts"`
	EnrichFailures  int           `json:"enrich_failures"`
	AvgFetchSeconds float64       `json:"avg_fetch_seconds"`
	Results         []FeedResult  `json:"results"`
}

type SchedulerOptions struct {
	Interval           time.Duration
	MaxConcurrentFeeds int // 0 runs every feed at once
	FeedURLs           []string
}

type Scheduler struct {
	configCache *feed.ConfigCache
	source      feed.Source
	validator   *feed.Validator
	enricher    Enricher
	itemRepo    database.ItemStore
	sink        metrics.Sink
	opts        SchedulerOptions
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	mu   sync.RWMutex
	last *CycleResult
}

func NewScheduler(configCache *feed.ConfigCache, source feed.Source, validator *feed.Validator,
	enricher Enricher, itemRepo database.ItemStore, sink metrics.Sink, opts SchedulerOptions) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		configCache: configCache,
		source:      source,
		validator:   validator,
		enricher:    enricher,
		itemRepo:    itemRepo,
		sink:        sink,
		opts:        opts,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start runs a cycle immediately and then one interval after each cycle
// completes, until Stop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		for {
			// A running cycle is never interrupted; Stop waits for it.
			s.RunCycle(context.WithoutCancel(s.ctx))

			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.opts.Interval):
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// RunCycle processes every configured feed concurrently and returns the
// aggregated result. A failing feed never affects the others.
func (s *Scheduler) RunCycle(ctx context.Context) CycleResult {
	result := CycleResult{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	configs := s.configCache.Configs(s.opts.FeedURLs)
	if len(configs) == 0 {
		slog.Warn("No feeds configured")
	}

	results := make([]FeedResult, len(configs))

	var g errgroup.Group
	if s.opts.MaxConcurrentFeeds > 0 {
		g.SetLimit(s.opts.MaxConcurrentFeeds)
	}

	for i, feedConfig := range configs {
		g.Go(func() error {
			task := NewProcessFeedTask(feedConfig, s.source, s.validator, s.enricher, s.itemRepo, s.sink)
			task.Start()

			if err := task.Execute(ctx); err != nil {
				slog.Error("Failed to process feed", "feed", feedConfig.Name, "url", feedConfig.URL, "id", task.GetID(), "error", err)
			}

			results[i] = task.Result
			return nil
		})
	}
	_ = g.Wait()

	var fetchTotal time.Duration
	for _, r := range results {
		result.Feeds++
		if r.Error != "" {
			result.FeedFailures++
		}
		fetchTotal += r.FetchDuration
		result.Entries += r.Entries
		result.Persisted += r.Persisted
		result.Archived += r.Archived
		result.Rejected += r.Rejected
		result.PersistErrors += r.PersistErrors
		result.EnrichAttempts += r.EnrichAttempts
		result.EnrichFailures += r.EnrichFailures
	}
	if result.Feeds > 0 {
		result.AvgFetchSeconds = fetchTotal.Seconds() / float64(result.Feeds)
	}
	result.Results = results
	result.Duration = time.Since(result.StartedAt)

	s.sink.CycleCompleted(result.Duration)

	slog.Info("Cycle completed",
		"id", result.ID,
		"feeds", result.Feeds,
		"feed_errors", result.FeedFailures,
		"entries", result.Entries,
		"persisted", result.Persisted,
		"new", result.Archived,
		"rejected", result.Rejected,
		"errors", result.PersistErrors,
		"avg_fetch_seconds", result.AvgFetchSeconds,
		"cycle_seconds", result.Duration.Seconds())

	s.mu.Lock()
	s.last = &result
	s.mu.Unlock()

	return result
}

// LastCycle returns the result of the most recent completed cycle.
func (s *Scheduler) LastCycle() (CycleResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return CycleResult{}, false
	}
	return *s.last, true
}
