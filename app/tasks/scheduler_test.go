package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/feed-archiver/app/database"
	"github.com/lysyi3m/feed-archiver/app/enrich"
	"github.com/lysyi3m/feed-archiver/app/feed"
	"github.com/lysyi3m/feed-archiver/app/metrics"
)

type fakeSource struct {
	mu    sync.Mutex
	feeds map[string]*gofeed.Feed
	errs  map[string]error
	calls int
}

func (s *fakeSource) Fetch(_ context.Context, url string) (*gofeed.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err, ok := s.errs[url]; ok {
		return nil, &feed.FetchError{URL: url, Op: "fetch", Err: err}
	}
	if doc, ok := s.feeds[url]; ok {
		return doc, nil
	}
	return nil, &feed.FetchError{URL: url, Op: "fetch", Err: errors.New("not found")}
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (f *fakeFetcher) FetchAndClean(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	scheduler  *Scheduler
	items      *database.ItemRepository
	fetchState *database.FetchStateRepository
	source     *fakeSource
	fetcher    *fakeFetcher
	now        time.Time
}

const feedA = "https://a.example.com/feed.xml"

func newTestEnv(t *testing.T, feedURLs ...string) *testEnv {
	t.Helper()

	db, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	env := &testEnv{
		items:      database.NewItemRepository(db),
		fetchState: database.NewFetchStateRepository(db),
		source:     &fakeSource{feeds: map[string]*gofeed.Feed{}, errs: map[string]error{}},
		fetcher:    &fakeFetcher{},
		now:        time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	gate := enrich.NewGate(env.fetchState, env.fetcher, metrics.Noop{}, enrich.Options{
		Cooldown: 24 * time.Hour,
		Now:      func() time.Time { return env.now },
	})

	configCache := feed.NewConfigCache(t.TempDir())
	validator := feed.NewValidator(feed.NewSanitizer(), metrics.Noop{})

	env.scheduler = NewScheduler(configCache, env.source, validator, gate, env.items, metrics.Noop{}, SchedulerOptions{
		Interval: time.Hour,
		FeedURLs: feedURLs,
	})

	return env
}

func entryDoc(items ...*gofeed.Item) *gofeed.Feed {
	return &gofeed.Feed{
		Title: "Feed A",
		Link:  "https://a.example.com",
		Items: items,
	}
}

func blankEntry(guid string) *gofeed.Item {
	return &gofeed.Item{
		GUID:  guid,
		Title: "Entry " + guid,
		Link:  "https://a.example.com/posts/" + guid,
	}
}

func TestCycleEnrichesOnceAndKeepsContent(t *testing.T) {
	env := newTestEnv(t, feedA)
	env.source.feeds[feedA] = entryDoc(blankEntry("g1"))
	env.fetcher.text = "hello"
	ctx := context.Background()

	first := env.scheduler.RunCycle(ctx)

	if first.Persisted != 1 || first.Archived != 1 {
		t.Errorf("Expected 1 persisted and archived entry, got: %+v", first)
	}
	if first.EnrichAttempts != 1 {
		t.Errorf("Expected 1 enrichment attempt, got: %d", first.EnrichAttempts)
	}

	archived, err := env.items.GetArchived(ctx, "g1")
	if err != nil || archived == nil {
		t.Fatalf("Expected archive row, got: %v (%v)", archived, err)
	}
	if archived.FullContent != "hello" {
		t.Errorf("Expected archived full content 'hello', got: %q", archived.FullContent)
	}

	state, err := env.fetchState.Get(ctx, "g1")
	if err != nil || state == nil {
		t.Fatalf("Expected fetch state, got: %v (%v)", state, err)
	}
	if state.FailedFetchCount != 0 {
		t.Errorf("Expected failure count 0, got: %d", state.FailedFetchCount)
	}

	env.now = env.now.Add(time.Hour)
	second := env.scheduler.RunCycle(ctx)

	if env.fetcher.callCount() != 1 {
		t.Errorf("Expected no fetch inside the cooldown window, got: %d calls", env.fetcher.callCount())
	}
	if second.Persisted != 1 || second.Archived != 0 {
		t.Errorf("Expected 1 persisted and no new archive entry, got: %+v", second)
	}

	current, _ := env.items.GetCurrent(ctx, "g1")
	if current.FullContent != "hello" {
		t.Errorf("Expected current full content to stay 'hello', got: %q", current.FullContent)
	}

	stats, _ := env.items.Stats(ctx)
	if stats.Archived != 1 {
		t.Errorf("Expected 1 archive row, got: %d", stats.Archived)
	}
}

func TestCycleFailedRetryFallsBackToFeedContent(t *testing.T) {
	env := newTestEnv(t, feedA)
	env.source.feeds[feedA] = entryDoc(blankEntry("g3"))
	env.fetcher.text = "hello"
	ctx := context.Background()

	env.scheduler.RunCycle(ctx)

	env.now = env.now.Add(25 * time.Hour)
	env.fetcher.text = ""
	env.fetcher.err = errors.New("page gone")
	result := env.scheduler.RunCycle(ctx)

	if env.fetcher.callCount() != 2 {
		t.Errorf("Expected a second fetch after the cooldown, got: %d calls", env.fetcher.callCount())
	}
	if result.EnrichFailures != 1 {
		t.Errorf("Expected 1 enrichment failure, got: %d", result.EnrichFailures)
	}

	current, err := env.items.GetCurrent(ctx, "g3")
	if err != nil || current == nil {
		t.Fatalf("Expected current row, got: %v (%v)", current, err)
	}
	if current.FullContent != "" {
		t.Errorf("Expected full content to fall back to the blank feed content, got: %q", current.FullContent)
	}

	archived, _ := env.items.GetArchived(ctx, "g3")
	if archived.FullContent != "hello" {
		t.Errorf("Expected archived full content to stay 'hello', got: %q", archived.FullContent)
	}
}

func TestCycleFailingFetcherCountsFailures(t *testing.T) {
	env := newTestEnv(t, feedA)
	env.source.feeds[feedA] = entryDoc(blankEntry("g2"))
	env.fetcher.err = errors.New("browser crashed")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := env.scheduler.RunCycle(ctx)
		if result.EnrichFailures != 1 {
			t.Errorf("Expected 1 enrichment failure in cycle %d, got: %d", i+1, result.EnrichFailures)
		}

		current, err := env.items.GetCurrent(ctx, "g2")
		if err != nil || current == nil {
			t.Fatalf("Expected current row, got: %v (%v)", current, err)
		}
		if current.Content != "" || current.FullContent != "" {
			t.Errorf("Expected blank content, got: %q / %q", current.Content, current.FullContent)
		}

		env.now = env.now.Add(25 * time.Hour)
	}

	state, _ := env.fetchState.Get(ctx, "g2")
	if state.FailedFetchCount != 3 {
		t.Errorf("Expected failure count 3, got: %d", state.FailedFetchCount)
	}
	if env.fetcher.callCount() != 3 {
		t.Errorf("Expected 3 fetches, got: %d", env.fetcher.callCount())
	}
}

func TestCycleFeedContentSkipsEnrichment(t *testing.T) {
	env := newTestEnv(t, feedA)
	entry := blankEntry("g3")
	entry.Content = "<p>Full body</p>"
	env.source.feeds[feedA] = entryDoc(entry)

	env.scheduler.RunCycle(context.Background())

	if env.fetcher.callCount() != 0 {
		t.Errorf("Expected no live fetch, got: %d", env.fetcher.callCount())
	}

	current, _ := env.items.GetCurrent(context.Background(), "g3")
	if current.FullContent != "Full body" {
		t.Errorf("Expected sanitized feed content as full content, got: %q", current.FullContent)
	}
}

func TestCycleIsolatesFailures(t *testing.T) {
	feedB := "https://b.example.com/rss"
	env := newTestEnv(t, feedA, feedB)

	invalid := blankEntry("bad")
	invalid.Title = ""
	notURL := blankEntry("bad-link")
	notURL.Link = "not a url"

	env.source.feeds[feedA] = entryDoc(blankEntry("ok-1"), invalid, notURL, blankEntry("ok-2"))
	env.source.errs[feedB] = errors.New("connection refused")
	env.fetcher.text = "live"

	result := env.scheduler.RunCycle(context.Background())

	if result.Feeds != 2 || result.FeedFailures != 1 {
		t.Errorf("Expected 2 feeds with 1 failure, got: %d / %d", result.Feeds, result.FeedFailures)
	}
	if result.Entries != 4 {
		t.Errorf("Expected 4 entries, got: %d", result.Entries)
	}
	if result.Rejected != 2 {
		t.Errorf("Expected 2 rejected entries, got: %d", result.Rejected)
	}
	if result.Persisted != 2 {
		t.Errorf("Expected 2 persisted entries, got: %d", result.Persisted)
	}

	ctx := context.Background()
	for _, guid := range []string{"bad", "bad-link"} {
		if rec, _ := env.items.GetCurrent(ctx, guid); rec != nil {
			t.Errorf("Expected rejected entry %s not to be stored", guid)
		}
		if state, _ := env.fetchState.Get(ctx, guid); state != nil {
			t.Errorf("Expected no fetch state for rejected entry %s", guid)
		}
	}

	last, ok := env.scheduler.LastCycle()
	if !ok || last.ID != result.ID {
		t.Errorf("Expected last cycle to be recorded, got: %v %s", ok, last.ID)
	}
}

func TestCycleWithoutEnricher(t *testing.T) {
	env := newTestEnv(t, feedA)
	env.scheduler.enricher = nil
	env.source.feeds[feedA] = entryDoc(blankEntry("g4"))

	result := env.scheduler.RunCycle(context.Background())

	if result.Persisted != 1 || result.EnrichAttempts != 0 {
		t.Errorf("Expected persistence without enrichment, got: %+v", result)
	}
	if env.fetcher.callCount() != 0 {
		t.Errorf("Expected no live fetch, got: %d", env.fetcher.callCount())
	}
}

func TestCycleLimitedConcurrency(t *testing.T) {
	env := newTestEnv(t, feedA, "https://b.example.com/rss", "https://c.example.com/rss")
	env.scheduler.opts.MaxConcurrentFeeds = 1
	env.source.feeds[feedA] = entryDoc(blankEntry("g5"))

	result := env.scheduler.RunCycle(context.Background())

	if result.Feeds != 3 {
		t.Errorf("Expected 3 feeds, got: %d", result.Feeds)
	}
	if len(result.Results) != 3 {
		t.Errorf("Expected 3 feed results, got: %d", len(result.Results))
	}
}

func TestSchedulerStartStop(t *testing.T) {
	env := newTestEnv(t, feedA)
	env.source.feeds[feedA] = entryDoc(blankEntry("g6"))

	env.scheduler.Start()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := env.scheduler.LastCycle(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected a cycle to complete after Start")
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.scheduler.Stop()

	env.source.mu.Lock()
	calls := env.source.calls
	env.source.mu.Unlock()
	if calls != 1 {
		t.Errorf("Expected exactly one cycle before the interval, got: %d fetches", calls)
	}
}
