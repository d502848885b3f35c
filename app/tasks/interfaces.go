package tasks

import (
	"context"

	"github.com/lysyi3m/feed-archiver/app/enrich"
	"github.com/lysyi3m/feed-archiver/app/feed"
)

// Enricher decides whether an item gets live content. *enrich.Gate implements it.
type Enricher interface {
	Run(ctx context.Context, item feed.FeedItem) enrich.Outcome
}

// TaskSchedulerInterface is what main and the API need from the scheduler.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	RunCycle(ctx context.Context) CycleResult
	LastCycle() (CycleResult, bool)
}
