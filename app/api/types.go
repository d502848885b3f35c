package api

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lysyi3m/feed-archiver/app/database"
	"github.com/lysyi3m/feed-archiver/app/feed"
	"github.com/lysyi3m/feed-archiver/app/tasks"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	db          Pinger
	itemRepo    database.ItemStore
	fetchState  database.FetchStateStore
	configCache *feed.ConfigCache
	feedURLs    []string
	scheduler   tasks.TaskSchedulerInterface
	gatherer    prometheus.Gatherer
}
