package database

import (
	"context"
	"time"

	"github.com/lysyi3m/feed-archiver/app/feed"
)

type ItemStore interface {
	Save(ctx context.Context, item feed.FeedItem, fullContent string) (bool, error)
	GetFullContent(ctx context.Context, guid string) (string, error)
	GetArchived(ctx context.Context, guid string) (*Record, error)
	GetCurrent(ctx context.Context, guid string) (*Record, error)
	Stats(ctx context.Context) (ItemStats, error)
}

type FetchStateStore interface {
	Get(ctx context.Context, guid string) (*FetchState, error)
	Claim(ctx context.Context, guid string, now, cutoff time.Time) (bool, error)
	RecordSuccess(ctx context.Context, guid string, at time.Time) error
	RecordFailure(ctx context.Context, guid string, at time.Time) (int, error)
	Disable(ctx context.Context, guid string) error
	Stats(ctx context.Context) (FetchStats, error)
}
