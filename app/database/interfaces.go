package database

import (
	"context"
	"time"

	"github.com/lysyi3m/feed-ingest/app/feed"
)

// Gateway is the storage surface the refresh pipeline depends on.
type Gateway interface {
	ListActiveFeedsDue(ctx context.Context, now time.Time, interval time.Duration) ([]Feed, error)
	GetFeed(ctx context.Context, feedID string) (*Feed, error)
	GetExistingLinks(ctx context.Context, feedID string) (map[string]feed.ItemSnapshot, error)
	InsertItems(ctx context.Context, feedID string, items []feed.Item) (int, error)
	UpdateItems(ctx context.Context, feedID string, items []feed.Item) (int, error)
	SetLastUpdated(ctx context.Context, feedID string, ts time.Time) error
	AppendProcessingLog(ctx context.Context, entry ProcessingLog) error
}

// MetadataWriter is implemented by gateways that can backfill feed
// details discovered while parsing.
type MetadataWriter interface {
	UpdateFeedMetadata(ctx context.Context, feedID string, name, description, category string) error
}
