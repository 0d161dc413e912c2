package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/feed-ingest/app/database"
	"github.com/lysyi3m/feed-ingest/app/events"
	"github.com/lysyi3m/feed-ingest/app/feed"
)

// FeedParser fetches and parses a single feed. *feed.Parser implements it.
type FeedParser interface {
	Parse(ctx context.Context, sourceURL string, opts feed.ParseOptions) (*feed.ParsedFeed, error)
}

// EventPublisher receives one event per finished refresh.
type EventPublisher interface {
	Publish(ctx context.Context, event events.RefreshEvent) error
}

// ParseCache stores ad-hoc parse results keyed by URL and options.
type ParseCache interface {
	Get(ctx context.Context, url string, opts feed.ParseOptions) (*feed.ParsedFeed, bool)
	Set(ctx context.Context, url string, opts feed.ParseOptions, parsed *feed.ParsedFeed)
}

// Pruner is implemented by gateways that can drop old rows.
type Pruner interface {
	PruneItems(ctx context.Context, before time.Time) (int64, error)
	PruneProcessingLogs(ctx context.Context, before time.Time) (int64, error)
}

// SubscriptionStore is implemented by gateways that accept seeded subscriptions.
type SubscriptionStore interface {
	UpsertFeedByURL(ctx context.Context, f database.Feed) (*database.Feed, bool, error)
}

// TaskSchedulerInterface is what the entry point and the HTTP layer use.
//
//	scheduler := NewScheduler(store, parser, DefaultSchedulerConfig())
//	scheduler.Start()
//	defer scheduler.Stop()
//	n, err := scheduler.RefreshFeedNow(ctx, feedID)
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	Tick(ctx context.Context) TickResult
	RefreshFeedNow(ctx context.Context, feedID string) (int, error)
	ParseFeedAdHoc(ctx context.Context, url string, opts feed.ParseOptions) (*feed.ParsedFeed, error)
	GetStats() Stats
	Health() error
}
