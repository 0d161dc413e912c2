package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/feed-ingest/app/database"
	"github.com/lysyi3m/feed-ingest/app/feed"
)

// SyncSubscriptionTask upserts one seeded subscription by URL.
type SyncSubscriptionTask struct {
	Task
	Subscription *feed.Subscription
	store        SubscriptionStore
}

func NewSyncSubscriptionTask(sub *feed.Subscription, store SubscriptionStore) *SyncSubscriptionTask {
	return &SyncSubscriptionTask{
		Task:         NewTask(TaskTypeSyncSubscription, ""),
		Subscription: sub,
		store:        store,
	}
}

func (t *SyncSubscriptionTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	f, created, err := t.store.UpsertFeedByURL(ctx, database.Feed{
		URL:            t.Subscription.URL,
		Name:           t.Subscription.DisplayName(),
		Description:    t.Subscription.Description,
		Category:       t.Subscription.Category,
		Active:         t.Subscription.IsActive(),
		ExtractContent: t.Subscription.ExtractContent,
	})
	if err != nil {
		slog.Error("Task failed", "type", "SyncSubscription", "subscription", t.Subscription.Name, "error", err)
		return fmt.Errorf("failed to sync subscription %s: %w", t.Subscription.Name, err)
	}
	t.FeedID = f.ID

	slog.Info("Task completed",
		"type", "SyncSubscription",
		"subscription", t.Subscription.Name,
		"feed", f.ID,
		"created", created,
		"duration", t.GetDuration())

	return nil
}
