package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/feed-ingest/app/database"
	"github.com/lysyi3m/feed-ingest/app/events"
	"github.com/lysyi3m/feed-ingest/app/feed"
)

// RefreshResult is the outcome of one refresh cycle of one feed.
type RefreshResult struct {
	FeedID         string
	Status         database.ProcessingStatus
	ItemsProcessed int
	Inserted       int
	Updated        int
	Unchanged      int
	Warnings       []feed.ItemWarning
	Err            error
	Duration       time.Duration
}

// RefreshFeedTask runs fetch, reconcile and write for a single feed. The
// feed must already be acquired in the registry; the task always
// releases it.
type RefreshFeedTask struct {
	Task
	Feed         database.Feed
	gateway      database.Gateway
	parser       FeedParser
	registry     *Registry
	publisher    EventPublisher
	retry        RetryPolicy
	fetchTimeout time.Duration
	done         chan RefreshResult
}

func NewRefreshFeedTask(f database.Feed, gateway database.Gateway, parser FeedParser, registry *Registry,
	publisher EventPublisher, retry RetryPolicy, fetchTimeout time.Duration) *RefreshFeedTask {
	return &RefreshFeedTask{
		Task:         NewTask(TaskTypeRefreshFeed, f.ID),
		Feed:         f,
		gateway:      gateway,
		parser:       parser,
		registry:     registry,
		publisher:    publisher,
		retry:        retry,
		fetchTimeout: fetchTimeout,
		done:         make(chan RefreshResult, 1),
	}
}

// Done delivers the result once Execute returns.
func (t *RefreshFeedTask) Done() <-chan RefreshResult {
	return t.done
}

func (t *RefreshFeedTask) Execute(ctx context.Context) (err error) {
	result := RefreshResult{FeedID: t.Feed.ID}

	defer func() {
		if r := recover(); r != nil {
			result.Status = database.StatusError
			result.Err = fmt.Errorf("refresh panicked: %v", r)
			slog.Error("Task panicked", "type", "RefreshFeed", "feed", t.Feed.ID, "panic", r)
		}
		result.Duration = t.GetDuration()
		t.finish(ctx, &result)
		err = result.Err
	}()

	select {
	case <-ctx.Done():
		result.Status = database.StatusError
		result.Err = ctx.Err()
		return
	default:
	}

	t.registry.MarkFetching(t.Feed.ID)
	t.run(ctx, &result)
	return
}

func (t *RefreshFeedTask) run(ctx context.Context, result *RefreshResult) {
	fetchCtx := ctx
	if t.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, t.fetchTimeout)
		defer cancel()
	}

	opts := feed.ParseOptions{SourceName: t.Feed.Name, ExtractContent: t.Feed.ExtractContent}
	parsed, err := t.parser.Parse(fetchCtx, t.Feed.URL, opts)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, feed.ErrTimeout) {
			err = fmt.Errorf("%w: %v", feed.ErrTimeout, err)
		}
		result.Status = database.StatusError
		result.Err = err
		return
	}
	result.Warnings = parsed.Warnings

	existing, err := withRetry(ctx, t.retry, "get existing links", func(ctx context.Context) (map[string]feed.ItemSnapshot, error) {
		return t.gateway.GetExistingLinks(ctx, t.Feed.ID)
	})
	if err != nil {
		result.Status = database.StatusError
		result.Err = err
		return
	}

	rec := feed.Reconcile(t.Feed.ID, parsed.Items, existing)
	result.Unchanged = len(rec.Unchanged)

	writeErr := t.write(ctx, rec, result)

	result.ItemsProcessed = result.Inserted + result.Updated
	switch {
	case writeErr == nil:
		result.Status = database.StatusSuccess
	case result.ItemsProcessed > 0:
		result.Status = database.StatusPartial
		result.Err = writeErr
	default:
		result.Status = database.StatusError
		result.Err = writeErr
	}

	if result.Status != database.StatusError {
		t.backfillMetadata(ctx, parsed)
	}
}

// write stores new items first, then changed ones. Links that another
// writer stored in between are re-read and applied as updates.
func (t *RefreshFeedTask) write(ctx context.Context, rec feed.Reconciliation, result *RefreshResult) error {
	toUpdate := rec.ToUpdate

	inserted, err := withRetry(ctx, t.retry, "insert items", func(ctx context.Context) (int, error) {
		return t.gateway.InsertItems(ctx, t.Feed.ID, rec.ToInsert)
	})
	result.Inserted = inserted

	var dupErr *database.DuplicateLinkError
	if errors.As(err, &dupErr) {
		raced, reErr := t.racedUpdates(ctx, rec.ToInsert, dupErr.Links)
		if reErr != nil {
			return reErr
		}
		toUpdate = append(toUpdate, raced.ToUpdate...)
		result.Unchanged += len(raced.Unchanged)
		err = nil
	}

	updated, updErr := withRetry(ctx, t.retry, "update items", func(ctx context.Context) (int, error) {
		return t.gateway.UpdateItems(ctx, t.Feed.ID, toUpdate)
	})
	result.Updated = updated

	return errors.Join(err, updErr)
}

func (t *RefreshFeedTask) racedUpdates(ctx context.Context, candidates []feed.Item, links []string) (feed.Reconciliation, error) {
	existing, err := withRetry(ctx, t.retry, "reload existing links", func(ctx context.Context) (map[string]feed.ItemSnapshot, error) {
		return t.gateway.GetExistingLinks(ctx, t.Feed.ID)
	})
	if err != nil {
		return feed.Reconciliation{}, err
	}

	lost := make(map[string]bool, len(links))
	for _, link := range links {
		lost[link] = true
	}

	var raced []feed.Item
	for _, item := range candidates {
		if _, ok := existing[item.Link]; ok && lost[item.Link] {
			raced = append(raced, item)
		}
	}
	return feed.Reconcile(t.Feed.ID, raced, existing), nil
}

func (t *RefreshFeedTask) backfillMetadata(ctx context.Context, parsed *feed.ParsedFeed) {
	writer, ok := t.gateway.(database.MetadataWriter)
	if !ok {
		return
	}
	err := withRetryErr(ctx, t.retry, "update feed metadata", func(ctx context.Context) error {
		return writer.UpdateFeedMetadata(ctx, t.Feed.ID, parsed.Title, parsed.Description, parsed.Category)
	})
	if err != nil {
		slog.Warn("Failed to update feed metadata", "feed", t.Feed.ID, "error", err)
	}
}

// finish records the outcome and frees the feed. It runs even when the
// task context is already cancelled, so bookkeeping uses a detached one.
func (t *RefreshFeedTask) finish(ctx context.Context, result *RefreshResult) {
	bookCtx := context.WithoutCancel(ctx)
	now := time.Now().UTC()

	if result.Status != database.StatusError {
		err := withRetryErr(bookCtx, t.retry, "set last updated", func(ctx context.Context) error {
			return t.gateway.SetLastUpdated(ctx, t.Feed.ID, now)
		})
		if err != nil {
			slog.Error("Failed to set last updated", "feed", t.Feed.ID, "error", err)
		}
	}

	entry := database.ProcessingLog{
		FeedID:         t.Feed.ID,
		Status:         result.Status,
		ItemsProcessed: result.ItemsProcessed,
		Duration:       result.Duration,
		CreatedAt:      now,
	}
	if result.Err != nil {
		entry.ErrorMessage = result.Err.Error()
	}
	err := withRetryErr(bookCtx, t.retry, "append processing log", func(ctx context.Context) error {
		return t.gateway.AppendProcessingLog(ctx, entry)
	})
	if err != nil {
		slog.Error("Failed to append processing log", "feed", t.Feed.ID, "error", err)
	}

	if t.publisher != nil {
		if err := t.publisher.Publish(bookCtx, refreshEvent(t.Feed, *result, now)); err != nil {
			slog.Warn("Failed to publish refresh event", "feed", t.Feed.ID, "error", err)
		}
	}

	t.registry.Release(t.Feed.ID, result.Status != database.StatusError)

	if result.Status == database.StatusError {
		slog.Error("Task failed",
			"type", "RefreshFeed",
			"feed", t.Feed.ID,
			"url", t.Feed.URL,
			"duration", result.Duration,
			"error", result.Err)
	} else {
		slog.Info("Task completed",
			"type", "RefreshFeed",
			"feed", t.Feed.ID,
			"status", result.Status,
			"duration", result.Duration,
			"new", result.Inserted,
			"updated", result.Updated,
			"unchanged", result.Unchanged,
			"warnings", len(result.Warnings))
	}

	t.done <- *result
}

func refreshEvent(f database.Feed, result RefreshResult, at time.Time) events.RefreshEvent {
	event := events.RefreshEvent{
		FeedID:         f.ID,
		FeedURL:        f.URL,
		Status:         string(result.Status),
		ItemsProcessed: result.ItemsProcessed,
		Inserted:       result.Inserted,
		Updated:        result.Updated,
		Unchanged:      result.Unchanged,
		Warnings:       len(result.Warnings),
		DurationMs:     result.Duration.Milliseconds(),
		At:             at,
	}
	if result.Err != nil {
		event.Error = result.Err.Error()
	}
	return event
}
