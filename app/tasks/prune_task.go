package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// PruneTask deletes items and processing logs older than the retention window.
type PruneTask struct {
	Task
	pruner    Pruner
	retention time.Duration
	retry     RetryPolicy
}

func NewPruneTask(pruner Pruner, retention time.Duration, retry RetryPolicy) *PruneTask {
	return &PruneTask{
		Task:      NewTask(TaskTypePrune, ""),
		pruner:    pruner,
		retention: retention,
		retry:     retry,
	}
}

func (t *PruneTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	cutoff := time.Now().UTC().Add(-t.retention)

	items, err := withRetry(ctx, t.retry, "prune items", func(ctx context.Context) (int64, error) {
		return t.pruner.PruneItems(ctx, cutoff)
	})
	if err != nil {
		return fmt.Errorf("failed to prune items: %w", err)
	}

	logs, err := withRetry(ctx, t.retry, "prune processing logs", func(ctx context.Context) (int64, error) {
		return t.pruner.PruneProcessingLogs(ctx, cutoff)
	})
	if err != nil {
		return fmt.Errorf("failed to prune processing logs: %w", err)
	}

	slog.Info("Task completed",
		"type", "Prune",
		"cutoff", cutoff,
		"duration", t.GetDuration(),
		"items", items,
		"logs", logs)

	return nil
}
