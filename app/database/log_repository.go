package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LogRepository handles the append-only processing log
type LogRepository struct {
	db *DB
}

func NewLogRepository(db *DB) *LogRepository {
	return &LogRepository{db: db}
}

func (r *LogRepository) AppendProcessingLog(ctx context.Context, entry ProcessingLog) error {
	switch entry.Status {
	case StatusSuccess, StatusError, StatusPartial:
	default:
		return fmt.Errorf("invalid processing status %q", entry.Status)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processing_logs (id, feed_id, status, items_processed, error_message, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.FeedID, string(entry.Status), entry.ItemsProcessed, entry.ErrorMessage,
		entry.Duration.Milliseconds(), toMillis(entry.CreatedAt))
	if err != nil {
		return storageErr("append processing log", err)
	}
	return nil
}

// ListProcessingLogs returns the latest entries for a feed, newest first.
func (r *LogRepository) ListProcessingLogs(ctx context.Context, feedID string, limit int) ([]ProcessingLog, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, feed_id, status, items_processed, error_message, duration_ms, created_at
		FROM processing_logs
		WHERE feed_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, feedID, limit)
	if err != nil {
		return nil, storageErr("list processing logs", err)
	}
	defer rows.Close()

	var logs []ProcessingLog
	for rows.Next() {
		var (
			entry      ProcessingLog
			status     string
			durationMs int64
			createdAt  int64
		)
		if err := rows.Scan(&entry.ID, &entry.FeedID, &status, &entry.ItemsProcessed,
			&entry.ErrorMessage, &durationMs, &createdAt); err != nil {
			return nil, storageErr("scan processing log", err)
		}
		entry.Status = ProcessingStatus(status)
		entry.Duration = time.Duration(durationMs) * time.Millisecond
		entry.CreatedAt = fromMillis(createdAt)
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate processing logs", err)
	}

	return logs, nil
}

func (r *LogRepository) PruneProcessingLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM processing_logs WHERE created_at < ?`, toMillis(before))
	if err != nil {
		return 0, storageErr("prune processing logs", err)
	}
	return res.RowsAffected()
}
