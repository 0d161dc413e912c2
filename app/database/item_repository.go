package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lysyi3m/feed-ingest/app/feed"
)

const itemColumns = `id, feed_id, title, description, content, link, published, author,
	images, media_urls, tags, duration_seconds, created_at, updated_at`

// ItemRepository handles database operations for feed items
type ItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// GetExistingLinks returns the stored snapshot of every item of a feed keyed by link.
func (r *ItemRepository) GetExistingLinks(ctx context.Context, feedID string) (map[string]feed.ItemSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, link, fingerprint FROM items WHERE feed_id = ?`, feedID)
	if err != nil {
		return nil, storageErr("get existing links", err)
	}
	defer rows.Close()

	existing := make(map[string]feed.ItemSnapshot)
	for rows.Next() {
		var s feed.ItemSnapshot
		if err := rows.Scan(&s.ID, &s.Link, &s.Fingerprint); err != nil {
			return nil, storageErr("scan item snapshot", err)
		}
		existing[s.Link] = s
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate item snapshots", err)
	}

	return existing, nil
}

// InsertItems stores new items in one transaction and returns how many were
// written. Items whose link is already stored for the feed are skipped and
// reported through a *DuplicateLinkError alongside the count.
func (r *ItemRepository) InsertItems(ctx context.Context, feedID string, items []feed.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin insert items", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO items (`+itemColumns+`, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (feed_id, link) DO NOTHING
	`)
	if err != nil {
		return 0, storageErr("prepare insert items", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0
	var duplicates []string

	for _, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := item.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		res, err := stmt.ExecContext(ctx,
			id, feedID, item.Title, item.Description, item.Content, item.Link,
			nullMillis(item.Published), item.Author,
			encodeList(item.Images), encodeList(item.MediaURLs), encodeList(item.Tags),
			int64(item.Duration/time.Second), toMillis(createdAt), toMillis(now),
			item.Fingerprint())
		if err != nil {
			return 0, storageErr(fmt.Sprintf("insert item %s", item.Link), err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return 0, storageErr("insert items rows affected", err)
		}
		if n == 0 {
			duplicates = append(duplicates, item.Link)
			continue
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("commit insert items", err)
	}

	if len(duplicates) > 0 {
		return inserted, &DuplicateLinkError{FeedID: feedID, Links: duplicates}
	}
	return inserted, nil
}

// UpdateItems overwrites the tracked fields of stored items, matched by ID.
// CreatedAt is never changed.
func (r *ItemRepository) UpdateItems(ctx context.Context, feedID string, items []feed.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("begin update items", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE items
		SET title = ?, description = ?, content = ?, published = ?, author = ?,
		    images = ?, media_urls = ?, tags = ?, duration_seconds = ?,
		    fingerprint = ?, updated_at = ?
		WHERE id = ? AND feed_id = ?
	`)
	if err != nil {
		return 0, storageErr("prepare update items", err)
	}
	defer stmt.Close()

	now := toMillis(time.Now())
	updated := 0
	for _, item := range items {
		res, err := stmt.ExecContext(ctx,
			item.Title, item.Description, item.Content, nullMillis(item.Published), item.Author,
			encodeList(item.Images), encodeList(item.MediaURLs), encodeList(item.Tags),
			int64(item.Duration/time.Second), item.Fingerprint(), now,
			item.ID, feedID)
		if err != nil {
			return 0, storageErr(fmt.Sprintf("update item %s", item.Link), err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("commit update items", err)
	}
	return updated, nil
}

// ListItems returns the most recent items of a feed, newest first.
func (r *ItemRepository) ListItems(ctx context.Context, feedID string, limit int) ([]feed.Item, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE feed_id = ?
		ORDER BY COALESCE(published, created_at) DESC, created_at DESC
		LIMIT ?
	`, feedID, limit)
	if err != nil {
		return nil, storageErr("list items", err)
	}
	defer rows.Close()

	var items []feed.Item
	for rows.Next() {
		var (
			item                 feed.Item
			published            sql.NullInt64
			images, media, tags  string
			durationSeconds      int64
			createdAt, updatedAt int64
		)
		err := rows.Scan(&item.ID, &item.FeedID, &item.Title, &item.Description, &item.Content,
			&item.Link, &published, &item.Author, &images, &media, &tags,
			&durationSeconds, &createdAt, &updatedAt)
		if err != nil {
			return nil, storageErr("scan item row", err)
		}
		item.Published = fromNullMillis(published)
		item.Images = decodeList(images)
		item.MediaURLs = decodeList(media)
		item.Tags = decodeList(tags)
		item.Duration = time.Duration(durationSeconds) * time.Second
		item.CreatedAt = fromMillis(createdAt)
		item.UpdatedAt = fromMillis(updatedAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate item rows", err)
	}

	return items, nil
}

func (r *ItemRepository) CountItems(ctx context.Context, feedID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE feed_id = ?`, feedID).Scan(&count)
	if err != nil {
		return 0, storageErr("count items", err)
	}
	return count, nil
}

// PruneItems deletes items first stored before the cutoff.
func (r *ItemRepository) PruneItems(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE created_at < ?`, toMillis(before))
	if err != nil {
		return 0, storageErr("prune items", err)
	}
	return res.RowsAffected()
}

func encodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeList(data string) []string {
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil || len(values) == 0 {
		return nil
	}
	return values
}
