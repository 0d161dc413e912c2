package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const feedColumns = `id, url, name, description, category, active, extract_content, last_updated, created_at`

// FeedRepository handles database operations for feeds
type FeedRepository struct {
	db *DB
}

func NewFeedRepository(db *DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// ListActiveFeedsDue returns active feeds never refreshed or last refreshed
// at least interval before now, least recently refreshed first.
func (r *FeedRepository) ListActiveFeedsDue(ctx context.Context, now time.Time, interval time.Duration) ([]Feed, error) {
	cutoff := toMillis(now.Add(-interval))

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+feedColumns+`
		FROM feeds
		WHERE active = 1
		  AND (last_updated IS NULL OR last_updated <= ?)
		ORDER BY COALESCE(last_updated, 0), created_at
	`, cutoff)
	if err != nil {
		return nil, storageErr("list feeds due", err)
	}
	defer rows.Close()

	return scanFeeds(rows)
}

func (r *FeedRepository) ListFeeds(ctx context.Context) ([]Feed, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+feedColumns+` FROM feeds ORDER BY name, url`)
	if err != nil {
		return nil, storageErr("list feeds", err)
	}
	defer rows.Close()

	return scanFeeds(rows)
}

// GetFeed returns the feed with the given ID or ErrFeedNotFound.
func (r *FeedRepository) GetFeed(ctx context.Context, feedID string) (*Feed, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ?`, feedID)
	f, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, feedID)
	}
	if err != nil {
		return nil, storageErr("get feed", err)
	}
	return f, nil
}

// GetFeedByURL returns nil without error when no feed has the URL.
func (r *FeedRepository) GetFeedByURL(ctx context.Context, feedURL string) (*Feed, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE url = ?`, feedURL)
	f, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get feed by url", err)
	}
	return f, nil
}

func (r *FeedRepository) CreateFeed(ctx context.Context, f Feed) (*Feed, error) {
	f.URL = strings.TrimSpace(f.URL)
	if f.URL == "" {
		return nil, fmt.Errorf("feed URL is required")
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feeds (id, url, name, description, category, active, extract_content, last_updated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.URL, f.Name, f.Description, f.Category, f.Active, f.ExtractContent,
		nullMillis(f.LastUpdated), toMillis(f.CreatedAt))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: %s", ErrFeedExists, f.URL)
	}
	if err != nil {
		return nil, storageErr("create feed", err)
	}

	return &f, nil
}

// UpsertFeedByURL creates the feed or refreshes the subscription fields of
// the existing one. The boolean reports whether a feed was created.
func (r *FeedRepository) UpsertFeedByURL(ctx context.Context, f Feed) (*Feed, bool, error) {
	existing, err := r.GetFeedByURL(ctx, strings.TrimSpace(f.URL))
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		created, err := r.CreateFeed(ctx, f)
		return created, created != nil, err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE feeds
		SET name = ?, description = ?, category = ?, active = ?, extract_content = ?
		WHERE id = ?
	`, f.Name, f.Description, f.Category, f.Active, f.ExtractContent, existing.ID)
	if err != nil {
		return nil, false, storageErr("update feed", err)
	}

	existing.Name = f.Name
	existing.Description = f.Description
	existing.Category = f.Category
	existing.Active = f.Active
	existing.ExtractContent = f.ExtractContent
	return existing, false, nil
}

// UpdateFeedMetadata fills in details learned from the feed document
// without overwriting values already set by the subscriber.
func (r *FeedRepository) UpdateFeedMetadata(ctx context.Context, feedID string, name, description, category string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE feeds
		SET name = CASE WHEN name = '' THEN ? ELSE name END,
		    description = CASE WHEN description = '' THEN ? ELSE description END,
		    category = CASE WHEN category = '' THEN ? ELSE category END
		WHERE id = ?
	`, name, description, category, feedID)
	if err != nil {
		return storageErr("update feed metadata", err)
	}
	return nil
}

func (r *FeedRepository) SetLastUpdated(ctx context.Context, feedID string, ts time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE feeds SET last_updated = ? WHERE id = ?`, toMillis(ts), feedID)
	if err != nil {
		return storageErr("set last updated", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, feedID)
	}
	return nil
}

// SetFeedActive pauses or resumes scheduled refreshes of a feed.
func (r *FeedRepository) SetFeedActive(ctx context.Context, feedID string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE feeds SET active = ? WHERE id = ?`, active, feedID)
	if err != nil {
		return storageErr("set feed active", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, feedID)
	}
	return nil
}

// DeleteFeed removes a feed together with its items and processing logs.
func (r *FeedRepository) DeleteFeed(ctx context.Context, feedID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, feedID)
	if err != nil {
		return storageErr("delete feed", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, feedID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*Feed, error) {
	var (
		f           Feed
		lastUpdated sql.NullInt64
		createdAt   int64
	)
	err := row.Scan(&f.ID, &f.URL, &f.Name, &f.Description, &f.Category,
		&f.Active, &f.ExtractContent, &lastUpdated, &createdAt)
	if err != nil {
		return nil, err
	}
	f.LastUpdated = fromNullMillis(lastUpdated)
	f.CreatedAt = fromMillis(createdAt)
	return &f, nil
}

func scanFeeds(rows *sql.Rows) ([]Feed, error) {
	var feeds []Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, storageErr("scan feed row", err)
		}
		feeds = append(feeds, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate feed rows", err)
	}
	return feeds, nil
}

// Timestamps are stored as unix milliseconds so range queries compare numerically.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
