package database

import (
	"context"
	"fmt"
	"log/slog"
)

// Store is the sqlite-backed Gateway. It also carries the subscription,
// listing and pruning operations used by the CLI and HTTP server.
type Store struct {
	*FeedRepository
	*ItemRepository
	*LogRepository
	db *DB
}

var _ Gateway = (*Store)(nil)
var _ MetadataWriter = (*Store)(nil)

// Open connects to the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := NewConnection(path)
	if err != nil {
		return nil, err
	}

	result, err := RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if result.Dirty {
		db.Close()
		return nil, fmt.Errorf("database schema version %d is dirty", result.To)
	}

	if result.Applied() {
		slog.Info("Database migrated", "from", result.From, "to", result.To)
	}

	return NewStore(db), nil
}

func NewStore(db *DB) *Store {
	return &Store{
		FeedRepository: NewFeedRepository(db),
		ItemRepository: NewItemRepository(db),
		LogRepository:  NewLogRepository(db),
		db:             db,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM feeds),
			(SELECT COUNT(*) FROM feeds WHERE active = 1),
			(SELECT COUNT(*) FROM items)
	`).Scan(&stats.Feeds, &stats.ActiveFeeds, &stats.Items)
	if err != nil {
		return Stats{}, storageErr("stats", err)
	}
	return stats, nil
}
