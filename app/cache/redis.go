package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lysyi3m/feed-ingest/app/feed"
)

const DefaultTTL = 10 * time.Minute

// Cache keeps ad-hoc parse results in Redis. Misses and Redis errors are
// treated the same way: the caller parses again.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(ctx context.Context, addr string, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr)
	return newCache(client, ttl), nil
}

func newCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, feedURL string, opts feed.ParseOptions) (*feed.ParsedFeed, bool) {
	key := GenerateFeedKey(feedURL, opts)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("Cache read failed", "key", key, "error", err)
		return nil, false
	}

	parsed, err := decodeEntry(data)
	if err != nil {
		slog.Warn("Cache entry is corrupt", "key", key, "error", err)
		return nil, false
	}
	return parsed, true
}

func (c *Cache) Set(ctx context.Context, feedURL string, opts feed.ParseOptions, parsed *feed.ParsedFeed) {
	key := GenerateFeedKey(feedURL, opts)

	data, err := encodeEntry(parsed)
	if err != nil {
		slog.Warn("Failed to encode cache entry", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Warn("Cache write failed", "key", key, "error", err)
	}
}

func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func encodeEntry(parsed *feed.ParsedFeed) ([]byte, error) {
	return json.Marshal(parsed)
}

func decodeEntry(data []byte) (*feed.ParsedFeed, error) {
	var parsed feed.ParsedFeed
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// GenerateFeedKey builds a stable key from the URL and the options that
// change the parse result.
func GenerateFeedKey(feedURL string, opts feed.ParseOptions) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%t", feedURL, opts.SourceName, opts.ExtractContent)))
	return fmt.Sprintf("feed:%x", hash[:8])
}
