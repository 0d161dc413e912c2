package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lysyi3m/feed-ingest/app/database"
	"github.com/lysyi3m/feed-ingest/app/feed"
)

type fakeGateway struct {
	mu          sync.Mutex
	feeds       map[string]*database.Feed
	items       map[string]map[string]feed.Item
	logs        []database.ProcessingLog
	lastUpdated map[string]time.Time
	nextID      int

	insertErr   error
	updateErr   error
	listErrs    []error
	insertCalls int
	updateCalls [][]feed.Item
	// stored by a concurrent writer right before the next insert
	raced []feed.Item
}

func newFakeGateway(feeds ...database.Feed) *fakeGateway {
	g := &fakeGateway{
		feeds:       make(map[string]*database.Feed),
		items:       make(map[string]map[string]feed.Item),
		lastUpdated: make(map[string]time.Time),
	}
	for i := range feeds {
		f := feeds[i]
		g.feeds[f.ID] = &f
	}
	return g
}

func (g *fakeGateway) ListActiveFeedsDue(ctx context.Context, now time.Time, interval time.Duration) ([]database.Feed, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.listErrs) > 0 {
		err := g.listErrs[0]
		g.listErrs = g.listErrs[1:]
		return nil, err
	}

	var due []database.Feed
	for _, f := range g.feeds {
		if !f.Active {
			continue
		}
		if ts, ok := g.lastUpdated[f.ID]; ok && now.Sub(ts) < interval {
			continue
		}
		due = append(due, *f)
	}
	return due, nil
}

func (g *fakeGateway) GetFeed(ctx context.Context, feedID string) (*database.Feed, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := g.feeds[feedID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrFeedNotFound, feedID)
	}
	copied := *f
	return &copied, nil
}

func (g *fakeGateway) GetExistingLinks(ctx context.Context, feedID string) (map[string]feed.ItemSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	existing := make(map[string]feed.ItemSnapshot)
	for link, item := range g.items[feedID] {
		existing[link] = feed.ItemSnapshot{ID: item.ID, Link: link, Fingerprint: item.Fingerprint()}
	}
	return existing, nil
}

func (g *fakeGateway) InsertItems(ctx context.Context, feedID string, items []feed.Item) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.insertCalls++

	if g.insertErr != nil {
		return 0, g.insertErr
	}
	for _, item := range g.raced {
		g.store(feedID, item)
	}
	g.raced = nil

	inserted := 0
	var duplicates []string
	for _, item := range items {
		if _, ok := g.items[feedID][item.Link]; ok {
			duplicates = append(duplicates, item.Link)
			continue
		}
		g.store(feedID, item)
		inserted++
	}
	if len(duplicates) > 0 {
		return inserted, &database.DuplicateLinkError{FeedID: feedID, Links: duplicates}
	}
	return inserted, nil
}

func (g *fakeGateway) UpdateItems(ctx context.Context, feedID string, items []feed.Item) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(items) > 0 {
		g.updateCalls = append(g.updateCalls, items)
	}
	if g.updateErr != nil && len(items) > 0 {
		return 0, g.updateErr
	}
	for _, item := range items {
		g.store(feedID, item)
	}
	return len(items), nil
}

func (g *fakeGateway) SetLastUpdated(ctx context.Context, feedID string, ts time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastUpdated[feedID] = ts
	return nil
}

func (g *fakeGateway) AppendProcessingLog(ctx context.Context, entry database.ProcessingLog) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logs = append(g.logs, entry)
	return nil
}

func (g *fakeGateway) store(feedID string, item feed.Item) {
	if g.items[feedID] == nil {
		g.items[feedID] = make(map[string]feed.Item)
	}
	if item.ID == "" {
		g.nextID++
		item.ID = fmt.Sprintf("item-%d", g.nextID)
	}
	g.items[feedID][item.Link] = item
}

func (g *fakeGateway) logsFor(feedID string) []database.ProcessingLog {
	g.mu.Lock()
	defer g.mu.Unlock()
	var logs []database.ProcessingLog
	for _, l := range g.logs {
		if l.FeedID == feedID {
			logs = append(logs, l)
		}
	}
	return logs
}

func (g *fakeGateway) updatedAt(feedID string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ts, ok := g.lastUpdated[feedID]
	return ts, ok
}

func (g *fakeGateway) item(feedID, link string) (feed.Item, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	item, ok := g.items[feedID][link]
	return item, ok
}

func (g *fakeGateway) itemCount(feedID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.items[feedID])
}

type fakeParser struct {
	parse func(ctx context.Context, url string) (*feed.ParsedFeed, error)
}

func (p *fakeParser) Parse(ctx context.Context, url string, opts feed.ParseOptions) (*feed.ParsedFeed, error) {
	return p.parse(ctx, url)
}

func staticParser(items ...feed.Item) *fakeParser {
	return &fakeParser{parse: func(ctx context.Context, url string) (*feed.ParsedFeed, error) {
		return &feed.ParsedFeed{SourceURL: url, Title: "Feed", Items: items}, nil
	}}
}

func testFeed(id string) database.Feed {
	return database.Feed{ID: id, URL: "https://example.com/" + id, Name: id, Active: true}
}

func testConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval:    time.Hour,
		RefreshInterval: 15 * time.Minute,
		MaxConcurrent:   2,
		FetchTimeout:    time.Second,
		StorageTimeout:  time.Second,
		StorageRetries:  2,
	}
}
