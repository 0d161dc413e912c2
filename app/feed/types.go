package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
)

// Format is the dialect of a feed document.
type Format string

const (
	FormatUnknown Format = "unknown"
	FormatRSS2    Format = "rss2"
	FormatAtom    Format = "atom"
)

// Item is the canonical representation of one article or episode.
// Drafts produced by the extractor carry no ID or FeedID yet.
type Item struct {
	ID          string
	FeedID      string
	Title       string
	Description string // raw HTML
	Content     string // optional full content
	Link        string // dedup key within a feed
	Published   *time.Time
	Author      string
	Images      []string
	MediaURLs   []string
	Tags        []string
	Duration    time.Duration
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PlainDescription is the tag-stripped description used for previews.
func (i Item) PlainDescription() string {
	return stripHTML(i.Description)
}

// Body returns the richest text available for the item.
func (i Item) Body() string {
	if i.Content != "" {
		return i.Content
	}
	return i.Description
}

func (i Item) DisplayDuration() string {
	return FormatDuration(i.Duration)
}

// Fingerprint hashes every mutable field the deduplicator tracks.
func (i Item) Fingerprint() string {
	published := ""
	if i.Published != nil {
		published = i.Published.UTC().Format(time.RFC3339)
	}

	content := strings.Join([]string{
		i.Title,
		i.Description,
		i.Content,
		published,
		strings.Join(i.Images, "\n"),
		strings.Join(i.MediaURLs, "\n"),
		strings.Join(i.Tags, "\n"),
		fmt.Sprintf("%d", int64(i.Duration/time.Second)),
	}, "\x1f")

	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// ItemSnapshot is the stored state of an item the deduplicator compares against.
type ItemSnapshot struct {
	ID          string
	Link        string
	Fingerprint string
}

// RawItem is a format-specific item as produced by the underlying parser.
// Exactly one of RSS or Atom is set, matching Format.
type RawItem struct {
	Format Format
	RSS    *rss.Item
	Atom   *atom.Entry
}

// ParsedFeed is the result of one successful fetch and parse.
type ParsedFeed struct {
	SourceURL   string
	Format      Format
	Title       string
	Link        string
	Description string
	Image       string
	Language    string
	Category    string
	Items       []Item
	Warnings    []ItemWarning
	FetchedAt   time.Time
}

type ParseOptions struct {
	SourceName     string // title fallback
	ExtractContent bool   // fetch item pages for full article content
}

// SortByRecency orders items newest first. Items without a published date
// rank by CreatedAt, which is the time they were first processed.
func SortByRecency(items []Item) {
	sort.SliceStable(items, func(a, b int) bool {
		ta, tb := recencyKey(items[a]), recencyKey(items[b])
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return items[a].CreatedAt.After(items[b].CreatedAt)
	})
}

func recencyKey(item Item) time.Time {
	if item.Published != nil {
		return *item.Published
	}
	return item.CreatedAt
}

func unescape(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}
