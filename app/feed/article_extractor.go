package feed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	articleAccept      = "text/html, application/xhtml+xml;q=0.9, */*;q=0.5"
	articleConcurrency = 4
	maxArticleImages   = 20
)

// ArticleExtractor replaces item content with the readable article found
// at the item link. Page fetches are bounded by articleConcurrency across
// all feeds sharing the extractor, not per feed.
type ArticleExtractor struct {
	fetcher *Fetcher
	slots   *semaphore.Weighted
}

func NewArticleExtractor(fetcher *Fetcher) *ArticleExtractor {
	return &ArticleExtractor{
		fetcher: fetcher,
		slots:   semaphore.NewWeighted(articleConcurrency),
	}
}

// Run extracts the main article HTML from a page.
func (e *ArticleExtractor) Run(data []byte, pageURL string) (string, string, error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("HTML data is empty")
	}

	var base *url.URL
	if pageURL != "" {
		if u, err := url.Parse(pageURL); err == nil {
			base = u
		}
	}

	article, err := readability.FromReader(bytes.NewReader(data), base)
	if err != nil {
		return "", "", fmt.Errorf("failed to extract content: %w", err)
	}

	if strings.TrimSpace(article.Content) == "" {
		return "", "", fmt.Errorf("no content extracted from HTML data")
	}

	slog.Debug("Content extracted successfully",
		"url", pageURL,
		"title", article.Title,
		"content_length", len(article.Content))

	return article.Content, article.Image, nil
}

// Enrich fetches every item page of parsed and swaps in the extracted
// article. Failures leave the item as it was and add a warning.
func (e *ArticleExtractor) Enrich(ctx context.Context, parsed *ParsedFeed) {
	var (
		mu       sync.Mutex
		warnings []ItemWarning
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(articleConcurrency)

	for i := range parsed.Items {
		item := &parsed.Items[i]
		// items keyed by a urn or tag id have no page to fetch
		if !isHTTPURL(item.Link) {
			continue
		}
		g.Go(func() error {
			err := e.slots.Acquire(gctx, 1)
			if err == nil {
				var data []byte
				data, err = e.fetcher.Fetch(gctx, item.Link, articleAccept)
				e.slots.Release(1)
				if err == nil {
					err = e.apply(item, data)
				}
			}
			if err != nil {
				mu.Lock()
				warnings = append(warnings, ItemWarning{
					Index:  i,
					Title:  item.Title,
					Reason: fmt.Sprintf("content extraction: %v", err),
				})
				mu.Unlock()
				slog.Debug("Content extraction failed", "url", item.Link, "error", err)
			}
			// per-item failures never cancel the group
			return nil
		})
	}
	_ = g.Wait()

	parsed.Warnings = append(parsed.Warnings, warnings...)
}

func (e *ArticleExtractor) apply(item *Item, data []byte) error {
	content, lead, err := e.Run(data, item.Link)
	if err != nil {
		return err
	}
	item.Content = content

	seen := make(map[string]struct{}, len(item.Images))
	images := appendUnique(nil, seen, item.Images...)
	images = appendUnique(images, seen, resolveURL(item.Link, lead))
	images = appendUnique(images, seen, imageSources(content, item.Link)...)
	if len(images) > maxArticleImages {
		images = images[:maxArticleImages]
	}
	item.Images = images
	return nil
}
