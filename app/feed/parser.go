package feed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
)

const feedAccept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"

type Parser struct {
	fetcher   *Fetcher
	extractor *ContentExtractor
	articles  *ArticleExtractor
}

func NewParser(client *http.Client, userAgent string, timeout time.Duration) *Parser {
	fetcher := NewFetcher(client, userAgent, timeout)
	return &Parser{
		fetcher:   fetcher,
		extractor: NewContentExtractor(),
		articles:  NewArticleExtractor(fetcher),
	}
}

// Parse fetches sourceURL and turns it into a ParsedFeed. Either the
// whole feed is returned or an error; item level problems are reported
// as warnings on the result.
func (p *Parser) Parse(ctx context.Context, sourceURL string, opts ParseOptions) (*ParsedFeed, error) {
	data, err := p.fetcher.Fetch(ctx, sourceURL, feedAccept)
	if err != nil {
		return nil, err
	}

	parsed, err := p.ParseBytes(sourceURL, data, opts)
	if err != nil {
		return nil, err
	}

	if opts.ExtractContent {
		p.articles.Enrich(ctx, parsed)
	}

	return parsed, nil
}

// ParseBytes parses an already downloaded document.
func (p *Parser) ParseBytes(sourceURL string, data []byte, opts ParseOptions) (*ParsedFeed, error) {
	detection := DetectFormat(data)
	if detection.Format == FormatUnknown {
		if detection.Err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparseableFeed, detection.Err)
		}
		return nil, ErrUnparseableFeed
	}

	var (
		parsed *ParsedFeed
		raws   []RawItem
		err    error
	)
	switch detection.Format {
	case FormatRSS2:
		parsed, raws, err = parseRSS(data)
	case FormatAtom:
		parsed, raws, err = parseAtom(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableFeed, err)
	}

	parsed.SourceURL = sourceURL
	parsed.Format = detection.Format
	parsed.FetchedAt = time.Now().UTC()
	parsed.Title = firstNonEmpty(parsed.Title, opts.SourceName, hostOf(sourceURL))
	if parsed.Link != "" {
		parsed.Link = resolveURL(sourceURL, parsed.Link)
	}
	if parsed.Image != "" {
		parsed.Image = resolveURL(firstNonEmpty(parsed.Link, sourceURL), parsed.Image)
	}

	base := firstNonEmpty(parsed.Link, sourceURL)
	parsed.Items = make([]Item, 0, len(raws))
	for i, raw := range raws {
		item, err := p.extractor.Run(raw, base)
		if err != nil {
			warning := ItemWarning{Index: i, Title: rawTitle(raw), Reason: err.Error()}
			parsed.Warnings = append(parsed.Warnings, warning)
			slog.Warn("Item skipped", "feed", sourceURL, "index", i, "reason", err)
			continue
		}
		parsed.Items = append(parsed.Items, item)
	}

	slog.Debug("Feed parsed",
		"feed", sourceURL,
		"format", parsed.Format,
		"confidence", detection.Confidence,
		"items", len(parsed.Items),
		"warnings", len(parsed.Warnings))

	return parsed, nil
}

func parseRSS(data []byte) (*ParsedFeed, []RawItem, error) {
	parser := &rss.Parser{}
	src, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}

	parsed := &ParsedFeed{
		Title:       unescape(src.Title),
		Link:        strings.TrimSpace(src.Link),
		Description: strings.TrimSpace(src.Description),
		Language:    strings.TrimSpace(src.Language),
	}
	if src.Image != nil {
		parsed.Image = strings.TrimSpace(src.Image.URL)
	}
	for _, c := range src.Categories {
		if c != nil && strings.TrimSpace(c.Value) != "" {
			parsed.Category = unescape(c.Value)
			break
		}
	}
	if it := src.ITunesExt; it != nil {
		if parsed.Image == "" {
			parsed.Image = strings.TrimSpace(it.Image)
		}
		if parsed.Category == "" && len(it.Categories) > 0 && it.Categories[0] != nil {
			parsed.Category = strings.TrimSpace(it.Categories[0].Text)
		}
		if parsed.Description == "" {
			parsed.Description = firstNonEmpty(it.Summary, it.Subtitle)
		}
	}

	raws := make([]RawItem, 0, len(src.Items))
	for _, item := range src.Items {
		raws = append(raws, RawItem{Format: FormatRSS2, RSS: item})
	}
	return parsed, raws, nil
}

func parseAtom(data []byte) (*ParsedFeed, []RawItem, error) {
	parser := &atom.Parser{}
	src, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}

	parsed := &ParsedFeed{
		Title:       unescape(src.Title),
		Description: strings.TrimSpace(src.Subtitle),
		Image:       firstNonEmpty(src.Logo, src.Icon),
		Language:    strings.TrimSpace(src.Language),
	}
	for _, l := range src.Links {
		if l != nil && (l.Rel == "" || l.Rel == "alternate") && strings.TrimSpace(l.Href) != "" {
			parsed.Link = strings.TrimSpace(l.Href)
			break
		}
	}
	for _, c := range src.Categories {
		if c != nil {
			if category := firstNonEmpty(c.Label, c.Term); category != "" {
				parsed.Category = category
				break
			}
		}
	}

	raws := make([]RawItem, 0, len(src.Entries))
	for _, entry := range src.Entries {
		raws = append(raws, RawItem{Format: FormatAtom, Atom: entry})
	}
	return parsed, raws, nil
}

func rawTitle(raw RawItem) string {
	switch {
	case raw.RSS != nil:
		return unescape(raw.RSS.Title)
	case raw.Atom != nil:
		return unescape(raw.Atom.Title)
	}
	return ""
}
