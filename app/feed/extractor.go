package feed

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
)

const (
	placeholderTitleLen = 80
	untitled            = "Untitled"
)

// ContentExtractor turns format-specific items into canonical Item drafts.
type ContentExtractor struct{}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{}
}

// Run normalizes a single raw item. Relative links and images are resolved
// against base. An item with neither a link nor an id is rejected with an
// error wrapping ErrItemExtraction.
func (e *ContentExtractor) Run(raw RawItem, base string) (Item, error) {
	switch raw.Format {
	case FormatRSS2:
		if raw.RSS == nil {
			return Item{}, fmt.Errorf("%w: empty rss item", ErrItemExtraction)
		}
		return e.fromRSS(raw.RSS, base)
	case FormatAtom:
		if raw.Atom == nil {
			return Item{}, fmt.Errorf("%w: empty atom entry", ErrItemExtraction)
		}
		return e.fromAtom(raw.Atom, base)
	default:
		return Item{}, fmt.Errorf("%w: unsupported format %q", ErrItemExtraction, raw.Format)
	}
}

func (e *ContentExtractor) fromRSS(src *rss.Item, base string) (Item, error) {
	link, err := rssKey(src, base)
	if err != nil {
		return Item{}, err
	}
	page := pageBase(link, base)

	item := Item{
		Link:        link,
		Description: strings.TrimSpace(src.Description),
		Content:     strings.TrimSpace(src.Content),
	}
	item.Title = e.title(src.Title, item)
	item.Published = rssPublished(src)
	item.Author = firstNonEmpty(src.Author, dcCreator(src.DublinCoreExt), itunesAuthor(src.ITunesExt))

	imageSeen := map[string]struct{}{}
	mediaSeen := map[string]struct{}{}

	if enc := src.Enclosure; enc != nil {
		if u := resolveURL(page, enc.URL); u != "" {
			if isImage(enc.Type, u) {
				item.Images = appendUnique(item.Images, imageSeen, u)
			} else {
				item.MediaURLs = appendUnique(item.MediaURLs, mediaSeen, u)
			}
		}
	}

	extImages, extMedia := mediaExtensions(src.Extensions, page)
	item.Images = appendUnique(item.Images, imageSeen, extImages...)
	item.MediaURLs = appendUnique(item.MediaURLs, mediaSeen, extMedia...)

	if src.ITunesExt != nil {
		item.Images = appendUnique(item.Images, imageSeen, resolveURL(page, src.ITunesExt.Image))
		if d, ok := ParseDuration(src.ITunesExt.Duration); ok {
			item.Duration = d
		}
	}

	item.Images = appendUnique(item.Images, imageSeen, imageSources(item.Description, page)...)
	item.Images = appendUnique(item.Images, imageSeen, imageSources(item.Content, page)...)

	tagSeen := map[string]struct{}{}
	for _, c := range src.Categories {
		if c != nil {
			item.Tags = appendUnique(item.Tags, tagSeen, unescape(c.Value))
		}
	}
	if src.DublinCoreExt != nil {
		item.Tags = appendUnique(item.Tags, tagSeen, src.DublinCoreExt.Subject...)
	}

	return item, nil
}

func (e *ContentExtractor) fromAtom(src *atom.Entry, base string) (Item, error) {
	key := atomLink(src)
	if key == "" {
		return Item{}, fmt.Errorf("%w: missing link and id", ErrItemExtraction)
	}
	link := itemLink(key, base)
	page := pageBase(link, base)

	item := Item{
		Link:        link,
		Description: strings.TrimSpace(src.Summary),
	}
	if src.Content != nil {
		item.Content = strings.TrimSpace(src.Content.Value)
	}
	item.Title = e.title(src.Title, item)
	item.Published = atomPublished(src)

	var authors []string
	for _, a := range src.Authors {
		if a != nil && strings.TrimSpace(a.Name) != "" {
			authors = append(authors, strings.TrimSpace(a.Name))
		}
	}
	item.Author = strings.Join(authors, ", ")

	imageSeen := map[string]struct{}{}
	mediaSeen := map[string]struct{}{}

	for _, l := range src.Links {
		if l == nil || l.Rel != "enclosure" {
			continue
		}
		u := resolveURL(page, l.Href)
		if u == "" {
			continue
		}
		if isImage(l.Type, u) {
			item.Images = appendUnique(item.Images, imageSeen, u)
		} else {
			item.MediaURLs = appendUnique(item.MediaURLs, mediaSeen, u)
		}
	}

	extImages, extMedia := mediaExtensions(src.Extensions, page)
	item.Images = appendUnique(item.Images, imageSeen, extImages...)
	item.MediaURLs = appendUnique(item.MediaURLs, mediaSeen, extMedia...)

	if d, ok := ParseDuration(extensionValue(src.Extensions, "itunes", "duration")); ok {
		item.Duration = d
	}

	item.Images = appendUnique(item.Images, imageSeen, imageSources(item.Description, page)...)
	item.Images = appendUnique(item.Images, imageSeen, imageSources(item.Content, page)...)

	tagSeen := map[string]struct{}{}
	for _, c := range src.Categories {
		if c == nil {
			continue
		}
		item.Tags = appendUnique(item.Tags, tagSeen, firstNonEmpty(c.Term, c.Label))
	}

	return item, nil
}

// title falls back to a truncated plain-text description so it is never empty.
func (e *ContentExtractor) title(raw string, item Item) string {
	if title := stripHTML(unescape(raw)); title != "" {
		return title
	}
	if text := stripHTML(item.Description); text != "" {
		return truncate(text, placeholderTitleLen)
	}
	if text := stripHTML(item.Content); text != "" {
		return truncate(text, placeholderTitleLen)
	}
	return untitled
}

// rssKey prefers <link>, then the guid. A permalink guid is treated like a
// link; any other guid is kept verbatim as the item key.
func rssKey(src *rss.Item, base string) (string, error) {
	if link := strings.TrimSpace(src.Link); link != "" {
		return itemLink(link, base), nil
	}
	if src.GUID != nil {
		if guid := strings.TrimSpace(src.GUID.Value); guid != "" {
			if strings.EqualFold(strings.TrimSpace(src.GUID.IsPermalink), "false") {
				return guid, nil
			}
			return itemLink(guid, base), nil
		}
	}
	return "", fmt.Errorf("%w: missing link and guid", ErrItemExtraction)
}

// itemLink resolves relative and http(s) references against base. Other
// identifiers, such as urn: or tag: IRIs, are returned unchanged.
func itemLink(link, base string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if u.Scheme == "" || u.Scheme == "http" || u.Scheme == "https" {
		if resolved := resolveURL(base, link); resolved != "" {
			return resolved
		}
	}
	return link
}

// pageBase is the URL item-relative references resolve against.
func pageBase(link, base string) string {
	if isHTTPURL(link) {
		return link
	}
	return base
}

func atomLink(entry *atom.Entry) string {
	var fallback string
	for _, l := range entry.Links {
		if l == nil || strings.TrimSpace(l.Href) == "" {
			continue
		}
		switch l.Rel {
		case "", "alternate":
			return strings.TrimSpace(l.Href)
		case "enclosure", "self", "edit", "replies":
		default:
			if fallback == "" {
				fallback = strings.TrimSpace(l.Href)
			}
		}
	}
	if fallback != "" {
		return fallback
	}
	return strings.TrimSpace(entry.ID)
}

func rssPublished(item *rss.Item) *time.Time {
	if item.PubDateParsed != nil {
		return utc(*item.PubDateParsed)
	}
	if t := parseDate(item.PubDate); t != nil {
		return t
	}
	if item.DublinCoreExt != nil {
		for _, d := range item.DublinCoreExt.Date {
			if t := parseDate(d); t != nil {
				return t
			}
		}
	}
	return nil
}

func atomPublished(entry *atom.Entry) *time.Time {
	if entry.PublishedParsed != nil {
		return utc(*entry.PublishedParsed)
	}
	if t := parseDate(entry.Published); t != nil {
		return t
	}
	if entry.UpdatedParsed != nil {
		return utc(*entry.UpdatedParsed)
	}
	return parseDate(entry.Updated)
}

// parseDate is the fallback for date strings the feed parser could not
// read. Dates without a zone are taken as UTC. Unparseable input yields nil.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil || t.IsZero() {
		return nil
	}
	return utc(t)
}

func utc(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}

// mediaExtensions collects Media RSS content and thumbnails, split into
// images and other media.
func mediaExtensions(exts ext.Extensions, base string) (images, media []string) {
	group, ok := exts["media"]
	if !ok {
		return nil, nil
	}

	contents := append([]ext.Extension{}, group["content"]...)
	for _, g := range group["group"] {
		contents = append(contents, g.Children["content"]...)
	}

	for _, c := range contents {
		u := resolveURL(base, c.Attrs["url"])
		if u == "" {
			continue
		}
		if c.Attrs["medium"] == "image" || isImage(c.Attrs["type"], u) {
			images = append(images, u)
		} else {
			media = append(media, u)
		}
	}

	for _, t := range group["thumbnail"] {
		if u := resolveURL(base, t.Attrs["url"]); u != "" {
			images = append(images, u)
		}
	}

	return images, media
}

func extensionValue(exts ext.Extensions, namespace, name string) string {
	for _, e := range exts[namespace][name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

// isImage decides by MIME type, or by file extension when no type is given.
func isImage(mimeType, rawURL string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType != "" {
		return strings.HasPrefix(mimeType, "image/")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mime.TypeByExtension(strings.ToLower(path.Ext(u.Path))), "image/")
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func dcCreator(dc *ext.DublinCoreExtension) string {
	if dc == nil {
		return ""
	}
	return firstNonEmpty(dc.Creator...)
}

func itunesAuthor(it *ext.ITunesItemExtension) string {
	if it == nil {
		return ""
	}
	return it.Author
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
