package api

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/lysyi3m/feed-ingest/app/database"
	"github.com/lysyi3m/feed-ingest/app/feed"
)

// RSSGenerator renders stored items of a feed as an RSS 2.0 document.
type RSSGenerator struct {
	version string
}

func NewRSSGenerator(version string) *RSSGenerator {
	return &RSSGenerator{version: version}
}

func (g *RSSGenerator) Run(f database.Feed, items []feed.Item, selfLink string) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", cmp.Or(f.Name, f.URL), 4)
	g.writeElement(&buf, "link", f.URL, 4)
	g.writeElement(&buf, "description", cmp.Or(f.Description, fmt.Sprintf("Items ingested from %s", f.URL)), 4)
	if selfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(selfLink)))
	}
	if f.Category != "" {
		g.writeElement(&buf, "category", f.Category, 4)
	}

	lastBuildDate := time.Now().UTC()
	if f.LastUpdated != nil {
		lastBuildDate = *f.LastUpdated
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("feed-ingest/%s", g.version), 4)

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *RSSGenerator) writeItem(buf *bytes.Buffer, item feed.Item) {
	buf.WriteString("    <item>\n")

	permalink := isHTTPURL(item.Link)
	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", permalink))
	xml.EscapeText(buf, []byte(item.Link))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", item.Title, 6)
	if permalink {
		g.writeElement(buf, "link", item.Link, 6)
	}
	g.writeElement(buf, "description", cmp.Or(item.Description, "No description available"), 6)

	if item.Content != "" && item.Content != item.Description {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(item.Content)
		buf.WriteString("]]></content:encoded>\n")
	}

	if item.Published != nil {
		g.writeElement(buf, "pubDate", item.Published.Format(time.RFC1123Z), 6)
	}
	g.writeElement(buf, "author", item.Author, 6)

	for _, tag := range item.Tags {
		g.writeElement(buf, "category", tag, 6)
	}

	// RSS 2.0 allows a single enclosure per item.
	if len(item.MediaURLs) > 0 {
		media := item.MediaURLs[0]
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"0\" type=\"%s\" />\n",
			html.EscapeString(media),
			html.EscapeString(mediaType(media))))
	}

	if item.Duration > 0 {
		g.writeElement(buf, "itunes:duration", item.DisplayDuration(), 6)
	}
	if len(item.Images) > 0 {
		buf.WriteString(fmt.Sprintf("      <itunes:image href=\"%s\" />\n", html.EscapeString(item.Images[0])))
	}

	buf.WriteString("    </item>\n")
}

func (g *RSSGenerator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

var mediaTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
}

func mediaType(rawURL string) string {
	ext := strings.ToLower(path.Ext(stripQuery(rawURL)))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func stripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
