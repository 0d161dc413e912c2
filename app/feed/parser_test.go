package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"
  xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd"
  xmlns:media="http://search.yahoo.com/mrss/"
  xmlns:content="http://purl.org/rss/1.0/modules/content/"
  xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <description>Test Description</description>
    <language>en-us</language>
    <image>
      <url>https://example.com/icon.png</url>
      <title>Test Feed</title>
      <link>https://example.com</link>
    </image>
    <item>
      <title>Episode 1</title>
      <link>https://example.com/ep1</link>
      <description><![CDATA[<p>First <b>episode</b> <img src="/covers/ep1.jpg"></p>]]></description>
      <content:encoded><![CDATA[<p>Full show notes</p>]]></content:encoded>
      <guid>ep-1</guid>
      <pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate>
      <dc:creator>Jane Host</dc:creator>
      <category>Technology</category>
      <category>Go</category>
      <category>technology</category>
      <category>Go</category>
      <enclosure url="https://cdn.example.com/ep1.mp3" length="1234" type="audio/mpeg"/>
      <media:thumbnail url="https://cdn.example.com/ep1-thumb.jpg"/>
      <itunes:duration>1:02:03</itunes:duration>
      <itunes:image href="https://cdn.example.com/ep1-art.jpg"/>
    </item>
    <item>
      <title>Episode 2</title>
      <guid isPermaLink="true">https://example.com/ep2</guid>
      <description>Second episode</description>
      <pubDate>Mon, 03 Jul 2023 11:00:00 GMT</pubDate>
      <itunes:duration>754</itunes:duration>
    </item>
    <item>
      <title>No link here</title>
      <guid isPermaLink="false">opaque-3</guid>
      <description>Orphan item</description>
    </item>
    <item>
      <description>An item that has no title but a description long enough to be truncated into a placeholder title for display</description>
      <link>/relative/ep4</link>
    </item>
    <item>
      <title>Nothing to key on</title>
      <description>Neither link nor guid</description>
    </item>
  </channel>
</rss>`

const atomFixture = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Feed</title>
  <subtitle>Atom Description</subtitle>
  <link href="https://example.org/" rel="alternate"/>
  <link href="https://example.org/feed.atom" rel="self"/>
  <id>urn:uuid:feed</id>
  <updated>2024-01-03T10:00:00Z</updated>
  <entry>
    <title>Entry One</title>
    <link rel="alternate" href="https://example.org/one"/>
    <link rel="enclosure" type="audio/mpeg" href="https://example.org/one.mp3"/>
    <id>urn:uuid:1</id>
    <published>2024-01-02T10:00:00Z</published>
    <updated>2024-01-02T12:00:00Z</updated>
    <author><name>Alice</name></author>
    <category term="golang"/>
    <summary>Summary one</summary>
    <content type="html">&lt;p&gt;Full text &lt;img src="/img/a.png"&gt;&lt;/p&gt;</content>
  </entry>
  <entry>
    <title>Entry Two</title>
    <id>https://example.org/two</id>
    <updated>2024-01-01T10:00:00Z</updated>
  </entry>
  <entry>
    <title>Entry Three</title>
    <id>urn:uuid:3</id>
    <updated>2024-01-01T09:00:00Z</updated>
  </entry>
</feed>`

func TestParseRSS2(t *testing.T) {
	parser := NewParser(nil, "", time.Second)
	parsed, err := parser.ParseBytes("https://example.com/feed.xml", []byte(rssFixture), ParseOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if parsed.Format != FormatRSS2 {
		t.Errorf("Expected format rss2, got: %s", parsed.Format)
	}
	if parsed.Title != "Test Feed" {
		t.Errorf("Expected title 'Test Feed', got: %s", parsed.Title)
	}
	if parsed.Link != "https://example.com" {
		t.Errorf("Expected link 'https://example.com', got: %s", parsed.Link)
	}
	if parsed.Language != "en-us" {
		t.Errorf("Expected language 'en-us', got: %s", parsed.Language)
	}
	if parsed.Image != "https://example.com/icon.png" {
		t.Errorf("Expected image 'https://example.com/icon.png', got: %s", parsed.Image)
	}

	if len(parsed.Items) != 4 {
		t.Fatalf("Expected 4 items, got: %d", len(parsed.Items))
	}
	if len(parsed.Warnings) != 1 {
		t.Fatalf("Expected 1 warning, got: %d", len(parsed.Warnings))
	}
	if parsed.Warnings[0].Index != 4 || !errors.Is(parsed.Warnings[0], ErrItemExtraction) {
		t.Errorf("Expected extraction warning for item 4, got: %v", parsed.Warnings[0])
	}

	ep1 := parsed.Items[0]
	if ep1.Title != "Episode 1" {
		t.Errorf("Expected title 'Episode 1', got: %s", ep1.Title)
	}
	if ep1.Content != "<p>Full show notes</p>" {
		t.Errorf("Expected content:encoded as content, got: %s", ep1.Content)
	}
	if ep1.PlainDescription() != "First episode" {
		t.Errorf("Expected plain description 'First episode', got: %q", ep1.PlainDescription())
	}
	if ep1.Author != "Jane Host" {
		t.Errorf("Expected author 'Jane Host', got: %s", ep1.Author)
	}
	if ep1.Published == nil || !ep1.Published.Equal(time.Date(2023, 7, 3, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected published 2023-07-03T10:00:00Z, got: %v", ep1.Published)
	}
	if ep1.Duration != time.Hour+2*time.Minute+3*time.Second {
		t.Errorf("Expected duration 1h2m3s, got: %v", ep1.Duration)
	}

	wantTags := []string{"Technology", "Go", "technology"}
	if strings.Join(ep1.Tags, ",") != strings.Join(wantTags, ",") {
		t.Errorf("Expected tags %v, got: %v", wantTags, ep1.Tags)
	}

	wantMedia := []string{"https://cdn.example.com/ep1.mp3"}
	if strings.Join(ep1.MediaURLs, ",") != strings.Join(wantMedia, ",") {
		t.Errorf("Expected media %v, got: %v", wantMedia, ep1.MediaURLs)
	}

	wantImages := []string{
		"https://cdn.example.com/ep1-thumb.jpg",
		"https://cdn.example.com/ep1-art.jpg",
		"https://example.com/covers/ep1.jpg",
	}
	if strings.Join(ep1.Images, ",") != strings.Join(wantImages, ",") {
		t.Errorf("Expected images %v, got: %v", wantImages, ep1.Images)
	}

	ep2 := parsed.Items[1]
	if ep2.Link != "https://example.com/ep2" {
		t.Errorf("Expected permalink guid as link, got: %s", ep2.Link)
	}
	if ep2.Duration != 754*time.Second {
		t.Errorf("Expected duration 754s, got: %v", ep2.Duration)
	}
	if ep2.DisplayDuration() != "12:34" {
		t.Errorf("Expected display duration '12:34', got: %s", ep2.DisplayDuration())
	}

	if opaque := parsed.Items[2]; opaque.Link != "opaque-3" {
		t.Errorf("Expected non-permalink guid kept as key, got: %s", opaque.Link)
	}

	ep4 := parsed.Items[3]
	if ep4.Link != "https://example.com/relative/ep4" {
		t.Errorf("Expected resolved relative link, got: %s", ep4.Link)
	}
	if !strings.HasPrefix(ep4.Title, "An item that has no title") || !strings.HasSuffix(ep4.Title, "…") {
		t.Errorf("Expected truncated placeholder title, got: %s", ep4.Title)
	}
	if ep4.Published != nil {
		t.Errorf("Expected no published date, got: %v", ep4.Published)
	}
}

func TestParseAtom(t *testing.T) {
	parser := NewParser(nil, "", time.Second)
	parsed, err := parser.ParseBytes("https://example.org/feed.atom", []byte(atomFixture), ParseOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if parsed.Format != FormatAtom {
		t.Errorf("Expected format atom, got: %s", parsed.Format)
	}
	if parsed.Title != "Atom Feed" {
		t.Errorf("Expected title 'Atom Feed', got: %s", parsed.Title)
	}
	if parsed.Link != "https://example.org/" {
		t.Errorf("Expected alternate link, got: %s", parsed.Link)
	}
	if parsed.Description != "Atom Description" {
		t.Errorf("Expected subtitle as description, got: %s", parsed.Description)
	}

	if len(parsed.Items) != 3 {
		t.Fatalf("Expected 3 items, got: %d", len(parsed.Items))
	}
	if len(parsed.Warnings) != 0 {
		t.Errorf("Expected no warnings, got: %v", parsed.Warnings)
	}
	if three := parsed.Items[2]; three.Link != "urn:uuid:3" {
		t.Errorf("Expected urn id kept as key, got: %s", three.Link)
	}

	one := parsed.Items[0]
	if one.Link != "https://example.org/one" {
		t.Errorf("Expected alternate link, got: %s", one.Link)
	}
	if one.Author != "Alice" {
		t.Errorf("Expected author 'Alice', got: %s", one.Author)
	}
	if one.Description != "Summary one" {
		t.Errorf("Expected summary as description, got: %s", one.Description)
	}
	if !strings.Contains(one.Content, "Full text") {
		t.Errorf("Expected html content, got: %s", one.Content)
	}
	if one.Published == nil || !one.Published.Equal(time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected published date from <published>, got: %v", one.Published)
	}
	if len(one.MediaURLs) != 1 || one.MediaURLs[0] != "https://example.org/one.mp3" {
		t.Errorf("Expected enclosure media URL, got: %v", one.MediaURLs)
	}
	if len(one.Images) != 1 || one.Images[0] != "https://example.org/img/a.png" {
		t.Errorf("Expected resolved content image, got: %v", one.Images)
	}
	if len(one.Tags) != 1 || one.Tags[0] != "golang" {
		t.Errorf("Expected tag 'golang', got: %v", one.Tags)
	}

	two := parsed.Items[1]
	if two.Link != "https://example.org/two" {
		t.Errorf("Expected id as link fallback, got: %s", two.Link)
	}
	if two.Published == nil || !two.Published.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected published to fall back to updated, got: %v", two.Published)
	}
}

func TestParseMalformedXML(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"truncated", `<?xml version="1.0"?><rss version="2.0"><channel><title>Broken`},
		{"two roots", `<rss version="2.0"><channel><title>A</title></channel></rss><rss version="2.0"></rss>`},
		{"html page", `<html><body><p>Not a feed</p></body></html>`},
		{"plain text", `just some text`},
	}

	parser := NewParser(nil, "", time.Second)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := parser.ParseBytes("https://example.com/feed", []byte(tt.data), ParseOptions{})
			if !errors.Is(err, ErrUnparseableFeed) {
				t.Errorf("Expected ErrUnparseableFeed, got: %v", err)
			}
			if parsed != nil {
				t.Errorf("Expected no parsed feed, got %d items", len(parsed.Items))
			}
		})
	}
}

func TestParseTitleFallback(t *testing.T) {
	data := `<rss version="2.0"><channel><item><title>A</title><link>https://example.com/a</link></item></channel></rss>`
	parser := NewParser(nil, "", time.Second)

	parsed, err := parser.ParseBytes("https://feeds.example.net/rss", []byte(data), ParseOptions{SourceName: "My Source"})
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Title != "My Source" {
		t.Errorf("Expected source name fallback, got: %s", parsed.Title)
	}

	parsed, err = parser.ParseBytes("https://feeds.example.net/rss", []byte(data), ParseOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Title != "feeds.example.net" {
		t.Errorf("Expected host fallback, got: %s", parsed.Title)
	}
}

func TestParseRSSWithHTMLEntities(t *testing.T) {
	data := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Tom &amp; Jerry</title>
    <item>
      <title>Cats &amp;amp; Mice</title>
      <link>https://example.com/1</link>
    </item>
    <item>
      <title><![CDATA[<b>Bold</b> &quot;quoted&quot;]]></title>
      <link>https://example.com/2</link>
    </item>
  </channel>
</rss>`

	parser := NewParser(nil, "", time.Second)
	parsed, err := parser.ParseBytes("https://example.com/feed", []byte(data), ParseOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if parsed.Title != "Tom & Jerry" {
		t.Errorf("Expected 'Tom & Jerry', got: %s", parsed.Title)
	}
	if parsed.Items[0].Title != "Cats & Mice" {
		t.Errorf("Expected 'Cats & Mice', got: %s", parsed.Items[0].Title)
	}
	if parsed.Items[1].Title != `Bold "quoted"` {
		t.Errorf("Expected 'Bold \"quoted\"', got: %s", parsed.Items[1].Title)
	}
}

func TestParseFetch(t *testing.T) {
	var userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFixture)
	}))
	defer server.Close()

	parser := NewParser(server.Client(), "test-agent/1.0", time.Second)
	parsed, err := parser.Parse(context.Background(), server.URL+"/feed.xml", ParseOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if parsed.SourceURL != server.URL+"/feed.xml" {
		t.Errorf("Expected source URL to be recorded, got: %s", parsed.SourceURL)
	}
	if len(parsed.Items) != 4 {
		t.Errorf("Expected 4 items, got: %d", len(parsed.Items))
	}
	if userAgent != "test-agent/1.0" {
		t.Errorf("Expected user agent 'test-agent/1.0', got: %s", userAgent)
	}
}

func TestParseFetchErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	tests := []struct {
		path       string
		wantErr    error
		wantStatus int
	}{
		{"/missing", ErrFetchFailed, http.StatusNotFound},
		{"/broken", ErrFetchFailed, http.StatusInternalServerError},
		{"/slow", ErrTimeout, 0},
	}

	parser := NewParser(server.Client(), "", 100*time.Millisecond)
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			parsed, err := parser.Parse(context.Background(), server.URL+tt.path, ParseOptions{})
			if parsed != nil {
				t.Errorf("Expected no parsed feed")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got: %v", tt.wantErr, err)
			}
			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("Expected *FetchError, got %T", err)
			}
			if fetchErr.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, fetchErr.StatusCode)
			}
		})
	}
}

func TestParseFetchTimeoutIsNotFetchFailed(t *testing.T) {
	err := error(&FetchError{URL: "https://example.com", Err: fmt.Errorf("%w: deadline", ErrTimeout)})
	if errors.Is(err, ErrFetchFailed) {
		t.Error("Expected timeout not to match ErrFetchFailed")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Error("Expected timeout to match ErrTimeout")
	}
}

func TestParseExtractContent(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<rss version="2.0"><channel><title>Blog</title>
<item><title>Post</title><link>%s/post</link><description>Teaser</description></item>
</channel></rss>`, server.URL)
	})
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, articlePage)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	parser := NewParser(server.Client(), "", time.Second)
	parsed, err := parser.Parse(context.Background(), server.URL+"/feed.xml", ParseOptions{ExtractContent: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(parsed.Items))
	}
	if !strings.Contains(parsed.Items[0].Content, "main content of the article") {
		t.Errorf("Expected extracted article content, got: %s", parsed.Items[0].Content)
	}
	if parsed.Items[0].Description != "Teaser" {
		t.Errorf("Expected description to stay untouched, got: %s", parsed.Items[0].Description)
	}
}
