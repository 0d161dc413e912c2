package feed

import (
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var textPolicy = bluemonday.StrictPolicy()

// stripHTML removes all markup and collapses whitespace.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	text := html.UnescapeString(textPolicy.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}

// imageSources returns the src of every <img> in an HTML fragment,
// resolved against base.
func imageSources(fragment, base string) []string {
	if !strings.Contains(fragment, "<img") && !strings.Contains(fragment, "<IMG") {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil
	}

	var sources []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			src, ok = s.Attr("data-src")
		}
		if !ok {
			return
		}
		if resolved := resolveURL(base, src); resolved != "" {
			sources = append(sources, resolved)
		}
	})
	return sources
}

// resolveURL makes ref absolute against base. Only http(s) results are kept.
func resolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if !refURL.IsAbs() && base != "" {
		if baseURL, err := url.Parse(base); err == nil {
			refURL = baseURL.ResolveReference(refURL)
		}
	}
	if refURL.Scheme != "http" && refURL.Scheme != "https" {
		return ""
	}
	return refURL.String()
}

// appendUnique appends values not already present, keeping first-seen order.
// Keys are compared after NFC normalization so visually identical strings collapse.
func appendUnique(dst []string, seen map[string]struct{}, values ...string) []string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := norm.NFC.String(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxLen])) + "…"
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
