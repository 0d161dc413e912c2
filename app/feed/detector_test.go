package feed

import (
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		format     Format
		confidence Confidence
		wantErr    bool
	}{
		{
			name:       "rss 2.0",
			data:       `<?xml version="1.0"?><rss version="2.0"><channel><title>x</title></channel></rss>`,
			format:     FormatRSS2,
			confidence: ConfidenceHigh,
		},
		{
			name:       "rss without version",
			data:       `<rss><channel></channel></rss>`,
			format:     FormatRSS2,
			confidence: ConfidenceMedium,
		},
		{
			name:       "rss 0.91",
			data:       `<rss version="0.91"><channel></channel></rss>`,
			format:     FormatRSS2,
			confidence: ConfidenceMedium,
		},
		{
			name:       "rdf",
			data:       `<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns="http://purl.org/rss/1.0/"><channel></channel></rdf:RDF>`,
			format:     FormatRSS2,
			confidence: ConfidenceMedium,
		},
		{
			name:       "atom 1.0",
			data:       `<feed xmlns="http://www.w3.org/2005/Atom"><title>x</title></feed>`,
			format:     FormatAtom,
			confidence: ConfidenceHigh,
		},
		{
			name:       "atom without namespace",
			data:       `<feed><title>x</title></feed>`,
			format:     FormatAtom,
			confidence: ConfidenceMedium,
		},
		{
			name:       "byte order mark",
			data:       "\xEF\xBB\xBF<rss version=\"2.0\"><channel></channel></rss>",
			format:     FormatRSS2,
			confidence: ConfidenceHigh,
		},
		{
			name:       "html entity in text",
			data:       `<rss version="2.0"><channel><title>Caf&eacute; &nbsp;news</title></channel></rss>`,
			format:     FormatRSS2,
			confidence: ConfidenceHigh,
		},
		{
			name:       "latin-1 prolog",
			data:       "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><rss version=\"2.0\"><channel><title>Caf\xe9</title></channel></rss>",
			format:     FormatRSS2,
			confidence: ConfidenceHigh,
		},
		{name: "empty", data: "", format: FormatUnknown, wantErr: true},
		{name: "whitespace", data: "  \n\t", format: FormatUnknown, wantErr: true},
		{name: "plain text", data: "hello world", format: FormatUnknown, wantErr: true},
		{name: "html", data: `<html><body></body></html>`, format: FormatUnknown, wantErr: true},
		{name: "truncated", data: `<rss version="2.0"><channel><title>x`, format: FormatUnknown, wantErr: true},
		{name: "multiple roots", data: `<rss></rss><feed></feed>`, format: FormatUnknown, wantErr: true},
		{name: "json", data: `{"version": "https://jsonfeed.org/version/1"}`, format: FormatUnknown, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectFormat([]byte(tt.data))
			if got.Format != tt.format {
				t.Errorf("Expected format %s, got %s", tt.format, got.Format)
			}
			if got.Confidence != tt.confidence {
				t.Errorf("Expected confidence %s, got %s", tt.confidence, got.Confidence)
			}
			if tt.wantErr && got.Err == nil {
				t.Error("Expected detection error to be retained")
			}
			if !tt.wantErr && got.Err != nil {
				t.Errorf("Expected no detection error, got %v", got.Err)
			}
		})
	}
}

func TestDetectFormatNeverPanics(t *testing.T) {
	inputs := [][]byte{
		nil,
		{0x00, 0x01, 0x02},
		[]byte("<"),
		[]byte("<?xml"),
		[]byte("<!DOCTYPE rss><rss"),
		[]byte("</rss>"),
	}
	for _, data := range inputs {
		got := DetectFormat(data)
		if got.Format != FormatUnknown {
			t.Errorf("Expected unknown for %q, got %s", data, got.Format)
		}
	}
}
