package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "none"
	}
}

const (
	atomNamespace   = "http://www.w3.org/2005/Atom"
	atom03Namespace = "http://purl.org/atom/ns#"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Detection is the outcome of classifying a feed document.
// Err holds the XML error when Format is FormatUnknown because the
// document could not be read.
type Detection struct {
	Format     Format
	Confidence Confidence
	Root       string
	Err        error
}

// DetectFormat classifies raw feed bytes by root element and namespace.
// The whole document is scanned so that malformed XML is reported as
// unknown rather than surfacing later from the item parser.
func DetectFormat(data []byte) Detection {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return Detection{Format: FormatUnknown, Err: errors.New("empty document")}
	}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.Entity = xml.HTMLEntity
	decoder.CharsetReader = charset.NewReaderLabel

	var root *xml.StartElement
	depth := 0
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Detection{Format: FormatUnknown, Err: err}
		}

		switch t := token.(type) {
		case xml.StartElement:
			if root == nil {
				start := t.Copy()
				root = &start
			} else if depth == 0 {
				return Detection{Format: FormatUnknown, Err: fmt.Errorf("multiple root elements: <%s> after <%s>", t.Name.Local, root.Name.Local)}
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}

	if root == nil {
		return Detection{Format: FormatUnknown, Err: errors.New("no root element")}
	}
	if depth != 0 {
		return Detection{Format: FormatUnknown, Root: root.Name.Local, Err: errors.New("unbalanced document")}
	}

	return classifyRoot(*root)
}

func classifyRoot(root xml.StartElement) Detection {
	name := strings.ToLower(root.Name.Local)
	detection := Detection{Format: FormatUnknown, Root: root.Name.Local}

	switch name {
	case "rss":
		detection.Format = FormatRSS2
		detection.Confidence = ConfidenceMedium
		if strings.HasPrefix(attr(root, "version"), "2.") {
			detection.Confidence = ConfidenceHigh
		}
	case "rdf":
		// RSS 1.0 shares the RSS item model
		detection.Format = FormatRSS2
		detection.Confidence = ConfidenceMedium
	case "feed":
		detection.Format = FormatAtom
		switch root.Name.Space {
		case atomNamespace:
			detection.Confidence = ConfidenceHigh
		case atom03Namespace:
			detection.Confidence = ConfidenceMedium
		default:
			detection.Confidence = ConfidenceMedium
		}
	default:
		detection.Err = fmt.Errorf("unrecognized root element <%s>", root.Name.Local)
	}

	return detection
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value)
		}
	}
	return ""
}
