package feed

import (
	"errors"
	"fmt"
)

var (
	ErrFetchFailed     = errors.New("fetch failed")
	ErrTimeout         = errors.New("timeout")
	ErrUnparseableFeed = errors.New("unparseable feed")
	ErrItemExtraction  = errors.New("item extraction warning")
)

// FetchError describes a failed feed download.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if errors.Is(e.Err, ErrTimeout) {
		return []error{e.Err}
	}
	if e.Err == nil {
		return []error{ErrFetchFailed}
	}
	return []error{ErrFetchFailed, e.Err}
}

// ItemWarning records an item that was dropped or degraded during extraction.
// It never aborts processing of the rest of the feed.
type ItemWarning struct {
	Index  int
	Title  string
	Reason string
}

func (w ItemWarning) Error() string {
	if w.Title != "" {
		return fmt.Sprintf("item %d (%q): %s", w.Index, w.Title, w.Reason)
	}
	return fmt.Sprintf("item %d: %s", w.Index, w.Reason)
}

func (w ItemWarning) Unwrap() error {
	return ErrItemExtraction
}
