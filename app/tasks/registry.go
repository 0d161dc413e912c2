package tasks

import (
	"sync"
	"time"
)

// FeedState is the position of a feed in its refresh cycle.
type FeedState string

const (
	StateIdle     FeedState = "idle"
	StateSelected FeedState = "selected"
	StateFetching FeedState = "fetching"
	StateFailed   FeedState = "failed"
)

type feedEntry struct {
	state        FeedState
	failures     int
	backoffUntil time.Time
}

// Registry tracks which feeds are being refreshed. It is the single
// point where a feed is admitted, so two ticks or a tick and a manual
// refresh can never run the same feed at once.
type Registry struct {
	mu         sync.Mutex
	feeds      map[string]*feedEntry
	maxBackoff time.Duration
	now        func() time.Time
}

func NewRegistry(maxBackoff time.Duration) *Registry {
	return &Registry{
		feeds:      make(map[string]*feedEntry),
		maxBackoff: maxBackoff,
		now:        time.Now,
	}
}

// TryAcquire moves the feed from idle to selected. It fails when the feed
// is already in flight, or when it is backing off after failures and
// force is false.
func (r *Registry) TryAcquire(feedID string, force bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(feedID)
	if e.state == StateSelected || e.state == StateFetching {
		return false
	}
	if !force && r.now().Before(e.backoffUntil) {
		return false
	}
	e.state = StateSelected
	return true
}

func (r *Registry) MarkFetching(feedID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(feedID).state = StateFetching
}

// Release ends a refresh cycle. Failures push the next automatic attempt
// back by 1, 2, 4... minutes up to the configured maximum. A success
// returns the feed to idle and forgets its entry, so only feeds in flight
// or backing off are tracked.
func (r *Registry) Release(feedID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ok {
		delete(r.feeds, feedID)
		return
	}

	e := r.entry(feedID)
	e.state = StateFailed
	e.failures++
	delay := time.Duration(1<<uint(min(e.failures-1, 16))) * time.Minute
	if r.maxBackoff > 0 && delay > r.maxBackoff {
		delay = r.maxBackoff
	}
	e.backoffUntil = r.now().Add(delay)
}

// Cancel returns a selected feed to idle without counting a failure.
// Earlier failures and their backoff are kept.
func (r *Registry) Cancel(feedID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.feeds[feedID]
	if !ok {
		return
	}
	if e.failures == 0 {
		delete(r.feeds, feedID)
		return
	}
	e.state = StateIdle
}

// Tracked is the number of feeds the registry holds state for.
func (r *Registry) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.feeds)
}

func (r *Registry) State(feedID string) FeedState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.feeds[feedID]; ok {
		return e.state
	}
	return StateIdle
}

func (r *Registry) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.feeds {
		if e.state == StateSelected || e.state == StateFetching {
			n++
		}
	}
	return n
}

func (r *Registry) entry(feedID string) *feedEntry {
	e, ok := r.feeds[feedID]
	if !ok {
		e = &feedEntry{state: StateIdle}
		r.feeds[feedID] = e
	}
	return e
}
