package database

import (
	"time"
)

type Feed struct {
	ID             string // Database UUID
	URL            string // unique subscription URL
	Name           string
	Description    string
	Category       string
	Active         bool
	ExtractContent bool       // fetch item pages for the full article
	LastUpdated    *time.Time // last successful or partial refresh
	CreatedAt      time.Time
}

type ProcessingStatus string

const (
	StatusSuccess ProcessingStatus = "success"
	StatusError   ProcessingStatus = "error"
	StatusPartial ProcessingStatus = "partial"
)

// ProcessingLog is an append-only record of one refresh attempt.
type ProcessingLog struct {
	ID             string
	FeedID         string
	Status         ProcessingStatus
	ItemsProcessed int
	ErrorMessage   string
	Duration       time.Duration
	CreatedAt      time.Time
}

type Stats struct {
	Feeds       int
	ActiveFeeds int
	Items       int
}
