package api

import (
	"context"
	"time"

	"github.com/lysyi3m/feed-ingest/app/database"
	"github.com/lysyi3m/feed-ingest/app/feed"
	"github.com/lysyi3m/feed-ingest/app/tasks"
)

// Store is the storage surface used by the handlers.
type Store interface {
	ListFeeds(ctx context.Context) ([]database.Feed, error)
	GetFeed(ctx context.Context, feedID string) (*database.Feed, error)
	GetFeedByURL(ctx context.Context, url string) (*database.Feed, error)
	CreateFeed(ctx context.Context, f database.Feed) (*database.Feed, error)
	SetFeedActive(ctx context.Context, feedID string, active bool) error
	DeleteFeed(ctx context.Context, feedID string) error
	CountItems(ctx context.Context, feedID string) (int, error)
	ListItems(ctx context.Context, feedID string, limit int) ([]feed.Item, error)
	ListProcessingLogs(ctx context.Context, feedID string, limit int) ([]database.ProcessingLog, error)
	Stats(ctx context.Context) (database.Stats, error)
	Ping(ctx context.Context) error
}

var _ Store = (*database.Store)(nil)

// HealthChecker is an optional dependency reported by /health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Handler struct {
	store     Store
	scheduler tasks.TaskSchedulerInterface
	generator *RSSGenerator
	baseURL   string
	cache     HealthChecker
}

type HandlerOption func(*Handler)

// WithCacheHealth reports the parse cache in the health check.
func WithCacheHealth(cache HealthChecker) HandlerOption {
	return func(h *Handler) {
		h.cache = cache
	}
}

type subscribeRequest struct {
	URL            string `json:"url" binding:"required"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	ExtractContent bool   `json:"extract_content"`
	SkipValidation bool   `json:"skip_validation"`
}

type updateFeedRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type parseRequest struct {
	URL            string `json:"url" binding:"required"`
	Name           string `json:"name"`
	ExtractContent bool   `json:"extract_content"`
}

type feedResponse struct {
	ID             string     `json:"id"`
	URL            string     `json:"url"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Category       string     `json:"category,omitempty"`
	Active         bool       `json:"active"`
	ExtractContent bool       `json:"extract_content"`
	LastUpdated    *time.Time `json:"last_updated,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type itemResponse struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Description string     `json:"description,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Content     string     `json:"content,omitempty"`
	Published   *time.Time `json:"published,omitempty"`
	Author      string     `json:"author,omitempty"`
	Images      []string   `json:"images,omitempty"`
	MediaURLs   []string   `json:"media_urls,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Duration    string     `json:"duration,omitempty"`
}

type logResponse struct {
	Status         string    `json:"status"`
	ItemsProcessed int       `json:"items_processed"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

type parsedFeedResponse struct {
	SourceURL   string         `json:"source_url"`
	Format      string         `json:"format"`
	Title       string         `json:"title"`
	Link        string         `json:"link,omitempty"`
	Description string         `json:"description,omitempty"`
	Image       string         `json:"image,omitempty"`
	Language    string         `json:"language,omitempty"`
	Category    string         `json:"category,omitempty"`
	Items       []itemResponse `json:"items"`
	Warnings    []string       `json:"warnings,omitempty"`
	FetchedAt   time.Time      `json:"fetched_at"`
}

func toFeedResponse(f database.Feed) feedResponse {
	return feedResponse{
		ID:             f.ID,
		URL:            f.URL,
		Name:           f.Name,
		Description:    f.Description,
		Category:       f.Category,
		Active:         f.Active,
		ExtractContent: f.ExtractContent,
		LastUpdated:    f.LastUpdated,
		CreatedAt:      f.CreatedAt,
	}
}

func toItemResponse(item feed.Item) itemResponse {
	resp := itemResponse{
		ID:          item.ID,
		Title:       item.Title,
		Link:        item.Link,
		Description: item.Description,
		Summary:     item.PlainDescription(),
		Content:     item.Content,
		Published:   item.Published,
		Author:      item.Author,
		Images:      item.Images,
		MediaURLs:   item.MediaURLs,
		Tags:        item.Tags,
	}
	if item.Duration > 0 {
		resp.Duration = item.DisplayDuration()
	}
	return resp
}

func toItemResponses(items []feed.Item) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	return out
}

func toParsedFeedResponse(parsed *feed.ParsedFeed) parsedFeedResponse {
	resp := parsedFeedResponse{
		SourceURL:   parsed.SourceURL,
		Format:      string(parsed.Format),
		Title:       parsed.Title,
		Link:        parsed.Link,
		Description: parsed.Description,
		Image:       parsed.Image,
		Language:    parsed.Language,
		Category:    parsed.Category,
		Items:       toItemResponses(parsed.Items),
		FetchedAt:   parsed.FetchedAt,
	}
	for _, w := range parsed.Warnings {
		resp.Warnings = append(resp.Warnings, w.Error())
	}
	return resp
}
