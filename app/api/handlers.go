package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/feed-ingest/app/database"
	"github.com/lysyi3m/feed-ingest/app/feed"
	"github.com/lysyi3m/feed-ingest/app/tasks"
)

const (
	defaultItemLimit = 50
	maxItemLimit     = 500
)

func NewHandler(store Store, scheduler tasks.TaskSchedulerInterface, version, baseURL string, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:     store,
		scheduler: scheduler,
		generator: NewRSSGenerator(version),
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"status":    "ok",
	}
	status := http.StatusOK

	if err := h.store.Ping(c.Request.Context()); err != nil {
		health["status"] = "degraded"
		health["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.scheduler.Health(); err != nil {
		health["status"] = "degraded"
		health["scheduler"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if h.cache != nil {
		if err := h.cache.Health(c.Request.Context()); err != nil {
			health["status"] = "degraded"
			health["cache"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds":        stats.Feeds,
		"active_feeds": stats.ActiveFeeds,
		"items":        stats.Items,
		"scheduler":    h.scheduler.GetStats(),
	})
}

// GetFeedRSS serves the stored items of a feed as RSS, newest first.
func (h *Handler) GetFeedRSS(c *gin.Context) {
	f, ok := h.loadFeed(c)
	if !ok {
		return
	}

	items, err := h.store.ListItems(c.Request.Context(), f.ID, itemLimit(c))
	if err != nil {
		slog.Error("Database error", "operation", "list_items", "feed", f.ID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	feed.SortByRecency(items)

	rss, err := h.generator.Run(*f, items, h.selfLink(c, f.ID))
	if err != nil {
		slog.Error("RSS generation error", "feed", f.ID, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	if f.LastUpdated != nil {
		c.Header("X-Last-Updated", f.LastUpdated.Format(time.RFC3339))
	}

	c.String(http.StatusOK, rss)
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	feeds, err := h.store.ListFeeds(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	out := make([]feedResponse, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, toFeedResponse(f))
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": out,
		"total": len(out),
	})
}

func (h *Handler) APIGetFeedDetails(c *gin.Context) {
	f, ok := h.loadFeed(c)
	if !ok {
		return
	}

	count, err := h.store.CountItems(c.Request.Context(), f.ID)
	if err != nil {
		slog.Error("Database error", "operation", "count_items", "feed", f.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	logs, err := h.store.ListProcessingLogs(c.Request.Context(), f.ID, 10)
	if err != nil {
		slog.Error("Database error", "operation", "list_logs", "feed", f.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	recent := make([]logResponse, 0, len(logs))
	for _, l := range logs {
		recent = append(recent, logResponse{
			Status:         string(l.Status),
			ItemsProcessed: l.ItemsProcessed,
			ErrorMessage:   l.ErrorMessage,
			DurationMs:     l.Duration.Milliseconds(),
			CreatedAt:      l.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"feed":       toFeedResponse(*f),
		"item_count": count,
		"logs":       recent,
	})
}

func (h *Handler) APIListItems(c *gin.Context) {
	f, ok := h.loadFeed(c)
	if !ok {
		return
	}

	items, err := h.store.ListItems(c.Request.Context(), f.ID, itemLimit(c))
	if err != nil {
		slog.Error("Database error", "operation", "list_items", "feed", f.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	feed.SortByRecency(items)

	c.JSON(http.StatusOK, gin.H{
		"items": toItemResponses(items),
		"total": len(items),
	})
}

// APISubscribe adds a feed. The URL must be absolute http(s). Unless
// skip_validation is set, it is also parsed and rejected when it is not a
// usable feed.
func (h *Handler) APISubscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if err := tasks.ValidateFeedURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	existing, err := h.store.GetFeedByURL(ctx, req.URL)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed_by_url", "url", req.URL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Feed already subscribed", "feed": toFeedResponse(*existing)})
		return
	}

	f := database.Feed{
		URL:            req.URL,
		Name:           req.Name,
		Category:       req.Category,
		Active:         true,
		ExtractContent: req.ExtractContent,
	}

	if !req.SkipValidation {
		parsed, err := h.scheduler.ParseFeedAdHoc(ctx, req.URL, feed.ParseOptions{SourceName: req.Name})
		if err != nil {
			h.parseError(c, req.URL, err)
			return
		}
		if f.Name == "" {
			f.Name = parsed.Title
		}
		f.Description = parsed.Description
		if f.Category == "" {
			f.Category = parsed.Category
		}
	}

	created, err := h.store.CreateFeed(ctx, f)
	if errors.Is(err, database.ErrFeedExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "Feed already subscribed"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "create_feed", "url", req.URL, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Feed subscribed", "feed", created.ID, "url", created.URL)
	c.JSON(http.StatusCreated, toFeedResponse(*created))
}

// APIUpdateFeed pauses or resumes scheduled refreshes of a feed.
func (h *Handler) APIUpdateFeed(c *gin.Context) {
	var req updateFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	id := c.Param("id")
	err := h.store.SetFeedActive(c.Request.Context(), id, *req.Active)
	if errors.Is(err, database.ErrFeedNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "set_feed_active", "feed", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	f, ok := h.loadFeed(c)
	if !ok {
		return
	}
	slog.Info("Feed updated", "feed", f.ID, "active", f.Active)
	c.JSON(http.StatusOK, toFeedResponse(*f))
}

func (h *Handler) APIDeleteFeed(c *gin.Context) {
	id := c.Param("id")
	err := h.store.DeleteFeed(c.Request.Context(), id)
	if errors.Is(err, database.ErrFeedNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "delete_feed", "feed", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) APIRefreshFeed(c *gin.Context) {
	id := c.Param("id")

	n, err := h.scheduler.RefreshFeedNow(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "items_processed": n})
	case errors.Is(err, database.ErrFeedNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
	case errors.Is(err, tasks.ErrRefreshInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "Refresh in progress"})
	case errors.Is(err, tasks.ErrSchedulerStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler stopped"})
	default:
		slog.Warn("Manual refresh failed", "feed", id, "error", err)
		c.JSON(statusForParseError(err), gin.H{
			"success":         false,
			"items_processed": n,
			"error":           err.Error(),
		})
	}
}

func (h *Handler) APIParseFeed(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	parsed, err := h.scheduler.ParseFeedAdHoc(c.Request.Context(), strings.TrimSpace(req.URL), feed.ParseOptions{
		SourceName:     req.Name,
		ExtractContent: req.ExtractContent,
	})
	if err != nil {
		h.parseError(c, req.URL, err)
		return
	}

	c.JSON(http.StatusOK, toParsedFeedResponse(parsed))
}

func (h *Handler) parseError(c *gin.Context, url string, err error) {
	status := statusForParseError(err)
	if status >= http.StatusInternalServerError {
		slog.Warn("Feed parse failed", "url", url, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusForParseError(err error) int {
	switch {
	case errors.Is(err, tasks.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, feed.ErrUnparseableFeed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, feed.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, feed.ErrFetchFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) loadFeed(c *gin.Context) (*database.Feed, bool) {
	id := c.Param("id")
	f, err := h.store.GetFeed(c.Request.Context(), id)
	if errors.Is(err, database.ErrFeedNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return nil, false
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, false
	}
	return f, true
}

func (h *Handler) selfLink(c *gin.Context, feedID string) string {
	base := h.baseURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
	}
	return fmt.Sprintf("%s/feeds/%s", base, feedID)
}

func itemLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultItemLimit)))
	if err != nil || limit <= 0 {
		return defaultItemLimit
	}
	return min(limit, maxItemLimit)
}
