package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/feed-ingest/app/database"
	"github.com/lysyi3m/feed-ingest/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const taskTimeout = 5 * time.Minute

type SchedulerConfig struct {
	TickInterval    time.Duration
	RefreshInterval time.Duration
	MaxConcurrent   int
	FetchTimeout    time.Duration
	StorageTimeout  time.Duration
	StorageRetries  int
	QueueSize       int
	PruneSchedule   string // cron schedule, empty disables pruning
	Retention       time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval:    time.Minute,
		RefreshInterval: 15 * time.Minute,
		MaxConcurrent:   5,
		FetchTimeout:    30 * time.Second,
		StorageTimeout:  10 * time.Second,
		StorageRetries:  3,
		QueueSize:       300,
		PruneSchedule:   "0 2 * * *",
		Retention:       90 * 24 * time.Hour,
	}
}

// TickResult summarizes one scheduling pass.
type TickResult struct {
	Due       int
	Admitted  int
	Skipped   int
	Succeeded int
	Partial   int
	Failed    int
	Duration  time.Duration
}

type Stats struct {
	Workers     int        `json:"workers"`
	QueueLength int        `json:"queue_length"`
	InFlight    int        `json:"in_flight"`
	Ticks       int64      `json:"ticks"`
	Refreshes   int64      `json:"refreshes"`
	Failures    int64      `json:"failures"`
	LastTick    *time.Time `json:"last_tick,omitempty"`
}

type Option func(*Scheduler)

func WithPublisher(p EventPublisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

func WithParseCache(c ParseCache) Option {
	return func(s *Scheduler) { s.cache = c }
}

// WithSubscriptions seeds the gateway from the given subscriptions on Start.
func WithSubscriptions(cc *feed.ConfigCache) Option {
	return func(s *Scheduler) { s.subscriptions = cc }
}

type Scheduler struct {
	gateway       database.Gateway
	parser        FeedParser
	registry      *Registry
	publisher     EventPublisher
	cache         ParseCache
	subscriptions *feed.ConfigCache
	config        SchedulerConfig
	retry         RetryPolicy
	cron          *cron.Cron
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	workersOnce   sync.Once
	started       atomic.Bool
	taskQueue     chan TaskInterface

	ticking   atomic.Int32
	ticks     atomic.Int64
	refreshes atomic.Int64
	failures  atomic.Int64
	lastTick  atomic.Pointer[time.Time]
}

func NewScheduler(gateway database.Gateway, parser FeedParser, config SchedulerConfig, opts ...Option) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = defaults.RefreshInterval
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = defaults.MaxConcurrent
	}
	if config.StorageRetries <= 0 {
		config.StorageRetries = defaults.StorageRetries
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}

	ctx, cancel := context.WithCancel(context.Background())

	retry := DefaultRetryPolicy()
	retry.Attempts = config.StorageRetries
	retry.Timeout = config.StorageTimeout

	s := &Scheduler{
		gateway:   gateway,
		parser:    parser,
		registry:  NewRegistry(config.RefreshInterval),
		config:    config,
		retry:     retry,
		cron:      cron.New(),
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, config.QueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Start launches the worker pool, seeds subscriptions, schedules pruning
// and begins ticking. Each tick runs in its own goroutine so a slow tick
// never delays the next one.
func (s *Scheduler) Start() {
	s.StartWorkers()
	s.started.Store(true)

	if pruner, ok := s.gateway.(Pruner); ok && s.config.PruneSchedule != "" {
		_, err := s.cron.AddFunc(s.config.PruneSchedule, func() {
			if err := s.EnqueueTask(NewPruneTask(pruner, s.config.Retention, s.retry)); err != nil {
				slog.Warn("Failed to enqueue PruneTask", "error", err)
			}
		})
		if err != nil {
			slog.Error("Failed to schedule pruning", "schedule", s.config.PruneSchedule, "error", err)
		} else {
			s.cron.Start()
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.TickInterval)
		defer ticker.Stop()

		s.syncSubscriptions()
		s.goTick()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.goTick()
			}
		}
	}()

	slog.Info("Scheduler started",
		"workers", s.config.MaxConcurrent,
		"tick", s.config.TickInterval,
		"refresh_interval", s.config.RefreshInterval)
}

// StartWorkers launches the worker pool only. Start calls it; it is safe
// to call more than once.
func (s *Scheduler) StartWorkers() {
	s.workersOnce.Do(func() {
		for i := 0; i < s.config.MaxConcurrent; i++ {
			s.wg.Add(1)
			go s.worker(i)
		}
	})
}

func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.started.Store(false)
	slog.Info("Scheduler stopped")
}

// EnqueueTask queues a task without blocking.
func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return ErrSchedulerStopped
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return ErrSchedulerStopped
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) goTick() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Tick(s.ctx)
	}()
}

// Tick admits every due feed into the worker pool and waits until all
// admitted refreshes finish. Feeds beyond the pool size wait in the
// queue for a free worker.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	s.StartWorkers()

	start := time.Now()
	var result TickResult

	if s.ticking.Add(1) > 1 {
		slog.Warn("Scheduler tick overrun, in-flight feeds will be skipped")
	}
	defer s.ticking.Add(-1)

	s.ticks.Add(1)
	now := time.Now().UTC()
	s.lastTick.Store(&now)

	feeds, err := withRetry(ctx, s.retry, "list feeds due", func(ctx context.Context) ([]database.Feed, error) {
		return s.gateway.ListActiveFeedsDue(ctx, now, s.config.RefreshInterval)
	})
	if err != nil {
		slog.Error("Failed to list feeds due", "error", err)
		result.Duration = time.Since(start)
		return result
	}
	result.Due = len(feeds)

	var admitted []*RefreshFeedTask
enqueue:
	for _, f := range feeds {
		if !s.registry.TryAcquire(f.ID, false) {
			slog.Debug("Feed skipped", "feed", f.ID, "state", s.registry.State(f.ID))
			result.Skipped++
			continue
		}

		task := s.newRefreshTask(f)
		select {
		case s.taskQueue <- task:
			admitted = append(admitted, task)
		case <-ctx.Done():
			s.registry.Cancel(f.ID)
			break enqueue
		case <-s.ctx.Done():
			s.registry.Cancel(f.ID)
			break enqueue
		}
	}
	result.Admitted = len(admitted)

	for _, task := range admitted {
		select {
		case r := <-task.Done():
			switch r.Status {
			case database.StatusSuccess:
				result.Succeeded++
			case database.StatusPartial:
				result.Partial++
			default:
				result.Failed++
			}
		case <-ctx.Done():
			result.Duration = time.Since(start)
			return result
		case <-s.ctx.Done():
			result.Duration = time.Since(start)
			return result
		}
	}

	result.Duration = time.Since(start)
	if result.Due > 0 {
		slog.Info("Tick completed",
			"due", result.Due,
			"admitted", result.Admitted,
			"skipped", result.Skipped,
			"succeeded", result.Succeeded,
			"partial", result.Partial,
			"failed", result.Failed,
			"duration", result.Duration)
	}
	return result
}

// RefreshFeedNow refreshes one feed regardless of its interval or backoff
// and returns the number of items written. A feed already being refreshed
// is rejected with ErrRefreshInProgress.
func (s *Scheduler) RefreshFeedNow(ctx context.Context, feedID string) (int, error) {
	s.StartWorkers()

	f, err := withRetry(ctx, s.retry, "get feed", func(ctx context.Context) (*database.Feed, error) {
		return s.gateway.GetFeed(ctx, feedID)
	})
	if err != nil {
		return 0, err
	}

	if !s.registry.TryAcquire(f.ID, true) {
		return 0, fmt.Errorf("%w: %s", ErrRefreshInProgress, f.ID)
	}

	task := s.newRefreshTask(*f)
	select {
	case s.taskQueue <- task:
	case <-ctx.Done():
		s.registry.Cancel(f.ID)
		return 0, ctx.Err()
	case <-s.ctx.Done():
		s.registry.Cancel(f.ID)
		return 0, ErrSchedulerStopped
	}

	select {
	case r := <-task.Done():
		return r.ItemsProcessed, r.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.ctx.Done():
		return 0, ErrSchedulerStopped
	}
}

// ValidateFeedURL accepts absolute http(s) URLs with a host.
func ValidateFeedURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return nil
}

// ParseFeedAdHoc parses a URL without touching storage.
func (s *Scheduler) ParseFeedAdHoc(ctx context.Context, rawURL string, opts feed.ParseOptions) (*feed.ParsedFeed, error) {
	if err := ValidateFeedURL(rawURL); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if parsed, ok := s.cache.Get(ctx, rawURL, opts); ok {
			slog.Debug("Ad-hoc parse served from cache", "url", rawURL)
			return parsed, nil
		}
	}

	parseCtx := ctx
	if s.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		parseCtx, cancel = context.WithTimeout(ctx, s.config.FetchTimeout)
		defer cancel()
	}

	parsed, err := s.parser.Parse(parseCtx, rawURL, opts)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, rawURL, opts, parsed)
	}
	return parsed, nil
}

func (s *Scheduler) GetStats() Stats {
	return Stats{
		Workers:     s.config.MaxConcurrent,
		QueueLength: len(s.taskQueue),
		InFlight:    s.registry.InFlight(),
		Ticks:       s.ticks.Load(),
		Refreshes:   s.refreshes.Load(),
		Failures:    s.failures.Load(),
		LastTick:    s.lastTick.Load(),
	}
}

func (s *Scheduler) Health() error {
	if s.ctx.Err() != nil {
		return ErrSchedulerStopped
	}
	if !s.started.Load() {
		return fmt.Errorf("scheduler not started")
	}
	return nil
}

func (s *Scheduler) newRefreshTask(f database.Feed) *RefreshFeedTask {
	return NewRefreshFeedTask(f, s.gateway, s.parser, s.registry, s.publisher, s.retry, s.config.FetchTimeout)
}

func (s *Scheduler) syncSubscriptions() {
	if s.subscriptions == nil {
		return
	}
	store, ok := s.gateway.(SubscriptionStore)
	if !ok {
		slog.Warn("Storage does not accept subscriptions, skipping seed")
		return
	}

	subs := s.subscriptions.GetConfigs()
	slog.Debug("Syncing subscriptions", "count", len(subs))

	for _, sub := range subs {
		task := NewSyncSubscriptionTask(sub, store)
		task.Start()
		if err := task.Execute(s.ctx); err != nil {
			slog.Warn("Failed to sync subscription", "subscription", sub.Name, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Worker task panicked", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "panic", r)
		}
	}()

	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)

	if task.GetType() == TaskTypeRefreshFeed {
		s.refreshes.Add(1)
		if err != nil {
			s.failures.Add(1)
		}
	}

	if err != nil {
		slog.Debug("Worker task execution failed",
			"worker_id", workerID,
			"type", string(task.GetType()),
			"id", task.GetID(),
			"feed", task.GetFeedID(),
			"error", err)
	}
}
