package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/feed-ingest/app/api"
	"github.com/lysyi3m/feed-ingest/app/cache"
	"github.com/lysyi3m/feed-ingest/app/cfg"
	"github.com/lysyi3m/feed-ingest/app/database"
	"github.com/lysyi3m/feed-ingest/app/events"
	"github.com/lysyi3m/feed-ingest/app/feed"
	"github.com/lysyi3m/feed-ingest/app/tasks"
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appConfig == nil {
		// Help was shown
		return
	}

	logCloser := cfg.SetupLogger(appConfig)
	defer logCloser.Close()

	switch appConfig.Command {
	case cfg.CommandMigrate:
		err = runMigrate(appConfig)
	case cfg.CommandParse:
		err = runParse(appConfig)
	case cfg.CommandRefresh:
		err = runRefresh(appConfig)
	default:
		err = runServe(appConfig)
	}

	if err != nil {
		slog.Error("Command failed", "command", appConfig.Command, "error", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func newParser(appConfig *cfg.Cfg) *feed.Parser {
	client := &http.Client{
		Timeout: appConfig.FetchTimeout,
	}
	return feed.NewParser(client, appConfig.UserAgent, appConfig.FetchTimeout)
}

func schedulerConfig(appConfig *cfg.Cfg) tasks.SchedulerConfig {
	config := tasks.DefaultSchedulerConfig()
	config.TickInterval = appConfig.TickInterval
	config.RefreshInterval = appConfig.RefreshInterval
	config.MaxConcurrent = appConfig.MaxConcurrent
	config.FetchTimeout = appConfig.FetchTimeout
	config.StorageTimeout = appConfig.StorageTimeout
	config.StorageRetries = appConfig.StorageRetries
	config.PruneSchedule = appConfig.PruneSchedule
	config.Retention = appConfig.Retention
	return config
}

func runMigrate(appConfig *cfg.Cfg) error {
	db, err := database.NewConnection(appConfig.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	result, err := database.RunMigrations(db)
	if err != nil {
		return err
	}
	if result.Dirty {
		return fmt.Errorf("database schema version %d is dirty", result.To)
	}

	if result.Applied() {
		slog.Info("Migrations applied", "database", appConfig.DBPath, "from", result.From, "to", result.To)
	} else {
		slog.Info("Schema is up to date", "database", appConfig.DBPath, "version", result.To)
	}
	return nil
}

func runParse(appConfig *cfg.Cfg) error {
	ctx, cancel := context.WithTimeout(context.Background(), appConfig.FetchTimeout)
	defer cancel()

	parsed, err := newParser(appConfig).Parse(ctx, appConfig.Target, feed.ParseOptions{})
	if err != nil {
		return err
	}

	for _, w := range parsed.Warnings {
		slog.Warn("Item skipped", "index", w.Index, "title", w.Title, "reason", w.Reason)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(parsed)
}

func runRefresh(appConfig *cfg.Cfg) error {
	store, err := database.Open(appConfig.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	scheduler := tasks.NewScheduler(store, newParser(appConfig), schedulerConfig(appConfig))
	scheduler.StartWorkers()
	defer scheduler.Stop()

	n, err := scheduler.RefreshFeedNow(context.Background(), appConfig.Target)
	if err != nil {
		return err
	}

	fmt.Printf("Refreshed %s: %d items written\n", appConfig.Target, n)
	return nil
}

func runServe(appConfig *cfg.Cfg) error {
	slog.Info("Starting feed-ingest", "version", appConfig.Version)

	store, err := database.Open(appConfig.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	slog.Info("Database ready", "path", appConfig.DBPath)

	var opts []tasks.Option
	var handlerOpts []api.HandlerOption

	subscriptions := feed.NewConfigCache(appConfig.FeedsDir)
	if err := subscriptions.Run(); err != nil {
		slog.Warn("Failed to load subscriptions", "dir", appConfig.FeedsDir, "error", err)
	} else {
		slog.Info("Subscriptions loaded", "count", subscriptions.GetConfigCount())
		opts = append(opts, tasks.WithSubscriptions(subscriptions))
	}

	if appConfig.RedisAddr != "" {
		parseCache, err := cache.NewCache(context.Background(), appConfig.RedisAddr, appConfig.CacheTTL)
		if err != nil {
			slog.Warn("Redis unavailable, ad-hoc parses will not be cached", "addr", appConfig.RedisAddr, "error", err)
		} else {
			defer parseCache.Close()
			opts = append(opts, tasks.WithParseCache(parseCache))
			handlerOpts = append(handlerOpts, api.WithCacheHealth(parseCache))
		}
	}

	if len(appConfig.KafkaBrokers) > 0 {
		publisher, err := events.NewPublisher(events.ProducerConfig{
			Brokers: appConfig.KafkaBrokers,
			Topic:   appConfig.KafkaTopic,
		})
		if err != nil {
			slog.Warn("Kafka unavailable, refresh events disabled", "error", err)
		} else {
			defer publisher.Close()
			opts = append(opts, tasks.WithPublisher(publisher))
		}
	}

	scheduler := tasks.NewScheduler(store, newParser(appConfig), schedulerConfig(appConfig), opts...)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(store, scheduler, appConfig.Version, appConfig.BaseURL, handlerOpts...)

	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      api.NewServer(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: max(60*time.Second, 2*appConfig.FetchTimeout),
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig)
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	return runErr
}
