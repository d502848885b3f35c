package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lysyi3m/feed-archiver/app/api"
	"github.com/lysyi3m/feed-archiver/app/cfg"
	"github.com/lysyi3m/feed-archiver/app/content"
	"github.com/lysyi3m/feed-archiver/app/database"
	"github.com/lysyi3m/feed-archiver/app/enrich"
	"github.com/lysyi3m/feed-archiver/app/feed"
	"github.com/lysyi3m/feed-archiver/app/metrics"
	"github.com/lysyi3m/feed-archiver/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	setupLogger(appCfg.Debug)

	slog.Info("Starting Feed Archiver", "version", appCfg.Version, "db_driver", appCfg.DBDriver, "fetcher", appCfg.Fetcher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, appCfg.DBDriver, appCfg.DSN(), appCfg.DBConnectTimeout)
	if err != nil {
		fatal("Failed to connect to database", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		fatal("Failed to run migrations", err)
	}
	slog.Info("Database ready", "schema_version", version, "dirty", dirty)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sink := metrics.NewPrometheus(registry)

	configCache := feed.NewConfigCache(appCfg.FeedsDir)
	if err := configCache.Run(); err != nil {
		fatal("Failed to load feed configurations", err)
	}
	slog.Info("Feed configurations loaded", "count", configCache.GetConfigCount(), "extra_urls", len(appCfg.FeedURLs))

	itemRepo := database.NewItemRepository(db)
	fetchStateRepo := database.NewFetchStateRepository(db)

	sanitizer := feed.NewSanitizer()
	validator := feed.NewValidator(sanitizer, sink)
	source := feed.NewFetcher(feed.NewHTTPClient(appCfg.FetchTimeout), appCfg.UserAgent)

	enricher, closeFetcher := newEnricher(ctx, appCfg, sanitizer, fetchStateRepo, sink)
	defer closeFetcher()

	scheduler := tasks.NewScheduler(configCache, source, validator, enricher, itemRepo, sink, tasks.SchedulerOptions{
		Interval:           appCfg.IngestInterval,
		MaxConcurrentFeeds: appCfg.MaxConcurrentFeeds,
		FeedURLs:           appCfg.FeedURLs,
	})
	scheduler.Start()

	handler := api.NewHandler(db, itemRepo, fetchStateRepo, configCache, appCfg.FeedURLs, scheduler, registry)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErr:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	scheduler.Stop()

	slog.Info("Feed Archiver stopped")
}

// newEnricher builds the enrichment gate for the configured fetcher. The
// returned interface is nil when enrichment is switched off.
func newEnricher(ctx context.Context, appCfg *cfg.Cfg, sanitizer *feed.Sanitizer,
	store database.FetchStateStore, sink metrics.Sink) (tasks.Enricher, func()) {
	extractor := content.NewExtractor(sanitizer)
	limiter := content.NewHostRateLimiter(appCfg.HostRateInterval)

	var fetcher content.Fetcher
	closeFn := func() {}

	switch appCfg.Fetcher {
	case cfg.FetcherNone:
		slog.Info("Live content enrichment disabled")
		return nil, closeFn
	case cfg.FetcherBrowser:
		browser, err := content.NewBrowserFetcher(ctx, appCfg.ChromeURL, extractor, limiter, appCfg.FetchTimeout, appCfg.DBConnectTimeout)
		if err != nil {
			fatal("Failed to connect to browser", err)
		}
		fetcher = browser
		closeFn = browser.Close
	default:
		fetcher = content.NewHTTPFetcher(feed.NewHTTPClient(appCfg.FetchTimeout), extractor, limiter, appCfg.UserAgent, appCfg.FetchTimeout)
	}

	gate := enrich.NewGate(store, fetcher, sink, enrich.Options{
		Cooldown:    appCfg.Cooldown,
		MaxFailures: appCfg.MaxFetchFailures,
	})

	return gate, closeFn
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
