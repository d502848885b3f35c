package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lysyi3m/feed-archiver/app/cfg"
	"github.com/lysyi3m/feed-archiver/app/database"
	"github.com/lysyi3m/feed-archiver/app/feed"
	"github.com/lysyi3m/feed-archiver/app/tasks"
)

func NewHandler(db Pinger, itemRepo database.ItemStore, fetchState database.FetchStateStore,
	configCache *feed.ConfigCache, feedURLs []string, scheduler tasks.TaskSchedulerInterface,
	gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		db:          db,
		itemRepo:    itemRepo,
		fetchState:  fetchState,
		configCache: configCache,
		feedURLs:    feedURLs,
		scheduler:   scheduler,
		gatherer:    gatherer,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   cfg.GetVersion(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		health["status"] = "unavailable"
		health["database"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	health["status"] = "ok"
	health["loaded_configurations"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	items, err := h.itemRepo.Stats(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "item_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	fetchStats, err := h.fetchState.Stats(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "fetch_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	stats := map[string]interface{}{
		"items":       items,
		"fetch_state": fetchStats,
	}

	if last, ok := h.scheduler.LastCycle(); ok {
		stats["last_cycle"] = last
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListFeeds(c *gin.Context) {
	configs := h.configCache.Configs(h.feedURLs)

	feeds := make([]map[string]interface{}, 0, len(configs))
	for _, feedConfig := range configs {
		feeds = append(feeds, map[string]interface{}{
			"name":            feedConfig.Name,
			"url":             feedConfig.URL,
			"feed_type":       feedConfig.FeedType,
			"tags":            feedConfig.Tags,
			"timeout":         feedConfig.GetTimeout().String(),
			"extract_content": feedConfig.ExtractsContent(),
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}
