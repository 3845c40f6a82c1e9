package collect

import (
	"context"
	"log/slog"
	"time"

	"github.com/TobiSchelling/NewsSense/internal/config"
	"github.com/TobiSchelling/NewsSense/internal/logger"
	"github.com/TobiSchelling/NewsSense/internal/news"
)

// CategoryFetcher returns the articles for one category.
type CategoryFetcher interface {
	FetchCategory(ctx context.Context, category string, pageSize int) ([]news.Article, error)
}

// Options configures a Collector. Nil sources are skipped.
type Options struct {
	Categories []string
	PageSize   int
	NewsAPI    CategoryFetcher
	Feeds      *FeedSource
	Enricher   *Enricher
	Logger     *slog.Logger
}

// Collector aggregates articles from NewsAPI categories and RSS feeds.
type Collector struct {
	categories []string
	pageSize   int
	newsAPI    CategoryFetcher
	feeds      *FeedSource
	enricher   *Enricher
	log        *slog.Logger
}

// New creates a collector from explicit options.
func New(opts Options) *Collector {
	categories := opts.Categories
	if len(categories) == 0 {
		categories = news.DefaultCategories
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Collector{
		categories: categories,
		pageSize:   pageSize,
		newsAPI:    opts.NewsAPI,
		feeds:      opts.Feeds,
		enricher:   opts.Enricher,
		log:        logger.OrDiscard(opts.Logger),
	}
}

// NewCollector creates a collector wired from configuration.
func NewCollector(cfg *config.Config, log *slog.Logger) *Collector {
	opts := Options{
		Categories: cfg.Sources.Categories,
		PageSize:   cfg.Sources.NewsAPI.PageSize,
		Logger:     log,
	}

	if cfg.Sources.NewsAPI.Enabled {
		client := NewNewsAPIClient(cfg.Sources.NewsAPI.APIKeyEnv, cfg.Sources.NewsAPI.BaseURL)
		if client.IsConfigured() {
			opts.NewsAPI = client
		} else {
			logger.OrDiscard(log).Warn("NewsAPI enabled but no key set, skipping categories", "env", cfg.Sources.NewsAPI.APIKeyEnv)
		}
	}

	if len(cfg.Sources.Feeds) > 0 {
		feeds := make([]FeedConfig, len(cfg.Sources.Feeds))
		for i, f := range cfg.Sources.Feeds {
			feeds[i] = FeedConfig{URL: f.URL, Name: f.Name, Category: f.Category}
		}
		opts.Feeds = NewFeedSource(feeds)
	}

	if cfg.Sources.Enrich.Enabled {
		opts.Enricher = NewEnricher(time.Duration(cfg.Sources.Enrich.TimeoutSecs)*time.Second, log)
	}

	return New(opts)
}

// FetchAll fetches every category and feed, concatenated in category order
// and stably sorted most recent first. Failing sources are logged and
// contribute nothing.
func (c *Collector) FetchAll(ctx context.Context) []news.Article {
	var all []news.Article

	if c.newsAPI != nil {
		for _, category := range c.categories {
			articles, err := c.newsAPI.FetchCategory(ctx, category, c.pageSize)
			if err != nil {
				c.log.Warn("category fetch failed", "category", category, "error", err)
				continue
			}
			c.log.Debug("fetched category", "category", category, "count", len(articles))
			all = append(all, articles...)
		}
	}

	if c.feeds != nil {
		articles, err := c.feeds.FetchAll(ctx)
		if err != nil {
			c.log.Warn("feed fetch failed", "error", err)
		}
		all = append(all, articles...)
	}

	if c.enricher != nil {
		c.enricher.Enrich(ctx, all)
	}

	news.SortByPublishedDesc(all)
	c.log.Info("collection complete", "articles", len(all))
	return all
}
