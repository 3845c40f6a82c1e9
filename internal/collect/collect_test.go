package collect

import (
	"context"
	"errors"
	"testing"

	"github.com/TobiSchelling/NewsSense/internal/config"
	"github.com/TobiSchelling/NewsSense/internal/news"
)

type fakeFetcher struct {
	byCategory map[string][]news.Article
	failing    map[string]bool
	calls      []string
}

func (f *fakeFetcher) FetchCategory(_ context.Context, category string, _ int) ([]news.Article, error) {
	f.calls = append(f.calls, category)
	if f.failing[category] {
		return nil, &FetchError{Source: "fake", Category: category, Err: errors.New("boom")}
	}
	return f.byCategory[category], nil
}

func TestFetchAllSortsMostRecentFirst(t *testing.T) {
	f := &fakeFetcher{byCategory: map[string][]news.Article{
		"world":   {{Title: "old", PublishedAt: "2024-05-01T08:00:00Z", Category: "world"}},
		"science": {{Title: "new", PublishedAt: "2024-05-01T12:00:00Z", Category: "science"}},
	}}
	c := New(Options{Categories: []string{"world", "science"}, NewsAPI: f})

	got := c.FetchAll(context.Background())
	if len(got) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(got))
	}
	if got[0].Title != "new" || got[1].Title != "old" {
		t.Errorf("expected [new old], got [%s %s]", got[0].Title, got[1].Title)
	}
}

func TestFetchAllContinuesPastFailures(t *testing.T) {
	f := &fakeFetcher{
		byCategory: map[string][]news.Article{
			"world":  {{Title: "w", PublishedAt: "2024-05-01T08:00:00Z"}},
			"sports": {{Title: "s", PublishedAt: "2024-05-01T07:00:00Z"}},
		},
		failing: map[string]bool{"politics": true},
	}
	c := New(Options{Categories: []string{"world", "politics", "sports"}, NewsAPI: f})

	got := c.FetchAll(context.Background())
	if len(got) != 2 {
		t.Fatalf("expected 2 articles despite failure, got %d", len(got))
	}
	if len(f.calls) != 3 {
		t.Errorf("expected every category to be attempted, got %v", f.calls)
	}
}

func TestFetchAllStableForTies(t *testing.T) {
	f := &fakeFetcher{byCategory: map[string][]news.Article{
		"world":   {{Title: "first", PublishedAt: "2024-05-01T08:00:00Z"}},
		"science": {{Title: "second", PublishedAt: "2024-05-01T08:00:00Z"}},
	}}
	c := New(Options{Categories: []string{"world", "science"}, NewsAPI: f})

	got := c.FetchAll(context.Background())
	if got[0].Title != "first" || got[1].Title != "second" {
		t.Errorf("expected category order for ties, got [%s %s]", got[0].Title, got[1].Title)
	}
}

func TestFetchAllDefaultsToAllCategories(t *testing.T) {
	f := &fakeFetcher{}
	c := New(Options{NewsAPI: f})
	c.FetchAll(context.Background())

	if len(f.calls) != len(news.DefaultCategories) {
		t.Errorf("expected %d category fetches, got %d", len(news.DefaultCategories), len(f.calls))
	}
}

func TestNewCollectorFromConfig(t *testing.T) {
	t.Setenv("TEST_NEWS_KEY", "news-key")
	cfg := &config.Config{}
	cfg.Sources.Categories = []string{"health"}
	cfg.Sources.NewsAPI.Enabled = true
	cfg.Sources.NewsAPI.APIKeyEnv = "TEST_NEWS_KEY"
	cfg.Sources.Feeds = []config.Feed{{URL: "https://example.com/rss"}}

	c := NewCollector(cfg, nil)
	if c.newsAPI == nil || c.feeds == nil {
		t.Fatal("expected newsapi and feed sources to be wired")
	}
	if c.enricher != nil {
		t.Error("expected enricher disabled by default")
	}
	if c.pageSize != 20 {
		t.Errorf("expected default page size 20, got %d", c.pageSize)
	}
}

func TestNewCollectorSkipsNewsAPIWithoutKey(t *testing.T) {
	t.Setenv("TEST_NEWS_KEY", "")
	cfg := &config.Config{}
	cfg.Sources.NewsAPI.Enabled = true
	cfg.Sources.NewsAPI.APIKeyEnv = "TEST_NEWS_KEY"
	cfg.Sources.Feeds = []config.Feed{{URL: "https://example.com/rss"}}

	c := NewCollector(cfg, nil)
	if c.newsAPI != nil {
		t.Error("expected NewsAPI source to be skipped without a key")
	}
	if c.feeds == nil {
		t.Error("expected feeds to stay wired")
	}
}
