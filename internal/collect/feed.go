package collect

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/NewsSense/internal/news"
)

const maxPerFeed = 20

// FeedConfig represents a single feed configuration.
type FeedConfig struct {
	URL      string
	Name     string
	Category string
}

// FeedSource reads RSS/Atom feeds and normalizes their items into articles.
type FeedSource struct {
	feeds  []FeedConfig
	parser *gofeed.Parser
}

// NewFeedSource creates a feed source. Feeds without a category are filed
// under "world".
func NewFeedSource(feeds []FeedConfig) *FeedSource {
	normalized := make([]FeedConfig, len(feeds))
	for i, f := range feeds {
		if f.Name == "" {
			f.Name = extractSourceName(f.URL)
		}
		if f.Category == "" {
			f.Category = "world"
		}
		normalized[i] = f
	}
	return &FeedSource{feeds: normalized, parser: gofeed.NewParser()}
}

// FetchAll parses every configured feed. Articles from feeds that parsed are
// returned alongside the joined errors of those that did not.
func (fs *FeedSource) FetchAll(ctx context.Context) ([]news.Article, error) {
	var all []news.Article
	var errs []error

	for _, fc := range fs.feeds {
		articles, err := fs.fetchFeed(ctx, fc)
		if err != nil {
			errs = append(errs, &FetchError{Source: fc.Name, Category: fc.Category, Err: err})
			continue
		}
		all = append(all, articles...)
	}
	return all, errors.Join(errs...)
}

func (fs *FeedSource) fetchFeed(ctx context.Context, fc FeedConfig) ([]news.Article, error) {
	feed, err := fs.parser.ParseURLWithContext(fc.URL, ctx)
	if err != nil {
		return nil, err
	}

	var articles []news.Article
	for _, item := range feed.Items {
		if len(articles) >= maxPerFeed {
			break
		}
		if a, ok := parseItem(item, fc); ok {
			articles = append(articles, a)
		}
	}
	return articles, nil
}

func parseItem(item *gofeed.Item, fc FeedConfig) (news.Article, bool) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return news.Article{}, false
	}

	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}

	var published string
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC().Format(time.RFC3339)
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.UTC().Format(time.RFC3339)
	}

	var author string
	if item.Author != nil {
		author = item.Author.Name
	}

	return news.Article{
		Title:       title,
		Description: stripHTML(item.Description),
		Content:     stripHTML(item.Content),
		URL:         itemURL,
		Author:      author,
		Source:      fc.Name,
		PublishedAt: published,
		Category:    fc.Category,
	}, true
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	return strings.Join(strings.Fields(s), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
