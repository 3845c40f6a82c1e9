package news

import (
	"sort"
	"strings"
	"time"
)

// DefaultCategories is the fixed topic set queried on every refresh.
var DefaultCategories = []string{
	"world",
	"politics",
	"technology",
	"business",
	"science",
	"health",
	"entertainment",
	"sports",
}

// Article is a normalized news item. It is also the metadata stored
// alongside each vector in the index, so the JSON names follow the
// provider payload.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content,omitempty"`
	URL         string `json:"url,omitempty"`
	Author      string `json:"author,omitempty"`
	Source      string `json:"source"`
	PublishedAt string `json:"publishedAt"`
	Category    string `json:"category"`
}

// HasDescription reports whether the article carries indexable text.
func (a Article) HasDescription() bool {
	return strings.TrimSpace(a.Description) != ""
}

// PublishedTime parses PublishedAt. The zero time is returned for empty or
// unparseable values.
func (a Article) PublishedTime() time.Time {
	if a.PublishedAt == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, a.PublishedAt); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SortByPublishedDesc orders articles most recent first. Ties keep their
// input order.
func SortByPublishedDesc(articles []Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedTime().After(articles[j].PublishedTime())
	})
}
