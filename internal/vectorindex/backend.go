// Package vectorindex stores article embeddings in a similarity-search
// service and retrieves the articles closest to a question.
package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"math"

	"github.com/TobiSchelling/NewsSense/internal/news"
)

// Metric is the similarity function an index is created with.
type Metric string

const Cosine Metric = "cosine"

// ErrIndexNotFound is returned by backends for operations on a missing index.
var ErrIndexNotFound = errors.New("index not found")

// IndexStatus describes a provisioned index.
type IndexStatus struct {
	Ready       bool
	Dimension   int
	VectorCount int
}

// Vector is one stored embedding with its article metadata.
type Vector struct {
	ID       string
	Values   []float32
	Metadata news.Article
}

// Match is a query hit in service order.
type Match struct {
	ID       string
	Score    float64
	Metadata news.Article
}

// Backend is the similarity-search service behind an Index.
type Backend interface {
	ListIndexes(ctx context.Context) ([]string, error)
	CreateIndex(ctx context.Context, name string, dimension int, metric Metric) error
	DeleteIndex(ctx context.Context, name string) error
	DescribeIndex(ctx context.Context, name string) (IndexStatus, error)
	ListIDs(ctx context.Context, name string) ([]string, error)
	Upsert(ctx context.Context, name string, vectors []Vector) error
	Query(ctx context.Context, name string, vector []float32, topK int) ([]Match, error)
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either has zero magnitude or their lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ArticleToMetadata flattens an article into string-valued metadata. Empty
// fields are omitted.
func ArticleToMetadata(a news.Article) map[string]any {
	md := make(map[string]any, 8)
	put := func(k, v string) {
		if v != "" {
			md[k] = v
		}
	}
	put("title", a.Title)
	put("description", a.Description)
	put("content", a.Content)
	put("url", a.URL)
	put("author", a.Author)
	put("source", a.Source)
	put("publishedAt", a.PublishedAt)
	put("category", a.Category)
	return md
}

// MetadataToArticle rebuilds an article from stored metadata. Unknown keys
// and non-string values are ignored.
func MetadataToArticle(md map[string]any) news.Article {
	data, err := json.Marshal(stringsOnly(md))
	if err != nil {
		return news.Article{}
	}
	var a news.Article
	_ = json.Unmarshal(data, &a)
	return a
}

func stringsOnly(md map[string]any) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
