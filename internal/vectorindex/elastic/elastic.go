// Package elastic is a vectorindex backend on Elasticsearch 8 dense_vector
// fields with approximate kNN search.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/TobiSchelling/NewsSense/internal/logger"
	"github.com/TobiSchelling/NewsSense/internal/news"
	"github.com/TobiSchelling/NewsSense/internal/vectorindex"
)

const (
	vectorField  = "embedding"
	idField      = "doc_id"
	listPageSize = 1000
)

// Backend wraps go-elasticsearch with the index operations the adapter needs.
type Backend struct {
	es  *elasticsearch.Client
	log *slog.Logger
}

type document struct {
	DocID     string       `json:"doc_id,omitempty"`
	Embedding []float32    `json:"embedding"`
	Article   news.Article `json:"article"`
}

// New instantiates the Elasticsearch client.
func New(addresses []string, apiKey string, log *slog.Logger) (*Backend, error) {
	cfg := elasticsearch.Config{
		Addresses: addresses,
		APIKey:    apiKey,
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Backend{es: es, log: logger.OrDiscard(log)}, nil
}

func (b *Backend) ListIndexes(ctx context.Context) ([]string, error) {
	res, err := b.es.Cat.Indices(
		b.es.Cat.Indices.WithContext(ctx),
		b.es.Cat.Indices.WithFormat("json"),
		b.es.Cat.Indices.WithH("index"),
	)
	if err != nil {
		return nil, fmt.Errorf("cat indices: %w", err)
	}
	defer res.Body.Close()
	if err := checkResponse(res, "cat indices"); err != nil {
		return nil, err
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode cat indices: %w", err)
	}

	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if !strings.HasPrefix(r.Index, ".") {
			names = append(names, r.Index)
		}
	}
	return names, nil
}

func (b *Backend) CreateIndex(ctx context.Context, name string, dimension int, metric vectorindex.Metric) error {
	if metric != vectorindex.Cosine {
		return fmt.Errorf("unsupported metric %q", metric)
	}

	body := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				vectorField: map[string]any{
					"type":       "dense_vector",
					"dims":       dimension,
					"index":      true,
					"similarity": string(metric),
				},
				idField: map[string]any{
					"type": "keyword",
				},
				"article": map[string]any{
					"type":    "object",
					"enabled": false,
				},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}

	res, err := b.es.Indices.Create(name,
		b.es.Indices.Create.WithContext(ctx),
		b.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	return checkResponse(res, "create index")
}

func (b *Backend) DeleteIndex(ctx context.Context, name string) error {
	res, err := b.es.Indices.Delete([]string{name}, b.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", name, vectorindex.ErrIndexNotFound)
	}
	return checkResponse(res, "delete index")
}

// DescribeIndex treats an index as ready once its primary shards are
// allocated (yellow or green health).
func (b *Backend) DescribeIndex(ctx context.Context, name string) (vectorindex.IndexStatus, error) {
	var status vectorindex.IndexStatus

	res, err := b.es.Cluster.Health(
		b.es.Cluster.Health.WithContext(ctx),
		b.es.Cluster.Health.WithIndex(name),
	)
	if err != nil {
		return status, fmt.Errorf("cluster health: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return status, fmt.Errorf("%s: %w", name, vectorindex.ErrIndexNotFound)
	}
	if err := checkResponse(res, "cluster health"); err != nil {
		return status, err
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(res.Body).Decode(&health); err != nil {
		return status, fmt.Errorf("decode cluster health: %w", err)
	}
	status.Ready = health.Status == "green" || health.Status == "yellow"

	if status.Dimension, err = b.dimension(ctx, name); err != nil {
		return status, err
	}
	if status.Ready {
		if status.VectorCount, err = b.count(ctx, name); err != nil {
			return status, err
		}
	}
	return status, nil
}

func (b *Backend) dimension(ctx context.Context, name string) (int, error) {
	res, err := b.es.Indices.GetMapping(
		b.es.Indices.GetMapping.WithContext(ctx),
		b.es.Indices.GetMapping.WithIndex(name),
	)
	if err != nil {
		return 0, fmt.Errorf("get mapping: %w", err)
	}
	defer res.Body.Close()
	if err := checkResponse(res, "get mapping"); err != nil {
		return 0, err
	}

	var mappings map[string]struct {
		Mappings struct {
			Properties map[string]struct {
				Dims int `json:"dims"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&mappings); err != nil {
		return 0, fmt.Errorf("decode mapping: %w", err)
	}
	return mappings[name].Mappings.Properties[vectorField].Dims, nil
}

func (b *Backend) count(ctx context.Context, name string) (int, error) {
	res, err := b.es.Count(b.es.Count.WithContext(ctx), b.es.Count.WithIndex(name))
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	defer res.Body.Close()
	if err := checkResponse(res, "count"); err != nil {
		return 0, err
	}

	var parsed struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	return parsed.Count, nil
}

// ListIDs walks the index in doc_id order, one search_after page at a time.
func (b *Backend) ListIDs(ctx context.Context, name string) ([]string, error) {
	var (
		ids   []string
		after []any
	)
	for {
		body := map[string]any{
			"size":    listPageSize,
			"_source": false,
			"query":   map[string]any{"match_all": map[string]any{}},
			"sort":    []any{map[string]any{idField: "asc"}},
		}
		if after != nil {
			body["search_after"] = after
		}

		var parsed searchResponse
		if err := b.search(ctx, name, body, &parsed); err != nil {
			return nil, err
		}
		for _, hit := range parsed.Hits.Hits {
			ids = append(ids, hit.ID)
		}

		hits := parsed.Hits.Hits
		if len(hits) < listPageSize || len(hits[len(hits)-1].Sort) == 0 {
			return ids, nil
		}
		after = hits[len(hits)-1].Sort
	}
}

func (b *Backend) Upsert(ctx context.Context, name string, vectors []vectorindex.Vector) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, v := range vectors {
		meta := map[string]any{"index": map[string]any{"_index": name, "_id": v.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(document{DocID: v.ID, Embedding: v.Values, Article: v.Metadata}); err != nil {
			return fmt.Errorf("encode bulk document: %w", err)
		}
	}

	req := esapi.BulkRequest{
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, b.es)
	if err != nil {
		return fmt.Errorf("bulk: %w", err)
	}
	defer res.Body.Close()
	if err := checkResponse(res, "bulk"); err != nil {
		return err
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID    string `json:"_id"`
			Error struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if parsed.Errors {
		for _, item := range parsed.Items {
			for _, result := range item {
				if result.Error.Reason != "" {
					return fmt.Errorf("bulk item %s failed: %s", result.ID, result.Error.Reason)
				}
			}
		}
		return fmt.Errorf("bulk request reported errors")
	}
	b.log.Debug("elasticsearch bulk upsert", "index", name, "count", len(vectors))
	return nil
}

func (b *Backend) Query(ctx context.Context, name string, vector []float32, topK int) ([]vectorindex.Match, error) {
	candidates := topK * 10
	if candidates < 100 {
		candidates = 100
	}
	body := map[string]any{
		"size": topK,
		"knn": map[string]any{
			"field":          vectorField,
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": candidates,
		},
		"_source": []string{"article"},
	}

	var parsed searchResponse
	if err := b.search(ctx, name, body, &parsed); err != nil {
		return nil, err
	}

	matches := make([]vectorindex.Match, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		matches = append(matches, vectorindex.Match{
			ID:       hit.ID,
			Score:    hit.Score,
			Metadata: hit.Source.Article,
		})
	}
	return matches, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string   `json:"_id"`
			Score  float64  `json:"_score"`
			Source document `json:"_source"`
			Sort   []any    `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

func (b *Backend) search(ctx context.Context, name string, body map[string]any, out *searchResponse) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal search body: %w", err)
	}

	res, err := b.es.Search(
		b.es.Search.WithContext(ctx),
		b.es.Search.WithIndex(name),
		b.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", name, vectorindex.ErrIndexNotFound)
	}
	if err := checkResponse(res, "search"); err != nil {
		return err
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}
	return nil
}

func checkResponse(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	data, _ := io.ReadAll(res.Body)
	return fmt.Errorf("%s failed: %s: %s", op, res.Status(), strings.TrimSpace(string(data)))
}
