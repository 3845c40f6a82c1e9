// Package pinecone is a vectorindex backend on Pinecone serverless indexes,
// built on the official go-pinecone client.
package pinecone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/TobiSchelling/NewsSense/internal/logger"
	"github.com/TobiSchelling/NewsSense/internal/vectorindex"
)

const (
	upsertBatchSize = 100
	listPageSize    = 100
)

// Config holds the Pinecone connection settings. An empty ControllerURL
// selects the public control plane.
type Config struct {
	APIKey        string
	ControllerURL string
	Cloud         string
	Region        string
}

// dataPlane is the subset of *pinecone.IndexConnection the backend uses.
type dataPlane interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	ListVectors(ctx context.Context, in *pinecone.ListVectorsRequest) (*pinecone.ListVectorsResponse, error)
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	DescribeIndexStats(ctx context.Context) (*pinecone.DescribeIndexStatsResponse, error)
	Close() error
}

// Backend manages indexes through the control plane and keeps one data-plane
// connection per index host.
type Backend struct {
	client  *pinecone.Client
	cfg     Config
	log     *slog.Logger
	connect func(host string) (dataPlane, error)

	mu    sync.Mutex
	conns map[string]dataPlane
}

// New creates a Pinecone backend.
func New(cfg Config, log *slog.Logger) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("pinecone api key is not set")
	}
	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: cfg.APIKey,
		Host:   strings.TrimRight(cfg.ControllerURL, "/"),
	})
	if err != nil {
		return nil, fmt.Errorf("create pinecone client: %w", err)
	}

	b := &Backend{
		client: client,
		cfg:    cfg,
		log:    logger.OrDiscard(log),
		conns:  make(map[string]dataPlane),
	}
	b.connect = func(host string) (dataPlane, error) {
		conn, err := client.Index(pinecone.NewIndexConnParams{Host: host})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	return b, nil
}

func (b *Backend) ListIndexes(ctx context.Context) ([]string, error) {
	indexes, err := b.client.ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	names := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		if idx != nil {
			names = append(names, idx.Name)
		}
	}
	return names, nil
}

func (b *Backend) CreateIndex(ctx context.Context, name string, dimension int, metric vectorindex.Metric) error {
	_, err := b.client.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      name,
		Dimension: int32(dimension),
		Metric:    pinecone.IndexMetric(metric),
		Cloud:     pinecone.Cloud(b.cfg.Cloud),
		Region:    b.cfg.Region,
	})
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

func (b *Backend) DeleteIndex(ctx context.Context, name string) error {
	b.dropConn(name)
	if err := b.client.DeleteIndex(ctx, name); err != nil {
		return b.classify(ctx, name, fmt.Errorf("delete index %s: %w", name, err))
	}
	return nil
}

func (b *Backend) DescribeIndex(ctx context.Context, name string) (vectorindex.IndexStatus, error) {
	var status vectorindex.IndexStatus

	idx, err := b.client.DescribeIndex(ctx, name)
	if err != nil {
		return status, b.classify(ctx, name, fmt.Errorf("describe index %s: %w", name, err))
	}
	status.Dimension = int(idx.Dimension)
	status.Ready = idx.Status != nil && idx.Status.Ready && idx.Host != ""
	if !status.Ready {
		return status, nil
	}

	conn, err := b.conn(name, idx.Host)
	if err != nil {
		return status, err
	}
	stats, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return status, fmt.Errorf("describe index stats %s: %w", name, err)
	}
	status.VectorCount = int(stats.TotalVectorCount)
	return status, nil
}

// ListIDs follows pagination tokens until the listing is exhausted.
func (b *Backend) ListIDs(ctx context.Context, name string) ([]string, error) {
	conn, err := b.resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	var (
		ids   []string
		token *string
		limit = uint32(listPageSize)
	)
	for {
		resp, err := conn.ListVectors(ctx, &pinecone.ListVectorsRequest{
			Limit:           &limit,
			PaginationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list vectors %s: %w", name, err)
		}
		for _, id := range resp.VectorIds {
			if id != nil {
				ids = append(ids, *id)
			}
		}
		if resp.NextPaginationToken == nil || *resp.NextPaginationToken == "" {
			return ids, nil
		}
		token = resp.NextPaginationToken
	}
}

func (b *Backend) Upsert(ctx context.Context, name string, vectors []vectorindex.Vector) error {
	conn, err := b.resolve(ctx, name)
	if err != nil {
		return err
	}

	for start := 0; start < len(vectors); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(vectors))
		batch := make([]*pinecone.Vector, 0, end-start)
		for _, v := range vectors[start:end] {
			md, err := structpb.NewStruct(vectorindex.ArticleToMetadata(v.Metadata))
			if err != nil {
				return fmt.Errorf("encode metadata for %s: %w", v.ID, err)
			}
			batch = append(batch, &pinecone.Vector{Id: v.ID, Values: v.Values, Metadata: md})
		}
		if _, err := conn.UpsertVectors(ctx, batch); err != nil {
			return fmt.Errorf("upsert vectors %s: %w", name, err)
		}
		b.log.Debug("pinecone upsert batch", "index", name, "count", len(batch))
	}
	return nil
}

func (b *Backend) Query(ctx context.Context, name string, vector []float32, topK int) ([]vectorindex.Match, error) {
	conn, err := b.resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}

	matches := make([]vectorindex.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		var md map[string]any
		if m.Vector.Metadata != nil {
			md = m.Vector.Metadata.AsMap()
		}
		matches = append(matches, vectorindex.Match{
			ID:       m.Vector.Id,
			Score:    float64(m.Score),
			Metadata: vectorindex.MetadataToArticle(md),
		})
	}
	return matches, nil
}

// Close releases every open data-plane connection.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for name, conn := range b.conns {
		errs = append(errs, conn.Close())
		delete(b.conns, name)
	}
	return errors.Join(errs...)
}

// resolve returns the data-plane connection for name, describing the index
// to learn its host on first use.
func (b *Backend) resolve(ctx context.Context, name string) (dataPlane, error) {
	b.mu.Lock()
	conn, ok := b.conns[name]
	b.mu.Unlock()
	if ok {
		return conn, nil
	}

	idx, err := b.client.DescribeIndex(ctx, name)
	if err != nil {
		return nil, b.classify(ctx, name, fmt.Errorf("describe index %s: %w", name, err))
	}
	if idx.Host == "" {
		return nil, fmt.Errorf("index %s has no host yet", name)
	}
	return b.conn(name, idx.Host)
}

func (b *Backend) conn(name, host string) (dataPlane, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conn, ok := b.conns[name]; ok {
		return conn, nil
	}
	conn, err := b.connect(host)
	if err != nil {
		return nil, fmt.Errorf("connect to index %s: %w", name, err)
	}
	b.conns[name] = conn
	return conn, nil
}

func (b *Backend) dropConn(name string) {
	b.mu.Lock()
	conn, ok := b.conns[name]
	delete(b.conns, name)
	b.mu.Unlock()

	if ok {
		if err := conn.Close(); err != nil {
			b.log.Warn("closing pinecone connection failed", "index", name, "error", err)
		}
	}
}

// classify maps a control-plane failure to ErrIndexNotFound when the index
// is absent from the listing.
func (b *Backend) classify(ctx context.Context, name string, err error) error {
	names, listErr := b.ListIndexes(ctx)
	if listErr == nil && !slices.Contains(names, name) {
		return fmt.Errorf("%s: %w", name, vectorindex.ErrIndexNotFound)
	}
	return err
}
