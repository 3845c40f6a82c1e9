package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/TobiSchelling/NewsSense/internal/llm"
	"github.com/TobiSchelling/NewsSense/internal/logger"
	"github.com/TobiSchelling/NewsSense/internal/news"
)

const (
	ModeReset  = "reset"
	ModeAppend = "append"
)

// Options configures an Index.
type Options struct {
	Name            string
	Dimension       int
	Mode            string
	PollInterval    time.Duration
	MaxPollAttempts int
	DeleteSettle    time.Duration
	Logger          *slog.Logger
}

// Handle identifies a ready index.
type Handle struct {
	Name      string
	Dimension int
}

// Index embeds articles into a Backend and answers similarity queries.
type Index struct {
	backend  Backend
	embedder llm.Embedder
	opts     Options
	log      *slog.Logger

	mu      sync.Mutex
	current *Handle

	newSuffix func() string
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates an Index over backend.
func New(backend Backend, embedder llm.Embedder, opts Options) *Index {
	if opts.Mode == "" {
		opts.Mode = ModeReset
	}
	if opts.MaxPollAttempts <= 0 {
		opts.MaxPollAttempts = 30
	}
	return &Index{
		backend:   backend,
		embedder:  embedder,
		opts:      opts,
		log:       logger.OrDiscard(opts.Logger),
		newSuffix: randomSuffix,
		sleep:     sleepCtx,
	}
}

// Name returns the configured index name.
func (x *Index) Name() string {
	return x.opts.Name
}

// Mode returns the configured sync mode.
func (x *Index) Mode() string {
	return x.opts.Mode
}

// ResetIndex deletes the index if it exists and recreates it empty. All
// previously stored vectors are lost.
func (x *Index) ResetIndex(ctx context.Context) (*Handle, error) {
	name := x.opts.Name

	exists, err := x.exists(ctx)
	if err != nil {
		return nil, err
	}

	if exists {
		x.log.Info("deleting index", "index", name)
		if err := x.backend.DeleteIndex(ctx, name); err != nil {
			return nil, &ProvisioningError{Index: name, Op: "delete", Err: err}
		}
		if x.opts.DeleteSettle > 0 {
			if err := x.sleep(ctx, x.opts.DeleteSettle); err != nil {
				return nil, &ProvisioningError{Index: name, Op: "delete", Err: err}
			}
		}
	}

	return x.create(ctx)
}

// Open returns a handle to the index, creating it when it does not exist.
func (x *Index) Open(ctx context.Context) (*Handle, error) {
	name := x.opts.Name

	exists, err := x.exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return x.create(ctx)
	}

	status, err := x.waitReady(ctx)
	if err != nil {
		return nil, err
	}
	if status.Dimension != 0 && status.Dimension != x.opts.Dimension {
		return nil, &ProvisioningError{
			Index: name,
			Op:    "open",
			Err:   fmt.Errorf("index dimension %d does not match configured %d", status.Dimension, x.opts.Dimension),
		}
	}
	return x.remember(&Handle{Name: name, Dimension: x.opts.Dimension}), nil
}

func (x *Index) exists(ctx context.Context) (bool, error) {
	names, err := x.backend.ListIndexes(ctx)
	if err != nil {
		return false, &ProvisioningError{Index: x.opts.Name, Op: "list", Err: err}
	}
	return slices.Contains(names, x.opts.Name), nil
}

func (x *Index) create(ctx context.Context) (*Handle, error) {
	name := x.opts.Name
	x.log.Info("creating index", "index", name, "dimension", x.opts.Dimension)
	if err := x.backend.CreateIndex(ctx, name, x.opts.Dimension, Cosine); err != nil {
		return nil, &ProvisioningError{Index: name, Op: "create", Err: err}
	}
	if _, err := x.waitReady(ctx); err != nil {
		return nil, err
	}
	return x.remember(&Handle{Name: name, Dimension: x.opts.Dimension}), nil
}

func (x *Index) waitReady(ctx context.Context) (IndexStatus, error) {
	name := x.opts.Name
	for attempt := 1; ; attempt++ {
		status, err := x.backend.DescribeIndex(ctx, name)
		if err != nil {
			return IndexStatus{}, &ProvisioningError{Index: name, Op: "describe", Err: err}
		}
		if status.Ready {
			return status, nil
		}
		if attempt >= x.opts.MaxPollAttempts {
			return IndexStatus{}, &ProvisioningError{
				Index: name,
				Op:    "wait",
				Err:   fmt.Errorf("not ready after %d checks", attempt),
			}
		}
		x.log.Debug("waiting for index", "index", name, "attempt", attempt)
		if err := x.sleep(ctx, x.opts.PollInterval); err != nil {
			return IndexStatus{}, &ProvisioningError{Index: name, Op: "wait", Err: err}
		}
	}
}

func (x *Index) remember(h *Handle) *Handle {
	x.mu.Lock()
	x.current = h
	x.mu.Unlock()
	return h
}

func (x *Index) handle(ctx context.Context) (*Handle, error) {
	x.mu.Lock()
	h := x.current
	x.mu.Unlock()
	if h != nil {
		return h, nil
	}
	return x.Open(ctx)
}

// Embed returns the embedding for text.
func (x *Index) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &EmbeddingError{Err: errors.New("empty input")}
	}
	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	if len(vec) != x.opts.Dimension {
		return nil, &EmbeddingError{Err: fmt.Errorf("got %d dimensions, index expects %d", len(vec), x.opts.Dimension)}
	}
	return vec, nil
}

// Upsert embeds every article with a description and stores it in one batch.
// Articles whose sanitized title already exists as an id are skipped, and an
// article whose embedding fails is skipped alone. It returns the number of
// vectors written.
func (x *Index) Upsert(ctx context.Context, articles []news.Article, h *Handle) (int, error) {
	ids, err := x.backend.ListIDs(ctx, h.Name)
	if err != nil {
		return 0, fmt.Errorf("listing ids: %w", err)
	}
	existing := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		existing[id] = struct{}{}
	}

	var batch []Vector
	skipped, failed := 0, 0
	for _, a := range articles {
		if !a.HasDescription() {
			continue
		}

		base := SafeID(a.Title)
		if _, ok := existing[base]; ok {
			skipped++
			continue
		}

		id := base + "_" + x.newSuffix()
		for {
			if _, taken := existing[id]; !taken {
				break
			}
			id = base + "_" + x.newSuffix()
		}

		vec, err := x.Embed(ctx, a.Description)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			failed++
			x.log.Warn("skipping article", "title", a.Title, "error", err)
			continue
		}

		existing[id] = struct{}{}
		batch = append(batch, Vector{ID: id, Values: vec, Metadata: a})
	}

	if len(batch) == 0 {
		x.log.Info("nothing to upsert", "skipped", skipped, "failed", failed)
		return 0, nil
	}

	if err := x.backend.Upsert(ctx, h.Name, batch); err != nil {
		return 0, fmt.Errorf("upserting %d vectors: %w", len(batch), err)
	}
	x.log.Info("upserted articles", "index", h.Name, "count", len(batch), "skipped", skipped, "failed", failed)
	return len(batch), nil
}

// Query returns the metadata of the topK articles closest to text, in the
// order the backend ranks them.
func (x *Index) Query(ctx context.Context, text string, topK int, h *Handle) ([]news.Article, error) {
	if topK <= 0 {
		return []news.Article{}, nil
	}

	vec, err := x.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	matches, err := x.backend.Query(ctx, h.Name, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	articles := make([]news.Article, len(matches))
	for i, m := range matches {
		articles[i] = m.Metadata
	}
	return articles, nil
}

// Search queries the most recently opened index, opening it first if needed.
func (x *Index) Search(ctx context.Context, text string, topK int) ([]news.Article, error) {
	if topK <= 0 {
		return []news.Article{}, nil
	}
	h, err := x.handle(ctx)
	if err != nil {
		return nil, err
	}
	return x.Query(ctx, text, topK, h)
}

// Refresh replaces the index contents with articles.
func (x *Index) Refresh(ctx context.Context, articles []news.Article) (int, error) {
	h, err := x.ResetIndex(ctx)
	if err != nil {
		return 0, err
	}
	return x.Upsert(ctx, articles, h)
}

// Append adds articles to the existing index without resetting it.
func (x *Index) Append(ctx context.Context, articles []news.Article) (int, error) {
	h, err := x.Open(ctx)
	if err != nil {
		return 0, err
	}
	return x.Upsert(ctx, articles, h)
}

// Sync stores articles using the configured mode.
func (x *Index) Sync(ctx context.Context, articles []news.Article) (int, error) {
	if x.opts.Mode == ModeAppend {
		return x.Append(ctx, articles)
	}
	return x.Refresh(ctx, articles)
}

// Stats describes the current index.
func (x *Index) Stats(ctx context.Context) (IndexStatus, error) {
	exists, err := x.exists(ctx)
	if err != nil {
		return IndexStatus{}, err
	}
	if !exists {
		return IndexStatus{}, ErrIndexNotFound
	}
	return x.backend.DescribeIndex(ctx, x.opts.Name)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
