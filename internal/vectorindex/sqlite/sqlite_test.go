package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/NewsSense/internal/news"
	"github.com/TobiSchelling/NewsSense/internal/vectorindex"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(filepath.Join(t.TempDir(), "index.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestMigrateNewDB(t *testing.T) {
	b := openTestBackend(t)

	version, err := getSchemaVersion(b.conn)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), version)
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	b1, err := Open(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, b1.Close())

	b2, err := Open(dbPath, nil)
	require.NoError(t, err)
	defer b2.Close()

	version, err := getSchemaVersion(b2.conn)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), version)
}

func TestIndexLifecycle(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t)

	require.NoError(t, b.CreateIndex(ctx, "news-ai", 3, vectorindex.Cosine))
	require.Error(t, b.CreateIndex(ctx, "news-ai", 3, vectorindex.Cosine))

	names, err := b.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"news-ai"}, names)

	require.NoError(t, b.Upsert(ctx, "news-ai", []vectorindex.Vector{
		{ID: "a", Values: []float32{1, 0, 0}, Metadata: news.Article{Title: "a"}},
	}))

	status, err := b.DescribeIndex(ctx, "news-ai")
	require.NoError(t, err)
	assert.Equal(t, vectorindex.IndexStatus{Ready: true, Dimension: 3, VectorCount: 1}, status)

	require.NoError(t, b.DeleteIndex(ctx, "news-ai"))
	_, err = b.DescribeIndex(ctx, "news-ai")
	assert.ErrorIs(t, err, vectorindex.ErrIndexNotFound)
	assert.ErrorIs(t, b.DeleteIndex(ctx, "news-ai"), vectorindex.ErrIndexNotFound)

	require.NoError(t, b.CreateIndex(ctx, "news-ai", 3, vectorindex.Cosine))
	ids, err := b.ListIDs(ctx, "news-ai")
	require.NoError(t, err)
	assert.Empty(t, ids, "recreated index must not inherit vectors")
}

func TestUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t)
	require.NoError(t, b.CreateIndex(ctx, "news-ai", 2, vectorindex.Cosine))

	article := news.Article{
		Title:       "Rates hold",
		Description: "The central bank held rates.",
		URL:         "https://example.com/rates",
		Author:      "Desk",
		Source:      "Wire",
		PublishedAt: "2024-05-01T10:00:00Z",
		Category:    "business",
	}
	require.NoError(t, b.Upsert(ctx, "news-ai", []vectorindex.Vector{
		{ID: "rates", Values: []float32{1, 0}, Metadata: article},
		{ID: "sports", Values: []float32{0, 1}, Metadata: news.Article{Title: "Cup final"}},
	}))

	matches, err := b.Query(ctx, "news-ai", []float32{0.9, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "rates", matches[0].ID)
	assert.Equal(t, article, matches[0].Metadata)

	_, err = b.Query(ctx, "news-ai", []float32{1, 0, 0}, 1)
	assert.Error(t, err)
}

func TestUpsertOverwritesSameID(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t)
	require.NoError(t, b.CreateIndex(ctx, "news-ai", 2, vectorindex.Cosine))

	require.NoError(t, b.Upsert(ctx, "news-ai", []vectorindex.Vector{
		{ID: "x", Values: []float32{1, 0}, Metadata: news.Article{Title: "v1"}},
		{ID: "y", Values: []float32{0, 1}, Metadata: news.Article{Title: "other"}},
	}))
	require.NoError(t, b.Upsert(ctx, "news-ai", []vectorindex.Vector{
		{ID: "x", Values: []float32{1, 0}, Metadata: news.Article{Title: "v2"}},
	}))

	ids, err := b.ListIDs(ctx, "news-ai")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, ids)

	matches, err := b.Query(ctx, "news-ai", []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "v2", matches[0].Metadata.Title)
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "index.db")

	b1, err := Open(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, b1.CreateIndex(ctx, "news-ai", 2, vectorindex.Cosine))
	require.NoError(t, b1.Upsert(ctx, "news-ai", []vectorindex.Vector{{ID: "keep", Values: []float32{1, 1}}}))
	require.NoError(t, b1.Close())

	b2, err := Open(dbPath, nil)
	require.NoError(t, err)
	defer b2.Close()

	ids, err := b2.ListIDs(ctx, "news-ai")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, ids)
}

type axisEmbedder map[string]int

func (e axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 4)
	vec[e[text]] = 1
	return vec, nil
}

func TestIndexScenarioOverSQLite(t *testing.T) {
	ctx := context.Background()
	b := openTestBackend(t)

	emb := axisEmbedder{"Cats form union": 1}
	x := vectorindex.New(b, emb, vectorindex.Options{Name: "news-ai", Dimension: 4, MaxPollAttempts: 1})

	n, err := x.Refresh(ctx, []news.Article{
		{Title: "A", Description: "Cats form union", Category: "entertainment"},
		{Title: "B", Description: "", Category: "world"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := x.Search(ctx, "Cats form union", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Title)
	assert.Equal(t, "entertainment", got[0].Category)
}
