package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/TobiSchelling/NewsSense/internal/collect"
	"github.com/TobiSchelling/NewsSense/internal/config"
	"github.com/TobiSchelling/NewsSense/internal/embedcache"
	"github.com/TobiSchelling/NewsSense/internal/llm"
	"github.com/TobiSchelling/NewsSense/internal/logger"
	"github.com/TobiSchelling/NewsSense/internal/qa"
	"github.com/TobiSchelling/NewsSense/internal/summarize"
	"github.com/TobiSchelling/NewsSense/internal/vectorindex"
	"github.com/TobiSchelling/NewsSense/internal/vectorindex/elastic"
	"github.com/TobiSchelling/NewsSense/internal/vectorindex/memory"
	"github.com/TobiSchelling/NewsSense/internal/vectorindex/pinecone"
	"github.com/TobiSchelling/NewsSense/internal/vectorindex/sqlite"
)

// Build wires a Session from configuration. The caller closes the session
// to release the index backend and embedding cache.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Session, error) {
	log = logger.OrDiscard(log)

	var closers []func() error
	fail := func(err error) (*Session, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}

	provider, err := llm.CreateProvider(cfg.LLM, log)
	if err != nil {
		return fail(err)
	}

	embedder, err := llm.CreateEmbedder(cfg.Embedding)
	if err != nil {
		return fail(err)
	}

	cache, err := embedcache.New(ctx, cfg.Embedding.Cache)
	if err != nil {
		return fail(fmt.Errorf("opening embedding cache: %w", err))
	}
	if cache != nil {
		closers = append(closers, cache.Close)
		embedder = llm.NewCachedEmbedder(embedder, cache, cfg.Embedding.Model, cfg.Embedding.Dimension, log)
	}

	backend, closeBackend, err := OpenBackend(cfg, log)
	if err != nil {
		return fail(err)
	}
	if closeBackend != nil {
		closers = append(closers, closeBackend)
	}

	index := vectorindex.New(backend, embedder, vectorindex.Options{
		Name:            cfg.Index.Name,
		Dimension:       cfg.Embedding.Dimension,
		Mode:            cfg.Index.Mode,
		PollInterval:    cfg.PollInterval(),
		MaxPollAttempts: cfg.Index.MaxPollAttempts,
		DeleteSettle:    cfg.DeleteSettle(),
		Logger:          log,
	})

	summarizer := summarize.NewSummarizer(provider, summarize.Options{
		MaxChars:    cfg.Summarization.MaxChars,
		Concurrency: cfg.Summarization.Concurrency,
		MaxTokens:   cfg.LLM.MaxTokens,
		Logger:      log,
	})

	engine := qa.NewEngine(index, provider, cfg.LLM.MaxTokens, log)

	s := New(Options{
		Collector:  collect.NewCollector(cfg, log),
		Index:      index,
		Summarizer: summarizer,
		Answerer:   engine,
		Categories: cfg.Sources.Categories,
		TopK:       cfg.QA.TopK,
		Logger:     log,
	})
	s.closers = closers

	return s, nil
}

// OpenBackend opens the vector index backend selected by cfg. The returned
// close function is nil when the backend holds no resources.
func OpenBackend(cfg *config.Config, log *slog.Logger) (vectorindex.Backend, func() error, error) {
	switch strings.ToLower(cfg.Index.Backend) {
	case "memory":
		return memory.New(), nil, nil
	case "sqlite", "":
		b, err := sqlite.Open(cfg.SQLitePath(), log)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case "elasticsearch", "elastic":
		es := cfg.Index.Elasticsearch
		b, err := elastic.New(es.Addresses, envOrEmpty(es.APIKeyEnv), log)
		if err != nil {
			return nil, nil, err
		}
		return b, nil, nil
	case "pinecone":
		pc := cfg.Index.Pinecone
		b, err := pinecone.New(pinecone.Config{
			APIKey:        envOrEmpty(pc.APIKeyEnv),
			ControllerURL: pc.ControllerURL,
			Cloud:         pc.Cloud,
			Region:        pc.Region,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown index backend: %s", cfg.Index.Backend)
	}
}

func envOrEmpty(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
