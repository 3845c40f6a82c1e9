package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/TobiSchelling/NewsSense/internal/config"
	"github.com/TobiSchelling/NewsSense/internal/logger"
)

// Request is a single chat-style completion: one system instruction and one
// user message.
type Request struct {
	System string
	Prompt string
	// Temperature is left to the provider default when nil.
	Temperature *float64
	MaxTokens   int
}

// Provider is the interface for LLM providers.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
	IsConfigured() bool
}

// Embedder is the interface for generating embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Temperature returns a pointer suitable for Request.Temperature.
func Temperature(v float64) *float64 {
	return &v
}

// CreateProvider creates an LLM provider based on configuration.
func CreateProvider(cfg config.LLM, log *slog.Logger) (Provider, error) {
	log = logger.OrDiscard(log)

	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		p := NewAnthropicProvider(cfg.Model, cfg.APIKeyEnv, cfg.BaseURL)
		if !p.IsConfigured() {
			return nil, fmt.Errorf("anthropic API key not configured (%s)", cfg.APIKeyEnv)
		}
		log.Info("using anthropic", "model", cfg.Model)
		return p, nil
	case "ollama":
		p := NewOllamaProvider(cfg.Model, cfg.OllamaURL)
		if p.IsConfigured() {
			log.Info("using ollama", "model", cfg.Model)
			return p, nil
		}
		log.Warn("ollama not available, trying openai fallback")
	case "openai", "":
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}

	p := NewOpenAIProvider(cfg.Model, cfg.APIKeyEnv, cfg.BaseURL)
	if !p.IsConfigured() {
		return nil, fmt.Errorf("no LLM provider available: set %s or start ollama", cfg.APIKeyEnv)
	}
	log.Info("using openai", "model", cfg.Model)
	return p, nil
}

// CreateEmbedder creates an embedder based on configuration.
func CreateEmbedder(cfg config.Embedding) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		e := NewOpenAIEmbedder(cfg.Model, cfg.APIKeyEnv, cfg.BaseURL, cfg.Dimension)
		if !e.IsConfigured() {
			return nil, fmt.Errorf("openai embeddings API key not configured (%s)", cfg.APIKeyEnv)
		}
		return e, nil
	case "ollama":
		return NewOllamaEmbedder(cfg.Model, cfg.OllamaURL), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
