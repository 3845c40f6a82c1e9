package qa

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/TobiSchelling/NewsSense/internal/llm"
	"github.com/TobiSchelling/NewsSense/internal/news"
)

type mockRetriever struct {
	articles []news.Article
	err      error
	gotTopK  int
}

func (m *mockRetriever) Search(_ context.Context, _ string, topK int) ([]news.Article, error) {
	m.gotTopK = topK
	if topK <= 0 {
		return []news.Article{}, nil
	}
	return m.articles, m.err
}

type mockProvider struct {
	response string
	err      error
	requests []llm.Request
}

func (m *mockProvider) Complete(_ context.Context, req llm.Request) (string, error) {
	m.requests = append(m.requests, req)
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

func TestAnswerEmptyRetrievalMakesNoModelCall(t *testing.T) {
	provider := &mockProvider{response: "unused"}
	e := NewEngine(&mockRetriever{}, provider, 0, nil)

	got, err := e.Answer(context.Background(), "what happened?", DefaultTopK)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Text != NotFoundMessage {
		t.Errorf("expected not-found message, got %q", got.Text)
	}
	if got.Sources == nil || len(got.Sources) != 0 {
		t.Errorf("expected empty non-nil sources, got %v", got.Sources)
	}
	if len(provider.requests) != 0 {
		t.Errorf("expected zero model calls, got %d", len(provider.requests))
	}
}

func TestAnswerZeroTopK(t *testing.T) {
	provider := &mockProvider{}
	e := NewEngine(&mockRetriever{articles: []news.Article{{Title: "x"}}}, provider, 0, nil)

	got, err := e.Answer(context.Background(), "q", 0)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Text != NotFoundMessage || len(provider.requests) != 0 {
		t.Errorf("expected not-found without model call, got %+v", got)
	}
}

func TestAnswerUsesTemperatureZeroAndReturnsSources(t *testing.T) {
	sources := []news.Article{
		{Title: "Rates hold", Description: "Central bank pauses.", Source: "Wire", URL: "https://w/1"},
		{Title: "Markets calm", Description: "Stocks flat."},
	}
	provider := &mockProvider{response: "  The bank held rates.  \n"}
	retriever := &mockRetriever{articles: sources}
	e := NewEngine(retriever, provider, 256, nil)

	got, err := e.Answer(context.Background(), "What did the bank do?", 5)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Text != "The bank held rates." {
		t.Errorf("expected trimmed answer, got %q", got.Text)
	}
	if len(got.Sources) != 2 || got.Sources[0].Title != "Rates hold" {
		t.Errorf("expected retrieved list unchanged, got %v", got.Sources)
	}
	if retriever.gotTopK != 5 {
		t.Errorf("expected topK 5, got %d", retriever.gotTopK)
	}

	if len(provider.requests) != 1 {
		t.Fatalf("expected one model call, got %d", len(provider.requests))
	}
	req := provider.requests[0]
	if req.Temperature == nil || *req.Temperature != 0 {
		t.Errorf("expected temperature 0, got %v", req.Temperature)
	}
	if !strings.Contains(req.System, FallbackAnswer) || !strings.Contains(req.Prompt, FallbackAnswer) {
		t.Error("expected fallback phrase in instructions")
	}
	if !strings.Contains(req.Prompt, "Question: What did the bank do?") {
		t.Error("expected question in prompt")
	}
	if req.MaxTokens != 256 {
		t.Errorf("expected max tokens 256, got %d", req.MaxTokens)
	}
}

func TestAnswerGenerationError(t *testing.T) {
	provider := &mockProvider{err: errors.New("timeout")}
	e := NewEngine(&mockRetriever{articles: []news.Article{{Title: "x"}}}, provider, 0, nil)

	_, err := e.Answer(context.Background(), "q", 3)
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if len(provider.requests) != 1 {
		t.Errorf("expected no retry, got %d calls", len(provider.requests))
	}
}

func TestAnswerRetrievalErrorPropagates(t *testing.T) {
	sentinel := errors.New("index down")
	e := NewEngine(&mockRetriever{err: sentinel, articles: nil}, &mockProvider{}, 0, nil)

	_, err := e.Answer(context.Background(), "q", 3)
	if !errors.Is(err, sentinel) {
		t.Errorf("expected retrieval error to propagate, got %v", err)
	}
}

func TestBuildContextDefaults(t *testing.T) {
	got := BuildContext([]news.Article{{Title: "Only title"}})
	want := "1. Title: Only title\n" +
		"   Description: N/A\n" +
		"   Content: N/A\n" +
		"   Author: Unknown\n" +
		"   Source: Unknown\n" +
		"   Published At: Unknown\n" +
		"   URL: No URL\n\n"
	if got != want {
		t.Errorf("unexpected context:\n%s", got)
	}
}
