package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/TobiSchelling/NewsSense/internal/llm"
	"github.com/TobiSchelling/NewsSense/internal/logger"
	"github.com/TobiSchelling/NewsSense/internal/news"
)

const (
	// DefaultTopK is the number of articles retrieved per question.
	DefaultTopK = 10

	// NotFoundMessage is returned when retrieval finds nothing.
	NotFoundMessage = "Sorry, I couldn't find any relevant news articles."

	// FallbackAnswer is the phrase the model is told to use when the
	// articles do not answer the question.
	FallbackAnswer = "I don't know based on the available articles."
)

const systemPrompt = "You are a helpful news assistant. Answer using only the news articles provided by the user. " +
	`If the articles don't contain the answer, say "` + FallbackAnswer + `"`

const questionPrompt = `Using the following news articles, answer the question below.

News Articles:
%s
Question: %s

Answer based only on the articles above. If the articles don't contain the answer, say "%s"`

// Retriever returns the articles most relevant to a question, best first.
type Retriever interface {
	Search(ctx context.Context, text string, topK int) ([]news.Article, error)
}

// Answer is a grounded reply and the articles it was grounded on.
type Answer struct {
	Text    string
	Sources []news.Article
}

// GenerationError reports that the model failed to produce an answer.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating answer: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Engine answers questions from retrieved news articles.
type Engine struct {
	retriever Retriever
	provider  llm.Provider
	maxTokens int
	log       *slog.Logger
}

// NewEngine creates a question-answering engine.
func NewEngine(retriever Retriever, provider llm.Provider, maxTokens int, log *slog.Logger) *Engine {
	return &Engine{
		retriever: retriever,
		provider:  provider,
		maxTokens: maxTokens,
		log:       logger.OrDiscard(log),
	}
}

// Answer retrieves up to topK articles and asks the model to answer from
// them alone. When nothing is retrieved the model is not called.
func (e *Engine) Answer(ctx context.Context, question string, topK int) (Answer, error) {
	articles, err := e.retriever.Search(ctx, question, topK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieving articles: %w", err)
	}
	if len(articles) == 0 {
		return Answer{Text: NotFoundMessage, Sources: []news.Article{}}, nil
	}

	e.log.Debug("answering", "question", question, "sources", len(articles))

	out, err := e.provider.Complete(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      fmt.Sprintf(questionPrompt, BuildContext(articles), question, FallbackAnswer),
		Temperature: llm.Temperature(0),
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		return Answer{}, &GenerationError{Err: err}
	}

	return Answer{Text: strings.TrimSpace(out), Sources: articles}, nil
}

// BuildContext renders articles as the numbered block placed in the prompt.
func BuildContext(articles []news.Article) string {
	var sb strings.Builder
	for i, a := range articles {
		fmt.Fprintf(&sb, "%d. Title: %s\n", i+1, orDefault(a.Title, "N/A"))
		fmt.Fprintf(&sb, "   Description: %s\n", orDefault(a.Description, "N/A"))
		fmt.Fprintf(&sb, "   Content: %s\n", orDefault(a.Content, "N/A"))
		fmt.Fprintf(&sb, "   Author: %s\n", orDefault(a.Author, "Unknown"))
		fmt.Fprintf(&sb, "   Source: %s\n", orDefault(a.Source, "Unknown"))
		fmt.Fprintf(&sb, "   Published At: %s\n", orDefault(a.PublishedAt, "Unknown"))
		fmt.Fprintf(&sb, "   URL: %s\n\n", orDefault(a.URL, "No URL"))
	}
	return sb.String()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
