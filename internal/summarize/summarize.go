package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/NewsSense/internal/llm"
	"github.com/TobiSchelling/NewsSense/internal/logger"
	"github.com/TobiSchelling/NewsSense/internal/news"
)

// DefaultMaxChars caps the joined descriptions sent for one category.
const DefaultMaxChars = 8000

const systemPrompt = "You are a helpful assistant."

const categoryPrompt = `You are an analytical journalist AI. Analyze today's %s news articles.

1. Summarize the main events and trends into 3-4 concise highlights.
2. Determine the overall sentiment (Positive, Negative, or Neutral).
3. Give a short reasoning for your sentiment classification.

Articles:
%s`

// NoNewsPlaceholder is the summary of a category without any descriptions.
func NoNewsPlaceholder(category string) string {
	return fmt.Sprintf("No %s news available today.", category)
}

// UnavailableMarker replaces the summary of a category whose generation failed.
func UnavailableMarker(category string) string {
	return fmt.Sprintf("Summary unavailable for %s right now.", category)
}

// GenerationError reports a failed summary for one category.
type GenerationError struct {
	Category string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("summarizing %s: %v", e.Category, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Options configures a Summarizer.
type Options struct {
	MaxChars    int
	Concurrency int
	MaxTokens   int
	Logger      *slog.Logger
}

// Summarizer produces one digest per news category.
type Summarizer struct {
	provider llm.Provider
	opts     Options
	log      *slog.Logger
}

// NewSummarizer creates a summarizer backed by provider.
func NewSummarizer(provider llm.Provider, opts Options) *Summarizer {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Summarizer{provider: provider, opts: opts, log: logger.OrDiscard(opts.Logger)}
}

// SummarizeCategory summarizes descriptions for one category. An empty list
// yields the no-news placeholder without calling the model.
func (s *Summarizer) SummarizeCategory(ctx context.Context, category string, descriptions []string) (string, error) {
	if len(descriptions) == 0 {
		return NoNewsPlaceholder(category), nil
	}

	text := truncateRunes(strings.Join(descriptions, "\n"), s.opts.MaxChars)
	out, err := s.provider.Complete(ctx, llm.Request{
		System:    systemPrompt,
		Prompt:    fmt.Sprintf(categoryPrompt, category, text),
		MaxTokens: s.opts.MaxTokens,
	})
	if err != nil {
		return "", &GenerationError{Category: category, Err: err}
	}
	return out, nil
}

// SummarizeByCategory returns exactly one entry for every category present in
// articles. A failed category gets UnavailableMarker and its error is joined
// into the returned error; the other categories are still summarized.
func (s *Summarizer) SummarizeByCategory(ctx context.Context, articles []news.Article) (map[string]string, error) {
	categories, grouped := group(articles)

	var (
		mu        sync.Mutex
		summaries = make(map[string]string, len(categories))
		errs      []error
	)

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for _, category := range categories {
		category := category
		g.Go(func() error {
			summary, err := s.SummarizeCategory(ctx, category, grouped[category])

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn("summary failed", "category", category, "error", err)
				summaries[category] = UnavailableMarker(category)
				errs = append(errs, err)
				return nil
			}
			summaries[category] = summary
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("summaries complete", "categories", len(summaries), "failed", len(errs))
	return summaries, errors.Join(errs...)
}

// group collects non-blank descriptions per category, keeping categories in
// first-seen order.
func group(articles []news.Article) ([]string, map[string][]string) {
	var order []string
	grouped := make(map[string][]string)
	for _, a := range articles {
		if _, seen := grouped[a.Category]; !seen {
			order = append(order, a.Category)
			grouped[a.Category] = nil
		}
		if a.HasDescription() {
			grouped[a.Category] = append(grouped[a.Category], a.Description)
		}
	}
	return order, grouped
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
