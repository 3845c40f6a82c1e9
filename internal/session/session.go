package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TobiSchelling/NewsSense/internal/logger"
	"github.com/TobiSchelling/NewsSense/internal/news"
	"github.com/TobiSchelling/NewsSense/internal/qa"
)

const (
	RoleUser = "user"
	RoleAI   = "ai"

	// Apology replaces the answer when a question could not be answered.
	Apology = "Sorry, something went wrong while answering. Please try again."
)

// ErrEmptyQuestion is returned by Ask for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

// Collector gathers the latest articles.
type Collector interface {
	FetchAll(ctx context.Context) []news.Article
}

// Indexer stores articles for retrieval.
type Indexer interface {
	Sync(ctx context.Context, articles []news.Article) (int, error)
}

// Summarizer produces one summary per category.
type Summarizer interface {
	SummarizeByCategory(ctx context.Context, articles []news.Article) (map[string]string, error)
}

// Answerer answers a question from indexed articles.
type Answerer interface {
	Answer(ctx context.Context, question string, topK int) (qa.Answer, error)
}

// StepResult holds the result of a single refresh step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full refresh.
type Result struct {
	Steps []StepResult
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(s.Name), s.Err)
		}
	}
	return nil
}

// ChatTurn is one entry of the conversation transcript.
type ChatTurn struct {
	Role    string         `json:"role"`
	Message string         `json:"message"`
	Sources []news.Article `json:"sources,omitempty"`
}

// Summary is a category summary in display order.
type Summary struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// Options wires a Session.
type Options struct {
	Collector  Collector
	Index      Indexer
	Summarizer Summarizer
	Answerer   Answerer
	Categories []string
	TopK       int
	Logger     *slog.Logger
}

// Session holds the articles, summaries and transcript of one user. Every
// action holds the session lock for its whole duration.
type Session struct {
	opts Options
	log  *slog.Logger
	now  func() time.Time

	mu          sync.Mutex
	articles    []news.Article
	summaries   map[string]string
	transcript  []ChatTurn
	lastRefresh time.Time
	closers     []func() error
}

// New creates an empty session.
func New(opts Options) *Session {
	if opts.TopK <= 0 {
		opts.TopK = qa.DefaultTopK
	}
	return &Session{
		opts:      opts,
		log:       logger.OrDiscard(opts.Logger),
		now:       time.Now,
		summaries: map[string]string{},
	}
}

// Refresh collects articles, re-indexes them and regenerates the summaries.
// A failed index step stops the refresh and leaves the previous summaries in
// place.
func (s *Session) Refresh(ctx context.Context) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Result{}

	s.log.Info("Step 1/3: Collecting articles...")
	articles := s.opts.Collector.FetchAll(ctx)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Collect",
		Summary: fmt.Sprintf("Collected %d articles", len(articles)),
	})

	s.log.Info("Step 2/3: Indexing articles...")
	stored, err := s.opts.Index.Sync(ctx, articles)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Index", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Index",
		Summary: fmt.Sprintf("Indexed %d articles", stored),
	})

	s.log.Info("Step 3/3: Summarizing categories...")
	summaries, err := s.opts.Summarizer.SummarizeByCategory(ctx, articles)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Summarize",
		Summary: fmt.Sprintf("Summarized %d categories", len(summaries)),
		Err:     err,
	})

	s.articles = articles
	s.summaries = summaries
	s.lastRefresh = s.now()
	return r
}

// Ask appends the question and its answer to the transcript and returns the
// answer turn. When answering fails the turn carries Apology and the error
// is returned alongside it.
func (s *Session) Ask(ctx context.Context, question string) (ChatTurn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return ChatTurn{}, ErrEmptyQuestion
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcript = append(s.transcript, ChatTurn{Role: RoleUser, Message: question})

	ans, err := s.opts.Answerer.Answer(ctx, question, s.opts.TopK)
	if err != nil {
		s.log.Error("answering question failed", "error", err)
		turn := ChatTurn{Role: RoleAI, Message: Apology}
		s.transcript = append(s.transcript, turn)
		return turn, err
	}

	turn := ChatTurn{Role: RoleAI, Message: ans.Text, Sources: ans.Sources}
	s.transcript = append(s.transcript, turn)
	return turn, nil
}

// Clear drops articles, summaries and the transcript.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.articles = nil
	s.summaries = map[string]string{}
	s.transcript = nil
	s.lastRefresh = time.Time{}
}

// Summaries returns the current summaries, configured categories first and
// any others after them alphabetically.
func (s *Session) Summaries() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Summary, 0, len(s.summaries))
	for _, c := range s.opts.Categories {
		if text, ok := s.summaries[c]; ok {
			out = append(out, Summary{Category: c, Text: text})
		}
	}

	var extra []string
	for c := range s.summaries {
		if !slices.Contains(s.opts.Categories, c) {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	for _, c := range extra {
		out = append(out, Summary{Category: c, Text: s.summaries[c]})
	}
	return out
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.transcript)
}

// Articles returns the articles from the last successful refresh.
func (s *Session) Articles() []news.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.articles)
}

// LastRefresh reports when summaries were last regenerated.
func (s *Session) LastRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh
}

// Close releases resources opened for the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
