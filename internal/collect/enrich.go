package collect

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/NewsSense/internal/logger"
	"github.com/TobiSchelling/NewsSense/internal/news"
)

// truncatedContent matches NewsAPI's "... [+1234 chars]" suffix.
var truncatedContent = regexp.MustCompile(`\[\+\d+ chars\]\s*$`)

const minExtractedChars = 100

// EnrichResult holds the counters of an enrichment pass.
type EnrichResult struct {
	Fetched int
	Skipped int
	Failed  int
}

// Enricher replaces empty or truncated article content with the full text
// extracted from the article page.
type Enricher struct {
	client *http.Client
	log    *slog.Logger
}

// NewEnricher creates an enricher with the given per-request timeout.
func NewEnricher(timeout time.Duration, log *slog.Logger) *Enricher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Enricher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		log: logger.OrDiscard(log),
	}
}

// NeedsContent reports whether a's content is missing or cut off.
func NeedsContent(a news.Article) bool {
	content := strings.TrimSpace(a.Content)
	return content == "" || truncatedContent.MatchString(content)
}

// Enrich updates articles in place. Failures keep the original content, and
// a domain that answered with an HTTP error is not retried in the same pass.
func (e *Enricher) Enrich(ctx context.Context, articles []news.Article) EnrichResult {
	var r EnrichResult
	failedDomains := make(map[string]struct{})

	for i := range articles {
		a := &articles[i]
		if a.URL == "" || !NeedsContent(*a) {
			r.Skipped++
			continue
		}

		u, err := url.Parse(a.URL)
		if err != nil {
			r.Failed++
			continue
		}
		domain := strings.ToLower(u.Host)
		if _, failed := failedDomains[domain]; failed {
			r.Failed++
			continue
		}

		text, err := e.extract(ctx, u)
		if err != nil {
			r.Failed++
			if _, isHTTP := err.(*httpError); isHTTP {
				failedDomains[domain] = struct{}{}
			}
			e.log.Debug("content fetch failed", "url", a.URL, "error", err)
			continue
		}
		if text == "" {
			r.Failed++
			continue
		}

		a.Content = text
		r.Fetched++
	}

	e.log.Info("content enrichment complete", "fetched", r.Fetched, "skipped", r.Skipped, "failed", r.Failed)
	return r
}

func (e *Enricher) extract(ctx context.Context, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "NewsSense/1.0 (news digest)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	article, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return "", fmt.Errorf("extracting content: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < minExtractedChars {
		return "", nil
	}
	return text, nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.code, http.StatusText(e.code))
}
