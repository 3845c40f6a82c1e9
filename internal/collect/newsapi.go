package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/NewsSense/internal/news"
)

const newsAPIBaseURL = "https://newsapi.org/v2/everything"

// FetchError reports a failed fetch for one category or feed. It never
// aborts a collection run.
type FetchError struct {
	Source   string
	Category string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s from %s: %v", e.Category, e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewsAPIClient fetches articles from the NewsAPI "everything" endpoint.
type NewsAPIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewNewsAPIClient creates a new NewsAPI client. An empty baseURL uses the
// public endpoint.
func NewNewsAPIClient(apiKeyEnv, baseURL string) *NewsAPIClient {
	if baseURL == "" {
		baseURL = newsAPIBaseURL
	}
	return &NewsAPIClient{
		apiKey:  os.Getenv(apiKeyEnv),
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// IsConfigured returns whether the API key is available.
func (c *NewsAPIClient) IsConfigured() bool {
	return c.apiKey != ""
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Author      string `json:"author"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Content     string `json:"content"`
	} `json:"articles"`
}

// FetchCategory returns the most recent English articles matching category.
// Missing optional fields are left empty.
func (c *NewsAPIClient) FetchCategory(ctx context.Context, category string, pageSize int) ([]news.Article, error) {
	fail := func(err error) ([]news.Article, error) {
		return nil, &FetchError{Source: "newsapi", Category: category, Err: err}
	}

	if c.apiKey == "" {
		return fail(fmt.Errorf("API key not configured"))
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	params := url.Values{
		"q":        {category},
		"language": {"en"},
		"pageSize": {strconv.Itoa(pageSize)},
		"sortBy":   {"publishedAt"},
		"apiKey":   {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fail(err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("reading response: %w", err))
	}

	var result newsAPIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fail(fmt.Errorf("HTTP %d", resp.StatusCode))
		}
		return fail(fmt.Errorf("decoding response: %w", err))
	}

	if result.Status != "ok" {
		msg := result.Message
		if msg == "" {
			msg = "status " + strconv.Quote(result.Status)
		}
		return fail(fmt.Errorf("newsapi error: %s", msg))
	}

	articles := make([]news.Article, 0, len(result.Articles))
	for _, a := range result.Articles {
		articles = append(articles, news.Article{
			Title:       strings.TrimSpace(a.Title),
			Description: a.Description,
			Content:     a.Content,
			URL:         a.URL,
			Author:      a.Author,
			Source:      a.Source.Name,
			PublishedAt: a.PublishedAt,
			Category:    category,
		})
	}
	return articles, nil
}
