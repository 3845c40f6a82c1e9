package collect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/NewsSense/internal/news"
)

func TestNeedsContent(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"", true},
		{"   ", true},
		{"The council voted on Tuesday… [+2817 chars]", true},
		{"A complete paragraph of text.", false},
	}
	for _, tt := range tests {
		if got := NeedsContent(news.Article{Content: tt.content}); got != tt.want {
			t.Errorf("NeedsContent(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}

func TestEnrichReplacesTruncatedContent(t *testing.T) {
	paragraph := strings.Repeat("The city council approved the new transit budget after a long debate. ", 6)
	page := "<html><head><title>Transit</title></head><body><article><h1>Transit</h1>" +
		"<p>" + paragraph + "</p><p>" + paragraph + "</p><p>" + paragraph + "</p></article></body></html>"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer srv.Close()

	articles := []news.Article{
		{Title: "Transit", URL: srv.URL + "/transit", Content: "The city council… [+900 chars]"},
		{Title: "Complete", URL: srv.URL + "/complete", Content: "Already whole."},
		{Title: "No URL"},
	}

	e := NewEnricher(5*time.Second, nil)
	r := e.Enrich(context.Background(), articles)

	if r.Fetched != 1 || r.Skipped != 2 {
		t.Errorf("unexpected result %+v", r)
	}
	if !strings.Contains(articles[0].Content, "transit budget") {
		t.Errorf("expected extracted content, got %q", articles[0].Content)
	}
	if articles[1].Content != "Already whole." {
		t.Errorf("complete content should be untouched, got %q", articles[1].Content)
	}
}

func TestEnrichSkipsFailedDomain(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	articles := []news.Article{
		{Title: "One", URL: srv.URL + "/1"},
		{Title: "Two", URL: srv.URL + "/2", Content: "Short… [+10 chars]"},
	}

	e := NewEnricher(5*time.Second, nil)
	r := e.Enrich(context.Background(), articles)

	if r.Failed != 2 {
		t.Errorf("expected 2 failures, got %+v", r)
	}
	if hits.Load() != 1 {
		t.Errorf("expected failed domain to be skipped after first error, got %d hits", hits.Load())
	}
	if articles[1].Content != "Short… [+10 chars]" {
		t.Errorf("failure should keep original content, got %q", articles[1].Content)
	}
}
