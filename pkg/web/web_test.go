package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchExtractsReadableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Hello Page</title><style>.x{color:red}</style></head>` +
			`<body><script>evil()</script><h1>Hello</h1><p>World   of   go.</p></body></html>`))
	}))
	defer srv.Close()

	c := NewClient(Config{HTTPClient: srv.Client()})
	resp, err := c.Fetch(context.Background(), srv.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Title != "Hello Page" {
		t.Fatalf("unexpected title: %q", resp.Title)
	}
	if strings.Contains(resp.Text, "evil()") {
		t.Fatalf("script content leaked into extracted text: %q", resp.Text)
	}
	if !strings.Contains(resp.Text, "Hello") || !strings.Contains(resp.Text, "World of go.") {
		t.Fatalf("unexpected extracted text: %q", resp.Text)
	}
}

func TestFetchTruncatesToMaxChars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>" + strings.Repeat("a ", 100) + "</body></html>"))
	}))
	defer srv.Close()

	c := NewClient(Config{HTTPClient: srv.Client()})
	resp, err := c.Fetch(context.Background(), srv.URL, 5)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len([]rune(resp.Text)) != 5 {
		t.Fatalf("expected truncation to 5 runes, got %d: %q", len([]rune(resp.Text)), resp.Text)
	}
}

func TestFetchRejectsNonHTTPScheme(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.Fetch(context.Background(), "ftp://example.com/file", 0)
	if err == nil {
		t.Fatalf("expected error for non-http scheme")
	}
}

func TestSearchUsesAPIBackendWhenKeyPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "secret" {
			t.Errorf("expected API key header to be forwarded")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"A","url":"https://a.example","snippet":"snip a"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "secret", APIBaseURL: srv.URL, HTTPClient: srv.Client()})
	resp, err := c.Search(context.Background(), "golang", SearchOptions{Fetch: false})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Title != "A" {
		t.Fatalf("unexpected results: %#v", resp.Results)
	}
}

func TestSearchEmptyQueryRejected(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.Search(context.Background(), "   ", SearchOptions{})
	if err == nil {
		t.Fatalf("expected error for empty query")
	}
}

func TestSearchFetchCapturesPerResultFailure(t *testing.T) {
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"Bad","url":"` + badSrv.URL + `","snippet":"s"}]}`))
	}))
	defer apiSrv.Close()

	c := NewClient(Config{APIKey: "k", APIBaseURL: apiSrv.URL, HTTPClient: apiSrv.Client()})
	resp, err := c.Search(context.Background(), "q", SearchOptions{Fetch: true, Count: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Fetched) != 1 || resp.Fetched[0].Error == "" {
		t.Fatalf("expected a captured fetch error, got %#v", resp.Fetched)
	}
}
