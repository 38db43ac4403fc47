// Package web implements the two outward-facing browsing tools: search,
// which is provider-polymorphic between a key-authenticated JSON API and an
// HTML scraper, and fetch, which retrieves a URL and extracts its readable
// text. The HTTP client shape is a bare *http.Client with a sane default
// timeout, matching this module's other provider clients.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quietloop/workshop/pkg/apperr"
	"golang.org/x/net/html"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	defaultMaxChars    = 20000
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Fetched is the outcome of fetching one search result's URL, folded into a
// SearchResponse when fetch=true.
type Fetched struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// SearchResponse is the shape returned by Client.Search.
type SearchResponse struct {
	Results []Result  `json:"results"`
	Fetched []Fetched `json:"fetched,omitempty"`
}

// FetchResponse is the shape returned by Client.Fetch.
type FetchResponse struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// SearchOptions configures Client.Search; zero values fall back to the
// defaults named in the runtime's web-tools design.
type SearchOptions struct {
	Count      int
	Fetch      bool
	FetchCount int
	MaxChars   int
}

func (o SearchOptions) normalize() SearchOptions {
	if o.Count <= 0 {
		o.Count = 5
	}
	if o.FetchCount <= 0 {
		o.FetchCount = min(3, o.Count)
	}
	if o.MaxChars <= 0 {
		o.MaxChars = defaultMaxChars
	}
	return o
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// backend abstracts the two recognized search variants.
type backend interface {
	search(ctx context.Context, query string, count int) ([]Result, error)
}

// Client is the web-tools entry point handed to the tool layer.
type Client struct {
	httpClient *http.Client
	backend    backend
}

// Config selects and authenticates the search backend. An empty APIKey
// selects the HTML scraper variant; a non-empty one selects the
// key-authenticated JSON API variant.
type Config struct {
	APIKey     string
	APIBaseURL string
	HTTPClient *http.Client
}

// NewClient builds a Client whose backend is chosen by presence of cfg.APIKey.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	var b backend
	if strings.TrimSpace(cfg.APIKey) != "" {
		b = &apiBackend{apiKey: cfg.APIKey, baseURL: cfg.APIBaseURL, httpClient: httpClient}
	} else {
		b = &scrapeBackend{httpClient: httpClient}
	}
	return &Client{httpClient: httpClient, backend: b}
}

// Search runs a query against the configured backend and optionally fetches
// the top results' pages.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) (SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResponse{}, apperr.New(apperr.InvalidInput, "web_search", fmt.Errorf("query is empty"))
	}
	opts = opts.normalize()

	results, err := c.backend.search(ctx, query, opts.Count)
	if err != nil {
		return SearchResponse{}, err
	}
	if len(results) > opts.Count {
		results = results[:opts.Count]
	}

	resp := SearchResponse{Results: results}
	if !opts.Fetch {
		return resp, nil
	}

	fetchCount := opts.FetchCount
	if fetchCount > len(results) {
		fetchCount = len(results)
	}
	for i := 0; i < fetchCount; i++ {
		r := results[i]
		fr, ferr := c.Fetch(ctx, r.URL, opts.MaxChars)
		if ferr != nil {
			resp.Fetched = append(resp.Fetched, Fetched{URL: r.URL, Title: r.Title, Text: "", Error: ferr.Error()})
			continue
		}
		resp.Fetched = append(resp.Fetched, Fetched{URL: fr.URL, Title: fr.Title, Text: fr.Text})
	}
	return resp, nil
}

// Fetch retrieves url and extracts its readable text, normalized to
// single-spaced content and truncated to maxChars.
func (c *Client) Fetch(ctx context.Context, target string, maxChars int) (FetchResponse, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return FetchResponse{}, apperr.New(apperr.InvalidInput, "web_fetch", fmt.Errorf("url is empty"))
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return FetchResponse{}, apperr.New(apperr.InvalidInput, "web_fetch", fmt.Errorf("url must be http(s): %s", target))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return FetchResponse{}, apperr.New(apperr.InvalidInput, "web_fetch", err)
	}
	req.Header.Set("User-Agent", "workshop-agent/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return FetchResponse{}, apperr.New(apperr.ProviderError, "web_fetch", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return FetchResponse{}, apperr.Newf(apperr.ProviderError, "web_fetch", "unexpected status %d for %s", resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return FetchResponse{}, apperr.New(apperr.ProviderError, "web_fetch", err)
	}

	title, text := extractReadableText(body)
	text = truncate(normalizeWhitespace(text), maxChars)
	return FetchResponse{URL: target, Title: title, Text: text}, nil
}

func truncate(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars])
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// extractReadableText walks the parsed HTML tree, dropping script/style
// content and returning the page title alongside the concatenated text of
// the body.
func extractReadableText(body []byte) (title string, text string) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", normalizeWhitespace(string(body))
	}

	var sb strings.Builder
	var skip = map[string]bool{"script": true, "style": true, "noscript": true}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "title" && n.FirstChild != nil {
				title = n.FirstChild.Data
			}
			if skip[n.Data] {
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(title), sb.String()
}

// ---- key-authenticated JSON API backend ----

type apiBackend struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type apiSearchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

func (b *apiBackend) search(ctx context.Context, query string, count int) ([]Result, error) {
	base := b.baseURL
	if base == "" {
		base = "https://api.search.brave.com/res/v1/web/search"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, apperr.New(apperr.InvalidInput, "web_search", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", count))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperr.New(apperr.InvalidInput, "web_search", err)
	}
	req.Header.Set("X-Subscription-Token", b.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, apperr.New(apperr.ProviderError, "web_search", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, apperr.Newf(apperr.ProviderError, "web_search", "search API returned status %d", resp.StatusCode)
	}

	var parsed apiSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.New(apperr.ProviderError, "web_search", err)
	}
	out := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	return out, nil
}

// ---- HTML scraper backend ----

type scrapeBackend struct {
	httpClient *http.Client
}

func (b *scrapeBackend) search(ctx context.Context, query string, count int) ([]Result, error) {
	u := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperr.New(apperr.InvalidInput, "web_search", err)
	}
	req.Header.Set("User-Agent", "workshop-agent/1.0")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, apperr.New(apperr.ProviderError, "web_search", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, apperr.Newf(apperr.ProviderError, "web_search", "search page returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, apperr.New(apperr.ProviderError, "web_search", err)
	}
	return parseDuckDuckGoResults(doc, count), nil
}

// parseDuckDuckGoResults walks the scraped result page looking for
// anchor/snippet pairs under the "result__a" / "result__snippet" classes
// DuckDuckGo's HTML-only endpoint emits.
func parseDuckDuckGoResults(doc *html.Node, count int) []Result {
	var out []Result
	var current Result
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(out) >= count {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			if current.URL != "" {
				out = append(out, current)
				current = Result{}
			}
			current.URL = attr(n, "href")
			current.Title = textContent(n)
		}
		if n.Type == html.ElementNode && hasClass(n, "result__snippet") {
			current.Snippet = textContent(n)
		}
		for c := n.FirstChild; c != nil && len(out) < count; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if current.URL != "" && len(out) < count {
		out = append(out, current)
	}
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return normalizeWhitespace(sb.String())
}
