package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	toolcore "github.com/harunnryd/familiar/internal/tool"

	"golang.org/x/net/html"
)

const (
	defaultWebSearchURL        = "https://html.duckduckgo.com/html/"
	defaultWebSearchMaxResults = 5
	maxWebSearchResultsHardCap = 10

	userAgent = "Mozilla/5.0 (compatible; familiar/1.0)"
)

type searchResult struct {
	Title   string
	URL     string
	Snippet string
}

type WebSearchTool struct {
	Client     *http.Client
	BaseURL    string
	MaxResults int
}

func init() {
	toolcore.RegisterBuiltin("web_search", func(options toolcore.BuiltinOptions) ([]toolcore.Tool, error) {
		baseURL := strings.TrimSpace(options.WebSearchURL)
		if baseURL == "" {
			baseURL = defaultWebSearchURL
		}
		return []toolcore.Tool{&WebSearchTool{
			Client:     options.HTTP(),
			BaseURL:    baseURL,
			MaxResults: defaultWebSearchMaxResults,
		}}, nil
	})
}

func (t *WebSearchTool) Name() string {
	return "web_search"
}

func (t *WebSearchTool) Description() string {
	return "Search the web for real-time information, news, or facts."
}

func (t *WebSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The search query",
			},
			"max_results": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of results (default 5, max 10)",
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, input json.RawMessage) (toolcore.Observation, error) {
	var args struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return toolcore.Observation{}, err
	}

	query := strings.TrimSpace(args.Query)
	if query == "" {
		return toolcore.Observation{}, fmt.Errorf("query is required")
	}

	baseURL := strings.TrimSpace(t.BaseURL)
	if baseURL == "" {
		baseURL = defaultWebSearchURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return toolcore.Observation{}, fmt.Errorf("invalid search endpoint: %w", err)
	}
	q := parsed.Query()
	q.Set("q", query)
	parsed.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return toolcore.Observation{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: toolcore.DefaultBuiltinWebTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return toolcore.Observation{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return toolcore.Observation{}, fmt.Errorf("search request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return toolcore.Observation{}, err
	}

	results := parseSearchResults(string(body), effectiveMaxResults(args.MaxResults, t.MaxResults))
	slog.Debug("Web search completed", "query", query, "results", len(results))
	if len(results) == 0 {
		return toolcore.Text("No search results found."), nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   Summary: %s\n", r.Snippet)
		}
		b.WriteString("\n")
	}
	return toolcore.Text("%s", strings.TrimRight(b.String(), "\n")), nil
}

func effectiveMaxResults(requested int, toolDefault int) int {
	maxResults := requested
	if maxResults <= 0 {
		maxResults = toolDefault
	}
	if maxResults <= 0 {
		maxResults = defaultWebSearchMaxResults
	}
	if maxResults > maxWebSearchResultsHardCap {
		maxResults = maxWebSearchResultsHardCap
	}
	return maxResults
}

// parseSearchResults reads the DuckDuckGo HTML result page.
func parseSearchResults(doc string, maxResults int) []searchResult {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil
	}

	var out []searchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(out) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result__body") {
			if r, ok := parseResult(n); ok {
				out = append(out, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func parseResult(body *html.Node) (searchResult, bool) {
	var r searchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a") && r.URL == "":
				r.URL = resolveResultURL(attr(n, "href"))
				r.Title = cleanWhitespace(textContent(n))
				return
			case hasClass(n, "result__snippet") && r.Snippet == "":
				r.Snippet = cleanWhitespace(textContent(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(body)
	return r, r.URL != "" && r.Title != ""
}

// resolveResultURL unwraps DuckDuckGo redirect links (/l/?uddg=...).
func resolveResultURL(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
