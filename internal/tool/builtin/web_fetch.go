package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	toolcore "github.com/harunnryd/familiar/internal/tool"
)

const maxFetchBytes = 5 << 20

func init() {
	toolcore.RegisterBuiltin("web_fetch", func(options toolcore.BuiltinOptions) ([]toolcore.Tool, error) {
		limit := options.WebMaxContentLength
		if limit <= 0 {
			limit = toolcore.DefaultBuiltinWebMaxContentLength
		}
		return []toolcore.Tool{&WebFetchTool{Client: options.HTTP(), MaxChars: limit}}, nil
	})
}

// WebFetchTool downloads a page and returns its readable text.
type WebFetchTool struct {
	Client   *http.Client
	MaxChars int
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Download and read the text content of a specific webpage."
}

func (t *WebFetchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to fetch",
			},
			"full": map[string]interface{}{
				"type":        "boolean",
				"description": "If true, return the entire page instead of only the beginning",
				"default":     false,
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, input json.RawMessage) (toolcore.Observation, error) {
	var args struct {
		URL  string `json:"url"`
		Full bool   `json:"full"`
	}
	if err := decodeArgs(input, &args); err != nil {
		return toolcore.Observation{}, err
	}

	rawURL := strings.TrimSpace(args.URL)
	if rawURL == "" {
		return toolcore.Observation{}, fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return toolcore.Observation{}, fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("User-Agent", userAgent)

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: toolcore.DefaultBuiltinWebTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return toolcore.Observation{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return toolcore.Observation{}, fmt.Errorf("received HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return toolcore.Observation{}, err
	}

	var title, text string
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "html") || looksLikeHTML(body) {
		title, text = readableText(string(body))
	} else {
		text = cleanWhitespace(string(body))
	}
	if text == "" {
		return toolcore.Text("(No readable text found)"), nil
	}
	if title != "" {
		text = "# " + title + "\n\n" + text
	}

	limit := t.MaxChars
	if limit <= 0 {
		limit = toolcore.DefaultBuiltinWebMaxContentLength
	}
	if !args.Full && utf8.RuneCountInString(text) > limit {
		slog.Debug("Fetched page truncated", "url", rawURL, "chars", utf8.RuneCountInString(text), "limit", limit)
		text = string([]rune(text)[:limit]) +
			fmt.Sprintf("\n\n--- [Truncated: Page is longer than %d characters. Use full=true if needed] ---", limit)
	}
	return toolcore.Text("%s", text), nil
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}
