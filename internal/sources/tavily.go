package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API.
type Tavily struct {
	APIKey   string
	Endpoint string
	Limits   Limits
	// Depth controls Tavily's search_depth parameter (basic or advanced).
	Depth  string
	client *http.Client
}

// NewTavily constructs a Tavily search source.
func NewTavily(apiKey string, limits Limits, depth string) *Tavily {
	return NewTavilyWithClient(apiKey, limits, depth, newHTTPClient())
}

// NewTavilyWithClient constructs a Tavily search source using the supplied HTTP client.
func NewTavilyWithClient(apiKey string, limits Limits, depth string, client *http.Client) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	return &Tavily{APIKey: apiKey, Endpoint: tavilyEndpoint, Limits: limits, Depth: depth, client: client}
}

func (t *Tavily) Name() string { return "web_search" }

func (t *Tavily) Description() string {
	return "A search engine optimized for comprehensive, accurate, and trusted results. " +
		"Useful for answering questions about current events. Input should be a search query."
}

// Call posts query to Tavily and returns the formatted results.
func (t *Tavily) Call(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return "", errors.New("tavily: API key is missing")
	}

	body := map[string]any{
		"query":        query,
		"api_key":      t.APIKey,
		"search_depth": t.Depth,
	}
	if t.Limits.MaxResults > 0 {
		body["max_results"] = t.Limits.MaxResults
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "tavily")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("tavily http %d", resp.StatusCode)
	}

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", errors.Wrap(err, "tavily: decode response")
	}

	records := make([]string, 0, len(response.Results))
	for _, r := range response.Results {
		records = append(records, fmt.Sprintf("Title: %s\nURL: %s\nContent: %s", r.Title, r.URL, squash(r.Content)))
	}

	if len(records) == 0 {
		return "", errors.Wrapf(ErrNoResults, "tavily: %q", query)
	}

	return t.Limits.apply(records), nil
}
