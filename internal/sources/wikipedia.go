package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Wikipedia looks up encyclopedia articles through the MediaWiki API.
type Wikipedia struct {
	// Endpoint is the api.php URL. It defaults to the Wikipedia of the
	// configured language.
	Endpoint string
	Limits   Limits
	client   *http.Client
}

// NewWikipedia constructs a Wikipedia source for the given language code.
func NewWikipedia(limits Limits, lang string) *Wikipedia {
	return NewWikipediaWithClient(limits, lang, newHTTPClient())
}

// NewWikipediaWithClient constructs a Wikipedia source using the supplied HTTP client.
func NewWikipediaWithClient(limits Limits, lang string, client *http.Client) *Wikipedia {
	if lang == "" {
		lang = "en"
	}
	return &Wikipedia{
		Endpoint: fmt.Sprintf("https://%s.wikipedia.org/w/api.php", lang),
		Limits:   limits,
		client:   client,
	}
}

func (w *Wikipedia) Name() string { return "encyclopedia_search" }

func (w *Wikipedia) Description() string {
	return "Query Wikipedia articles. Useful for general questions about people, places, " +
		"companies, facts, historical events, or other subjects. Input should be a search query."
}

// Call searches Wikipedia and returns the introduction of the best pages.
func (w *Wikipedia) Call(ctx context.Context, query string) (string, error) {
	query = truncate(query, maxQueryLength)

	titles, err := w.search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(titles) == 0 {
		return "", errors.Wrapf(ErrNoResults, "wikipedia: %q", query)
	}

	extracts, err := w.extracts(ctx, titles)
	if err != nil {
		return "", err
	}

	records := make([]string, 0, len(titles))
	for _, title := range titles {
		summary := strings.TrimSpace(extracts[title])
		if summary == "" {
			continue
		}
		records = append(records, fmt.Sprintf("Page: %s\nSummary: %s", title, summary))
	}

	if len(records) == 0 {
		return "", errors.Wrapf(ErrNoResults, "wikipedia: %q", query)
	}

	return w.Limits.apply(records), nil
}

func (w *Wikipedia) search(ctx context.Context, query string) ([]string, error) {
	limit := w.Limits.MaxResults
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{
		"action":        {"query"},
		"list":          {"search"},
		"srsearch":      {query},
		"srlimit":       {strconv.Itoa(limit)},
		"format":        {"json"},
		"formatversion": {"2"},
	}

	var payload struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := w.get(ctx, params, &payload); err != nil {
		return nil, errors.Wrap(err, "wikipedia: search")
	}

	titles := make([]string, 0, len(payload.Query.Search))
	for _, s := range payload.Query.Search {
		titles = append(titles, s.Title)
	}
	return titles, nil
}

// extracts returns the plain-text introduction of each page keyed by title.
func (w *Wikipedia) extracts(ctx context.Context, titles []string) (map[string]string, error) {
	params := url.Values{
		"action":        {"query"},
		"prop":          {"extracts"},
		"exintro":       {"1"},
		"explaintext":   {"1"},
		"titles":        {strings.Join(titles, "|")},
		"format":        {"json"},
		"formatversion": {"2"},
	}

	var payload struct {
		Query struct {
			Pages []struct {
				Title   string `json:"title"`
				Extract string `json:"extract"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := w.get(ctx, params, &payload); err != nil {
		return nil, errors.Wrap(err, "wikipedia: extracts")
	}

	out := make(map[string]string, len(payload.Query.Pages))
	for _, p := range payload.Query.Pages {
		out[p.Title] = p.Extract
	}
	return out, nil
}

func (w *Wikipedia) get(ctx context.Context, params url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("http %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
