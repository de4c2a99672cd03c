package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const arxivEndpoint = "https://export.arxiv.org/api/query"

var arxivIdentifier = regexp.MustCompile(`^(\d{4}\.\d{4,5}|[a-z][a-z.-]*(\.[A-Z]{2})?/\d{7})(v\d+)?$`)

// Arxiv searches academic papers on arXiv.
type Arxiv struct {
	Endpoint string
	Limits   Limits
	// FullText replaces each abstract with the passage of the paper PDF
	// that is most similar to the query. Abstracts are kept when the PDF
	// cannot be read.
	FullText bool
	client   *http.Client
}

// NewArxiv constructs an arXiv source.
func NewArxiv(limits Limits, fullText bool) *Arxiv {
	return NewArxivWithClient(limits, fullText, newHTTPClient())
}

// NewArxivWithClient constructs an arXiv source using the supplied HTTP client.
func NewArxivWithClient(limits Limits, fullText bool, client *http.Client) *Arxiv {
	return &Arxiv{Endpoint: arxivEndpoint, Limits: limits, FullText: fullText, client: client}
}

func (a *Arxiv) Name() string { return "paper_search" }

func (a *Arxiv) Description() string {
	return "Query arxiv papers. Searches arXiv for scientific articles in physics, mathematics, " +
		"computer science, quantitative biology and related fields. Input should be a search query " +
		"or one or more arXiv identifiers."
}

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
}

func (e arxivEntry) pdfURL() string {
	for _, l := range e.Links {
		if l.Title == "pdf" {
			return l.Href
		}
	}
	return ""
}

// Call runs query against arXiv and returns the formatted papers.
func (a *Arxiv) Call(ctx context.Context, query string) (string, error) {
	query = truncate(query, maxQueryLength)

	params := url.Values{}
	if ids, ok := arxivIDs(query); ok {
		params.Set("id_list", strings.Join(ids, ","))
	} else {
		params.Set("search_query", query)
	}
	if a.Limits.MaxResults > 0 {
		params.Set("max_results", strconv.Itoa(a.Limits.MaxResults))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "arxiv")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("arxiv http %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return "", errors.Wrap(err, "arxiv: decode feed")
	}

	records := make([]string, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		// arXiv reports bad id_list values as an entry titled "Error".
		if squash(e.Title) == "" || squash(e.Title) == "Error" {
			continue
		}
		records = append(records, a.format(ctx, query, e))
		if a.Limits.MaxResults > 0 && len(records) >= a.Limits.MaxResults {
			break
		}
	}

	if len(records) == 0 {
		return "", errors.Wrapf(ErrNoResults, "arxiv: %q", query)
	}

	return a.Limits.apply(records), nil
}

func (a *Arxiv) format(ctx context.Context, query string, e arxivEntry) string {
	authors := make([]string, 0, len(e.Authors))
	for _, au := range e.Authors {
		authors = append(authors, squash(au.Name))
	}

	published := e.Published
	if len(published) >= 10 {
		published = published[:10]
	}

	body := "Summary: " + squash(e.Summary)
	if a.FullText {
		if excerpt := a.excerpt(ctx, query, e); excerpt != "" {
			body = "Excerpt: " + excerpt
		}
	}

	return fmt.Sprintf("Published: %s\nTitle: %s\nAuthors: %s\n%s",
		published, squash(e.Title), strings.Join(authors, ", "), body)
}

func (a *Arxiv) excerpt(ctx context.Context, query string, e arxivEntry) string {
	link := e.pdfURL()
	if link == "" {
		return ""
	}

	text, err := fetchPDFText(ctx, a.client, link)
	if err != nil {
		slog.Warn("arxiv: falling back to abstract", "paper", e.ID, "err", err)
		return ""
	}

	return squash(bestChunk(query, text, defaultChunkSize))
}

// arxivIDs reports whether every word of query is an arXiv identifier.
func arxivIDs(query string) ([]string, bool) {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return nil, false
	}
	for _, f := range fields {
		if !arxivIdentifier.MatchString(f) {
			return nil, false
		}
	}
	return fields, true
}
