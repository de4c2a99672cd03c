// Package sources implements the lookup tools the research agent can call.
//
// Every source satisfies langchaingo's tools.Tool: Call takes a free-text
// query and returns plain text that is capped to a fixed number of records
// and characters. Failures, including an empty result set, are returned as
// errors; callers decide how to present them.
//
// Available sources:
//
//   - Arxiv: academic papers from the arXiv Atom API, optionally reading
//     the paper PDF for a query-relevant excerpt
//   - Wikipedia: page introductions from the MediaWiki API
//   - Tavily: web search results, requires an API key
package sources

import (
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/tools"
)

const (
	// maxQueryLength bounds queries sent to arXiv and Wikipedia.
	maxQueryLength = 300

	defaultTimeout = 15 * time.Second
	userAgent      = "research_agent/1.0 (+https://github.com/m2tx/research_agent)"
)

// ErrNoResults is returned when a source answered but found nothing.
var ErrNoResults = errors.New("no results found")

// Limits caps the output of a source.
type Limits struct {
	// MaxResults is the maximum number of records included. Zero means no cap.
	MaxResults int
	// MaxChars is the maximum length, in characters, of the returned text.
	// Zero means no cap.
	MaxChars int
}

// apply keeps at most MaxResults records, joins them with a blank line and
// truncates the result to MaxChars.
func (l Limits) apply(records []string) string {
	if l.MaxResults > 0 && len(records) > l.MaxResults {
		records = records[:l.MaxResults]
	}
	return truncate(strings.Join(records, "\n\n"), l.MaxChars)
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// squash collapses runs of whitespace, including newlines, into one space.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

var (
	_ tools.Tool = (*Arxiv)(nil)
	_ tools.Tool = (*Wikipedia)(nil)
	_ tools.Tool = (*Tavily)(nil)
)
