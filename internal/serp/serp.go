// Package serp scrapes search engine result pages and aggregates them into
// per-engine reports. Each engine parses provider-specific markup into the
// shared Result shape; Multi fans one query out across engines concurrently
// and isolates their failures from each other.
package serp

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/AriajSarkar/SPAAR/internal/scraper"
)

// Engine name keys. These are the identifiers callers pass to Multi.Search
// and the map keys of Report.Outcomes.
const (
	EngineGoogle     = "google"
	EngineBing       = "bing"
	EngineDuckDuckGo = "duckduckgo"
)

// Result is one organic search hit, normalized across engines.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	// Rank is the 1-based position among the entries the engine kept.
	Rank int `json:"rank"`
}

// Outcome is what one engine produced for a query. Results is never nil,
// Egress names the address the request left from, and Err carries anything
// worth telling the caller about (a failed save, for instance) without
// failing the whole report.
type Outcome struct {
	Engine  string   `json:"engine"`
	Results []Result `json:"results"`
	Egress  string   `json:"egress"`
	Err     string   `json:"error,omitempty"`
}

// Report aggregates every requested engine's outcome for one query.
type Report struct {
	Query     string             `json:"query"`
	CreatedAt time.Time          `json:"created_at"`
	Outcomes  map[string]Outcome `json:"outcomes"`
}

// Engine scrapes one search provider. Search returns the parsed results and
// the egress identity of the fetch. A blocked or unparseable page is not an
// error: engines log it and return an empty slice, so one bad provider never
// poisons a multi-engine report. The error return is reserved for failures
// that make the outcome itself meaningless.
type Engine interface {
	Name() string
	Search(ctx context.Context, query string) ([]Result, string, error)
}

// fetchDocument runs one fetch and parses the body into a goquery document.
// Any fetch or parse failure is logged and reported as ok=false with the
// egress preserved, leaving the caller to return an empty result set.
func fetchDocument(ctx context.Context, f *scraper.Fetcher, log *slog.Logger, rawURL string, params url.Values) (*goquery.Document, string, bool) {
	res := f.Fetch(ctx, rawURL, params)
	if !res.OK() {
		log.Warn("search fetch failed", "url", rawURL, "egress", res.Egress, "err", res.Error)
		return nil, res.Egress, false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		log.Warn("failed to parse results page", "url", rawURL, "err", err)
		return nil, res.Egress, false
	}
	return doc, res.Egress, true
}
