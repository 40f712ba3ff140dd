package serp

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/AriajSarkar/SPAAR/internal/scraper"
)

const (
	googleEndpoint = "https://www.google.com/search"
	googlePageSize = "10"
)

// Google scrapes google.com organic results.
type Google struct {
	fetcher  *scraper.Fetcher
	log      *slog.Logger
	endpoint string
}

func NewGoogle(fetcher *scraper.Fetcher, logger *slog.Logger) *Google {
	if logger == nil {
		logger = slog.Default()
	}
	return &Google{
		fetcher:  fetcher,
		log:      logger.With("engine", EngineGoogle),
		endpoint: googleEndpoint,
	}
}

var _ Engine = (*Google)(nil)

func (g *Google) Name() string { return EngineGoogle }

// Search scrapes one results page. Organic hits live in div.g containers;
// entries without a title or link (ads, knowledge panels, embedded widgets)
// are skipped.
func (g *Google) Search(ctx context.Context, query string) ([]Result, string, error) {
	params := url.Values{"q": {query}, "num": {googlePageSize}}
	doc, egress, ok := fetchDocument(ctx, g.fetcher, g.log, g.endpoint, params)
	if !ok {
		return nil, egress, nil
	}

	var results []Result
	doc.Find("div.g").Each(func(i int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h3").First().Text())
		href, exists := s.Find("a[href]").First().Attr("href")
		if title == "" || !exists || href == "" {
			return
		}
		results = append(results, Result{
			Title:       title,
			URL:         unwrapRedirect(href),
			Description: strings.TrimSpace(s.Find("div.VwiC3b").First().Text()),
			Rank:        len(results) + 1,
		})
	})

	g.log.Debug("search parsed", "query", query, "results", len(results))
	return results, egress, nil
}

// unwrapRedirect strips Google's /url?q=<target>&... indirection. Links that
// are not wrapped pass through untouched.
func unwrapRedirect(href string) string {
	after, found := strings.CutPrefix(href, "/url?q=")
	if !found {
		return href
	}
	if i := strings.Index(after, "&"); i >= 0 {
		after = after[:i]
	}
	return after
}
