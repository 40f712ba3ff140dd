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
	bingEndpoint = "https://www.bing.com/search"
	bingPageSize = "10"
)

// Bing scrapes bing.com organic results.
type Bing struct {
	fetcher  *scraper.Fetcher
	log      *slog.Logger
	endpoint string
}

func NewBing(fetcher *scraper.Fetcher, logger *slog.Logger) *Bing {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bing{
		fetcher:  fetcher,
		log:      logger.With("engine", EngineBing),
		endpoint: bingEndpoint,
	}
}

var _ Engine = (*Bing)(nil)

func (b *Bing) Name() string { return EngineBing }

// Search scrapes one results page. Bing keeps organic hits in li.b_algo
// list items with the link inside the h2 heading.
func (b *Bing) Search(ctx context.Context, query string) ([]Result, string, error) {
	params := url.Values{"q": {query}, "count": {bingPageSize}}
	doc, egress, ok := fetchDocument(ctx, b.fetcher, b.log, b.endpoint, params)
	if !ok {
		return nil, egress, nil
	}

	var results []Result
	doc.Find("li.b_algo").Each(func(i int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find("h2").First().Text())
		href, exists := s.Find("h2 a").First().Attr("href")
		if title == "" || !exists || href == "" {
			return
		}
		results = append(results, Result{
			Title:       title,
			URL:         href,
			Description: strings.TrimSpace(s.Find("div.b_caption p").First().Text()),
			Rank:        len(results) + 1,
		})
	})

	b.log.Debug("search parsed", "query", query, "results", len(results))
	return results, egress, nil
}
