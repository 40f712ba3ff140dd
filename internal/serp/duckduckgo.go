package serp

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/AriajSarkar/SPAAR/internal/scraper"
)

// The html subdomain serves results without JavaScript, which is what makes
// DuckDuckGo scrapeable at all.
const ddgEndpoint = "https://html.duckduckgo.com/html"

// DuckDuckGo scrapes the static HTML results page.
type DuckDuckGo struct {
	fetcher  *scraper.Fetcher
	log      *slog.Logger
	endpoint string
}

func NewDuckDuckGo(fetcher *scraper.Fetcher, logger *slog.Logger) *DuckDuckGo {
	if logger == nil {
		logger = slog.Default()
	}
	return &DuckDuckGo{
		fetcher:  fetcher,
		log:      logger.With("engine", EngineDuckDuckGo),
		endpoint: ddgEndpoint,
	}
}

var _ Engine = (*DuckDuckGo)(nil)

func (d *DuckDuckGo) Name() string { return EngineDuckDuckGo }

// Search scrapes one results page. The .result__url element holds the target
// as display text rather than an href, usually without a scheme.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]Result, string, error) {
	params := url.Values{"q": {query}}
	doc, egress, ok := fetchDocument(ctx, d.fetcher, d.log, d.endpoint, params)
	if !ok {
		return nil, egress, nil
	}

	var results []Result
	doc.Find(".result").Each(func(i int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find(".result__title").First().Text())
		link := strings.TrimSpace(s.Find(".result__url").First().Text())
		if title == "" || link == "" {
			return
		}
		if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
			link = "https://" + link
		}
		results = append(results, Result{
			Title:       title,
			URL:         link,
			Description: strings.TrimSpace(s.Find(".result__snippet").First().Text()),
			Rank:        len(results) + 1,
		})
	})

	d.log.Debug("search parsed", "query", query, "results", len(results))
	return results, egress, nil
}
