// Package proxyfeed maintains the proxy inventory out of band: it pulls
// candidates from public listings, probes each one through itself, and
// upserts the survivors into the store. It shares nothing with the per-query
// search path except the store and the fetch client.
package proxyfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/AriajSarkar/SPAAR/internal/scraper"
	"github.com/AriajSarkar/SPAAR/internal/storage"
)

// Source produces candidate proxy records from one public listing.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]storage.ProxyRecord, error)
}

const freeProxyListURL = "https://free-proxy-list.net/"

// FreeProxyList scrapes the HTML table on free-proxy-list.net.
type FreeProxyList struct {
	fetcher  *scraper.Fetcher
	log      *slog.Logger
	endpoint string
}

func NewFreeProxyList(fetcher *scraper.Fetcher, logger *slog.Logger) *FreeProxyList {
	return NewFreeProxyListAt(freeProxyListURL, fetcher, logger)
}

// NewFreeProxyListAt points the source at a mirror of the listing.
func NewFreeProxyListAt(endpoint string, fetcher *scraper.Fetcher, logger *slog.Logger) *FreeProxyList {
	if logger == nil {
		logger = slog.Default()
	}
	return &FreeProxyList{
		fetcher:  fetcher,
		log:      logger.With("source", "free-proxy-list"),
		endpoint: endpoint,
	}
}

var _ Source = (*FreeProxyList)(nil)

func (f *FreeProxyList) Name() string { return "free-proxy-list" }

// Fetch parses the first table on the page. Column layout: ip, port, code,
// country, anonymity, google, https. An https value of "yes" marks the proxy
// as https-capable, everything else stays plain http.
func (f *FreeProxyList) Fetch(ctx context.Context) ([]storage.ProxyRecord, error) {
	res := f.fetcher.Fetch(ctx, f.endpoint, nil)
	if !res.OK() {
		return nil, fmt.Errorf("failed to fetch listing: %s", res.Error)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}

	var records []storage.ProxyRecord
	doc.Find("table").First().Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return // header row
		}
		cells := row.Find("td")
		if cells.Length() < 7 {
			return
		}

		ip := strings.TrimSpace(cells.Eq(0).Text())
		port, err := strconv.Atoi(strings.TrimSpace(cells.Eq(1).Text()))
		if ip == "" || err != nil || port <= 0 {
			f.log.Debug("skipping malformed row", "row", i)
			return
		}

		protocol := "http"
		if strings.EqualFold(strings.TrimSpace(cells.Eq(6).Text()), "yes") {
			protocol = "https"
		}

		records = append(records, storage.ProxyRecord{IP: ip, Port: port, Protocol: protocol})
	})

	return records, nil
}

const geonodeURL = "https://proxylist.geonode.com/api/proxy-list?limit=100&page=1&sort_by=lastChecked&sort_type=desc"

// Geonode pulls candidates from the geonode JSON API.
type Geonode struct {
	fetcher  *scraper.Fetcher
	log      *slog.Logger
	endpoint string
}

func NewGeonode(fetcher *scraper.Fetcher, logger *slog.Logger) *Geonode {
	return NewGeonodeAt(geonodeURL, fetcher, logger)
}

// NewGeonodeAt points the source at an alternate API endpoint.
func NewGeonodeAt(endpoint string, fetcher *scraper.Fetcher, logger *slog.Logger) *Geonode {
	if logger == nil {
		logger = slog.Default()
	}
	return &Geonode{
		fetcher:  fetcher,
		log:      logger.With("source", "geonode"),
		endpoint: endpoint,
	}
}

var _ Source = (*Geonode)(nil)

func (g *Geonode) Name() string { return "geonode" }

func (g *Geonode) Fetch(ctx context.Context) ([]storage.ProxyRecord, error) {
	res := g.fetcher.Fetch(ctx, g.endpoint, nil)
	if !res.OK() {
		return nil, fmt.Errorf("failed to fetch listing: %s", res.Error)
	}

	// The API reports ports as strings.
	var payload struct {
		Data []struct {
			IP        string   `json:"ip"`
			Port      string   `json:"port"`
			Protocols []string `json:"protocols"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}

	var records []storage.ProxyRecord
	for _, entry := range payload.Data {
		port, err := strconv.Atoi(entry.Port)
		if entry.IP == "" || err != nil || port <= 0 {
			g.log.Debug("skipping malformed entry", "ip", entry.IP, "port", entry.Port)
			continue
		}
		protocol := "http"
		if len(entry.Protocols) > 0 {
			protocol = strings.ToLower(entry.Protocols[0])
		}
		records = append(records, storage.ProxyRecord{IP: entry.IP, Port: port, Protocol: protocol})
	}

	return records, nil
}
