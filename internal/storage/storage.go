package storage

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"
)

// SearchQuery records one engine's execution of a query. Each engine that
// returned results for a request gets its own row.
type SearchQuery struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Engine    string    `json:"engine"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchResult is a single ranked hit belonging to a SearchQuery.
type SearchResult struct {
	ID          string    `json:"id"`
	QueryID     string    `json:"query_id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	Rank        int       `json:"rank"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProxyRecord is one entry in the proxy inventory. Records are identified
// by (IP, Port); re-upserting an existing pair refreshes the remaining fields.
type ProxyRecord struct {
	IP          string    `json:"ip"`
	Port        int       `json:"port"`
	Protocol    string    `json:"protocol"` // "http" or "https"
	Username    string    `json:"username,omitempty"`
	Password    string    `json:"password,omitempty"`
	Active      bool      `json:"active"`
	SuccessRate float64   `json:"success_rate"`
	LastChecked time.Time `json:"last_checked"`
}

// Addr returns "ip:port", the identity records are upserted under.
func (p ProxyRecord) Addr() string {
	return net.JoinHostPort(p.IP, strconv.Itoa(p.Port))
}

// URL renders the record as a proxy URL usable in an http.Transport.
func (p ProxyRecord) URL() string {
	u := url.URL{
		Scheme: p.Protocol,
		Host:   p.Addr(),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u.String()
}

// Store persists search executions and the proxy inventory.
//
// SaveSearch writes q and its results atomically; result rows are linked via
// q.ID regardless of what the QueryID fields carry. SearchHistory returns
// queries newest first, ResultsFor returns a query's hits in rank order.
type Store interface {
	SaveSearch(ctx context.Context, q *SearchQuery, results []SearchResult) error
	SearchHistory(ctx context.Context, limit int) ([]*SearchQuery, error)
	ResultsFor(ctx context.Context, queryID string) ([]*SearchResult, error)
	UpsertProxies(ctx context.Context, proxies []ProxyRecord) error
	ActiveProxies(ctx context.Context) ([]ProxyRecord, error)
	Close() error
}

// DefaultHistoryLimit caps SearchHistory when the caller passes limit <= 0.
const DefaultHistoryLimit = 20
