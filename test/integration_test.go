//go:build integration

package test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/AriajSarkar/SPAAR/internal/fingerprint"
	"github.com/AriajSarkar/SPAAR/internal/pipeline"
	"github.com/AriajSarkar/SPAAR/internal/proxyfeed"
	"github.com/AriajSarkar/SPAAR/internal/scraper"
	"github.com/AriajSarkar/SPAAR/internal/serp"
	"github.com/AriajSarkar/SPAAR/internal/storage/jsonbackend"
	"github.com/AriajSarkar/SPAAR/internal/storage/sqlite"
)

// stubEngine stands in for a scraped engine so the aggregation and
// persistence paths run without network access.
type stubEngine struct {
	name    string
	results []serp.Result
	egress  string
	err     error
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Search(ctx context.Context, query string) ([]serp.Result, string, error) {
	return s.results, s.egress, s.err
}

type staticResolver struct{ ip string }

func (s staticResolver) PublicIP(ctx context.Context) (string, error) {
	return s.ip, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func resultsFor(engine string, n int) []serp.Result {
	out := make([]serp.Result, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, serp.Result{
			Title:       fmt.Sprintf("%s hit %d", engine, i),
			URL:         fmt.Sprintf("https://example.com/%s/%d", engine, i),
			Description: fmt.Sprintf("Result %d from %s.", i, engine),
			Rank:        i,
		})
	}
	return out
}

func TestIntegration_SearchPersistence(t *testing.T) {
	// 1. Real sqlite store on disk.
	store, err := sqlite.New(filepath.Join(t.TempDir(), "spaar.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	// 2. Aggregator over two healthy engines and one that fails outright.
	multi, err := serp.NewMulti(serp.MultiConfig{
		Engines: []serp.Engine{
			&stubEngine{name: "google", results: resultsFor("google", 2), egress: "direct (203.0.113.9)"},
			&stubEngine{name: "bing", results: resultsFor("bing", 1), egress: "direct (203.0.113.9)"},
			&stubEngine{name: "duckduckgo", egress: "unknown", err: fmt.Errorf("engine exploded")},
		},
		Store:  store,
		Logger: discardLogger(),
	})
	if err != nil {
		t.Fatalf("failed to create aggregator: %v", err)
	}

	rep, err := multi.Search(context.Background(), "go 1.24 release notes", nil)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	// 3. The failing engine is isolated: its error is data in the report.
	if len(rep.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(rep.Outcomes))
	}
	ddg := rep.Outcomes["duckduckgo"]
	if ddg.Err != "engine exploded" {
		t.Errorf("expected captured engine error, got %q", ddg.Err)
	}
	if ddg.Results == nil || len(ddg.Results) != 0 {
		t.Errorf("expected empty non-nil results for failed engine, got %#v", ddg.Results)
	}
	if got := len(rep.Outcomes["google"].Results); got != 2 {
		t.Errorf("expected 2 google results, got %d", got)
	}

	// 4. Only engines with results are persisted; read them back.
	queries, err := store.SearchHistory(context.Background(), 10)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("expected 2 stored queries, got %d", len(queries))
	}

	seen := map[string]bool{}
	var googleID string
	for _, q := range queries {
		seen[q.Engine] = true
		if q.Query != "go 1.24 release notes" {
			t.Errorf("unexpected stored query text %q", q.Query)
		}
		if q.Engine == "google" {
			googleID = q.ID
		}
	}
	if !seen["google"] || !seen["bing"] || seen["duckduckgo"] {
		t.Errorf("unexpected stored engines: %v", seen)
	}

	rows, err := store.ResultsFor(context.Background(), googleID)
	if err != nil {
		t.Fatalf("failed to read results: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 stored google results, got %d", len(rows))
	}
	for i, r := range rows {
		if r.Rank != i+1 {
			t.Errorf("expected rank %d at position %d, got %d", i+1, i, r.Rank)
		}
	}
	if rows[0].Title != "google hit 1" {
		t.Errorf("unexpected first stored title %q", rows[0].Title)
	}
}

func TestIntegration_ProxyRefreshCycle(t *testing.T) {
	// 1. A relay that answers absolute-form requests, standing in for a
	// working proxy, plus a dead address from a closed listener.
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.RequestURI, "http://") {
			t.Errorf("expected absolute-form request through proxy, got %q", r.RequestURI)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer relay.Close()

	relayHost, relayPort, err := net.SplitHostPort(strings.TrimPrefix(relay.URL, "http://"))
	if err != nil {
		t.Fatalf("failed to split relay address: %v", err)
	}

	dead, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve dead port: %v", err)
	}
	_, deadPort, _ := net.SplitHostPort(dead.Addr().String())
	dead.Close()

	// 2. A listing page advertising both candidates.
	listing := fmt.Sprintf(`<html><body><table><tbody>
		<tr><th>IP</th><th>Port</th><th>Code</th><th>Country</th><th>Anonymity</th><th>Google</th><th>Https</th></tr>
		<tr><td>%s</td><td>%s</td><td>US</td><td>x</td><td>elite</td><td>no</td><td>no</td></tr>
		<tr><td>127.0.0.1</td><td>%s</td><td>US</td><td>x</td><td>elite</td><td>no</td><td>no</td></tr>
	</tbody></table></body></html>`, relayHost, relayPort, deadPort)
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, listing)
	}))
	defer source.Close()

	fetcher, err := scraper.NewFetcher(scraper.Config{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
		Resolver:    staticResolver{ip: "203.0.113.9"},
		Logger:      discardLogger(),
	})
	if err != nil {
		t.Fatalf("failed to create fetcher: %v", err)
	}

	store, err := sqlite.New(filepath.Join(t.TempDir(), "proxies.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	// 3. Run the refresh: gather, probe, persist.
	job, err := proxyfeed.NewJob(proxyfeed.JobConfig{
		Sources: []proxyfeed.Source{
			proxyfeed.NewFreeProxyListAt(source.URL, fetcher, discardLogger()),
		},
		Store: store,
		Validator: proxyfeed.NewValidator(proxyfeed.ValidatorConfig{
			ProbeURL: "http://probe.example/",
			Timeout:  2 * time.Second,
			Logger:   discardLogger(),
		}),
		Workers: 2,
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	count, err := job.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 validated proxy, got %d", count)
	}

	// 4. The surviving candidate is in the inventory, marked active.
	records, err := store.ActiveProxies(context.Background())
	if err != nil {
		t.Fatalf("failed to list proxies: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 active proxy, got %d", len(records))
	}
	rec := records[0]
	if rec.IP != relayHost || strconv.Itoa(rec.Port) != relayPort {
		t.Errorf("expected %s:%s in inventory, got %s", relayHost, relayPort, rec.Addr())
	}
	if !rec.Active || rec.SuccessRate != 100 {
		t.Errorf("expected active record with full success rate, got active=%v rate=%v", rec.Active, rec.SuccessRate)
	}
	if rec.LastChecked.IsZero() {
		t.Errorf("expected LastChecked to be set")
	}
}

func TestIntegration_AskContextBlock(t *testing.T) {
	// 1. JSON-file store this time, to cover the second backend.
	store, err := jsonbackend.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	multi, err := serp.NewMulti(serp.MultiConfig{
		Engines: []serp.Engine{
			&stubEngine{name: "google", results: resultsFor("google", 2), egress: "direct (203.0.113.9)"},
			&stubEngine{name: "bing", results: resultsFor("bing", 3), egress: "direct (203.0.113.9)"},
			&stubEngine{name: "duckduckgo", egress: "direct (203.0.113.9)"},
		},
		Store:  store,
		Logger: discardLogger(),
	})
	if err != nil {
		t.Fatalf("failed to create aggregator: %v", err)
	}

	p, err := pipeline.New(pipeline.Config{Multi: multi, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}

	// 2. A prompt without live-data cues skips the search entirely.
	if got := p.Run(context.Background(), "explain the go scheduler"); got != "" {
		t.Fatalf("expected no context for offline prompt, got %q", got)
	}
	if queries, _ := store.SearchHistory(context.Background(), 10); len(queries) != 0 {
		t.Fatalf("expected nothing persisted for skipped prompt, got %d queries", len(queries))
	}

	// 3. A prompt asking for the latest news runs the search and renders
	// the highest-priority engine's top hits.
	got := p.Run(context.Background(), "latest go release news")
	if !strings.HasPrefix(got, "\nSearch results:\n") {
		t.Fatalf("expected context block, got %q", got)
	}
	if !strings.Contains(got, "1. google hit 1") || !strings.Contains(got, "URL: https://example.com/google/1") {
		t.Errorf("expected google results in context, got %q", got)
	}
	if strings.Contains(got, "bing hit") {
		t.Errorf("expected priority fallback to stop at google, got %q", got)
	}
	if !strings.HasSuffix(got, "\n\n") {
		t.Errorf("expected trailing blank line, got %q", got)
	}

	// 4. The search behind the context block landed in the store.
	queries, err := store.SearchHistory(context.Background(), 10)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("expected 2 stored queries, got %d", len(queries))
	}
	for _, q := range queries {
		if q.Query != "latest go release news" {
			t.Errorf("unexpected stored query %q", q.Query)
		}
	}
}
