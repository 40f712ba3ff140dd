// Command spaar scrapes search engines, aggregates their results and keeps
// the proxy inventory fresh.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AriajSarkar/SPAAR/internal/metrics"
	"github.com/AriajSarkar/SPAAR/internal/pipeline"
	"github.com/AriajSarkar/SPAAR/internal/proxyfeed"
	"github.com/AriajSarkar/SPAAR/internal/report"
	"github.com/AriajSarkar/SPAAR/internal/scraper"
	"github.com/AriajSarkar/SPAAR/internal/serp"
	"github.com/AriajSarkar/SPAAR/internal/storage"
	"github.com/AriajSarkar/SPAAR/internal/storage/csvbackend"
	"github.com/AriajSarkar/SPAAR/internal/storage/jsonbackend"
	"github.com/AriajSarkar/SPAAR/internal/storage/postgres"
	"github.com/AriajSarkar/SPAAR/internal/storage/sqlite"
	"github.com/AriajSarkar/SPAAR/pkg/proxy"
	"github.com/AriajSarkar/SPAAR/pkg/ratelimit"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "search":
		err = runSearch(os.Args[2:])
	case "ask":
		err = runAsk(os.Args[2:])
	case "proxies":
		err = runProxies(os.Args[2:])
	case "history":
		err = runHistory(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `spaar: scraped multi-engine web search

Usage:
  spaar search  -q <query> [flags]   run a search and print the report
  spaar ask     -q <prompt> [flags]  print the prompt context block, if needed
  spaar proxies [flags]              refresh or list the proxy inventory
  spaar history [flags]              show stored searches

Run 'spaar <command> -h' for command flags.
`)
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	var (
		query       = fs.String("q", "", "Query to search")
		engines     = fs.String("engines", "", "Comma-separated engine subset (google,bing,duckduckgo); empty means all")
		db          = fs.String("db", envOr("SPAAR_DB", "spaar.db"), "Store DSN: sqlite path, postgres:// URL, json:<dir> or csv:<dir>; empty disables persistence")
		save        = fs.Bool("save", envBool("SPAAR_SAVE_RESULTS", true), "Persist results to the store")
		asJSON      = fs.Bool("json", false, "Write the report as JSON instead of text")
		timeout     = fs.Duration("timeout", 20*time.Second, "Per-fetch timeout")
		metricsAddr = fs.String("metrics.addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")
		verbose     = fs.Bool("v", false, "Debug logging")
	)
	_ = fs.Parse(args)

	if *query == "" {
		return errors.New("missing -q")
	}
	logger := newLogger(*verbose)

	ctx := context.Background()

	if *metricsAddr != "" {
		srv := metrics.Start(*metricsAddr)
		defer srv.Stop(context.Background())
	}

	store, err := openStore(ctx, *db)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	multi, err := newMulti(store, !*save, *timeout, logger)
	if err != nil {
		return err
	}

	rep, err := multi.Search(ctx, *query, splitList(*engines))
	if err != nil {
		return err
	}

	summary := report.GenerateSummary(rep)
	logger.Info("search finished",
		"query", summary.Query, "engines", summary.Engines,
		"results", summary.TotalResults, "errors", summary.Errors)

	if *asJSON {
		return report.WriteJSON(os.Stdout, rep)
	}
	return report.WriteText(os.Stdout, rep)
}

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	var (
		query   = fs.String("q", "", "Prompt to augment")
		engines = fs.String("engines", "", "Comma-separated engine subset; empty means all")
		db      = fs.String("db", envOr("SPAAR_DB", "spaar.db"), "Store DSN; empty disables persistence")
		save    = fs.Bool("save", envBool("SPAAR_SAVE_RESULTS", true), "Persist results to the store")
		top     = fs.Int("top", report.DefaultTopN, "How many results feed the context block")
		timeout = fs.Duration("timeout", 20*time.Second, "Per-fetch timeout")
		verbose = fs.Bool("v", false, "Debug logging")
	)
	_ = fs.Parse(args)

	if *query == "" {
		return errors.New("missing -q")
	}
	logger := newLogger(*verbose)

	ctx := context.Background()

	store, err := openStore(ctx, *db)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	multi, err := newMulti(store, !*save, *timeout, logger)
	if err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Config{
		Multi:   multi,
		Engines: splitList(*engines),
		TopN:    *top,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	// Empty output means the prompt needs no live data.
	fmt.Print(p.Run(ctx, *query))
	return nil
}

func runProxies(args []string) error {
	fs := flag.NewFlagSet("proxies", flag.ExitOnError)
	var (
		db      = fs.String("db", envOr("SPAAR_DB", "spaar.db"), "Store DSN holding the proxy inventory")
		list    = fs.Bool("list", false, "List active proxies instead of refreshing")
		workers = fs.Int("workers", 10, "Concurrent validation probes")
		probe   = fs.String("probe", "", "Probe URL fetched through each candidate (default google.com)")
		timeout = fs.Duration("timeout", 10*time.Second, "Per-probe timeout")
		rps     = fs.Float64("rps", 0, "Probe rate limit in requests per second (0 = unlimited)")
		verbose = fs.Bool("v", false, "Debug logging")
	)
	_ = fs.Parse(args)

	logger := newLogger(*verbose)

	ctx := context.Background()

	store, err := openStore(ctx, *db)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if store == nil {
		return errors.New("proxies requires -db")
	}
	defer store.Close()

	if *list {
		records, err := store.ActiveProxies(ctx)
		if err != nil {
			return fmt.Errorf("failed to list proxies: %w", err)
		}
		for _, rec := range records {
			fmt.Printf("%-22s %-6s checked %s\n",
				rec.Addr(), rec.Protocol, rec.LastChecked.Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("%d active proxies\n", len(records))
		return nil
	}

	fetcher, err := scraper.NewFetcher(scraper.Config{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create fetcher: %w", err)
	}

	var limiter *ratelimit.Limiter
	if *rps > 0 {
		limiter = ratelimit.New(*rps, 0.1)
		defer limiter.Stop()
	}

	job, err := proxyfeed.NewJob(proxyfeed.JobConfig{
		Sources: []proxyfeed.Source{
			proxyfeed.NewFreeProxyList(fetcher, logger),
			proxyfeed.NewGeonode(fetcher, logger),
		},
		Store: store,
		Validator: proxyfeed.NewValidator(proxyfeed.ValidatorConfig{
			ProbeURL: *probe,
			Timeout:  *timeout,
			Logger:   logger,
		}),
		Workers: *workers,
		Limiter: limiter,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	count, err := job.Refresh(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("validated %d proxies\n", count)
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	var (
		db          = fs.String("db", envOr("SPAAR_DB", "spaar.db"), "Store DSN to read")
		limit       = fs.Int("n", storage.DefaultHistoryLimit, "How many searches to show")
		withResults = fs.Bool("results", false, "Show each search's results too")
		verbose     = fs.Bool("v", false, "Debug logging")
	)
	_ = fs.Parse(args)

	_ = newLogger(*verbose)

	ctx := context.Background()

	store, err := openStore(ctx, *db)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if store == nil {
		return errors.New("history requires -db")
	}
	defer store.Close()

	queries, err := store.SearchHistory(ctx, *limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	for _, q := range queries {
		fmt.Printf("%s  %-10s  %s\n", q.CreatedAt.Format("2006-01-02 15:04:05"), q.Engine, q.Query)
		if !*withResults {
			continue
		}
		rows, err := store.ResultsFor(ctx, q.ID)
		if err != nil {
			return fmt.Errorf("failed to read results for %s: %w", q.ID, err)
		}
		for _, r := range rows {
			fmt.Printf("    %d. %s\n       %s\n", r.Rank, r.Title, r.URL)
		}
	}
	return nil
}

// newMulti wires the default engines over one fetcher. Egress is direct in
// this build; buildSelector is the point where a proxy pool would plug in.
func newMulti(store storage.Store, skipSave bool, timeout time.Duration, logger *slog.Logger) (*serp.Multi, error) {
	fetcher, err := scraper.NewFetcher(scraper.Config{
		Timeout:  timeout,
		Selector: buildSelector(),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	return serp.NewMulti(serp.MultiConfig{
		Engines:  serp.DefaultEngines(fetcher, logger),
		Store:    store,
		SkipSave: skipSave,
		Logger:   logger,
	})
}

// buildSelector returns the egress selector. This build hardwires the direct
// path; replacing the return with a Pool loaded from the store re-enables
// rotation without touching engine or aggregator code.
func buildSelector() proxy.Selector {
	return proxy.Direct{}
}

// openStore picks a backend from the DSN shape: postgres URLs go to pgx,
// "json:<dir>" and "csv:<dir>" to the file backends, anything else is a
// sqlite path. An empty DSN returns a nil store.
func openStore(ctx context.Context, dsn string) (storage.Store, error) {
	switch {
	case dsn == "":
		return nil, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.New(ctx, dsn)
	case strings.HasPrefix(dsn, "json:"):
		return jsonbackend.New(strings.TrimPrefix(dsn, "json:"))
	case strings.HasPrefix(dsn, "csv:"):
		return csvbackend.New(strings.TrimPrefix(dsn, "csv:"))
	default:
		return sqlite.New(dsn)
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// splitList splits a comma-separated flag value, trimming blanks.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			list = append(list, v)
		}
	}
	return list
}
