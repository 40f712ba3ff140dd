package serp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AriajSarkar/SPAAR/internal/metrics"
	"github.com/AriajSarkar/SPAAR/internal/scraper"
	"github.com/AriajSarkar/SPAAR/internal/storage"
)

// MultiConfig provides parameters for the aggregator.
type MultiConfig struct {
	// Engines available to this aggregator. At least one is required.
	Engines []Engine
	// Store receives per-engine query and result rows. Nil disables
	// persistence entirely.
	Store storage.Store
	// SkipSave turns persistence off even when Store is set. The zero
	// value keeps saving on.
	SkipSave bool
	Logger   *slog.Logger
}

// Multi fans one query out across engines concurrently and assembles their
// outcomes into a single report.
type Multi struct {
	cfg    MultiConfig
	log    *slog.Logger
	byName map[string]Engine
}

// DefaultEngines returns the built-in engines in fallback priority order.
func DefaultEngines(fetcher *scraper.Fetcher, logger *slog.Logger) []Engine {
	return []Engine{
		NewGoogle(fetcher, logger),
		NewBing(fetcher, logger),
		NewDuckDuckGo(fetcher, logger),
	}
}

func NewMulti(cfg MultiConfig) (*Multi, error) {
	if len(cfg.Engines) == 0 {
		return nil, errors.New("at least one engine is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	byName := make(map[string]Engine, len(cfg.Engines))
	for _, eng := range cfg.Engines {
		if _, dup := byName[eng.Name()]; dup {
			return nil, fmt.Errorf("duplicate engine %q", eng.Name())
		}
		byName[eng.Name()] = eng
	}

	return &Multi{cfg: cfg, log: cfg.Logger, byName: byName}, nil
}

// Search runs the query on the named engines, or on every configured engine
// when names is empty. Unrecognized names are dropped with a warning; the
// only request-level error is a selection that leaves no engine to run.
// Every other failure stays inside its engine's Outcome.
func (m *Multi) Search(ctx context.Context, query string, names []string) (*Report, error) {
	selected := m.resolve(names)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no recognized engines in %v", names)
	}

	report := &Report{
		Query:     query,
		CreatedAt: time.Now().UTC(),
		Outcomes:  make(map[string]Outcome, len(selected)),
	}

	// A plain group, not WithContext: one engine failing must never cancel
	// the others, and workers report through their Outcome instead of an
	// error return.
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, eng := range selected {
		g.Go(func() error {
			outcome := m.searchOne(ctx, eng, query)
			mu.Lock()
			report.Outcomes[outcome.Engine] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return report, nil
}

// resolve maps requested names onto configured engines, preserving the
// configured order and collapsing duplicates.
func (m *Multi) resolve(names []string) []Engine {
	if len(names) == 0 {
		return m.cfg.Engines
	}

	want := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := m.byName[name]; !ok {
			m.log.Warn("unknown engine requested", "engine", name)
			continue
		}
		want[name] = struct{}{}
	}

	var selected []Engine
	for _, eng := range m.cfg.Engines {
		if _, ok := want[eng.Name()]; ok {
			selected = append(selected, eng)
		}
	}
	return selected
}

func (m *Multi) searchOne(ctx context.Context, eng Engine, query string) Outcome {
	start := time.Now()
	results, egress, err := eng.Search(ctx, query)
	duration := time.Since(start)

	outcome := Outcome{Engine: eng.Name(), Results: results, Egress: egress}
	if outcome.Results == nil {
		outcome.Results = []Result{}
	}

	if err != nil {
		outcome.Err = err.Error()
		metrics.RecordSearch(eng.Name(), metrics.StatusError, duration, 0)
		m.log.Error("engine search failed", "engine", eng.Name(), "query", query, "err", err)
		return outcome
	}

	status := metrics.StatusOK
	if len(outcome.Results) == 0 {
		status = metrics.StatusEmpty
	}
	metrics.RecordSearch(eng.Name(), status, duration, len(outcome.Results))
	m.log.Info("engine search finished",
		"engine", eng.Name(), "results", len(outcome.Results), "egress", egress, "duration", duration)

	if m.cfg.Store != nil && !m.cfg.SkipSave && len(outcome.Results) > 0 {
		if saveErr := m.persist(ctx, eng.Name(), query, outcome.Results); saveErr != nil {
			// The caller still gets the results; the outcome just carries
			// the advisory that they are not in the store.
			outcome.Err = fmt.Sprintf("results found but not saved: %v", saveErr)
			m.log.Error("failed to save search results", "engine", eng.Name(), "err", saveErr)
		}
	}

	return outcome
}

// persist writes one SearchQuery row plus one SearchResult row per hit.
func (m *Multi) persist(ctx context.Context, engine, query string, results []Result) error {
	q := &storage.SearchQuery{
		ID:        uuid.NewString(),
		Query:     query,
		Engine:    engine,
		CreatedAt: time.Now().UTC(),
	}

	rows := make([]storage.SearchResult, 0, len(results))
	for _, r := range results {
		rows = append(rows, storage.SearchResult{
			ID:          uuid.NewString(),
			QueryID:     q.ID,
			Title:       r.Title,
			URL:         r.URL,
			Description: r.Description,
			Rank:        r.Rank,
			CreatedAt:   q.CreatedAt,
		})
	}

	return m.cfg.Store.SaveSearch(ctx, q, rows)
}
