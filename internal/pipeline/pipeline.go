// Package pipeline glues the intent gate, the multi-engine search and the
// context rendering into the one call a chat layer makes per prompt.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/AriajSarkar/SPAAR/internal/analyzer"
	"github.com/AriajSarkar/SPAAR/internal/report"
	"github.com/AriajSarkar/SPAAR/internal/serp"
)

// Notes spliced into a prompt when the search produced nothing usable. The
// model is told explicitly to fall back on its own knowledge.
const (
	NoResultsNote   = "\nSearch was performed but no relevant results were found. Using model knowledge to provide an answer.\n"
	SearchErrorNote = "\nAttempted to search but encountered an error. Using built-in knowledge instead.\n"
)

// Config provides parameters for the pipeline.
type Config struct {
	// Multi runs the fan-out. Required.
	Multi *serp.Multi
	// Engines restricts the fan-out to a subset. Nil means all configured.
	Engines []string
	// Priority orders the fallback pick. Nil means report.DefaultPriority.
	Priority []string
	// TopN caps how many results feed the context block. <= 0 means
	// report.DefaultTopN.
	TopN   int
	Logger *slog.Logger
}

// Pipeline turns one prompt into the search context that augments it.
type Pipeline struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Multi == nil {
		return nil, errors.New("multi search is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, log: cfg.Logger}, nil
}

// Run decides whether the query needs live data and returns the block to
// splice into the prompt. Prompts answerable from model knowledge return "".
// Run never fails: a broken search degrades to a note telling the model to
// answer on its own.
func (p *Pipeline) Run(ctx context.Context, query string) string {
	if !analyzer.NeedsLiveSearch(query) {
		p.log.Debug("no live search needed", "query", query)
		return ""
	}
	p.log.Info("live search needed", "query", query, "triggers", analyzer.MatchedTriggers(query))

	start := time.Now()
	rep, err := p.cfg.Multi.Search(ctx, query, p.cfg.Engines)
	if err != nil {
		p.log.Error("search failed", "query", query, "err", err)
		return SearchErrorNote
	}

	engine, results := report.TopByPriority(rep, p.cfg.Priority, p.cfg.TopN)
	if len(results) == 0 {
		p.log.Warn("search produced no results", "query", query, "duration", time.Since(start))
		return NoResultsNote
	}

	var sb strings.Builder
	sb.WriteString("\nSearch results:\n")
	if err := report.RenderContext(&sb, rep, p.cfg.Priority, p.cfg.TopN); err != nil {
		p.log.Error("failed to render search context", "err", err)
		return SearchErrorNote
	}
	sb.WriteString("\n\n")

	p.log.Info("search context built",
		"query", query, "engine", engine, "results", len(results), "duration", time.Since(start))
	return sb.String()
}
