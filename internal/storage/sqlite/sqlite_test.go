package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/AriajSarkar/SPAAR/internal/storage"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := New(t.TempDir() + "/spaar_test.db")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_SaveAndReadBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	q := &storage.SearchQuery{ID: "q1", Query: "golang concurrency", Engine: "google", CreatedAt: now}
	results := []storage.SearchResult{
		{ID: "r1", Title: "Go Concurrency Patterns", URL: "https://go.dev/blog/pipelines", Description: "Pipelines and cancellation", Rank: 1, CreatedAt: now},
		{ID: "r2", Title: "Effective Go", URL: "https://go.dev/doc/effective_go", Description: "Concurrency section", Rank: 2, CreatedAt: now},
	}

	if err := s.SaveSearch(ctx, q, results); err != nil {
		t.Fatalf("failed to save search: %v", err)
	}

	got, err := s.ResultsFor(ctx, "q1")
	if err != nil {
		t.Fatalf("failed to read results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Rank != 1 || got[1].Rank != 2 {
		t.Errorf("expected rank order 1,2 got %d,%d", got[0].Rank, got[1].Rank)
	}
	if got[0].Title != "Go Concurrency Patterns" {
		t.Errorf("unexpected title %q", got[0].Title)
	}
	if got[0].QueryID != "q1" {
		t.Errorf("expected results linked to q1, got %q", got[0].QueryID)
	}

	// Unknown query id yields an empty set, not an error
	none, err := s.ResultsFor(ctx, "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no results for unknown id, got %d", len(none))
	}
}

func TestSQLite_SearchHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-1 * time.Hour)

	for i, engine := range []string{"google", "bing", "duckduckgo"} {
		q := &storage.SearchQuery{
			ID:        engine + "-q",
			Query:     "latest go release",
			Engine:    engine,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveSearch(ctx, q, nil); err != nil {
			t.Fatalf("failed to save search for %s: %v", engine, err)
		}
	}

	history, err := s.SearchHistory(ctx, 2)
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	// Newest first
	if history[0].Engine != "duckduckgo" || history[1].Engine != "bing" {
		t.Errorf("expected newest-first ordering, got %s, %s", history[0].Engine, history[1].Engine)
	}

	all, err := s.SearchHistory(ctx, 0)
	if err != nil {
		t.Fatalf("failed to read history with default limit: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 entries under default limit, got %d", len(all))
	}
}

func TestSQLite_UpsertProxies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := []storage.ProxyRecord{
		{IP: "10.0.0.1", Port: 8080, Protocol: "http", Active: true, SuccessRate: 100, LastChecked: now},
		{IP: "10.0.0.2", Port: 3128, Protocol: "https", Active: true, SuccessRate: 100, LastChecked: now},
	}
	if err := s.UpsertProxies(ctx, first); err != nil {
		t.Fatalf("failed to upsert proxies: %v", err)
	}

	// Re-upserting an existing (ip, port) must update, not duplicate
	update := []storage.ProxyRecord{
		{IP: "10.0.0.1", Port: 8080, Protocol: "https", Active: true, SuccessRate: 50, LastChecked: now.Add(time.Minute)},
	}
	if err := s.UpsertProxies(ctx, update); err != nil {
		t.Fatalf("failed to re-upsert proxy: %v", err)
	}

	active, err := s.ActiveProxies(ctx)
	if err != nil {
		t.Fatalf("failed to read proxies: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 proxies after upsert, got %d", len(active))
	}

	var updated *storage.ProxyRecord
	for i := range active {
		if active[i].Addr() == "10.0.0.1:8080" {
			updated = &active[i]
		}
	}
	if updated == nil {
		t.Fatal("expected 10.0.0.1:8080 present")
	}
	if updated.Protocol != "https" || updated.SuccessRate != 50 {
		t.Errorf("expected updated fields, got protocol=%s rate=%v", updated.Protocol, updated.SuccessRate)
	}
}

func TestSQLite_ActiveProxiesFiltersInactive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	records := []storage.ProxyRecord{
		{IP: "10.0.0.1", Port: 8080, Protocol: "http", Active: true, SuccessRate: 100, LastChecked: now},
		{IP: "10.0.0.2", Port: 8080, Protocol: "http", Active: false, SuccessRate: 0, LastChecked: now},
	}
	if err := s.UpsertProxies(ctx, records); err != nil {
		t.Fatalf("failed to upsert proxies: %v", err)
	}

	active, err := s.ActiveProxies(ctx)
	if err != nil {
		t.Fatalf("failed to read proxies: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected only the active proxy, got %d", len(active))
	}
	if active[0].IP != "10.0.0.1" {
		t.Errorf("expected 10.0.0.1, got %s", active[0].IP)
	}
}
