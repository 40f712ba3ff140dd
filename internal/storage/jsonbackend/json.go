package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/AriajSarkar/SPAAR/internal/storage"
)

// ensure jsonStore implements storage.Store
var _ storage.Store = (*jsonStore)(nil)

// jsonStore keeps searches as an append-only NDJSON log and the proxy
// inventory as a rewritten JSON snapshot. It exists for deployments without
// a database; reads scan the whole log.
type jsonStore struct {
	mu        sync.Mutex
	searches  *os.File
	proxyPath string
	proxies   map[string]storage.ProxyRecord // keyed by Addr()
}

// searchEntry is one line of the search log.
type searchEntry struct {
	Query   storage.SearchQuery    `json:"query"`
	Results []storage.SearchResult `json:"results"`
}

// New creates a file-backed storage.Store rooted at dir.
func New(dir string) (storage.Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "searches.ndjson"), os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open search log: %w", err)
	}

	s := &jsonStore{
		searches:  f,
		proxyPath: filepath.Join(dir, "proxies.json"),
		proxies:   make(map[string]storage.ProxyRecord),
	}

	if err := s.loadProxies(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *jsonStore) loadProxies() error {
	data, err := os.ReadFile(s.proxyPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read proxy snapshot: %w", err)
	}

	var records []storage.ProxyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to decode proxy snapshot: %w", err)
	}
	for _, p := range records {
		s.proxies[p.Addr()] = p
	}
	return nil
}

func (s *jsonStore) SaveSearch(ctx context.Context, q *storage.SearchQuery, results []storage.SearchResult) error {
	for i := range results {
		results[i].QueryID = q.ID
	}
	data, err := json.Marshal(searchEntry{Query: *q, Results: results})
	if err != nil {
		return fmt.Errorf("failed to encode search: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.searches.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append search: %w", err)
	}
	return nil
}

// scanLog reads every entry of the search log, oldest first.
func (s *jsonStore) scanLog() ([]searchEntry, error) {
	if _, err := s.searches.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind search log: %w", err)
	}
	defer func() {
		// Restore pointer to end for appending
		_, _ = s.searches.Seek(0, io.SeekEnd)
	}()

	var entries []searchEntry
	scanner := bufio.NewScanner(s.searches)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e searchEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("failed to decode search log line: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search log: %w", err)
	}
	return entries, nil
}

func (s *jsonStore) SearchHistory(ctx context.Context, limit int) ([]*storage.SearchQuery, error) {
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.scanLog()
	if err != nil {
		return nil, err
	}

	// Newest first
	var queries []*storage.SearchQuery
	for i := len(entries) - 1; i >= 0 && len(queries) < limit; i-- {
		q := entries[i].Query
		queries = append(queries, &q)
	}
	return queries, nil
}

func (s *jsonStore) ResultsFor(ctx context.Context, queryID string) ([]*storage.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.scanLog()
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.Query.ID != queryID {
			continue
		}
		results := make([]*storage.SearchResult, len(e.Results))
		for i := range e.Results {
			r := e.Results[i]
			results[i] = &r
		}
		sort.Slice(results, func(i, j int) bool { return results[i].Rank < results[j].Rank })
		return results, nil
	}
	return nil, nil
}

func (s *jsonStore) UpsertProxies(ctx context.Context, proxies []storage.ProxyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range proxies {
		s.proxies[p.Addr()] = p
	}
	return s.writeProxies()
}

// writeProxies rewrites the snapshot file. Lock must be held.
func (s *jsonStore) writeProxies() error {
	records := make([]storage.ProxyRecord, 0, len(s.proxies))
	for _, p := range s.proxies {
		records = append(records, p)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Addr() < records[j].Addr() })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode proxy snapshot: %w", err)
	}
	if err := os.WriteFile(s.proxyPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write proxy snapshot: %w", err)
	}
	return nil
}

func (s *jsonStore) ActiveProxies(ctx context.Context) ([]storage.ProxyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []storage.ProxyRecord
	for _, p := range s.proxies {
		if p.Active {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].LastChecked.After(active[j].LastChecked) })
	return active, nil
}

func (s *jsonStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches.Close()
}
