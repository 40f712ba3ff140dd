// Package csvbackend stores searches and the proxy inventory as CSV files,
// for deployments that want grep- and spreadsheet-friendly output. Search
// rows are denormalized: one line per result, query fields repeated.
package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/AriajSarkar/SPAAR/internal/storage"
)

// ensure csvStore implements storage.Store
var _ storage.Store = (*csvStore)(nil)

type csvStore struct {
	mu        sync.Mutex
	searches  *os.File
	proxyPath string
	proxies   map[string]storage.ProxyRecord // keyed by Addr()
}

// searchHeaders defines the search file column order. A query without
// results occupies one line with the result columns empty.
var searchHeaders = []string{
	"query_id",
	"query",
	"engine",
	"created_at",
	"result_id",
	"title",
	"url",
	"description",
	"rank",
}

// proxyHeaders defines the proxy file column order.
var proxyHeaders = []string{
	"ip",
	"port",
	"protocol",
	"username",
	"password",
	"active",
	"success_rate",
	"last_checked",
}

// New creates a CSV-backed storage.Store rooted at dir.
func New(dir string) (storage.Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "searches.csv"), os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open search file: %w", err)
	}

	// Write headers when the file is new
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat search file: %w", err)
	}
	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(searchHeaders); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write search headers: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write search headers: %w", err)
		}
	}

	s := &csvStore{
		searches:  f,
		proxyPath: filepath.Join(dir, "proxies.csv"),
		proxies:   make(map[string]storage.ProxyRecord),
	}

	if err := s.loadProxies(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *csvStore) loadProxies() error {
	f, err := os.Open(s.proxyPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open proxy file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows, skipped below
	rows, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read proxy file: %w", err)
	}

	for i, row := range rows {
		if i == 0 || len(row) != len(proxyHeaders) {
			continue // header or malformed row
		}
		port, err := strconv.Atoi(row[1])
		if err != nil {
			continue
		}
		active, _ := strconv.ParseBool(row[5])
		rate, _ := strconv.ParseFloat(row[6], 64)
		checked, _ := time.Parse(time.RFC3339Nano, row[7])

		p := storage.ProxyRecord{
			IP:          row[0],
			Port:        port,
			Protocol:    row[2],
			Username:    row[3],
			Password:    row[4],
			Active:      active,
			SuccessRate: rate,
			LastChecked: checked,
		}
		s.proxies[p.Addr()] = p
	}
	return nil
}

func (s *csvStore) SaveSearch(ctx context.Context, q *storage.SearchQuery, results []storage.SearchResult) error {
	rows := make([][]string, 0, len(results))
	if len(results) == 0 {
		rows = append(rows, []string{q.ID, q.Query, q.Engine, q.CreatedAt.Format(time.RFC3339Nano), "", "", "", "", ""})
	}
	for _, r := range results {
		rows = append(rows, []string{
			q.ID,
			q.Query,
			q.Engine,
			q.CreatedAt.Format(time.RFC3339Nano),
			r.ID,
			r.Title,
			r.URL,
			r.Description,
			strconv.Itoa(r.Rank),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.searches.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek search file: %w", err)
	}

	w := csv.NewWriter(s.searches)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to append search: %w", err)
	}
	return nil
}

// scanSearches reads every data row of the search file, oldest first.
// Lock must be held.
func (s *csvStore) scanSearches() ([][]string, error) {
	if _, err := s.searches.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind search file: %w", err)
	}
	defer func() {
		// Restore pointer to end for appending
		_, _ = s.searches.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(s.searches)
	r.FieldsPerRecord = -1 // tolerate ragged rows, skipped below
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read search file: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	return rows[1:], nil
}

func (s *csvStore) SearchHistory(ctx context.Context, limit int) ([]*storage.SearchQuery, error) {
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.scanSearches()
	if err != nil {
		return nil, err
	}

	// Collapse result rows into distinct queries, in append order
	var ordered []*storage.SearchQuery
	seen := make(map[string]bool)
	for _, row := range rows {
		if len(row) != len(searchHeaders) || seen[row[0]] {
			continue
		}
		seen[row[0]] = true
		createdAt, _ := time.Parse(time.RFC3339Nano, row[3])
		ordered = append(ordered, &storage.SearchQuery{
			ID:        row[0],
			Query:     row[1],
			Engine:    row[2],
			CreatedAt: createdAt,
		})
	}

	// Newest first
	var queries []*storage.SearchQuery
	for i := len(ordered) - 1; i >= 0 && len(queries) < limit; i-- {
		queries = append(queries, ordered[i])
	}
	return queries, nil
}

func (s *csvStore) ResultsFor(ctx context.Context, queryID string) ([]*storage.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.scanSearches()
	if err != nil {
		return nil, err
	}

	var results []*storage.SearchResult
	for _, row := range rows {
		if len(row) != len(searchHeaders) || row[0] != queryID || row[4] == "" {
			continue
		}
		rank, _ := strconv.Atoi(row[8])
		createdAt, _ := time.Parse(time.RFC3339Nano, row[3])
		results = append(results, &storage.SearchResult{
			ID:          row[4],
			QueryID:     row[0],
			Title:       row[5],
			URL:         row[6],
			Description: row[7],
			Rank:        rank,
			CreatedAt:   createdAt,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Rank < results[j].Rank })
	return results, nil
}

func (s *csvStore) UpsertProxies(ctx context.Context, proxies []storage.ProxyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range proxies {
		s.proxies[p.Addr()] = p
	}
	return s.writeProxies()
}

// writeProxies rewrites the proxy file. Lock must be held.
func (s *csvStore) writeProxies() error {
	records := make([]storage.ProxyRecord, 0, len(s.proxies))
	for _, p := range s.proxies {
		records = append(records, p)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Addr() < records[j].Addr() })

	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, proxyHeaders)
	for _, p := range records {
		rows = append(rows, []string{
			p.IP,
			strconv.Itoa(p.Port),
			p.Protocol,
			p.Username,
			p.Password,
			strconv.FormatBool(p.Active),
			strconv.FormatFloat(p.SuccessRate, 'f', -1, 64),
			p.LastChecked.Format(time.RFC3339Nano),
		})
	}

	f, err := os.Create(s.proxyPath)
	if err != nil {
		return fmt.Errorf("failed to write proxy file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write proxy file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write proxy file: %w", err)
	}
	return nil
}

func (s *csvStore) ActiveProxies(ctx context.Context) ([]storage.ProxyRecord, error) {
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

func (s *csvStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches.Close()
}
