package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AriajSarkar/SPAAR/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteStore implements storage.Store
var _ storage.Store = (*sqliteStore)(nil)

type sqliteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS search_queries (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	engine TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS search_results (
	id TEXT PRIMARY KEY,
	query_id TEXT NOT NULL REFERENCES search_queries(id),
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	description TEXT,
	rank INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_results_query ON search_results(query_id);
CREATE TABLE IF NOT EXISTS proxies (
	ip TEXT NOT NULL,
	port INTEGER NOT NULL,
	protocol TEXT NOT NULL,
	username TEXT,
	password TEXT,
	active BOOLEAN NOT NULL,
	success_rate REAL NOT NULL,
	last_checked DATETIME NOT NULL,
	PRIMARY KEY (ip, port)
);
`

// New creates a SQLite-backed storage.Store.
func New(dsn string) (storage.Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) SaveSearch(ctx context.Context, q *storage.SearchQuery, results []storage.SearchResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO search_queries (id, query, engine, created_at) VALUES (?, ?, ?, ?)`,
		q.ID, q.Query, q.Engine, q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert query: %w", err)
	}

	for _, r := range results {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO search_results (id, query_id, title, url, description, rank, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, q.ID, r.Title, r.URL, r.Description, r.Rank, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit search: %w", err)
	}
	return nil
}

func (s *sqliteStore) SearchHistory(ctx context.Context, limit int) ([]*storage.SearchQuery, error) {
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, engine, created_at FROM search_queries ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var queries []*storage.SearchQuery
	for rows.Next() {
		var q storage.SearchQuery
		if err := rows.Scan(&q.ID, &q.Query, &q.Engine, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan query row: %w", err)
		}
		queries = append(queries, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query rows: %w", err)
	}
	return queries, nil
}

func (s *sqliteStore) ResultsFor(ctx context.Context, queryID string) ([]*storage.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query_id, title, url, description, rank, created_at
		 FROM search_results WHERE query_id = ? ORDER BY rank ASC`,
		queryID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []*storage.SearchResult
	for rows.Next() {
		var r storage.SearchResult
		if err := rows.Scan(&r.ID, &r.QueryID, &r.Title, &r.URL, &r.Description, &r.Rank, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read result rows: %w", err)
	}
	return results, nil
}

func (s *sqliteStore) UpsertProxies(ctx context.Context, proxies []storage.ProxyRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
	INSERT INTO proxies (ip, port, protocol, username, password, active, success_rate, last_checked)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(ip, port) DO UPDATE SET
		protocol = excluded.protocol,
		username = excluded.username,
		password = excluded.password,
		active = excluded.active,
		success_rate = excluded.success_rate,
		last_checked = excluded.last_checked
	`

	for _, p := range proxies {
		_, err = tx.ExecContext(ctx, upsert,
			p.IP, p.Port, p.Protocol, p.Username, p.Password, p.Active, p.SuccessRate, p.LastChecked,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert proxy %s: %w", p.Addr(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit proxies: %w", err)
	}
	return nil
}

func (s *sqliteStore) ActiveProxies(ctx context.Context) ([]storage.ProxyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ip, port, protocol, username, password, active, success_rate, last_checked
		 FROM proxies WHERE active = true ORDER BY last_checked DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query proxies: %w", err)
	}
	defer rows.Close()

	var proxies []storage.ProxyRecord
	for rows.Next() {
		var p storage.ProxyRecord
		var username, password sql.NullString
		if err := rows.Scan(&p.IP, &p.Port, &p.Protocol, &username, &password, &p.Active, &p.SuccessRate, &p.LastChecked); err != nil {
			return nil, fmt.Errorf("failed to scan proxy row: %w", err)
		}
		p.Username = username.String
		p.Password = password.String
		proxies = append(proxies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proxy rows: %w", err)
	}
	return proxies, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
