package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AriajSarkar/SPAAR/internal/storage"
)

// ensure postgresStore implements storage.Store
var _ storage.Store = (*postgresStore)(nil)

type postgresStore struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS search_queries (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	engine TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS search_results (
	id TEXT PRIMARY KEY,
	query_id TEXT NOT NULL REFERENCES search_queries(id),
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	description TEXT,
	rank INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_results_query ON search_results(query_id);
CREATE TABLE IF NOT EXISTS proxies (
	ip TEXT NOT NULL,
	port INTEGER NOT NULL,
	protocol TEXT NOT NULL,
	username TEXT,
	password TEXT,
	active BOOLEAN NOT NULL,
	success_rate DOUBLE PRECISION NOT NULL,
	last_checked TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (ip, port)
);
`

// New creates a Postgres-backed storage.Store.
func New(ctx context.Context, dsn string) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) SaveSearch(ctx context.Context, q *storage.SearchQuery, results []storage.SearchResult) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO search_queries (id, query, engine, created_at) VALUES ($1, $2, $3, $4)`,
		q.ID, q.Query, q.Engine, q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert query: %w", err)
	}

	for _, r := range results {
		_, err = tx.Exec(ctx,
			`INSERT INTO search_results (id, query_id, title, url, description, rank, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ID, q.ID, r.Title, r.URL, r.Description, r.Rank, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit search: %w", err)
	}
	return nil
}

func (s *postgresStore) SearchHistory(ctx context.Context, limit int) ([]*storage.SearchQuery, error) {
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, query, engine, created_at FROM search_queries ORDER BY created_at DESC LIMIT $1`,
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

func (s *postgresStore) ResultsFor(ctx context.Context, queryID string) ([]*storage.SearchResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, query_id, title, url, description, rank, created_at
		 FROM search_results WHERE query_id = $1 ORDER BY rank ASC`,
		queryID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []*storage.SearchResult
	for rows.Next() {
		var r storage.SearchResult
		var description *string
		if err := rows.Scan(&r.ID, &r.QueryID, &r.Title, &r.URL, &description, &r.Rank, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		if description != nil {
			r.Description = *description
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read result rows: %w", err)
	}
	return results, nil
}

func (s *postgresStore) UpsertProxies(ctx context.Context, proxies []storage.ProxyRecord) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const upsert = `
	INSERT INTO proxies (ip, port, protocol, username, password, active, success_rate, last_checked)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (ip, port) DO UPDATE SET
		protocol = EXCLUDED.protocol,
		username = EXCLUDED.username,
		password = EXCLUDED.password,
		active = EXCLUDED.active,
		success_rate = EXCLUDED.success_rate,
		last_checked = EXCLUDED.last_checked
	`

	for _, p := range proxies {
		_, err = tx.Exec(ctx, upsert,
			p.IP, p.Port, p.Protocol, p.Username, p.Password, p.Active, p.SuccessRate, p.LastChecked,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert proxy %s: %w", p.Addr(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit proxies: %w", err)
	}
	return nil
}

func (s *postgresStore) ActiveProxies(ctx context.Context) ([]storage.ProxyRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ip, port, protocol, COALESCE(username, ''), COALESCE(password, ''), active, success_rate, last_checked
		 FROM proxies WHERE active ORDER BY last_checked DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query proxies: %w", err)
	}
	defer rows.Close()

	var proxies []storage.ProxyRecord
	for rows.Next() {
		var p storage.ProxyRecord
		if err := rows.Scan(&p.IP, &p.Port, &p.Protocol, &p.Username, &p.Password, &p.Active, &p.SuccessRate, &p.LastChecked); err != nil {
			return nil, fmt.Errorf("failed to scan proxy row: %w", err)
		}
		proxies = append(proxies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read proxy rows: %w", err)
	}
	return proxies, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
