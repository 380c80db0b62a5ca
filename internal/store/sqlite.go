package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PipeOpsHQ/livehook/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS endpoint_configs (
	endpoint_id TEXT PRIMARY KEY,
	status INTEGER NOT NULL,
	headers TEXT NOT NULL,
	body TEXT NOT NULL,
	delay_ms INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	endpoint_id TEXT NOT NULL,
	method TEXT NOT NULL,
	path TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	headers TEXT NOT NULL,
	query TEXT NOT NULL,
	body TEXT NOT NULL,
	raw_body BLOB,
	ip TEXT NOT NULL DEFAULT '',
	location TEXT,
	response TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_endpoint_created ON requests(endpoint_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at);
`

const requestColumns = `id, endpoint_id, method, path, url, headers, query, body, raw_body, ip, location, response, created_at`

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database file at path and
// applies the schema.
func NewSQLiteStore(path string, maxOpenConns int) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(db)
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database without touching the schema.
func New(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetConfig(ctx context.Context, endpointID string) (*models.EndpointConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT endpoint_id, status, headers, body, delay_ms, updated_at
		FROM endpoint_configs
		WHERE endpoint_id = ?
	`, endpointID)
	cfg, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get config %s: %w", endpointID, err)
	}
	return cfg, nil
}

func (s *SQLiteStore) UpsertConfig(ctx context.Context, endpointID string, patch models.ConfigPatch) (*models.EndpointConfig, error) {
	created := models.DefaultConfig(endpointID)
	patch.Apply(created)
	createdHeaders, err := json.Marshal(created.Headers)
	if err != nil {
		return nil, fmt.Errorf("encode headers: %w", err)
	}

	// NULL parameters keep the stored column on conflict.
	var status, headers, body, delay any
	if patch.Status != nil {
		status = *patch.Status
	}
	if patch.Headers != nil {
		headers = string(createdHeaders)
	}
	if patch.Body != nil {
		body = *patch.Body
	}
	if patch.Delay != nil {
		delay = *patch.Delay
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO endpoint_configs (endpoint_id, status, headers, body, delay_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(endpoint_id) DO UPDATE SET
			status = COALESCE(?, status),
			headers = COALESCE(?, headers),
			body = COALESCE(?, body),
			delay_ms = COALESCE(?, delay_ms),
			updated_at = excluded.updated_at
		RETURNING endpoint_id, status, headers, body, delay_ms, updated_at
	`, endpointID, created.Status, string(createdHeaders), created.Body, created.Delay, s.now().UnixNano(),
		status, headers, body, delay)

	cfg, err := scanConfig(row)
	if err != nil {
		return nil, fmt.Errorf("upsert config %s: %w", endpointID, err)
	}
	return cfg, nil
}

func (s *SQLiteStore) InsertRequest(ctx context.Context, req *models.CapturedRequest) error {
	headers, err := json.Marshal(nonNilHeaders(req.Headers))
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	query := req.Query
	if query == nil {
		query = map[string]any{}
	}
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}
	body, err := json.Marshal(req.Body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	response, err := json.Marshal(req.Response)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	var location any
	if req.Location != nil {
		b, err := json.Marshal(req.Location)
		if err != nil {
			return fmt.Errorf("encode location: %w", err)
		}
		location = string(b)
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (endpoint_id, method, path, url, headers, query, body, raw_body, ip, location, response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.EndpointID, req.Method, req.Path, req.URL, string(headers), string(queryJSON), string(body),
		[]byte(req.RawBody), req.IP, location, string(response), now.UnixNano())
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	req.ID = id
	req.CreatedAt = now
	return nil
}

func (s *SQLiteStore) ListRequests(ctx context.Context, endpointID string, page, limit int) ([]*models.CapturedRequest, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM requests WHERE endpoint_id = ?", endpointID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE endpoint_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, endpointID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	reqs := []*models.CapturedRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		reqs = append(reqs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	return reqs, total, nil
}

func (s *SQLiteStore) GetRequest(ctx context.Context, id int64) (*models.CapturedRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) DeleteRequest(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM requests WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete request %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete request %d: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM requests WHERE created_at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cleanup requests: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner) (*models.EndpointConfig, error) {
	var (
		c         models.EndpointConfig
		headers   string
		updatedAt int64
	)
	if err := row.Scan(&c.EndpointID, &c.Status, &headers, &c.Body, &c.Delay, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headers), &c.Headers); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	c.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &c, nil
}

func scanRequest(row scanner) (*models.CapturedRequest, error) {
	var (
		r         models.CapturedRequest
		headers   string
		query     string
		body      string
		rawBody   []byte
		location  sql.NullString
		response  string
		createdAt int64
	)
	err := row.Scan(&r.ID, &r.EndpointID, &r.Method, &r.Path, &r.URL, &headers, &query, &body,
		&rawBody, &r.IP, &location, &response, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headers), &r.Headers); err != nil {
		return nil, fmt.Errorf("decode headers of request %d: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(query), &r.Query); err != nil {
		return nil, fmt.Errorf("decode query of request %d: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(body), &r.Body); err != nil {
		return nil, fmt.Errorf("decode body of request %d: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(response), &r.Response); err != nil {
		return nil, fmt.Errorf("decode response of request %d: %w", r.ID, err)
	}
	if location.Valid {
		r.Location = &models.Location{}
		if err := json.Unmarshal([]byte(location.String), r.Location); err != nil {
			return nil, fmt.Errorf("decode location of request %d: %w", r.ID, err)
		}
	}
	r.RawBody = string(rawBody)
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	return &r, nil
}

func nonNilHeaders(h map[string]string) map[string]string {
	if h == nil {
		return map[string]string{}
	}
	return h
}
