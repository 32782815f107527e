package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at);
`

// SQLiteStore keeps records in a SQLite database. Search narrows rows with
// LIKE and scores them by whole-word term matches.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time

	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("memory: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}
	// One writer; hook processes may overlap.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close() //nolint:errcheck // cleanup in error path
		return nil, fmt.Errorf("memory: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close() //nolint:errcheck // cleanup in error path
		return nil, fmt.Errorf("memory: set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close() //nolint:errcheck // cleanup in error path
		return nil, fmt.Errorf("memory: create schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Store inserts a record and returns its ID.
func (s *SQLiteStore) Store(ctx context.Context, content string, metadata map[string]string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("memory: marshal metadata: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, kind, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, metadata[MetaType], content, string(meta), s.now().UTC().UnixNano())
	if err != nil {
		return "", fmt.Errorf("memory: insert record: %w", err)
	}
	return id, nil
}

// Search returns records matching query. An empty query lists the most
// recent records.
func (s *SQLiteStore) Search(ctx context.Context, query string, opts SearchOptions) ([]Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	terms := queryTerms(query)
	var (
		where []string
		args  []any
	)
	if opts.Type != "" {
		where = append(where, "kind = ?")
		args = append(args, opts.Type)
	}
	if len(terms) > 0 {
		likes := make([]string, len(terms))
		for i, t := range terms {
			likes[i] = "content LIKE ?"
			args = append(args, "%"+t+"%")
		}
		where = append(where, "("+strings.Join(likes, " OR ")+")")
	}

	q := "SELECT id, content, metadata, created_at FROM records"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if len(terms) == 0 && opts.Agent == "" && opts.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: query records: %w", err)
	}
	defer func() {
		_ = rows.Close() //nolint:errcheck // read-only rows
	}()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			rawMeta string
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.Content, &rawMeta, &created); err != nil {
			return nil, fmt.Errorf("memory: scan record: %w", err)
		}
		rec.CreatedAt = time.Unix(0, created).UTC()
		if rawMeta != "" && rawMeta != "null" {
			_ = json.Unmarshal([]byte(rawMeta), &rec.Metadata) //nolint:errcheck // metadata is advisory
		}
		if !opts.matches(rec) {
			continue
		}
		if len(terms) > 0 {
			rec.Score = matchCount(rec.Content, terms)
			if rec.Score == 0 {
				continue
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: iterate records: %w", err)
	}
	return rank(out, opts), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}
