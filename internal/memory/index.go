package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boshu2/driftwatch/internal/textutil"
)

// maxRecordLine bounds one JSONL record when loading.
const maxRecordLine = 1024 * 1024

// IndexStore is an in-process inverted index mapping significant words to
// record IDs. Records are persisted as an append-only JSONL file and the
// index is rebuilt from it on open.
type IndexStore struct {
	path string
	now  func() time.Time

	mu      sync.RWMutex
	records map[string]Record
	terms   map[string]map[string]bool
	closed  bool
}

// NewIndexStore loads the records file at path, skipping malformed lines.
// An empty path keeps the index in memory only.
func NewIndexStore(path string) (*IndexStore, error) {
	s := &IndexStore{
		path:    path,
		now:     time.Now,
		records: make(map[string]Record),
		terms:   make(map[string]map[string]bool),
	}
	if path == "" {
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("memory: create index dir: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *IndexStore) load() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("memory: open index: %w", err)
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // read-only file
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil || rec.ID == "" {
			continue // skip malformed lines
		}
		s.indexRecord(rec)
	}
	return scanner.Err()
}

// indexRecord adds rec to the term map. Caller holds mu or owns s.
func (s *IndexStore) indexRecord(rec Record) {
	s.records[rec.ID] = rec
	for term := range textutil.Words(rec.Content) {
		docs, ok := s.terms[term]
		if !ok {
			docs = make(map[string]bool)
			s.terms[term] = docs
		}
		docs[rec.ID] = true
	}
}

// Store indexes a record and appends it to the records file.
func (s *IndexStore) Store(_ context.Context, content string, metadata map[string]string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	rec := Record{
		ID:        uuid.NewString(),
		Content:   content,
		Metadata:  metadata,
		CreatedAt: s.now().UTC(),
	}
	if s.path != "" {
		if err := appendRecord(s.path, rec); err != nil {
			return "", err
		}
	}
	s.indexRecord(rec)
	return rec.ID, nil
}

// Search scores records by the number of query terms they contain. An empty
// query lists records by recency.
func (s *IndexStore) Search(_ context.Context, query string, opts SearchOptions) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	terms := queryTerms(query)
	var out []Record
	if len(terms) == 0 {
		for _, rec := range s.records {
			if opts.matches(rec) {
				out = append(out, rec)
			}
		}
		opts.Sort = SortRecent
		return rank(out, opts), nil
	}

	for id, score := range s.scoreDocuments(terms) {
		rec := s.records[id]
		if !opts.matches(rec) {
			continue
		}
		rec.Score = score
		out = append(out, rec)
	}
	return rank(out, opts), nil
}

// scoreDocuments counts how many query terms each record matches.
func (s *IndexStore) scoreDocuments(terms []string) map[string]int {
	scores := make(map[string]int)
	for _, term := range terms {
		for id := range s.terms[term] {
			scores[id]++
		}
	}
	return scores
}

// Len returns the number of indexed records.
func (s *IndexStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close marks the store closed. Records are already on disk.
func (s *IndexStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// appendRecord appends rec as one JSON line.
func appendRecord(path string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("memory: marshal record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("memory: open index: %w", err)
	}
	defer func() {
		_ = f.Close() //nolint:errcheck // sync already called, close best-effort
	}()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("memory: write record: %w", err)
	}
	return f.Sync()
}
