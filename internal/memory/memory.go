// Package memory is the downstream record store used for tensions, growth
// vector notes and heartbeat decisions. Backends share a term-matching
// search so results do not depend on which one is configured.
package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/boshu2/driftwatch/internal/config"
	"github.com/boshu2/driftwatch/internal/textutil"
)

// Metadata keys with meaning to callers.
const (
	// MetaType groups records (tension, heartbeat_decision, growth_vector).
	MetaType = "type"

	// MetaAgent names the producing agent.
	MetaAgent = "agent_id"
)

// Sort orders for Search.
const (
	SortRelevance = "relevance"
	SortRecent    = "recent"
)

// Record is one stored item.
type Record struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`

	// Score is the number of query terms matched. Zero for recency listings.
	Score int `json:"score,omitempty"`
}

// SearchOptions bounds and orders a search.
type SearchOptions struct {
	Limit int
	Sort  string

	// Type restricts results to records whose MetaType equals it.
	Type string

	// Agent restricts results to records whose MetaAgent equals it.
	Agent string
}

// matches reports whether rec passes the type and agent filters.
func (o SearchOptions) matches(rec Record) bool {
	return (o.Type == "" || rec.Metadata[MetaType] == o.Type) &&
		(o.Agent == "" || rec.Metadata[MetaAgent] == o.Agent)
}

// Store persists and searches records.
type Store interface {
	Store(ctx context.Context, content string, metadata map[string]string) (string, error)
	Search(ctx context.Context, query string, opts SearchOptions) ([]Record, error)
	Close() error
}

// Open returns the configured backend. Relative paths resolve under baseDir.
func Open(cfg config.MemoryConfig, baseDir string) (Store, error) {
	path := cfg.Path
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStore(path)
	case "index":
		return NewIndexStore(path)
	case "none", "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Nop discards records and finds nothing.
type Nop struct{}

func (Nop) Store(context.Context, string, map[string]string) (string, error) { return "", nil }
func (Nop) Search(context.Context, string, SearchOptions) ([]Record, error)  { return nil, nil }
func (Nop) Close() error                                                     { return nil }

// Tag returns a Store that stamps every stored record with agentID under
// MetaAgent. Searches pass through unchanged.
func Tag(s Store, agentID string) Store {
	if agentID == "" {
		return s
	}
	return tagged{inner: s, agentID: agentID}
}

// inner aliases Store so the embedded field does not collide with the Store method.
type inner = Store

type tagged struct {
	inner
	agentID string
}

func (t tagged) Store(ctx context.Context, content string, metadata map[string]string) (string, error) {
	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	if meta[MetaAgent] == "" {
		meta[MetaAgent] = t.agentID
	}
	return t.inner.Store(ctx, content, meta)
}

// queryTerms returns the sorted significant words of query.
func queryTerms(query string) []string {
	set := textutil.Words(query)
	terms := make([]string, 0, len(set))
	for w := range set {
		terms = append(terms, w)
	}
	sort.Strings(terms)
	return terms
}

// matchCount counts terms present in content's significant words.
func matchCount(content string, terms []string) int {
	words := textutil.Words(content)
	n := 0
	for _, t := range terms {
		if _, ok := words[t]; ok {
			n++
		}
	}
	return n
}

// rank orders records per opts and applies the limit. Relevance ties break
// on recency, then ID.
func rank(records []Record, opts SearchOptions) []Record {
	byRecent := func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	}
	if strings.EqualFold(opts.Sort, SortRecent) {
		sort.SliceStable(records, byRecent)
	} else {
		sort.SliceStable(records, func(i, j int) bool {
			if records[i].Score != records[j].Score {
				return records[i].Score > records[j].Score
			}
			return byRecent(i, j)
		})
	}
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}
	return records
}
