// Package principles reads the agent's identity document and extracts the
// principle names it declares. Parsing happens only when the document's
// content hash changes.
package principles

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/boshu2/driftwatch/internal/watch"
)

var (
	headingPattern = regexp.MustCompile(`(?m)^##\s+(.+?)\s*$`)
	boldBullet     = regexp.MustCompile(`(?m)^\s*[-*]\s+\*\*(.+?)\*\*`)
)

// Document is one parsed revision of the principles file.
type Document struct {
	Raw        string
	Principles []string
	Checksum   string
}

// Mentions returns the principle names that appear in text
// (case-insensitive).
func (d Document) Mentions(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, p := range d.Principles {
		if strings.Contains(lower, strings.ToLower(p)) {
			out = append(out, p)
		}
	}
	return out
}

// Reader caches the parsed document.
type Reader struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	doc     Document
	parses  int
	watcher *watch.FileWatcher
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// NewReader creates a reader for path.
func NewReader(path string, opts ...Option) *Reader {
	r := &Reader{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the document path.
func (r *Reader) Path() string {
	return r.path
}

// Read returns the current document. A missing file yields an empty
// document; other read errors are returned with the last good document.
func (r *Reader) Read() (Document, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		data, err = nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		return r.doc, fmt.Errorf("read principles: %w", err)
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	if checksum == r.doc.Checksum {
		return r.doc, nil
	}

	r.doc = Document{
		Raw:        string(data),
		Principles: Parse(string(data)),
		Checksum:   checksum,
	}
	r.parses++
	r.logger.Debug("parsed principles", zap.Int("count", len(r.doc.Principles)))
	return r.doc, nil
}

// Parses returns how many times the document has been parsed.
func (r *Reader) Parses() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.parses
}

// Watch re-reads the document whenever it changes on disk. A reader holds
// at most one watcher; calls while one is running return nil.
func (r *Reader) Watch(ctx context.Context) error {
	r.mu.Lock()
	running := r.watcher != nil
	r.mu.Unlock()
	if running {
		return nil
	}

	w, err := watch.New(r.path, r.refresh, r.logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	if r.watcher != nil {
		r.mu.Unlock()
		w.Stop()
		return nil
	}
	r.watcher = w
	r.mu.Unlock()
	return nil
}

// Watching reports whether a watcher is running.
func (r *Reader) Watching() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watcher != nil
}

// StopWatching stops the watcher started by Watch.
func (r *Reader) StopWatching() {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

func (r *Reader) refresh() {
	if _, err := r.Read(); err != nil {
		r.logger.Warn("refresh principles failed", zap.Error(err))
	}
}

// Parse extracts principle names from "## Heading" lines and
// "- **Name**" bullets, de-duplicated in document order.
func Parse(text string) []string {
	type hit struct {
		pos  int
		name string
	}
	var hits []hit
	for _, m := range headingPattern.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{m[0], text[m[2]:m[3]]})
	}
	for _, m := range boldBullet.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{m[0], text[m[2]:m[3]]})
	}
	// Merge the two scans back into document order.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, h := range hits {
		name := strings.TrimRight(strings.TrimSpace(h.name), ":")
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}
