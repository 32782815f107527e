package vectors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/boshu2/driftwatch/internal/storage"
	"github.com/boshu2/driftwatch/internal/watch"
)

// Default loader settings.
const (
	DefaultTTL          = 30 * time.Second
	DefaultCacheEntries = 8
)

// Stats counts loader activity.
type Stats struct {
	// Reads is the number of times the file was read from disk.
	Reads int
	// Parses is the number of times file content was decoded.
	Parses int
	// Hits counts loads served without decoding (checksum or stat match).
	Hits int
	// Evictions counts parsed collections dropped from the LRU.
	Evictions int
}

// Loader reads a growth-vector collection file with checksum-keyed caching.
// While a watcher runs, an unchanged size and mtime within the freshness
// window skips the read entirely. Without a watcher every Load reads and
// hashes the file, since a same-size rewrite inside the mtime granularity
// is otherwise invisible. Only a new SHA-256 leads to decoding.
type Loader struct {
	store storage.Storage
	name  string
	ttl   time.Duration

	cache  *lru.Cache[string, *Collection]
	group  singleflight.Group
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	current   *Collection
	checksum  string
	size      int64
	modTime   time.Time
	checkedAt time.Time
	stats     Stats

	watcher *watch.FileWatcher
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithTTL sets the freshness window.
func WithTTL(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.ttl = d
	}
}

// WithFileName overrides the collection file name within the storage namespace.
func WithFileName(name string) LoaderOption {
	return func(l *Loader) {
		l.name = name
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithLoaderClock overrides time.Now.
func WithLoaderClock(now func() time.Time) LoaderOption {
	return func(l *Loader) {
		l.now = now
	}
}

// NewLoader creates a loader for the collection stored in store.
func NewLoader(store storage.Storage, cacheEntries int, opts ...LoaderOption) (*Loader, error) {
	if store == nil {
		return nil, ErrNoStorage
	}
	if cacheEntries < 1 {
		cacheEntries = DefaultCacheEntries
	}
	l := &Loader{
		store:  store,
		name:   storage.VectorsFile,
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	cache, err := lru.NewWithEvict[string, *Collection](cacheEntries, l.handleEviction)
	if err != nil {
		return nil, fmt.Errorf("create collection cache: %w", err)
	}
	l.cache = cache
	return l, nil
}

// handleEviction runs with the cache lock held by golang-lru, never l.mu.
func (l *Loader) handleEviction(checksum string, _ *Collection) {
	l.logger.Debug("evicted parsed collection", zap.String("checksum", checksum))
	l.mu.Lock()
	l.stats.Evictions++
	l.mu.Unlock()
}

// Path returns the collection file path.
func (l *Loader) Path() string {
	return l.store.Path(l.name)
}

// Load returns the current collection. A missing or corrupt file yields an
// empty collection; only unexpected I/O errors are returned.
func (l *Loader) Load(ctx context.Context) (*Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err, _ := l.group.Do(l.name, func() (any, error) {
		return l.load()
	})
	if err != nil {
		return nil, err
	}
	return v.(*Collection), nil
}

func (l *Loader) load() (*Collection, error) {
	path := l.Path()
	now := l.now()

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		l.mu.Lock()
		l.current, l.checksum = nil, ""
		l.mu.Unlock()
		return &Collection{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	l.mu.Lock()
	if l.watcher != nil && l.current != nil && now.Sub(l.checkedAt) < l.ttl &&
		info.Size() == l.size && info.ModTime().Equal(l.modTime) {
		l.stats.Hits++
		c := l.current
		l.mu.Unlock()
		return c, nil
	}
	l.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	l.mu.Lock()
	l.stats.Reads++
	l.mu.Unlock()

	c, hit := l.cache.Get(checksum)
	if !hit {
		c = &Collection{}
		if err := json.Unmarshal(data, c); err != nil {
			l.logger.Warn("growth vector collection is corrupt, using empty collection",
				zap.String("path", path), zap.Error(err))
			c = &Collection{}
		}
		l.cache.Add(checksum, c)
	}

	l.mu.Lock()
	if hit {
		l.stats.Hits++
	} else {
		l.stats.Parses++
	}
	l.current = c
	l.checksum = checksum
	l.size = info.Size()
	l.modTime = info.ModTime()
	l.checkedAt = now
	l.mu.Unlock()

	return c, nil
}

// Checksum returns the SHA-256 of the last loaded content.
func (l *Loader) Checksum() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checksum
}

// Invalidate drops the stat fast path so the next Load re-reads and re-hashes.
// Parsed collections stay cached by checksum.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.checkedAt = time.Time{}
	l.mu.Unlock()
}

// Save atomically replaces the collection file. It is used only by explicit
// promotion and lifecycle calls.
func (l *Loader) Save(c *Collection) error {
	c.UpdatedAt = l.now().UTC()
	if err := l.store.WriteJSON(l.name, c); err != nil {
		return fmt.Errorf("save growth vectors: %w", err)
	}
	l.Invalidate()
	return nil
}

// Stats returns a snapshot of loader counters.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Watch invalidates the loader whenever the collection file changes on disk.
// It returns once watching has started; call StopWatching to release it.
func (l *Loader) Watch(ctx context.Context) error {
	w, err := watch.New(l.Path(), l.Invalidate, l.logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	l.watcher = w
	l.mu.Unlock()
	return nil
}

// StopWatching stops a watcher started by Watch.
func (l *Loader) StopWatching() {
	l.mu.Lock()
	w := l.watcher
	l.watcher = nil
	l.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}
