package vectors

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/boshu2/driftwatch/internal/storage"
	"github.com/boshu2/driftwatch/internal/types"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newLoader(t *testing.T, clock *fakeClock) (*Loader, *storage.FileStorage) {
	t.Helper()
	store := storage.NewFileStorage(storage.WithBaseDir(t.TempDir()))
	require.NoError(t, store.Init())
	l, err := NewLoader(store, 4, WithLoaderClock(clock.Now))
	require.NoError(t, err)
	return l, store
}

func sampleCollection() *Collection {
	return &Collection{
		Vectors: []types.GrowthVector{
			{ID: "gv-1", Type: "process", Description: "verify before claiming done", Weight: 0.8, ValidationStatus: types.StatusValidated},
			{ID: "gv-2", Type: "process", Description: "draft idea", Weight: 0.4, ValidationStatus: types.StatusCandidate},
		},
		PriorityQueue: PriorityQueue{High: []string{"gv-1"}},
	}
}

func TestNewLoader_RequiresStorage(t *testing.T) {
	_, err := NewLoader(nil, 4)
	assert.ErrorIs(t, err, ErrNoStorage)
}

func TestLoader_MissingFile(t *testing.T) {
	l, _ := newLoader(t, &fakeClock{t: time.Now()})
	c, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, c.Vectors)
}

func TestLoader_CorruptFile(t *testing.T) {
	l, _ := newLoader(t, &fakeClock{t: time.Now()})
	require.NoError(t, os.WriteFile(l.Path(), []byte("{not json"), 0600))

	c, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, c.Vectors)
}

func TestLoader_UnchangedFileIsCacheHit(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, _ := newLoader(t, clock)
	ctx := context.Background()

	require.NoError(t, l.Save(sampleCollection()))
	first, err := l.Load(ctx)
	require.NoError(t, err)
	require.Len(t, first.Vectors, 2)
	assert.Equal(t, 1, l.Stats().Parses)

	require.NoError(t, l.Watch(ctx))
	defer l.StopWatching()

	// Watched and inside the freshness window: no read at all.
	second, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, l.Stats().Reads)

	// Past the window: re-read and re-hash, but the checksum matches.
	clock.Advance(time.Minute)
	third, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Same(t, first, third)
	st := l.Stats()
	assert.Equal(t, 2, st.Reads)
	assert.Equal(t, 1, st.Parses)
	assert.Equal(t, 2, st.Hits)
}

func TestLoader_ChangedContentReflectedImmediately(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, _ := newLoader(t, clock)
	ctx := context.Background()

	require.NoError(t, l.Save(sampleCollection()))
	_, err := l.Load(ctx)
	require.NoError(t, err)
	before := l.Checksum()

	updated := sampleCollection()
	updated.Vectors = append(updated.Vectors, types.GrowthVector{ID: "gv-3", ValidationStatus: types.StatusIntegrated})
	require.NoError(t, l.Save(updated))

	c, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, c.Vectors, 3)
	assert.NotEqual(t, before, l.Checksum())
	assert.Equal(t, 2, l.Stats().Parses)
}

func TestLoader_ExternalWriteChangesStat(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, _ := newLoader(t, clock)
	ctx := context.Background()

	require.NoError(t, l.Save(sampleCollection()))
	_, err := l.Load(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(l.Path(), []byte(`{"vectors":[]}`), 0600))
	c, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, c.Vectors, "size differs, so the stat fast path is skipped")
}

func TestLoader_UnwatchedSameStatRewriteIsRead(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, _ := newLoader(t, clock)
	ctx := context.Background()

	orig := []byte(`{"vectors":[{"id":"aaaa","validation_status":"validated"}]}`)
	require.NoError(t, os.WriteFile(l.Path(), orig, 0600))
	info, err := os.Stat(l.Path())
	require.NoError(t, err)

	c, err := l.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "aaaa", c.Vectors[0].ID)

	// Same size and mtime, well inside the freshness window.
	same := []byte(`{"vectors":[{"id":"bbbb","validation_status":"validated"}]}`)
	require.NoError(t, os.WriteFile(l.Path(), same, 0600))
	require.NoError(t, os.Chtimes(l.Path(), info.ModTime(), info.ModTime()))
	clock.Advance(time.Second)

	c, err = l.Load(ctx)
	require.NoError(t, err)
	require.Len(t, c.Vectors, 1)
	assert.Equal(t, "bbbb", c.Vectors[0].ID)
	assert.Equal(t, 2, l.Stats().Reads)
}

func TestLoader_InjectableFilter(t *testing.T) {
	c := sampleCollection()
	got := c.Injectable()
	require.Len(t, got, 1)
	assert.Equal(t, "gv-1", got[0].ID)

	v, ok := c.Find("gv-2")
	assert.True(t, ok)
	assert.Equal(t, "draft idea", v.Description)
}

func TestLoader_CloneIsIndependent(t *testing.T) {
	c := sampleCollection()
	cp := c.Clone()
	cp.Vectors[0].Weight = 0
	cp.PriorityQueue.High[0] = "changed"
	assert.Equal(t, 0.8, c.Vectors[0].Weight)
	assert.Equal(t, "gv-1", c.PriorityQueue.High[0])
}

func TestLoader_WatchInvalidatesOnSameStatRewrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l, _ := newLoader(t, clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orig := []byte(`{"vectors":[{"id":"aaaa","validation_status":"validated"}]}`)
	require.NoError(t, os.WriteFile(l.Path(), orig, 0600))
	info, err := os.Stat(l.Path())
	require.NoError(t, err)

	c, err := l.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "aaaa", c.Vectors[0].ID)

	require.NoError(t, l.Watch(ctx))
	defer l.StopWatching()

	// Same size and mtime: only the watcher can tell the content changed.
	same := []byte(`{"vectors":[{"id":"bbbb","validation_status":"validated"}]}`)
	require.NoError(t, os.WriteFile(l.Path(), same, 0600))
	require.NoError(t, os.Chtimes(l.Path(), info.ModTime(), info.ModTime()))

	require.Eventually(t, func() bool {
		c, err := l.Load(ctx)
		return err == nil && len(c.Vectors) == 1 && c.Vectors[0].ID == "bbbb"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLoader_CanceledContext(t *testing.T) {
	l, _ := newLoader(t, &fakeClock{t: time.Now()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
