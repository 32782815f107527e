package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boshu2/driftwatch/internal/config"
)

// backends runs fn against every persistent backend.
func backends(t *testing.T, fn func(t *testing.T, open func() Store)) {
	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "memory.db")
		fn(t, func() Store {
			s, err := NewSQLiteStore(path)
			require.NoError(t, err)
			return s
		})
	})
	t.Run("index", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "memory.jsonl")
		fn(t, func() Store {
			s, err := NewIndexStore(path)
			require.NoError(t, err)
			return s
		})
	})
}

// tick makes successive stores strictly ordered in time.
func tick(s Store, at time.Time) {
	switch st := s.(type) {
	case *SQLiteStore:
		st.now = func() time.Time { return at }
	case *IndexStore:
		st.now = func() time.Time { return at }
	}
}

func TestStoreAndSearch(t *testing.T) {
	backends(t, func(t *testing.T, open func() Store) {
		ctx := context.Background()
		s := open()
		defer s.Close()

		base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
		tick(s, base)
		_, err := s.Store(ctx, "deployment verification failed twice", map[string]string{MetaType: "tension"})
		require.NoError(t, err)
		tick(s, base.Add(time.Minute))
		_, err = s.Store(ctx, "deployment verification retried and succeeded after backoff", map[string]string{MetaType: "heartbeat_decision"})
		require.NoError(t, err)
		tick(s, base.Add(2*time.Minute))
		_, err = s.Store(ctx, "calendar conflict on friday", map[string]string{MetaType: "tension"})
		require.NoError(t, err)

		got, err := s.Search(ctx, "deployment backoff", SearchOptions{Limit: 5})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Contains(t, got[0].Content, "backoff", "higher term count ranks first")
		assert.Equal(t, 2, got[0].Score)

		got, err = s.Search(ctx, "deployment", SearchOptions{Type: "tension"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "tension", got[0].Metadata[MetaType])

		got, err = s.Search(ctx, "", SearchOptions{Limit: 2, Sort: SortRecent})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "calendar conflict on friday", got[0].Content)

		got, err = s.Search(ctx, "nothing matches", SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestTag_FiltersByAgent(t *testing.T) {
	backends(t, func(t *testing.T, open func() Store) {
		ctx := context.Background()
		s := open()
		defer s.Close()

		base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
		tick(s, base)
		_, err := Tag(s, "alpha").Store(ctx, "Decision: wait", map[string]string{MetaType: "heartbeat_decision"})
		require.NoError(t, err)
		tick(s, base.Add(time.Minute))
		_, err = Tag(s, "beta").Store(ctx, "Decision: deploy", map[string]string{MetaType: "heartbeat_decision"})
		require.NoError(t, err)
		tick(s, base.Add(2*time.Minute))
		_, err = Tag(s, "beta").Store(ctx, "Decision: rollback", map[string]string{MetaType: "heartbeat_decision", MetaAgent: "gamma"})
		require.NoError(t, err)

		got, err := s.Search(ctx, "", SearchOptions{Limit: 1, Sort: SortRecent, Agent: "alpha"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Decision: wait", got[0].Content)
		assert.Equal(t, "alpha", got[0].Metadata[MetaAgent])

		got, err = s.Search(ctx, "decision", SearchOptions{Agent: "beta"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Decision: deploy", got[0].Content)

		all, err := s.Search(ctx, "", SearchOptions{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestPersistsAcrossReopen(t *testing.T) {
	backends(t, func(t *testing.T, open func() Store) {
		ctx := context.Background()
		s := open()
		_, err := s.Store(ctx, "remember the retry lesson", nil)
		require.NoError(t, err)
		require.NoError(t, s.Close())

		reopened := open()
		defer reopened.Close()
		got, err := reopened.Search(ctx, "retry lesson", SearchOptions{})
		require.NoError(t, err)
		require.Len(t, got, 1)
	})
}

func TestStore_EmptyContent(t *testing.T) {
	backends(t, func(t *testing.T, open func() Store) {
		s := open()
		defer s.Close()
		_, err := s.Store(context.Background(), "  ", nil)
		assert.ErrorIs(t, err, ErrEmptyContent)
	})
}

func TestClosedStore(t *testing.T) {
	backends(t, func(t *testing.T, open func() Store) {
		s := open()
		require.NoError(t, s.Close())
		_, err := s.Store(context.Background(), "late", nil)
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestIndexStore_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")
	content := `{"id":"a","content":"valid retry note","created_at":"2026-01-01T00:00:00Z"}` + "\n{broken\n\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	s, err := NewIndexStore(path)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(config.MemoryConfig{Backend: "sqlite", Path: "memory.db"}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "memory.db"), s.(*SQLiteStore).Path())
	require.NoError(t, s.Close())

	s, err = Open(config.MemoryConfig{Backend: "index", Path: "memory.jsonl"}, dir)
	require.NoError(t, err)
	assert.IsType(t, &IndexStore{}, s)

	s, err = Open(config.MemoryConfig{Backend: "none"}, dir)
	require.NoError(t, err)
	assert.Equal(t, Nop{}, s)

	_, err = Open(config.MemoryConfig{Backend: "redis"}, dir)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
