// ABOUTME: Tests for session stores and the abort memory
// ABOUTME: Validates round-trips, per-key RMW serialization, and sqlite durability

package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "agent:main:main")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entry := &Entry{SessionID: "s1", ThinkLevel: "high", ChatType: "group"}
	require.NoError(t, store.Put(ctx, "agent:main:main", entry))

	got, err := store.Get(ctx, "agent:main:main")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "high", got.ThinkLevel)
	assert.Equal(t, "group", got.ChatType)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", &Entry{SessionID: "s1"}))

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	got.SessionID = "mutated"

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "s1", again.SessionID)
}

func TestMemoryStore_UpdateSerializesPerKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "k", func(e *Entry) error {
				e.QueueCap++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, workers, got.QueueCap, "no lost updates under concurrent RMW")
}

func TestMemoryStore_UpdateErrorAbandonsWrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Update(ctx, "k", func(e *Entry) error {
		e.SessionID = "should-not-persist"
		return assert.AnError
	})
	assert.Error(t, err)

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	entry := &Entry{
		SessionID:      "s1",
		ThinkLevel:     "medium",
		ModelOverride:  "anthropic/claude-sonnet-4",
		QueueMode:      "collect",
		QueueDebounce:  1500 * time.Millisecond,
		QueueCap:       4,
		QueueDrop:      "drop-oldest",
		AbortedLastRun: true,
	}
	require.NoError(t, store.Put(ctx, "agent:main:main", entry))

	got, err := store.Get(ctx, "agent:main:main")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "collect", got.QueueMode)
	assert.Equal(t, 1500*time.Millisecond, got.QueueDebounce)
	assert.Equal(t, 4, got.QueueCap)
	assert.True(t, got.AbortedLastRun)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "k", &Entry{SessionID: "persisted"}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.SessionID)
}

func TestSQLiteStore_UpdateCreatesEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	got, err := store.Update(ctx, "k", func(e *Entry) error {
		e.SessionID = "fresh"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.SessionID)

	stored, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.SessionID)
}

func TestSQLiteStore_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k", &Entry{SessionID: "s"}))
	require.NoError(t, store.Delete(ctx, "k"))

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is fine
	assert.NoError(t, store.Delete(ctx, "k"))
}

func TestAbortMemory_MarkCheckClears(t *testing.T) {
	mem := NewAbortMemory(time.Minute, 10)
	mem.Mark("abort-key")

	assert.True(t, mem.Check("abort-key"))
	assert.False(t, mem.Check("abort-key"), "check consumes the marker")
}

func TestAbortMemory_TTLExpiry(t *testing.T) {
	mem := NewAbortMemory(10*time.Millisecond, 10)
	mem.Mark("abort-key")

	time.Sleep(20 * time.Millisecond)
	assert.False(t, mem.Check("abort-key"))
}

func TestAbortMemory_EvictsOldest(t *testing.T) {
	mem := NewAbortMemory(time.Minute, 2)
	mem.Mark("a")
	mem.Mark("b")
	mem.Mark("c")

	assert.False(t, mem.Check("a"), "oldest key evicted at capacity")
	assert.True(t, mem.Check("b"))
	assert.True(t, mem.Check("c"))
}

func TestAbortMemory_EmptyKeyIgnored(t *testing.T) {
	mem := NewAbortMemory(time.Minute, 10)
	mem.Mark("")

	assert.False(t, mem.Check(""))
}
