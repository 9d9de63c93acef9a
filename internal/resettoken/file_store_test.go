package resettoken

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFileStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T, clock *fakeClock) Store {
		store, err := NewFileStore(filepath.Join(t.TempDir(), "reset-tokens.json"), WithClock(clock.Now))
		require.NoError(t, err)
		return store
	})
}

func TestFileStoreRequiresPath(t *testing.T) {
	_, err := NewFileStore("")
	require.Error(t, err)
}

func TestFileStoreMillisecondBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "tokens.json"), WithClock(clock.Now))
	require.NoError(t, err)

	issued := clock.Now()
	require.NoError(t, store.Put(ctx, Token{Token: "edge", Email: "a@example.com", CustomerID: "c1", IssuedAt: issued}))

	clock.Advance(DefaultTTL - time.Millisecond)
	_, err = store.Get(ctx, "edge")
	require.NoError(t, err)

	clock.Advance(time.Millisecond)
	_, err = store.Get(ctx, "edge")
	require.NoError(t, err)

	clock.Advance(time.Millisecond)
	_, err = store.Get(ctx, "edge")
	require.ErrorIs(t, err, ErrNotFound)
	require.Zero(t, store.Len())
}

func TestFileStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")

	first, err := NewFileStore(path, WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, Token{Token: "persisted", Email: "a@example.com", CustomerID: "gid://shopify/Customer/7", IssuedAt: clock.Now()}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.Contains(t, onDisk, "persisted")
	require.Equal(t, "a@example.com", onDisk["persisted"]["email"])
	require.Equal(t, "gid://shopify/Customer/7", onDisk["persisted"]["customerId"])
	require.EqualValues(t, clock.Now().UnixMilli(), onDisk["persisted"]["timestamp"])

	second, err := NewFileStore(path, WithClock(clock.Now))
	require.NoError(t, err)

	got, err := second.Get(ctx, "persisted")
	require.NoError(t, err)
	require.Equal(t, "a@example.com", got.Email)
}

func TestFileStoreSeesTokensFromOtherInstance(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "tokens.json")

	reader, err := NewFileStore(path, WithClock(clock.Now))
	require.NoError(t, err)
	writer, err := NewFileStore(path, WithClock(clock.Now))
	require.NoError(t, err)

	require.NoError(t, writer.Put(ctx, Token{Token: "shared", Email: "a@example.com", CustomerID: "c1", IssuedAt: clock.Now()}))

	got, err := reader.Get(ctx, "shared")
	require.NoError(t, err)
	require.Equal(t, "c1", got.CustomerID)
}

func TestFileStoreMalformedFile(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store, err := NewFileStore(path, WithLogger(zap.New(core)))
	require.NoError(t, err)
	require.Zero(t, store.Len())
	require.Equal(t, 1, logs.FilterMessage("ignoring malformed reset token file").Len())

	_, err = store.Get(ctx, "anything")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, Token{Token: "fresh", Email: "a@example.com", CustomerID: "c1", IssuedAt: time.Now()}))
	_, err = store.Get(ctx, "fresh")
	require.NoError(t, err)
}

func TestFileStoreMissingFile(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	require.Zero(t, store.Len())

	store.Load()
	require.Zero(t, store.Len())
}

func TestFileStoreSweepPersists(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "tokens.json")

	store, err := NewFileStore(path, WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, Token{Token: "old", Email: "a@example.com", CustomerID: "c1", IssuedAt: clock.Now()}))
	clock.Advance(30 * time.Minute)
	require.NoError(t, store.Put(ctx, Token{Token: "new", Email: "a@example.com", CustomerID: "c1", IssuedAt: clock.Now()}))
	clock.Advance(31 * time.Minute)

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]fileRecord
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.NotContains(t, onDisk, "old")
	require.Contains(t, onDisk, "new")
}

// blockedPath returns a path whose parent is a regular file, so every write fails.
func blockedPath(t *testing.T) string {
	t.Helper()
	parent := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0o600))
	return filepath.Join(parent, "tokens.json")
}

func TestFileStoreBestEffortDurability(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.ErrorLevel)

	store, err := NewFileStore(blockedPath(t), WithLogger(zap.New(core)))
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, Token{Token: "mem-only", Email: "a@example.com", CustomerID: "c1", IssuedAt: time.Now()}))
	require.Equal(t, 1, logs.FilterMessage("failed to persist reset tokens").Len())

	got, err := store.Get(ctx, "mem-only")
	require.NoError(t, err)
	require.Equal(t, "c1", got.CustomerID)

	require.NoError(t, store.Delete(ctx, "mem-only"))
}

func TestFileStoreStrictDurability(t *testing.T) {
	ctx := context.Background()

	store, err := NewFileStore(blockedPath(t), WithBestEffortDurability(false))
	require.NoError(t, err)

	err = store.Put(ctx, Token{Token: "strict", Email: "a@example.com", CustomerID: "c1", IssuedAt: time.Now()})
	require.ErrorIs(t, err, ErrPersist)

	_, err = store.Get(ctx, "strict")
	require.ErrorIs(t, err, ErrNotFound)
	require.Zero(t, store.Len())
}
