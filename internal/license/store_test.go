package license

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() Record {
	expires := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	return Record{
		Key:             "KEY-1234-ABCD",
		Status:          StatusActive,
		ExpiresAt:       &expires,
		SiteCount:       1,
		MaxSites:        3,
		LastValidatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "license.dat")
	store := NewFileStore(path, []byte("test-secret"), nil)

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoRecord, "fresh store should have no record")

	rec := testRecord()
	require.NoError(t, store.Save(ctx, rec))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.Key, loaded.Key)
	assert.Equal(t, rec.Status, loaded.Status)
	assert.Equal(t, rec.MaxSites, loaded.MaxSites)
	require.NotNil(t, loaded.ExpiresAt)
	assert.True(t, rec.ExpiresAt.Equal(*loaded.ExpiresAt))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStoreDetectsTampering(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "license.dat")
	store := NewFileStore(path, []byte("test-secret"), nil)
	require.NoError(t, store.Save(ctx, testRecord()))

	// Flip the status by hand; the signature no longer matches.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored storedRecord
	require.NoError(t, json.Unmarshal(data, &stored))
	stored.Record.Status = StatusGrace
	stored.Record.ExpiresAt = nil
	tampered, err := json.Marshal(stored)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, tampered, 0600))

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoRecord, "tampered record must load as no record")
}

func TestFileStoreUnparseableFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "license.dat")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))

	store := NewFileStore(path, []byte("test-secret"), nil)
	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestFileStoreClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "license.dat")
	store := NewFileStore(path, []byte("test-secret"), nil)

	require.NoError(t, store.Save(ctx, testRecord()))
	require.NoError(t, store.Clear(ctx))
	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoRecord)

	// Clearing an already-empty store is not an error.
	require.NoError(t, store.Clear(ctx))
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "license.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)

	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoRecord)

	rec := testRecord()
	require.NoError(t, store.Save(ctx, rec))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.Key, loaded.Key)
	assert.Equal(t, rec.Status, loaded.Status)

	// Save again overwrites the single row.
	rec.Status = StatusGrace
	require.NoError(t, store.Save(ctx, rec))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusGrace, loaded.Status)

	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoRecord)
}
