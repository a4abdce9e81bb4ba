package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type storeFixture struct {
	store   Store
	advance func(d time.Duration)
}

func storeFixtures(t *testing.T, ttl time.Duration) map[string]func(t *testing.T) storeFixture {
	t.Helper()

	return map[string]func(t *testing.T) storeFixture{
		"sqlite": func(t *testing.T) storeFixture {
			store, err := OpenSQLite(t.TempDir(), ttl)
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })

			offset := time.Duration(0)
			store.now = func() time.Time { return time.Now().Add(offset) }
			return storeFixture{store: store, advance: func(d time.Duration) { offset += d }}
		},
		"memory": func(t *testing.T) storeFixture {
			store := NewMemoryStore(ttl)

			offset := time.Duration(0)
			store.now = func() time.Time { return time.Now().Add(offset) }
			return storeFixture{store: store, advance: func(d time.Duration) { offset += d }}
		},
	}
}

func newRecord(id string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        id,
		MediaPath: "/media/clip.mp4",
		Language:  "es",
		Status:    StatusQueued,
		Message:   "queued",
		StartedAt: now,
		UpdatedAt: now,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	for name, build := range storeFixtures(t, time.Hour) {
		build := build
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fx := build(t)
			ctx := context.Background()

			require.NoError(t, fx.store.Put(ctx, newRecord("job-1")))

			rec, err := fx.store.Get(ctx, "job-1")
			require.NoError(t, err)
			require.NotNil(t, rec)
			require.Equal(t, "/media/clip.mp4", rec.MediaPath)
			require.Equal(t, StatusQueued, rec.Status)
			require.Nil(t, rec.CompletedAt)

			// Updates overwrite in place.
			rec.Status = StatusCompleted
			rec.Progress = 100
			rec.Result = "/media/clip.srt"
			rec.Transcript = "hola mundo"
			now := time.Now().UTC()
			rec.CompletedAt = &now
			require.NoError(t, fx.store.Put(ctx, rec))

			updated, err := fx.store.Get(ctx, "job-1")
			require.NoError(t, err)
			require.Equal(t, StatusCompleted, updated.Status)
			require.Equal(t, "/media/clip.srt", updated.Result)
			require.Equal(t, "hola mundo", updated.Transcript)
			require.NotNil(t, updated.CompletedAt)
		})
	}
}

func TestStoreGetAbsent(t *testing.T) {
	t.Parallel()

	for name, build := range storeFixtures(t, time.Hour) {
		build := build
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fx := build(t)
			rec, err := fx.store.Get(context.Background(), "missing")
			require.NoError(t, err)
			require.Nil(t, rec)
		})
	}
}

func TestStoreTTLEviction(t *testing.T) {
	t.Parallel()

	for name, build := range storeFixtures(t, time.Hour) {
		build := build
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fx := build(t)
			ctx := context.Background()

			require.NoError(t, fx.store.Put(ctx, newRecord("job-1")))

			fx.advance(30 * time.Minute)
			rec, err := fx.store.Get(ctx, "job-1")
			require.NoError(t, err)
			require.NotNil(t, rec)

			// Retention runs from creation, regardless of status.
			fx.advance(31 * time.Minute)
			rec, err = fx.store.Get(ctx, "job-1")
			require.NoError(t, err)
			require.Nil(t, rec)
		})
	}
}

func TestStoreListActive(t *testing.T) {
	t.Parallel()

	for name, build := range storeFixtures(t, time.Hour) {
		build := build
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fx := build(t)
			ctx := context.Background()

			queued := newRecord("job-queued")
			processing := newRecord("job-processing")
			processing.Status = StatusProcessing
			done := newRecord("job-done")
			done.Status = StatusCompleted

			require.NoError(t, fx.store.Put(ctx, queued))
			require.NoError(t, fx.store.Put(ctx, processing))
			require.NoError(t, fx.store.Put(ctx, done))

			active, err := fx.store.ListActive(ctx)
			require.NoError(t, err)
			require.Len(t, active, 2)
			require.Contains(t, active, "job-queued")
			require.Contains(t, active, "job-processing")
		})
	}
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	for name, build := range storeFixtures(t, time.Hour) {
		build := build
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fx := build(t)
			ctx := context.Background()

			require.NoError(t, fx.store.Put(ctx, newRecord("job-1")))
			require.NoError(t, fx.store.Delete(ctx, "job-1"))

			rec, err := fx.store.Get(ctx, "job-1")
			require.NoError(t, err)
			require.Nil(t, rec)
		})
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	store, err := OpenSQLite(dir, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, newRecord("job-1")))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(dir, time.Hour)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Get(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "/media/clip.mp4", rec.MediaPath)
}

func TestMemoryStoreCloneIsolation(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	rec := newRecord("job-1")
	require.NoError(t, store.Put(ctx, rec))

	// Mutating the caller's copy must not leak into the store.
	rec.Status = StatusFailed

	stored, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, StatusQueued, stored.Status)
}
