package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/download-gate/internal/kv"
)

func TestStoreLifecycle(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mem := kv.NewMemory(kv.WithClock(func() time.Time { return now }))
	store := NewStore(mem, time.Hour)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	require.NoError(t, store.Upsert(ctx, &Record{Key: "k", Status: StatusQueued}))
	require.NoError(t, store.MarkRunning(ctx, "k", 2))
	require.NoError(t, store.MarkFailed(ctx, "k", errors.New("boom")))

	record, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, record.Status)
	assert.Equal(t, 2, record.Attempts)
	assert.Equal(t, "boom", record.LastError)
	assert.Equal(t, now.Add(time.Hour), record.ExpiresAt)

	require.NoError(t, store.MarkDone(ctx, "k"))
	record, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, record.Status)
	assert.Empty(t, record.LastError)

	now = now.Add(time.Hour + time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestStoreUpdateRecreatesMissingRecord(t *testing.T) {
	store := NewStore(kv.NewMemory(), 0)
	ctx := context.Background()

	require.NoError(t, store.MarkRunning(ctx, "gone", 1))
	record, err := store.Get(ctx, "gone")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, record.Status)
}

func TestStoreMarkQueued(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore(kv.NewMemory(), 0)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.MarkQueued(ctx, "new", now))
	record, err := store.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, record.Status)

	require.NoError(t, store.MarkRunning(ctx, "k", 2))
	require.NoError(t, store.MarkFailed(ctx, "k", errors.New("boom")))
	created := now

	now = now.Add(time.Minute)
	require.NoError(t, store.MarkQueued(ctx, "k", now))
	record, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, record.Status)
	assert.Equal(t, 2, record.Attempts, "attempts survive requeue")
	assert.Equal(t, "boom", record.LastError)
	assert.Equal(t, created, record.CreatedAt)

	// 投入後にワーカーが先に更新した記録は上書きしない
	require.NoError(t, store.MarkDone(ctx, "k"))
	require.NoError(t, store.MarkQueued(ctx, "k", now))
	record, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, record.Status)
}
