package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSweepable struct {
	removed int
	err     error
	calls   int
}

func (s *stubSweepable) Sweep(context.Context) (int, error) {
	s.calls++
	return s.removed, s.err
}

func TestSweeperRunOnceReportsRemoved(t *testing.T) {
	store := &stubSweepable{removed: 3}
	var observed int
	sweeper := NewSweeper(store, WithSweepObserver(func(n int) { observed += n }))

	removed, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 3, observed)
}

func TestSweeperRunOncePropagatesError(t *testing.T) {
	sweeper := NewSweeper(&stubSweepable{err: errors.New("boom")})
	_, err := sweeper.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestSweeperStopsOnCancel(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := NewMemory(WithClock(clock.Now))
	require.NoError(t, store.Set(context.Background(), "k", "v", time.Millisecond))
	clock.Advance(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	sweeper := NewSweeper(store, WithSweepInterval(5*time.Millisecond))
	go func() { done <- sweeper.Start(ctx) }()

	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
