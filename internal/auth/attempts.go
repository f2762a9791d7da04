package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/download-gate/internal/kv"
)

const unknownClient = "unknown"

// AttemptTracker は (スコープ, クライアント) ごとの連続失敗回数を保持します。
// 書き込みのたびに TTL を延長するので、最後の失敗から ttl 経過すると自然に消えます。
type AttemptTracker struct {
	store kv.Store
	ttl   time.Duration
}

// NewAttemptTracker は AttemptTracker を作成します。ttl <= 0 なら FailedAttemptTTL を使います。
func NewAttemptTracker(store kv.Store, ttl time.Duration) *AttemptTracker {
	if ttl <= 0 {
		ttl = FailedAttemptTTL
	}
	return &AttemptTracker{store: store, ttl: ttl}
}

// RecordFailure は失敗回数を 1 増やし、新しい回数を返します。
func (t *AttemptTracker) RecordFailure(ctx context.Context, scope Scope, identity string) (int64, error) {
	n, err := t.store.Incr(ctx, attemptKey(scope, identity), t.ttl)
	if err != nil {
		return 0, fmt.Errorf("record failed attempt: %w", err)
	}
	return n, nil
}

// Count は現在の失敗回数を返します。記録がなければ 0 です。
func (t *AttemptTracker) Count(ctx context.Context, scope Scope, identity string) (int64, error) {
	value, ok, err := t.store.Get(ctx, attemptKey(scope, identity))
	if err != nil {
		return 0, fmt.Errorf("read failed attempts: %w", err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

// Reset は記録を削除します。
func (t *AttemptTracker) Reset(ctx context.Context, scope Scope, identity string) error {
	if err := t.store.Delete(ctx, attemptKey(scope, identity)); err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return nil
}

func attemptKey(scope Scope, identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = unknownClient
	}
	return "failed:" + string(scope) + ":" + identity
}
