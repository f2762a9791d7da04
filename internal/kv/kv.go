// Package kv はキー単位の TTL を持つキーバリューストアの抽象化です。
// ゲートの試行回数・トークン・カタログはすべてこの Store の上に実装します。
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotInteger は Incr の対象キーに整数以外が入っている場合に返ります。
var ErrNotInteger = errors.New("kv: value is not an integer")

// Store はバックエンド非依存のキーバリュー操作です。
// ttl <= 0 は有効期限なしを意味します。
type Store interface {
	// Get は値を返します。存在しないか期限切れの場合 ok=false です。
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// GetMany は存在するキーだけを含むマップを返します。
	GetMany(ctx context.Context, keys []string) (map[string]string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete は冪等です。
	Delete(ctx context.Context, key string) error
	// Incr は値を 1 増やし、ttl を設定し直して新しい値を返します。
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
