package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/yourusername/download-gate/internal/kv"
)

// TokenStore はスコープ別の名前空間にベアラートークンを発行・検証します。
// 期限切れの判定はストアの TTL に任せます。
type TokenStore struct {
	store  kv.Store
	now    func() time.Time
	random io.Reader
}

// TokenOption は TokenStore の設定を変更します。
type TokenOption func(*TokenStore)

// WithTokenClock は発行時刻の記録に使う時計を差し替えます。
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenRandom は乱数源を差し替えます（テスト用）。
func WithTokenRandom(r io.Reader) TokenOption {
	return func(s *TokenStore) {
		if r != nil {
			s.random = r
		}
	}
}

// NewTokenStore は TokenStore を作成します。
func NewTokenStore(store kv.Store, opts ...TokenOption) *TokenStore {
	s := &TokenStore{
		store:  store,
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue は新しいトークンを発行して保存します。
func (s *TokenStore) Issue(ctx context.Context, scope Scope) (string, error) {
	if !scope.Valid() {
		return "", fmt.Errorf("unknown token scope %q", scope)
	}
	token, err := s.generate()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	issuedAt := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.store.Set(ctx, tokenKey(scope, token), issuedAt, scope.tokenTTL()); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

// Check はトークンがそのスコープで有効かどうかを返します。
func (s *TokenStore) Check(ctx context.Context, scope Scope, token string) (bool, error) {
	if token == "" || !scope.Valid() {
		return false, nil
	}
	_, ok, err := s.store.Get(ctx, tokenKey(scope, token))
	if err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return ok, nil
}

// Revoke はトークンを削除します。存在しなくてもエラーにはなりません。
func (s *TokenStore) Revoke(ctx context.Context, scope Scope, token string) error {
	if token == "" || !scope.Valid() {
		return nil
	}
	if err := s.store.Delete(ctx, tokenKey(scope, token)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// TTL はスコープのトークン有効期間を返します。
func (s *TokenStore) TTL(scope Scope) time.Duration {
	return scope.tokenTTL()
}

func (s *TokenStore) generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func tokenKey(scope Scope, token string) string {
	return string(scope) + "_token:" + token
}
