// Package auth はダウンロード用・管理者用の 2 つのパスワードゲートと
// トークンによる認可を提供します。
package auth

import (
	"context"
	"log/slog"

	"github.com/yourusername/download-gate/internal/kv"
)

// ContextAdminTokenKey は RequireAdmin が検証済みトークンを保存するキーです。
const ContextAdminTokenKey = "auth.admin_token"

// Config は Manager の設定です。
type Config struct {
	DownloadPassword string
	AdminPassword    string
	ChallengeEnabled bool
	TrustRemoteAddr  bool
}

// Manager は 2 つのゲートとトークンストアをまとめ、HTTP ハンドラーを提供します。
type Manager struct {
	download *Gate
	admin    *Gate
	tokens   *TokenStore
	identity IdentityResolver
	logger   *slog.Logger
}

// Option は Manager の設定を変更します。
type Option func(*managerOptions)

type managerOptions struct {
	verifier ChallengeVerifier
	recorder Recorder
	logger   *slog.Logger
	tokens   []TokenOption
}

// WithChallengeVerifier は両ゲートで使う認証チャレンジ検証器を設定します。
func WithChallengeVerifier(v ChallengeVerifier) Option {
	return func(o *managerOptions) { o.verifier = v }
}

// WithMetrics は結果の観測先を設定します。
func WithMetrics(r Recorder) Option {
	return func(o *managerOptions) { o.recorder = r }
}

// WithLogger はロガーを設定します。
func WithLogger(logger *slog.Logger) Option {
	return func(o *managerOptions) { o.logger = logger }
}

// WithTokenOptions は内部の TokenStore に渡すオプションを追加します。
func WithTokenOptions(opts ...TokenOption) Option {
	return func(o *managerOptions) { o.tokens = append(o.tokens, opts...) }
}

// NewManager は認証マネージャーを作成します。
func NewManager(cfg Config, store kv.Store, opts ...Option) (*Manager, error) {
	o := managerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	attempts := NewAttemptTracker(store, FailedAttemptTTL)
	tokens := NewTokenStore(store, o.tokens...)
	gateOpts := []GateOption{
		WithVerifier(o.verifier),
		WithRecorder(o.recorder),
		WithGateLogger(o.logger),
	}

	download, err := NewGate(GateConfig{
		Scope:            ScopeDownload,
		Secret:           cfg.DownloadPassword,
		ChallengeEnabled: cfg.ChallengeEnabled,
	}, attempts, tokens, gateOpts...)
	if err != nil {
		return nil, err
	}
	admin, err := NewGate(GateConfig{
		Scope:            ScopeAdmin,
		Secret:           cfg.AdminPassword,
		ChallengeEnabled: cfg.ChallengeEnabled,
	}, attempts, tokens, gateOpts...)
	if err != nil {
		return nil, err
	}

	return &Manager{
		download: download,
		admin:    admin,
		tokens:   tokens,
		identity: IdentityResolver{TrustRemoteAddr: cfg.TrustRemoteAddr},
		logger:   o.logger,
	}, nil
}

// Identity はクライアント識別子の解決方法を返します。
func (m *Manager) Identity() IdentityResolver {
	return m.identity
}

// Tokens は内部の TokenStore を返します。
func (m *Manager) Tokens() *TokenStore {
	return m.tokens
}

// CheckDownloadToken はダウンロード用トークンを検証します。
func (m *Manager) CheckDownloadToken(ctx context.Context, token string) (bool, error) {
	return m.tokens.Check(ctx, ScopeDownload, token)
}
