package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/download-gate/internal/apperr"
)

// ErrNotConfigured はゲートのパスワードが未設定のときに返ります。
var ErrNotConfigured = errors.New("auth: gate secret is not configured")

// ChallengeVerifier は外部の認証チャレンジ（Turnstile など）を検証します。
// 検証できなかった場合は必ず false を返し、エラーを外に出しません。
type ChallengeVerifier interface {
	Verify(ctx context.Context, response, remoteIP string) bool
}

// Recorder はゲートの結果を観測します（メトリクス用）。
type Recorder interface {
	ObserveGate(scope, outcome string)
	ObserveTokenIssued(scope string)
}

// Outcome はパスワード送信に対する判定結果です。
type Outcome string

const (
	OutcomeAccepted          Outcome = "accepted"
	OutcomeChallengeRequired Outcome = "challenge_required"
	OutcomeChallengeFailed   Outcome = "challenge_failed"
	OutcomeWrongPassword     Outcome = "wrong_password"
)

// Submission はクライアントから送られた 1 回分の入力です。
type Submission struct {
	Password          string
	ChallengeResponse string
	ClientID          string
}

// Result はゲートの判定です。
type Result struct {
	Outcome        Outcome
	Token          string
	RequireCaptcha bool
	FailedAttempts int64
}

// Success はトークンが発行されたかどうかを返します。
func (r *Result) Success() bool {
	return r != nil && r.Outcome == OutcomeAccepted
}

// GateConfig はゲート 1 つ分の設定です。
type GateConfig struct {
	Scope            Scope
	Secret           string
	ChallengeEnabled bool
	// Threshold が 0 以下なら MaxFailedAttempts を使います。
	Threshold int64
}

// Gate はパスワード照合・失敗回数・認証チャレンジ・トークン発行をまとめた状態機械です。
// 状態は (スコープ, クライアント) ごとの失敗回数だけで、ストアに保持します。
type Gate struct {
	cfg      GateConfig
	attempts *AttemptTracker
	tokens   *TokenStore
	verifier ChallengeVerifier
	recorder Recorder
	logger   *slog.Logger
}

// GateOption は Gate の設定を変更します。
type GateOption func(*Gate)

// WithVerifier は認証チャレンジの検証器を設定します。
func WithVerifier(v ChallengeVerifier) GateOption {
	return func(g *Gate) {
		g.verifier = v
	}
}

// WithRecorder は結果の観測先を設定します。
func WithRecorder(r Recorder) GateOption {
	return func(g *Gate) {
		g.recorder = r
	}
}

// WithGateLogger はロガーを設定します。
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate は Gate を作成します。
func NewGate(cfg GateConfig, attempts *AttemptTracker, tokens *TokenStore, opts ...GateOption) (*Gate, error) {
	if !cfg.Scope.Valid() {
		return nil, fmt.Errorf("unknown gate scope %q", cfg.Scope)
	}
	if attempts == nil || tokens == nil {
		return nil, errors.New("attempt tracker and token store are required")
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = MaxFailedAttempts
	}
	g := &Gate{
		cfg:      cfg,
		attempts: attempts,
		tokens:   tokens,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Scope はゲートのスコープを返します。
func (g *Gate) Scope() Scope {
	return g.cfg.Scope
}

// Configured はパスワードが設定されているかどうかを返します。
func (g *Gate) Configured() bool {
	return g.cfg.Secret != ""
}

// Submit は 1 回分のパスワード送信を判定します。
// 返すエラーは設定不備 (KindConfiguration) とストア障害 (KindInternal) だけで、
// パスワード違いやチャレンジ失敗は Result で表します。
func (g *Gate) Submit(ctx context.Context, sub Submission) (*Result, error) {
	scope := g.cfg.Scope
	if !g.Configured() {
		return nil, apperr.Wrap(ErrNotConfigured, apperr.KindConfiguration, notConfiguredMessage(scope))
	}

	count, err := g.attempts.Count(ctx, scope, sub.ClientID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to read attempts")
	}

	if g.cfg.ChallengeEnabled && count >= g.cfg.Threshold {
		response := strings.TrimSpace(sub.ChallengeResponse)
		if response == "" {
			return g.finish(&Result{Outcome: OutcomeChallengeRequired, RequireCaptcha: true, FailedAttempts: count}), nil
		}
		if g.verifier == nil || !g.verifier.Verify(ctx, response, sub.ClientID) {
			return g.finish(&Result{Outcome: OutcomeChallengeFailed, RequireCaptcha: true, FailedAttempts: count}), nil
		}
		// チャレンジ通過で回数はリセットする。この後のパスワード照合の成否には関係しない。
		if err := g.attempts.Reset(ctx, scope, sub.ClientID); err != nil {
			return nil, apperr.Wrap(err, apperr.KindInternal, "failed to reset attempts")
		}
	}

	if !secretMatches(g.cfg.Secret, sub.Password) {
		n, err := g.attempts.RecordFailure(ctx, scope, sub.ClientID)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindInternal, "failed to record attempt")
		}
		g.logger.Info("gate rejected password", "scope", scope, "client", sub.ClientID, "failed_attempts", n)
		return g.finish(&Result{
			Outcome:        OutcomeWrongPassword,
			RequireCaptcha: g.cfg.ChallengeEnabled && n >= g.cfg.Threshold,
			FailedAttempts: n,
		}), nil
	}

	if err := g.attempts.Reset(ctx, scope, sub.ClientID); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to reset attempts")
	}
	token, err := g.tokens.Issue(ctx, scope)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to issue token")
	}
	if g.recorder != nil {
		g.recorder.ObserveTokenIssued(string(scope))
	}
	return g.finish(&Result{Outcome: OutcomeAccepted, Token: token}), nil
}

func (g *Gate) finish(r *Result) *Result {
	if g.recorder != nil {
		g.recorder.ObserveGate(string(g.cfg.Scope), string(r.Outcome))
	}
	return r
}

// secretMatches は送信されたパスワードを設定値と比較します。
// 設定値が bcrypt ハッシュならハッシュとして照合します。
func secretMatches(secret, password string) bool {
	if password == "" || secret == "" {
		return false
	}
	if isBcryptHash(secret) {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(password)) == nil
	}
	// 長さの差で早期に抜けないよう、ダイジェスト同士を比較する
	want := sha256.Sum256([]byte(secret))
	got := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

func notConfiguredMessage(scope Scope) string {
	if scope == ScopeAdmin {
		return "管理者パスワードが設定されていません"
	}
	return "ダウンロードパスワードが設定されていません"
}
