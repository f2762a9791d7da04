package auth

import "time"

// Scope はどちらのゲートに対する操作かを表します。
// スコープごとに失敗回数とトークンの名前空間は完全に独立しています。
type Scope string

const (
	ScopeDownload Scope = "download"
	ScopeAdmin    Scope = "admin"
)

const (
	// MaxFailedAttempts は認証チャレンジを要求し始める連続失敗回数です。
	MaxFailedAttempts = 3

	DownloadTokenTTL = time.Hour
	AdminTokenTTL    = 2 * time.Hour
	FailedAttemptTTL = time.Hour
)

// Valid は既知のスコープかどうかを返します。
func (s Scope) Valid() bool {
	return s == ScopeDownload || s == ScopeAdmin
}

func (s Scope) tokenTTL() time.Duration {
	if s == ScopeAdmin {
		return AdminTokenTTL
	}
	return DownloadTokenTTL
}
