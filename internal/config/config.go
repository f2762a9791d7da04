// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins []string // CORS許可オリジン

	// ゲート設定
	DownloadPassword string // ダウンロード用パスワード（平文または bcrypt ハッシュ）
	AdminPassword    string // 管理者パスワード（平文または bcrypt ハッシュ）
	TrustRemoteAddr  bool   // プロキシヘッダーがないとき接続元アドレスを識別子に使う
	GateRatePerSec   float64
	GateRateBurst    int

	// Turnstile
	TurnstileEnabled   bool
	TurnstileSecretKey string
	TurnstileVerifyURL string
	TurnstileTimeout   time.Duration

	// ストア設定
	StoreBackend  string        // memory または redis
	RedisURL      string        // StoreBackend=redis のときの接続先
	SweepInterval time.Duration // memory バックエンドの期限切れ掃除間隔

	// ファイル設定
	UploadDir     string
	MaxUploadSize int64 // アップロード 1 件の最大サイズ（バイト）
	SeedDefaults  bool

	// ジョブ/キュー設定
	QueueRedisURL string // Asynq用Redis接続URL（空ならキューなし）

	MetricsEnabled bool
}

// Load は環境変数から設定を読み込みます。
// envFile が空なら .env.local（カレント、なければ親ディレクトリ）を読みます。
// プロセスの環境変数が常に優先されます。
func Load(envFile string) (*Config, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	return FromLookup(os.Getenv)
}

// FromLookup は任意の参照関数から設定を組み立てます。
func FromLookup(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}
	config := &Config{
		// サーバー設定
		Port:    e.str("PORT", "8080"),
		GinMode: e.str("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: splitList(e.str("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),

		// ゲート設定
		DownloadPassword: getenv("DOWNLOAD_PASSWORD"),
		AdminPassword:    getenv("ADMIN_PASSWORD"),
		TrustRemoteAddr:  e.boolean("TRUST_REMOTE_ADDR", false),
		GateRatePerSec:   e.float("GATE_RATE_PER_SECOND", 1),
		GateRateBurst:    e.integer("GATE_RATE_BURST", 5),

		// Turnstile
		TurnstileEnabled:   e.boolean("TURNSTILE_ENABLED", false),
		TurnstileSecretKey: getenv("TURNSTILE_SECRET_KEY"),
		TurnstileVerifyURL: e.str("TURNSTILE_VERIFY_URL", "https://challenges.cloudflare.com/turnstile/v0/siteverify"),
		TurnstileTimeout:   time.Duration(e.integer("TURNSTILE_TIMEOUT_SECONDS", 5)) * time.Second,

		// ストア設定
		StoreBackend:  strings.ToLower(e.str("STORE_BACKEND", BackendMemory)),
		RedisURL:      getenv("REDIS_URL"),
		SweepInterval: time.Duration(e.integer("SWEEP_INTERVAL_MINUTES", 10)) * time.Minute,

		// ファイル設定
		UploadDir:     e.str("UPLOAD_DIR", "./uploads"),
		MaxUploadSize: e.int64("MAX_UPLOAD_SIZE", 2<<30), // 2GiB
		SeedDefaults:  e.boolean("SEED_DEFAULTS", true),

		// ジョブ/キュー設定
		QueueRedisURL: getenv("QUEUE_REDIS_URL"),

		MetricsEnabled: e.boolean("METRICS_ENABLED", true),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadEnvFile は .env ファイルをプロセスの環境変数に反映します。既存の値は上書きしません。
// path が空なら .env.local（カレント、なければ親ディレクトリ）を探し、見つからなくてもエラーにしません。
// ロガーなど Config 以外の部品も同じファイルを読めるよう、Load より先に呼べます。
func LoadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}

	if err := godotenv.Load(".env.local"); err == nil {
		return nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return nil
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
	return nil
}

// Validate は設定の妥当性を検証します。
// パスワード未設定は起動を止めず、該当ルートだけが設定エラーを返します。
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when STORE_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, c.StoreBackend))
	}
	if c.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_SIZE must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL_MINUTES must be positive"))
	}
	if c.TurnstileTimeout <= 0 {
		errs = append(errs, errors.New("TURNSTILE_TIMEOUT_SECONDS must be positive"))
	}
	if c.GateRatePerSec <= 0 || c.GateRateBurst <= 0 {
		errs = append(errs, errors.New("GATE_RATE_PER_SECOND and GATE_RATE_BURST must be positive"))
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		errs = append(errs, errors.New("UPLOAD_DIR must not be empty"))
	}
	return errors.Join(errs...)
}

// Warnings は起動は可能だが注意が必要な設定を返します。
func (c *Config) Warnings() []string {
	var warnings []string
	if c.DownloadPassword == "" {
		warnings = append(warnings, "DOWNLOAD_PASSWORD is not set; /api/verify-password will return a configuration error")
	}
	if c.AdminPassword == "" {
		warnings = append(warnings, "ADMIN_PASSWORD is not set; admin login will return a configuration error")
	}
	if c.TurnstileEnabled && c.TurnstileSecretKey == "" {
		warnings = append(warnings, "TURNSTILE_ENABLED without TURNSTILE_SECRET_KEY; every challenge will fail")
	}
	return warnings
}

// LogValue は秘密情報を伏せた設定の要約を返します。
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("port", c.Port),
		slog.String("gin_mode", c.GinMode),
		slog.String("store_backend", c.StoreBackend),
		slog.String("redis_url", maskURL(c.RedisURL)),
		slog.String("queue_redis_url", maskURL(c.QueueRedisURL)),
		slog.String("upload_dir", c.UploadDir),
		slog.Int64("max_upload_size", c.MaxUploadSize),
		slog.String("download_password", mask(c.DownloadPassword)),
		slog.String("admin_password", mask(c.AdminPassword)),
		slog.Bool("turnstile_enabled", c.TurnstileEnabled),
		slog.Bool("trust_remote_addr", c.TrustRemoteAddr),
		slog.Bool("metrics_enabled", c.MetricsEnabled),
		slog.Any("cors_allowed_origins", c.CORSAllowedOrigins),
	)
}

func mask(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	return "****"
}

func maskURL(raw string) string {
	if raw == "" {
		return ""
	}
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	return raw[:scheme+3] + "****" + raw[at:]
}

func splitList(s string) []string {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string { return strings.TrimSpace(p) })
	return lo.Uniq(lo.Compact(parts))
}

type env struct {
	getenv func(string) string
}

// str は環境変数を取得し、存在しない場合はデフォルト値を返します。
func (e env) str(key, defaultValue string) string {
	value := e.getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// integer は環境変数を整数として取得します。
func (e env) integer(key string, defaultValue int) int {
	value, err := strconv.Atoi(e.getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func (e env) int64(key string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(e.getenv(key), 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func (e env) float(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(e.getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func (e env) boolean(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(e.getenv(key)))
	if err != nil {
		return defaultValue
	}
	return value
}
