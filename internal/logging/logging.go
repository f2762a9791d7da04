// Package logging は環境変数から slog のロガーを組み立てます。
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config はロガーの設定です。
type Config struct {
	Level        slog.Level
	Format       string // "text" または "json"
	File         string // 空ならファイル出力なし
	AlsoStderr   bool
	MaxSizeMB    int
	MaxBackups   int
	SetAsDefault bool
}

func DefaultConfig() Config {
	return Config{
		Level:      slog.LevelInfo,
		Format:     "text",
		AlsoStderr: true,
		MaxSizeMB:  50,
		MaxBackups: 3,
	}
}

// NewConfigFromEnv は LOG_* 環境変数を読みます。
func NewConfigFromEnv() Config {
	return ConfigFromLookup(os.Getenv)
}

// ConfigFromLookup は任意の参照関数から設定を読みます。
func ConfigFromLookup(getenv func(string) string) Config {
	cfg := DefaultConfig()

	cfg.Level = ParseLevel(getenv("LOG_LEVEL"))

	switch strings.ToLower(getenv("LOG_FORMAT")) {
	case "json":
		cfg.Format = "json"
	default:
		cfg.Format = "text"
	}

	cfg.File = strings.TrimSpace(getenv("LOG_FILE"))
	cfg.AlsoStderr = envBool(getenv("LOG_STDERR"), true)
	cfg.MaxSizeMB = envInt(getenv("LOG_MAX_SIZE_MB"), cfg.MaxSizeMB)
	cfg.MaxBackups = envInt(getenv("LOG_MAX_BACKUPS"), cfg.MaxBackups)
	cfg.SetAsDefault = true
	return cfg
}

// ParseLevel はレベル名を slog.Level に変換します。不明な値は Info です。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	switch strings.ToLower(s) {
	case "1", "true", "t", "yes", "y":
		return true
	case "0", "false", "f", "no", "n":
		return false
	default:
		return def
	}
}

func envInt(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// MultiHandler は複数の slog.Handler に同じレコードを流します。
type MultiHandler struct{ hs []slog.Handler }

func (m MultiHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range m.hs {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (m MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.hs {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		out[i] = h.WithAttrs(attrs)
	}
	return MultiHandler{hs: out}
}

func (m MultiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		out[i] = h.WithGroup(name)
	}
	return MultiHandler{hs: out}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New は cfg からロガーを作成します。返す io.Closer はログファイルを閉じます。
func New(cfg Config) (*slog.Logger, io.Closer) {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg Config, stderr io.Writer) (*slog.Logger, io.Closer) {
	handlers := make([]slog.Handler, 0, 2)
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		closer = rotator
		handlers = append(handlers, newHandler(rotator, cfg))
	}
	if cfg.AlsoStderr || len(handlers) == 0 {
		handlers = append(handlers, newHandler(stderr, cfg))
	}

	var h slog.Handler
	if len(handlers) == 1 {
		h = handlers[0]
	} else {
		h = MultiHandler{hs: handlers}
	}

	l := slog.New(h)
	if cfg.SetAsDefault {
		slog.SetDefault(l)
	}
	return l, closer
}

func newHandler(w io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Discard は何も出力しないロガーです。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
