package kv

import (
	"context"
	"log/slog"
	"time"
)

// Sweepable は期限切れエントリを一括削除できるストアです。
type Sweepable interface {
	Sweep(ctx context.Context) (int, error)
}

// SweepOption は Sweeper の設定を変更します。
type SweepOption func(*Sweeper)

// WithSweepLogger はロガーを設定します。
func WithSweepLogger(logger *slog.Logger) SweepOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSweepInterval は実行間隔を設定します。
func WithSweepInterval(interval time.Duration) SweepOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSweepObserver は各実行の削除件数を受け取るコールバックを設定します。
func WithSweepObserver(fn func(removed int)) SweepOption {
	return func(s *Sweeper) {
		s.observe = fn
	}
}

// Sweeper はメモリストアの期限切れエントリを定期的に掃除するワーカーです。
// Start に渡したコンテキストがキャンセルされると停止します。
type Sweeper struct {
	store    Sweepable
	logger   *slog.Logger
	interval time.Duration
	observe  func(int)
}

// NewSweeper は Sweeper を作成します。既定の間隔は 10 分です。
func NewSweeper(store Sweepable, opts ...SweepOption) *Sweeper {
	s := &Sweeper{
		store:    store,
		logger:   slog.Default(),
		interval: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start は ctx が終了するまでブロックします。
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			started := time.Now()
			removed, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Error("kv_sweep_failed", "error", err)
				continue
			}
			s.logger.Debug("kv_sweep_completed",
				"removed", removed,
				"duration_ms", time.Since(started).Milliseconds(),
			)
		case <-ctx.Done():
			s.logger.Info("kv sweeper stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// RunOnce は 1 回だけ掃除を実行します。
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	removed, err := s.store.Sweep(ctx)
	if err != nil {
		return 0, err
	}
	if s.observe != nil {
		s.observe(removed)
	}
	return removed, nil
}
