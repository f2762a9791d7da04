package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/download-gate/internal/config"
	"github.com/yourusername/download-gate/internal/httpx"
	"github.com/yourusername/download-gate/internal/jobs"
	"github.com/yourusername/download-gate/internal/kv"
	"github.com/yourusername/download-gate/internal/metrics"
	"github.com/yourusername/download-gate/internal/storage"
)

// storeSet はバックエンドに応じた KV ストアと付随するワーカーです。
type storeSet struct {
	kv      kv.Store
	sweeper *kv.Sweeper
	closer  func() error
}

func (s *storeSet) Close() {
	if s != nil && s.closer != nil {
		_ = s.closer()
	}
}

func setupStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*storeSet, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		client, err := kv.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Info("using redis store")
		store := kv.NewRedis(client)
		return &storeSet{kv: store, closer: store.Close}, nil
	case config.BackendMemory, "":
		mem := kv.NewMemory()
		logger.Warn("using in-memory store; state is lost on restart")
		return &storeSet{
			kv: mem,
			sweeper: kv.NewSweeper(mem,
				kv.WithSweepInterval(cfg.SweepInterval),
				kv.WithSweepLogger(logger),
				kv.WithSweepObserver(m.ObserveSweep),
			),
		}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// setupQueue は QUEUE_REDIS_URL が設定されているときだけ blob 削除キューを作ります。
func setupQueue(cfg *config.Config, blobs *storage.Local, store kv.Store, logger *slog.Logger, m *metrics.Metrics) (*jobs.Manager, error) {
	if cfg.QueueRedisURL == "" {
		return nil, nil
	}
	manager, err := jobs.NewManager(jobs.Config{RedisURL: cfg.QueueRedisURL}, blobs, jobs.NewStore(store, 0),
		jobs.WithLogger(logger),
		jobs.WithRecorder(m),
	)
	if err != nil {
		return nil, fmt.Errorf("setup cleanup queue: %w", err)
	}
	return manager, nil
}

// cleanupStatusHandler は blob 削除タスクの状態を返します。
func cleanupStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.Param("key"))
		if key == "" {
			httpx.Fail(c, http.StatusBadRequest, "key を指定してください")
			return
		}

		record, err := manager.Status(c.Request.Context(), key)
		if errors.Is(err, jobs.ErrRecordNotFound) {
			httpx.Fail(c, http.StatusNotFound, "指定された削除タスクは存在しません")
			return
		}
		if err != nil {
			httpx.Fail(c, http.StatusInternalServerError, "削除タスクの取得に失敗しました")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"task":    record,
		})
	}
}
