// Package jobs はその場で削除できなかった blob を asynq キューで再試行します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	queueName = "cleanup"

	defaultConcurrency = 2
	defaultMaxRetry    = 10
)

// BlobDeleter は blob を削除します。存在しない blob の削除は成功扱いです。
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Recorder は削除タスクの結果を観測します。
type Recorder interface {
	ObserveBlobCleanup(result string)
}

// Config はキューの設定です。
type Config struct {
	RedisURL    string
	Concurrency int
	MaxRetry    int
}

// Manager はタスクの投入とワーカーの起動・停止を担います。
type Manager struct {
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    *Store
	blobs    BlobDeleter
	recorder Recorder
	maxRetry int
	logger   *slog.Logger
}

// Option は Manager の設定を変更します。
type Option func(*Manager)

// WithLogger はロガーを設定します。
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRecorder はメトリクスの記録先を設定します。
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// NewManager は Manager を初期化します。
func NewManager(cfg Config, blobs BlobDeleter, store *Store, opts ...Option) (*Manager, error) {
	if blobs == nil {
		return nil, errors.New("blob deleter is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = defaultMaxRetry
	}

	m := &Manager{
		client:   asynq.NewClient(opt),
		mux:      asynq.NewServeMux(),
		store:    store,
		blobs:    blobs,
		maxRetry: cfg.MaxRetry,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	m.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{queueName: 1},
		Logger:      newAsynqLogger(m.logger),
	})
	m.mux.HandleFunc(TaskTypeBlobDelete, m.handleBlobDelete)
	return m, nil
}

// Start はワーカーをバックグラウンドで起動します。シグナル処理は呼び出し側に任せます。
func (m *Manager) Start() error {
	if err := m.server.Start(m.mux); err != nil {
		return fmt.Errorf("start cleanup workers: %w", err)
	}
	return nil
}

// Shutdown はワーカーとクライアントを閉じます。
func (m *Manager) Shutdown() {
	m.server.Shutdown()
	if err := m.client.Close(); err != nil {
		m.logger.Warn("asynq client close failed", "err", err)
	}
}

// ScheduleBlobDelete は blob 削除タスクを投入します。同じキーのタスクが待機中なら重複させません。
func (m *Manager) ScheduleBlobDelete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("blob key is required")
	}
	body, err := json.Marshal(BlobDeletePayload{Key: key})
	if err != nil {
		return err
	}

	since := m.store.now().UTC()
	task := asynq.NewTask(TaskTypeBlobDelete, body, asynq.Queue(queueName))
	info, err := m.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(m.maxRetry),
		asynq.TaskID(TaskTypeBlobDelete+":"+key),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// 待機中または保管済みのタスクがある。記録はそのタスクの状態のまま残す
		m.logger.Info("blob cleanup already scheduled", "key", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue cleanup task: %w", err)
	}
	if err := m.store.MarkQueued(ctx, key, since); err != nil {
		m.logger.Warn("cleanup record update failed", "key", key, "err", err)
	}
	m.logger.Info("blob cleanup scheduled", "key", key, "task_id", info.ID)
	m.observe("scheduled")
	return nil
}

// Status は削除タスクの記録を返します。
func (m *Manager) Status(ctx context.Context, key string) (*Record, error) {
	return m.store.Get(ctx, key)
}

func (m *Manager) observe(result string) {
	if m.recorder != nil {
		m.recorder.ObserveBlobCleanup(result)
	}
}
