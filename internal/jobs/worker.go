package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

func (m *Manager) handleBlobDelete(ctx context.Context, task *asynq.Task) error {
	var payload BlobDeletePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Key == "" {
		return fmt.Errorf("missing key in payload: %w", asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	attempt := retried + 1
	if err := m.store.MarkRunning(ctx, payload.Key, attempt); err != nil {
		m.logger.Warn("cleanup record update failed", "key", payload.Key, "err", err)
	}

	if err := m.blobs.Delete(ctx, payload.Key); err != nil {
		if recErr := m.store.MarkFailed(ctx, payload.Key, err); recErr != nil {
			m.logger.Warn("cleanup record update failed", "key", payload.Key, "err", recErr)
		}
		m.logger.Warn("blob cleanup attempt failed", "key", payload.Key, "attempt", attempt, "err", err)
		m.observe("failed")
		return err
	}

	if err := m.store.MarkDone(ctx, payload.Key); err != nil {
		m.logger.Warn("cleanup record update failed", "key", payload.Key, "err", err)
	}
	m.logger.Info("blob cleanup completed", "key", payload.Key, "attempt", attempt)
	m.observe("deleted")
	return nil
}

// asynqLogger は asynq の内部ログを slog に流します。
type asynqLogger struct {
	l *slog.Logger
}

func newAsynqLogger(l *slog.Logger) asynq.Logger {
	return &asynqLogger{l: l.With("component", "asynq")}
}

func (a *asynqLogger) Debug(args ...any) { a.l.Debug(fmt.Sprint(args...)) }
func (a *asynqLogger) Info(args ...any)  { a.l.Info(fmt.Sprint(args...)) }
func (a *asynqLogger) Warn(args ...any)  { a.l.Warn(fmt.Sprint(args...)) }
func (a *asynqLogger) Error(args ...any) { a.l.Error(fmt.Sprint(args...)) }
func (a *asynqLogger) Fatal(args ...any) { a.l.Error(fmt.Sprint(args...)) }
