package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/download-gate/internal/kv"
)

const (
	recordKeyPrefix = "cleanup:"

	// DefaultRecordTTL は削除タスクの記録を残す期間です。
	DefaultRecordTTL = 24 * time.Hour
)

// ErrRecordNotFound は記録がないときに返ります。
var ErrRecordNotFound = errors.New("jobs: cleanup record not found")

// Store は削除タスクの状態を KV ストアに保存します。
type Store struct {
	kv  kv.Store
	ttl time.Duration
	now func() time.Time
}

// NewStore は Store を作成します。
func NewStore(store kv.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}
	return &Store{
		kv:  store,
		ttl: ttl,
		now: time.Now,
	}
}

// Get は記録を返します。
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, ErrRecordNotFound
	}
	raw, ok, err := s.kv.Get(ctx, recordKey(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRecordNotFound
	}
	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("decode cleanup record: %w", err)
	}
	return &record, nil
}

// Upsert は記録を保存します。
func (s *Store) Upsert(ctx context.Context, record *Record) error {
	if record == nil || record.Key == "" {
		return errors.New("record with key is required")
	}
	now := s.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(s.ttl)

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, recordKey(record.Key), string(payload), s.ttl)
}

// MarkQueued はタスクの投入を記録します。試行回数や直前のエラーは残します。
// since 以降に更新された記録（投入直後にワーカーが触ったもの）は変更しません。
func (s *Store) MarkQueued(ctx context.Context, key string, since time.Time) error {
	record, err := s.Get(ctx, key)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		record = &Record{Key: key}
	case err != nil:
		return err
	case !record.UpdatedAt.Before(since):
		return nil
	}
	record.Status = StatusQueued
	return s.Upsert(ctx, record)
}

// MarkRunning は試行開始を記録します。
func (s *Store) MarkRunning(ctx context.Context, key string, attempt int) error {
	return s.update(ctx, key, func(r *Record) {
		r.Status = StatusRunning
		r.Attempts = attempt
	})
}

// MarkDone は削除完了を記録します。
func (s *Store) MarkDone(ctx context.Context, key string) error {
	return s.update(ctx, key, func(r *Record) {
		r.Status = StatusSucceeded
		r.LastError = ""
	})
}

// MarkFailed は試行の失敗を記録します。
func (s *Store) MarkFailed(ctx context.Context, key string, cause error) error {
	return s.update(ctx, key, func(r *Record) {
		r.Status = StatusFailed
		if cause != nil {
			r.LastError = cause.Error()
		}
	})
}

// update は読み込み・変更・書き戻しを行います。記録が消えていれば作り直します。
func (s *Store) update(ctx context.Context, key string, mutate func(*Record)) error {
	record, err := s.Get(ctx, key)
	if errors.Is(err, ErrRecordNotFound) {
		record = &Record{Key: key, Status: StatusQueued}
	} else if err != nil {
		return err
	}
	mutate(record)
	return s.Upsert(ctx, record)
}

func recordKey(key string) string {
	return recordKeyPrefix + key
}
