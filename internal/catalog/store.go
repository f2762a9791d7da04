package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/yourusername/download-gate/internal/kv"
)

const (
	indexKey       = "downloads:index"
	seededKey      = "seeded"
	itemPrefix     = "downloads:item:"
	filenamePrefix = "downloads:filename:"

	listBatchSize = 100
)

// ErrNotFound は該当する項目がないときに返ります。
var ErrNotFound = errors.New("catalog: item not found")

// Store はカタログの永続化を担います。
//
// 項目本体・ファイル名索引・一覧順のインデックスは別キーで、書き込みはトランザクションではありません。
// インデックスの読み書きはプロセス内では直列化しますが、複数プロセス間では後勝ちです。
type Store struct {
	kv     kv.Store
	mu     sync.Mutex
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option は Store の設定を変更します。
type Option func(*Store)

// WithClock は作成日時に使う時計を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator は ID 生成を差し替えます。
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger はロガーを設定します。
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore は KV ストア上のカタログを作成します。
func NewStore(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:     store,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID は新しい項目 ID を返します。
func (s *Store) NewID() string {
	return s.newID()
}

// Now は作成日時に使う現在時刻を返します。
func (s *Store) Now() time.Time {
	return s.now()
}

// List は新しい順に全項目を返します。インデックスにあっても本体のない ID は読み飛ばします。
func (s *Store) List(ctx context.Context) ([]Item, error) {
	index, err := s.index(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(index))
	for _, batch := range lo.Chunk(index, listBatchSize) {
		keys := lo.Map(batch, func(id string, _ int) string { return itemKey(id) })
		values, err := s.kv.GetMany(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("load catalog items: %w", err)
		}
		for _, id := range batch {
			raw, ok := values[itemKey(id)]
			if !ok {
				continue
			}
			var item Item
			if err := json.Unmarshal([]byte(raw), &item); err != nil {
				s.logger.Warn("skipping unreadable catalog item", "id", id, "err", err)
				continue
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// Get は ID で項目を返します。
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	raw, ok, err := s.kv.Get(ctx, itemKey(id))
	if err != nil {
		return nil, fmt.Errorf("load catalog item: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	var item Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("decode catalog item %s: %w", id, err)
	}
	return &item, nil
}

// GetByFilename は保存キー（filename）で項目を返します。
func (s *Store) GetByFilename(ctx context.Context, filename string) (*Item, error) {
	if filename == "" {
		return nil, ErrNotFound
	}
	id, ok, err := s.kv.Get(ctx, filenameKey(filename))
	if err != nil {
		return nil, fmt.Errorf("resolve filename: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Insert は項目を保存し、インデックスの先頭に置きます。
func (s *Store) Insert(ctx context.Context, item Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode catalog item: %w", err)
	}
	if err := s.kv.Set(ctx, itemKey(item.ID), string(raw), 0); err != nil {
		return fmt.Errorf("store catalog item: %w", err)
	}
	if item.Type == KindFile {
		if err := s.kv.Set(ctx, filenameKey(item.Filename), item.ID, 0); err != nil {
			return fmt.Errorf("store filename index: %w", err)
		}
	}

	return s.updateIndex(ctx, func(index []string) []string {
		return append([]string{item.ID}, lo.Without(index, item.ID)...)
	})
}

// Delete は項目を削除し、削除した項目を返します。
func (s *Store) Delete(ctx context.Context, id string) (*Item, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Type == KindFile && item.Filename != "" {
		// 別の項目に付け替えられた filename は残す
		owner, ok, err := s.kv.Get(ctx, filenameKey(item.Filename))
		if err != nil {
			return nil, fmt.Errorf("resolve filename: %w", err)
		}
		if ok && owner == id {
			if err := s.kv.Delete(ctx, filenameKey(item.Filename)); err != nil {
				return nil, fmt.Errorf("delete filename index: %w", err)
			}
		}
	}
	if err := s.kv.Delete(ctx, itemKey(id)); err != nil {
		return nil, fmt.Errorf("delete catalog item: %w", err)
	}
	if err := s.updateIndex(ctx, func(index []string) []string {
		return lo.Without(index, id)
	}); err != nil {
		return nil, err
	}
	return item, nil
}

// EnsureSeeded はカタログが空のときだけ defaults を登録し、一度だけ実行されるよう印を残します。
func (s *Store) EnsureSeeded(ctx context.Context, defaults []Item) (bool, error) {
	_, seeded, err := s.kv.Get(ctx, seededKey)
	if err != nil {
		return false, fmt.Errorf("read seed marker: %w", err)
	}
	if seeded {
		return false, nil
	}

	index, err := s.index(ctx)
	if err != nil {
		return false, err
	}
	inserted := false
	if len(index) == 0 {
		for _, item := range defaults {
			item.ID = s.newID()
			item.CreatedAt = s.now().UTC()
			if err := s.Insert(ctx, item); err != nil {
				return false, fmt.Errorf("seed %q: %w", item.Name, err)
			}
			inserted = true
		}
	}

	if err := s.kv.Set(ctx, seededKey, "1", 0); err != nil {
		return false, fmt.Errorf("write seed marker: %w", err)
	}
	return inserted, nil
}

func (s *Store) updateIndex(ctx context.Context, fn func([]string) []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.index(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(fn(index))
	if err != nil {
		return fmt.Errorf("encode catalog index: %w", err)
	}
	if err := s.kv.Set(ctx, indexKey, string(raw), 0); err != nil {
		return fmt.Errorf("store catalog index: %w", err)
	}
	return nil
}

func (s *Store) index(ctx context.Context) ([]string, error) {
	raw, ok, err := s.kv.Get(ctx, indexKey)
	if err != nil {
		return nil, fmt.Errorf("load catalog index: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		s.logger.Warn("catalog index is unreadable, treating as empty", "err", err)
		return nil, nil
	}
	return ids, nil
}

func itemKey(id string) string {
	return itemPrefix + id
}

func filenameKey(filename string) string {
	return filenamePrefix + filename
}
