// Package downloads はカタログの公開・管理 API と、トークン付きのファイル配信を提供します。
package downloads

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/yourusername/download-gate/internal/apperr"
	"github.com/yourusername/download-gate/internal/catalog"
	"github.com/yourusername/download-gate/internal/storage"
)

const (
	defaultUploadName = "upload.bin"
	maxKeyAttempts    = 3
)

// BlobStore はファイル本体の保存先です。
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (*storage.Object, error)
	Delete(ctx context.Context, key string) error
}

// CleanupScheduler はその場で消せなかった blob の削除を後で再試行します。
type CleanupScheduler interface {
	ScheduleBlobDelete(ctx context.Context, key string) error
}

// Recorder はカタログ操作と配信の結果を観測します。
type Recorder interface {
	ObserveCatalogChange(action string)
	ObserveDownload(outcome string)
}

// LinkInput は外部リンク項目の作成内容です。
type LinkInput struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Badge       string `json:"badge"`
	Version     string `json:"version"`
	Arch        string `json:"arch"`
}

// FileMeta はアップロードに付随する表示用メタデータです。
type FileMeta struct {
	Name        string
	Description string
	Badge       string
	Version     string
	Arch        string
}

// Download は配信準備のできた blob です。呼び出し側が Object を Close します。
type Download struct {
	Item   *catalog.Item
	Object *storage.Object
}

// Service はカタログと blob ストアをまとめます。
type Service struct {
	catalog  *catalog.Store
	blobs    BlobStore
	cleanup  CleanupScheduler
	recorder Recorder
	validate *validator.Validate
	suffix   func() string
	logger   *slog.Logger
}

// Option は Service の設定を変更します。
type Option func(*Service)

// WithCleanupScheduler は blob 削除の再試行先を設定します。
func WithCleanupScheduler(s CleanupScheduler) Option {
	return func(svc *Service) { svc.cleanup = s }
}

// WithRecorder はメトリクスの記録先を設定します。
func WithRecorder(r Recorder) Option {
	return func(svc *Service) { svc.recorder = r }
}

// WithLogger はロガーを設定します。
func WithLogger(logger *slog.Logger) Option {
	return func(svc *Service) {
		if logger != nil {
			svc.logger = logger
		}
	}
}

// NewService は Service を作成します。
func NewService(cat *catalog.Store, blobs BlobStore, opts ...Option) *Service {
	svc := &Service{
		catalog:  cat,
		blobs:    blobs,
		validate: validator.New(),
		suffix:   shortID,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// List は公開用の一覧を新しい順に返します。
func (s *Service) List(ctx context.Context) ([]catalog.Item, error) {
	items, err := s.catalog.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to list catalog")
	}
	return items, nil
}

// CreateLink は外部リンク項目を追加します。
func (s *Service) CreateLink(ctx context.Context, in LinkInput) (*catalog.Item, error) {
	name := strings.TrimSpace(in.Name)
	link := strings.TrimSpace(in.URL)
	if name == "" || link == "" {
		return nil, apperr.New(apperr.KindValidation, "名前とリンクは必須です")
	}
	if err := s.validate.Var(link, "url"); err != nil {
		return nil, apperr.New(apperr.KindValidation, "リンクの形式が正しくありません")
	}

	item := catalog.Item{
		ID:          s.catalog.NewID(),
		Type:        catalog.KindLink,
		Name:        name,
		URL:         link,
		Description: strings.TrimSpace(in.Description),
		Badge:       strings.TrimSpace(in.Badge),
		Version:     strings.TrimSpace(in.Version),
		Arch:        strings.TrimSpace(in.Arch),
		CreatedAt:   s.catalog.Now().UTC(),
	}
	if err := s.catalog.Insert(ctx, item); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to insert link")
	}
	s.observeChange("link_created")
	return &item, nil
}

// StoreUpload は blob を保存し、その保存キーと書き込んだサイズを返します。
// 項目の登録は RegisterUpload で行います。
func (s *Service) StoreUpload(ctx context.Context, originalName string, body io.Reader) (string, int64, error) {
	if originalName == "" {
		originalName = defaultUploadName
	}
	now := s.catalog.Now()
	key := storage.ObjectKey(now, originalName)
	for attempt := 0; ; attempt++ {
		size, err := s.blobs.Put(ctx, key, body)
		if err == nil {
			return key, size, nil
		}
		// 同じミリ秒に同名のアップロードがあればキーをずらす。Put は ErrExists のとき body を読まない
		if !errors.Is(err, storage.ErrExists) || attempt >= maxKeyAttempts {
			return "", 0, err
		}
		key = storage.ObjectKeyWithSuffix(now, s.suffix(), originalName)
	}
}

// RegisterUpload は保存済み blob をカタログに登録します。失敗した場合は blob を削除します。
func (s *Service) RegisterUpload(ctx context.Context, key, originalName string, size int64, meta FileMeta) (*catalog.Item, error) {
	if originalName == "" {
		originalName = defaultUploadName
	}
	name := strings.TrimSpace(meta.Name)
	if name == "" {
		name = storage.StripExtension(originalName)
	}

	item := catalog.Item{
		ID:           s.catalog.NewID(),
		Type:         catalog.KindFile,
		Name:         name,
		Filename:     key,
		OriginalName: originalName,
		Storage:      catalog.StorageLocal,
		Size:         size,
		Description:  strings.TrimSpace(meta.Description),
		Badge:        strings.TrimSpace(meta.Badge),
		Version:      strings.TrimSpace(meta.Version),
		Arch:         strings.TrimSpace(meta.Arch),
		CreatedAt:    s.catalog.Now().UTC(),
	}
	if err := s.catalog.Insert(ctx, item); err != nil {
		s.DiscardUpload(context.WithoutCancel(ctx), key)
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to insert uploaded file")
	}
	s.observeChange("file_uploaded")
	return &item, nil
}

// DiscardUpload は登録に至らなかった blob を削除します。
func (s *Service) DiscardUpload(ctx context.Context, key string) {
	if key == "" {
		return
	}
	s.removeBlob(ctx, key)
}

// Delete は項目を削除し、保存ファイルがあれば blob も削除します。
// blob の削除に失敗してもカタログからは消えた状態で成功を返します。
func (s *Service) Delete(ctx context.Context, id string) error {
	removed, err := s.catalog.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return apperr.Wrap(err, apperr.KindNotFound, "指定された項目が見つかりません")
		}
		return apperr.Wrap(err, apperr.KindInternal, "failed to delete catalog item")
	}
	if removed.IsStoredFile() {
		s.removeBlob(ctx, removed.Filename)
	}
	s.observeChange("item_deleted")
	return nil
}

// Open はファイル名から項目を引き、blob を開きます。
// 項目なし・ファイル以外・blob なしはそれぞれ別のエラーで、いずれも NotFound 扱いです。
func (s *Service) Open(ctx context.Context, filename string) (*Download, error) {
	item, err := s.catalog.GetByFilename(ctx, filename)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.observeDownload("item_not_found")
			return nil, apperr.Wrap(ErrItemNotFound, apperr.KindNotFound, "ファイルが存在しません")
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to resolve filename")
	}
	if !item.IsStoredFile() {
		s.observeDownload("not_a_file")
		return nil, apperr.Wrap(ErrNotAFile, apperr.KindNotFound, "ファイルが存在しません")
	}

	obj, err := s.blobs.Open(ctx, item.Filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.observeDownload("blob_missing")
			return nil, apperr.Wrap(ErrBlobMissing, apperr.KindNotFound, "ファイルが見つかりません")
		}
		return nil, apperr.Wrap(err, apperr.KindInternal, "failed to open blob")
	}
	s.observeDownload("served")
	return &Download{Item: item, Object: obj}, nil
}

func (s *Service) removeBlob(ctx context.Context, key string) {
	err := s.blobs.Delete(ctx, key)
	if err == nil {
		return
	}
	s.logger.Warn("blob delete failed", "key", key, "err", err)
	if s.cleanup == nil {
		return
	}
	if err := s.cleanup.ScheduleBlobDelete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Error("blob delete could not be scheduled", "key", key, "err", err)
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (s *Service) observeChange(action string) {
	if s.recorder != nil {
		s.recorder.ObserveCatalogChange(action)
	}
}

func (s *Service) observeDownload(outcome string) {
	if s.recorder != nil {
		s.recorder.ObserveDownload(outcome)
	}
}
