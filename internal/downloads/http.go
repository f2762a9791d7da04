package downloads

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/download-gate/internal/apperr"
	"github.com/yourusername/download-gate/internal/httpx"
)

const (
	// DefaultMaxUploadSize はアップロード 1 件あたりの上限です。
	DefaultMaxUploadSize int64 = 2 << 30

	maxFieldBytes = 64 << 10
)

// TokenChecker はダウンロード用トークンを検証します。
type TokenChecker interface {
	CheckDownloadToken(ctx context.Context, token string) (bool, error)
}

// HandlerOptions は HTTP ハンドラーの設定です。
type HandlerOptions struct {
	MaxUploadSize int64
	Logger        *slog.Logger
}

// Handlers はカタログ・管理・配信の各エンドポイントです。
type Handlers struct {
	svc           *Service
	tokens        TokenChecker
	maxUploadSize int64
	logger        *slog.Logger
}

// NewHandlers は Handlers を作成します。
func NewHandlers(svc *Service, tokens TokenChecker, opts HandlerOptions) *Handlers {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handlers{
		svc:           svc,
		tokens:        tokens,
		maxUploadSize: opts.MaxUploadSize,
		logger:        opts.Logger,
	}
}

// ListFiles は GET /api/files と GET /api/admin/files のハンドラーです。
func (h *Handlers) ListFiles(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context())
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "items": items})
}

// CreateLink は POST /api/admin/link のハンドラーです。
func (h *Handlers) CreateLink(c *gin.Context) {
	var in LinkInput
	if err := c.ShouldBindJSON(&in); err != nil {
		httpx.Fail(c, http.StatusBadRequest, "リクエストの形式が正しくありません")
		return
	}
	item, err := h.svc.CreateLink(c.Request.Context(), in)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "item": item})
}

// Upload は POST /api/admin/upload のハンドラーです。
// multipart をストリームで読み、file パートは一時領域を経由せず blob ストアに書きます。
func (h *Handlers) Upload(c *gin.Context) {
	if !strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		httpx.Fail(c, http.StatusBadRequest, "アップロード形式が正しくありません")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)

	reader, err := c.Request.MultipartReader()
	if err != nil {
		httpx.Fail(c, http.StatusBadRequest, "アップロード形式が正しくありません")
		return
	}

	ctx := c.Request.Context()
	var (
		key, originalName string
		size              int64
		meta              FileMeta
	)
	fail := func(err error) {
		h.svc.DiscardUpload(context.WithoutCancel(ctx), key)
		httpx.RespondError(c, h.logger, classifyUploadError(err))
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fail(apperr.Wrap(err, apperr.KindValidation, "アップロード形式が正しくありません"))
			return
		}

		switch field := part.FormName(); {
		case field == "file" && key == "":
			originalName = partFilename(part.Header.Get("Content-Disposition"))
			key, size, err = h.svc.StoreUpload(ctx, originalName, part)
			if err != nil {
				key = ""
				part.Close()
				fail(err)
				return
			}
		case field == "name", field == "description", field == "badge", field == "version", field == "arch":
			value, err := readField(part)
			if err != nil {
				part.Close()
				fail(err)
				return
			}
			meta.set(field, value)
		}
		part.Close()
	}

	if key == "" {
		httpx.RespondError(c, h.logger, apperr.Wrap(ErrNoFile, apperr.KindValidation, "ファイルが選択されていません"))
		return
	}

	item, err := h.svc.RegisterUpload(ctx, key, originalName, size, meta)
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "item": item})
}

// DeleteItem は DELETE /api/admin/files/:id のハンドラーです。
func (h *Handlers) DeleteItem(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Download は GET /api/download/:filename?token= のハンドラーです。
func (h *Handlers) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		httpx.Fail(c, http.StatusUnauthorized, "認証されていません")
		return
	}
	ok, err := h.tokens.CheckDownloadToken(c.Request.Context(), token)
	if err != nil {
		httpx.RespondError(c, h.logger, apperr.Wrap(err, apperr.KindInternal, "token check failed"))
		return
	}
	if !ok {
		h.svc.observeDownload("unauthorized")
		httpx.Fail(c, http.StatusUnauthorized, "トークンが無効か期限切れです")
		return
	}

	dl, err := h.svc.Open(c.Request.Context(), c.Param("filename"))
	if err != nil {
		httpx.RespondError(c, h.logger, err)
		return
	}
	defer dl.Object.Close()

	c.Header("Content-Disposition", attachmentDisposition(dl.Item.DownloadName()))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, dl.Object.Size, dl.Object.ContentType, dl.Object, nil)
}

func (m *FileMeta) set(field, value string) {
	switch field {
	case "name":
		m.Name = value
	case "description":
		m.Description = value
	case "badge":
		m.Badge = value
	case "version":
		m.Version = value
	case "arch":
		m.Arch = value
	}
}

// partFilename はヘッダーの filename をそのまま取り出します。
// multipart.Part.FileName はディレクトリ部分を落とすため使いません。
func partFilename(disposition string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func readField(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxFieldBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxFieldBytes {
		return "", apperr.New(apperr.KindValidation, "入力項目が長すぎます")
	}
	return strings.TrimSpace(string(data)), nil
}

// classifyUploadError は本文の上限超過を他の分類より優先して 413 にします。
func classifyUploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &apperr.Error{Kind: apperr.KindTooLarge, Message: "ファイルサイズが上限を超えています", Err: err}
	}
	return err
}
