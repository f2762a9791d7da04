// Package httpx は JSON エンベロープ {success, message, ...} の書き出しを共通化します。
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/download-gate/internal/apperr"
)

const internalErrorMessage = "サーバー内部でエラーが発生しました"

// Fail は success=false のエンベロープを書き出します。
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

// Abort は後続ハンドラーを止めて success=false を返します。ミドルウェア用です。
func Abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

// StatusFor はエラー分類に対応する HTTP ステータスを返します。
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindTooManyRequests:
		return http.StatusTooManyRequests
	case apperr.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// RespondError はエラーを分類に応じたステータスとメッセージに変換します。
// 内部エラーのメッセージは固定文言に置き換え、詳細はログにだけ残します。
func RespondError(c *gin.Context, logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		Fail(c, http.StatusRequestTimeout, "リクエストがキャンセルされました")
		return
	}

	kind := apperr.KindOf(err)
	status := StatusFor(kind)
	message := apperr.MessageOf(err, internalErrorMessage)

	switch kind {
	case apperr.KindInternal:
		message = internalErrorMessage
		if logger != nil {
			logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		}
	case apperr.KindConfiguration:
		if logger != nil {
			logger.Error("server misconfiguration", "path", c.FullPath(), "err", err)
		}
	}

	Fail(c, status, message)
}
