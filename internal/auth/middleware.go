package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/download-gate/internal/httpx"
)

const bearerPrefix = "Bearer "

// RequireAdmin は Authorization: Bearer <token> を管理者スコープで検証するミドルウェアです。
// トークンなしと無効・期限切れは別のメッセージの 401 を返します。
func (m *Manager) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			httpx.Abort(c, http.StatusUnauthorized, "認証が必要です")
			return
		}

		ok, err := m.tokens.Check(c.Request.Context(), ScopeAdmin, token)
		if err != nil {
			m.logger.Error("admin token check failed", "err", err)
			httpx.Abort(c, http.StatusInternalServerError, "サーバー内部でエラーが発生しました")
			return
		}
		if !ok {
			httpx.Abort(c, http.StatusUnauthorized, "ログインの有効期限が切れました。再度ログインしてください")
			return
		}

		c.Set(ContextAdminTokenKey, token)
		c.Next()
	}
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}
