package logging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware はリクエストごとに 1 行のアクセスログを出します。
// identity はレート制御と同じクライアント識別子を返す関数です。
func GinMiddleware(logger *slog.Logger, identity func(*http.Request) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"bytes", c.Writer.Size(),
		}
		if identity != nil {
			attrs = append(attrs, "client", identity(c.Request))
		}
		logger.Log(c.Request.Context(), level, "http request", attrs...)
	}
}
