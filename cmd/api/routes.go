package main

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/download-gate/internal/auth"
	"github.com/yourusername/download-gate/internal/config"
	"github.com/yourusername/download-gate/internal/downloads"
	"github.com/yourusername/download-gate/internal/httpx"
	"github.com/yourusername/download-gate/internal/jobs"
	"github.com/yourusername/download-gate/internal/logging"
	"github.com/yourusername/download-gate/internal/metrics"
)

type routeDeps struct {
	cfg      *config.Config
	logger   *slog.Logger
	auth     *auth.Manager
	files    *downloads.Handlers
	throttle *auth.Throttle
	metrics  *metrics.Metrics
	queue    *jobs.Manager
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": version,
	})
}

// setupRoutes はミドルウェアと API グループの配線を行います。
func setupRoutes(router *gin.Engine, d routeDeps) {
	identity := d.auth.Identity()
	router.Use(gin.Recovery(), logging.GinMiddleware(d.logger, identity.Resolve))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = d.cfg.CORSAllowedOrigins
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization", // 管理 API の Bearer トークン
		"CF-Connecting-IP",
	}
	corsConfig.ExposeHeaders = []string{"Content-Disposition"}
	router.Use(cors.New(corsConfig))

	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)
	if d.cfg.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(d.metrics.Handler()))
	}

	gate := d.throttle.Middleware(identity)

	api := router.Group("/api")
	{
		api.GET("/files", d.files.ListFiles)
		api.POST("/verify-password", gate, d.auth.VerifyPassword)
		api.GET("/download/:filename", d.files.Download)

		admin := api.Group("/admin")
		{
			// ログイン時はトークン未発行なので RequireAdmin の外に置く
			admin.POST("/login", gate, d.auth.AdminLogin)

			protected := admin.Group("")
			protected.Use(d.auth.RequireAdmin())
			{
				protected.GET("/files", d.files.ListFiles)
				protected.POST("/link", d.files.CreateLink)
				protected.POST("/upload", d.files.Upload)
				protected.DELETE("/files/:id", d.files.DeleteItem)
				protected.POST("/logout", d.auth.AdminLogout)
				if d.queue != nil {
					protected.GET("/cleanup/:key", cleanupStatusHandler(d.queue))
				}
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			httpx.Fail(c, http.StatusNotFound, "API が見つかりません")
			return
		}
		httpx.Fail(c, http.StatusNotFound, "ページが見つかりません")
	})
}
