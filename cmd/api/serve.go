package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/download-gate/internal/auth"
	"github.com/yourusername/download-gate/internal/captcha"
	"github.com/yourusername/download-gate/internal/catalog"
	"github.com/yourusername/download-gate/internal/config"
	"github.com/yourusername/download-gate/internal/downloads"
	"github.com/yourusername/download-gate/internal/jobs"
	"github.com/yourusername/download-gate/internal/logging"
	"github.com/yourusername/download-gate/internal/metrics"
	"github.com/yourusername/download-gate/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// runServe は serve サブコマンドの本体です。SIGINT / SIGTERM で終了します。
func runServe(ctx context.Context, cmd *cli.Command) error {
	// LOG_* も env ファイルから読めるよう、ロガーより先に反映する
	logCfg, err := loadEnvironment(cmd.Root().String("env-file"))
	if err != nil {
		return err
	}
	logger, closer := logging.New(logCfg)
	defer closer.Close()

	// 設定の読み込み
	cfg, err := config.FromLookup(os.Getenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded", "config", cfg)
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}

// loadEnvironment は env ファイルを環境変数に反映し、ロガー設定を返します。
func loadEnvironment(envFile string) (logging.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return logging.Config{}, fmt.Errorf("load config: %w", err)
	}
	return logging.NewConfigFromEnv(), nil
}

// app は起動に必要な部品をまとめたものです。
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	router  *gin.Engine
	metrics *metrics.Metrics
	stores  *storeSet
	queue   *jobs.Manager
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	m := metrics.New()

	stores, err := setupStore(ctx, cfg, logger, m)
	if err != nil {
		return nil, err
	}

	blobs, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("open upload dir: %w", err)
	}

	cat := catalog.NewStore(stores.kv, catalog.WithLogger(logger))
	if cfg.SeedDefaults {
		seeded, err := cat.EnsureSeeded(ctx, catalog.DefaultItems())
		if err != nil {
			stores.Close()
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
		if seeded {
			logger.Info("catalog seeded with default items")
		}
	}

	authOpts := []auth.Option{
		auth.WithMetrics(m),
		auth.WithLogger(logger),
	}
	if cfg.TurnstileEnabled {
		authOpts = append(authOpts, auth.WithChallengeVerifier(captcha.New(cfg.TurnstileSecretKey,
			captcha.WithVerifyURL(cfg.TurnstileVerifyURL),
			captcha.WithTimeout(cfg.TurnstileTimeout),
			captcha.WithLogger(logger),
		)))
	}
	authManager, err := auth.NewManager(auth.Config{
		DownloadPassword: cfg.DownloadPassword,
		AdminPassword:    cfg.AdminPassword,
		ChallengeEnabled: cfg.TurnstileEnabled,
		TrustRemoteAddr:  cfg.TrustRemoteAddr,
	}, stores.kv, authOpts...)
	if err != nil {
		stores.Close()
		return nil, err
	}

	svcOpts := []downloads.Option{
		downloads.WithRecorder(m),
		downloads.WithLogger(logger),
	}
	queue, err := setupQueue(cfg, blobs, stores.kv, logger, m)
	if err != nil {
		stores.Close()
		return nil, err
	}
	if queue != nil {
		svcOpts = append(svcOpts, downloads.WithCleanupScheduler(queue))
	}
	svc := downloads.NewService(cat, blobs, svcOpts...)
	files := downloads.NewHandlers(svc, authManager, downloads.HandlerOptions{
		MaxUploadSize: cfg.MaxUploadSize,
		Logger:        logger,
	})

	router := gin.New()
	setupRoutes(router, routeDeps{
		cfg:      cfg,
		logger:   logger,
		auth:     authManager,
		files:    files,
		throttle: auth.NewThrottle(cfg.GateRatePerSec, cfg.GateRateBurst),
		metrics:  m,
		queue:    queue,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		router:  router,
		metrics: m,
		stores:  stores,
		queue:   queue,
	}, nil
}

// Run は HTTP サーバーと常駐ワーカーを起動し、ctx が終わるまでブロックします。
func (a *app) Run(ctx context.Context) error {
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		a.logger.Info("starting api server", "addr", srv.Addr, "mode", a.cfg.GinMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down api server")
		return srv.Shutdown(shutdownCtx)
	})

	if sweeper := a.stores.sweeper; sweeper != nil {
		g.Go(func() error { return sweeper.Start(ctx) })
	}

	if a.queue != nil {
		g.Go(func() error {
			<-ctx.Done()
			a.queue.Shutdown()
			return nil
		})
	}

	return g.Wait()
}

// Close は外部接続を閉じます。
func (a *app) Close() {
	a.stores.Close()
}
