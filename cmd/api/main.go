// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/launchpad/internal/config"
	"github.com/yourusername/launchpad/internal/creation"
	"github.com/yourusername/launchpad/internal/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, closeLog := logging.New(cfg.LogFormat, cfg.LogFile, cfg.SlogLevel())
	defer closeLog()
	slog.SetDefault(logger)

	app, err := newApplication(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()
	router.MaxMultipartMemory = cfg.MaxFileSize

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, cfg, app)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownError := make(chan error, 1)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// 受付を止めてから実行中のジョブを待つ
		err := srv.Shutdown(ctx)
		if dispatchErr := app.shutdownDispatcher(ctx); dispatchErr != nil {
			err = errors.Join(err, dispatchErr)
		}
		shutdownError <- err
	}()

	logger.Info("starting API server", "addr", srv.Addr, "mode", cfg.GinMode, "dispatch", cfg.DispatchMode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	if err := <-shutdownError; err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "launchpad-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, app *application) {
	router.GET("/health", handleHealth)

	// ローカル保存時はアップロード済みファイルをそのまま配信する
	if app.localRoot != "" && strings.HasPrefix(cfg.BlobBaseURL, "/") {
		router.Static(cfg.BlobBaseURL, app.localRoot)
	}

	api := router.Group("/api")
	{
		creation.RegisterRoutes(api, app.orchestrator, app.store)
		app.uploads.RegisterRoutes(api)
	}
}
