// Package main はAPIサーバーのエントリーポイントです。
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
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/technotes/internal/auth"
	"github.com/yourusername/technotes/internal/config"
	"github.com/yourusername/technotes/internal/logging"
	"github.com/yourusername/technotes/internal/metrics"
	"github.com/yourusername/technotes/internal/password"
	"github.com/yourusername/technotes/internal/storage"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("server.exit", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// 設定の読み込み（署名鍵などが欠けていればここで終了する）
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)
	events := logging.NewEventLog(cfg.LogDir, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	store, err := storage.Open(connectCtx, cfg.DatabaseURI, cfg.DatabaseName)
	cancel()
	if err != nil {
		events.Append(fmt.Sprintf("StoreError: %v", err), logging.StoreLogFile)
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("store.close_failed", "err", err)
		}
	}()
	logger.Info("store.connected", "database", cfg.DatabaseName)

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		AccessSecret:  cfg.AccessTokenSecret,
		RefreshSecret: cfg.RefreshTokenSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	hasher := password.NewHasher(password.DefaultCost)
	if err := seedAdmin(ctx, cfg, store, hasher, logger); err != nil {
		return err
	}

	limiter, closeLimiter := setupLoginLimiter(ctx, cfg, logger)
	defer closeLimiter()

	router, err := newRouter(&server{
		cfg:     cfg,
		logger:  logger,
		events:  events,
		metrics: metrics.New(),
		store:   store,
		issuer:  issuer,
		hasher:  hasher,
		limiter: limiter,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.start", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("server.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// setupLoginLimiter は REDIS_URL があれば Redis、無ければメモリのリミッターを返します。
// Redis に接続できない場合もメモリにフォールバックして起動を続けます。
func setupLoginLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.Limiter, func()) {
	memory := func() (auth.Limiter, func()) {
		return auth.NewMemoryLimiter(cfg.LoginLimitMax, cfg.LoginLimitWindow), func() {}
	}
	if cfg.RedisURL == "" {
		return memory()
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("limiter.redis_url_invalid", "err", err)
		return memory()
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("limiter.redis_unavailable", "err", err)
		_ = rdb.Close()
		return memory()
	}

	logger.Info("limiter.redis", "addr", opt.Addr)
	return auth.NewRedisLimiter(rdb, cfg.LoginLimitMax, cfg.LoginLimitWindow), func() { _ = rdb.Close() }
}
