package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/technotes/internal/auth"
	"github.com/yourusername/technotes/internal/config"
	"github.com/yourusername/technotes/internal/logging"
	"github.com/yourusername/technotes/internal/metrics"
	"github.com/yourusername/technotes/internal/notes"
	"github.com/yourusername/technotes/internal/password"
	"github.com/yourusername/technotes/internal/storage"
	"github.com/yourusername/technotes/internal/users"
	"github.com/yourusername/technotes/internal/web"
)

const healthTimeout = 2 * time.Second

// server はルーティングに必要な依存関係をまとめたものです。
type server struct {
	cfg     *config.Config
	logger  *slog.Logger
	events  *logging.EventLog
	metrics *metrics.Metrics
	store   *storage.Store
	issuer  *auth.Issuer
	hasher  *password.Hasher
	limiter auth.Limiter
}

// newRouter はミドルウェアとルートを登録した gin エンジンを返します。
func newRouter(s *server) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(s.cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	// ErrorHandler を最も外側に置き、panic を含む全てのエラーを受け取る
	router.Use(
		web.ErrorHandler(s.logger, s.events, !s.cfg.IsProduction()),
		web.Recovery(s.logger),
		web.RequestLogger(s.logger, s.events, s.metrics),
		web.CORS(s.cfg.AllowedOrigins),
	)

	router.GET("/", web.Index)
	router.GET("/index", web.Index)
	router.GET("/index.html", web.Index)
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	userService := users.NewService(s.store.Users, s.store.Notes, s.hasher)
	noteService := notes.NewService(s.store.Notes, s.store.Users)
	authManager := auth.NewManager(s.issuer, s.store.Users, s.hasher, auth.CookieOptions{
		Secure: s.cfg.SecureCookies(),
	}, s.logger, s.metrics)

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("", auth.LimitLogin(s.limiter, s.logger, s.events, s.metrics), authManager.Login)
		authRoutes.GET("/refresh", authManager.Refresh)
		authRoutes.POST("/logout", authManager.Logout)
	}

	userRoutes := router.Group("/users", auth.VerifyJWT(s.issuer), auth.RequireRoles(s.cfg.UsersRequiredRoles...))
	users.NewHandler(userService).Register(userRoutes)

	noteRoutes := router.Group("/notes", auth.VerifyJWT(s.issuer))
	notes.NewHandler(noteService).Register(noteRoutes)

	router.NoRoute(web.NotFound)
	return router, nil
}

// handleHealth はストアへの疎通を含むヘルスチェックです。
func (s *server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("store.ping_failed", "err", err)
		s.events.Append(fmt.Sprintf("StoreError: %v", err), logging.StoreLogFile)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"service": "technotes-api",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "technotes-api",
	})
}
