// Package auth はログイン・トークン再発行・ログアウトと、アクセストークン検証を提供します。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/technotes/internal/metrics"
	"github.com/yourusername/technotes/internal/users"
	"github.com/yourusername/technotes/internal/web"
)

// RefreshCookieName はリフレッシュトークンを格納する Cookie 名です。
const RefreshCookieName = "jwt"

// dummyHash は存在しないユーザーに対しても bcrypt 比較を行うためのハッシュです。
var dummyHash = sync.OnceValue(func() string {
	hash, err := bcrypt.GenerateFromPassword([]byte("technotes-dummy-password"), bcrypt.DefaultCost)
	if err != nil {
		return ""
	}
	return string(hash)
})

// UserFinder はユーザー名からユーザーを取得します（大文字小文字を区別しない）。
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*users.User, error)
}

// PasswordVerifier はハッシュと平文の照合を行います。
type PasswordVerifier interface {
	Verify(hash, plain string) bool
}

// CookieOptions はリフレッシュトークン Cookie の属性です。
// 削除時にも同じ属性を使う必要があります。
type CookieOptions struct {
	Secure bool
	Domain string
}

// Manager は認証処理をまとめた構造体です。
type Manager struct {
	issuer   *Issuer
	users    UserFinder
	verifier PasswordVerifier
	cookie   CookieOptions
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewManager は認証マネージャーを作成します。
func NewManager(issuer *Issuer, finder UserFinder, verifier PasswordVerifier, cookie CookieOptions, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		issuer:   issuer,
		users:    finder,
		verifier: verifier,
		cookie:   cookie,
		logger:   logger,
		metrics:  m,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// Login は POST /auth のハンドラーです。
// 「ユーザーが存在しない」「無効化されている」「パスワード不一致」は同じ 401 を返します。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		web.Abort(c, http.StatusBadRequest, web.CodeInvalidInput, "All fields are required")
		return
	}

	user, err := m.users.FindByUsername(c.Request.Context(), strings.TrimSpace(req.Username))
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		web.Fail(c, err)
		return
	}

	if user == nil || !user.Active {
		m.verifier.Verify(dummyHash(), req.Password)
		m.rejectLogin(c)
		return
	}
	if !m.verifier.Verify(user.PasswordHash, req.Password) {
		m.rejectLogin(c)
		return
	}

	accessToken, _, err := m.issuer.IssueAccess(user.Username, user.Roles)
	if err != nil {
		web.Fail(c, err)
		return
	}
	refreshToken, _, err := m.issuer.IssueRefresh(user.Username)
	if err != nil {
		web.Fail(c, err)
		return
	}

	m.setRefreshCookie(c, refreshToken)
	m.metrics.ObserveLogin(metrics.LoginSucceeded)
	m.logger.Info("auth.login", "username", user.Username)

	c.JSON(http.StatusOK, tokenResponse{AccessToken: accessToken})
}

// Refresh は GET /auth/refresh のハンドラーです。
// ロールはトークンではなく保存済みユーザーの現在値から取り直します。
// リフレッシュトークン自体はローテーションしません。
func (m *Manager) Refresh(c *gin.Context) {
	raw, err := c.Cookie(RefreshCookieName)
	if err != nil || raw == "" {
		m.metrics.ObserveRefresh(web.CodeUnauthorized)
		web.Abort(c, http.StatusUnauthorized, web.CodeUnauthorized, "Unauthorized")
		return
	}

	claims, err := m.issuer.ParseRefresh(raw)
	if err != nil {
		code := tokenErrorCode(err)
		m.metrics.ObserveRefresh(code)
		web.Abort(c, http.StatusForbidden, code, "Forbidden")
		return
	}

	user, err := m.users.FindByUsername(c.Request.Context(), claims.Username)
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		web.Fail(c, err)
		return
	}
	if user == nil || !user.Active {
		m.metrics.ObserveRefresh(web.CodeForbidden)
		web.Abort(c, http.StatusForbidden, web.CodeForbidden, "Forbidden")
		return
	}

	accessToken, _, err := m.issuer.IssueAccess(user.Username, user.Roles)
	if err != nil {
		web.Fail(c, err)
		return
	}

	m.metrics.ObserveRefresh(metrics.RefreshSucceeded)
	c.JSON(http.StatusOK, tokenResponse{AccessToken: accessToken})
}

// Logout は POST /auth/logout のハンドラーです。Cookie が無くても成功扱いです。
func (m *Manager) Logout(c *gin.Context) {
	if raw, err := c.Cookie(RefreshCookieName); err != nil || raw == "" {
		c.Status(http.StatusNoContent)
		return
	}

	m.clearRefreshCookie(c)
	web.Message(c, http.StatusOK, "Cookie cleared")
}

func (m *Manager) rejectLogin(c *gin.Context) {
	m.metrics.ObserveLogin(metrics.LoginFailed)
	web.Abort(c, http.StatusUnauthorized, web.CodeUnauthorized, "Unauthorized")
}

func (m *Manager) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, token, int(m.issuer.RefreshTTL().Seconds()), "/", m.cookie.Domain, m.cookie.Secure, true)
}

func (m *Manager) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, "", -1, "/", m.cookie.Domain, m.cookie.Secure, true)
}

func tokenErrorCode(err error) string {
	if errors.Is(err, ErrTokenExpired) {
		return web.CodeTokenExpired
	}
	return web.CodeTokenInvalid
}
