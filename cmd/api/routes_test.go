package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/technotes/internal/auth"
	"github.com/yourusername/technotes/internal/config"
	"github.com/yourusername/technotes/internal/logging"
	"github.com/yourusername/technotes/internal/metrics"
	"github.com/yourusername/technotes/internal/password"
	"github.com/yourusername/technotes/internal/storage"
	"github.com/yourusername/technotes/internal/users"
)

type apiFixture struct {
	router *gin.Engine
	store  *storage.Store
	hasher *password.Hasher
	logger *slog.Logger
	logDir string
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                "test",
		AllowedOrigins:     []string{"http://localhost:3000"},
		LoginLimitMax:      5,
		LoginLimitWindow:   time.Minute,
		UsersRequiredRoles: []string{users.RoleManager, users.RoleAdmin},
	}
}

// newAPIFixture は管理者と一般ユーザーを登録済みのルーターを返します。
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := newEmptyAPIFixture(t, testConfig())

	seed := func(name string, roles ...string) {
		hash, err := f.hasher.Hash("s3cret")
		require.NoError(t, err)
		require.NoError(t, f.store.Users.Create(context.Background(), &users.User{
			Username: name, PasswordHash: hash, Roles: roles, Active: true,
		}))
	}
	seed("admin", users.RoleEmployee, users.RoleAdmin)
	seed("dave", users.RoleEmployee)
	return f
}

// newEmptyAPIFixture はユーザーが 1 人もいないメモリストアでルーターを組み立てます。
func newEmptyAPIFixture(t *testing.T, cfg *config.Config) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.Open(context.Background(), storage.MemoryURI, "technotes")
	require.NoError(t, err)

	issuer, err := auth.NewIssuer(auth.IssuerConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	logDir := t.TempDir()
	logger := logging.NewWithWriter(&bytes.Buffer{}, "error")
	hasher := password.NewHasher(4)

	router, err := newRouter(&server{
		cfg:     cfg,
		logger:  logger,
		events:  logging.NewEventLog(logDir, logger),
		metrics: metrics.New(),
		store:   store,
		issuer:  issuer,
		hasher:  hasher,
		limiter: auth.NewMemoryLimiter(cfg.LoginLimitMax, cfg.LoginLimitWindow),
	})
	require.NoError(t, err)

	return &apiFixture{router: router, store: store, hasher: hasher, logger: logger, logDir: logDir}
}

func (f *apiFixture) request(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) login(t *testing.T, username string) string {
	t.Helper()
	rec := f.request(http.MethodPost, "/auth", "", fmt.Sprintf(`{"username":%q,"password":"s3cret"}`, username))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.AccessToken
}

func TestUsersRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(http.MethodGet, "/users", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.request(http.MethodGet, "/notes", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUsersRoleGate(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(http.MethodGet, "/users", f.login(t, "dave"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(http.MethodGet, "/users", f.login(t, "admin"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestCreateUserThenLoginAndNotes(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login(t, "admin")

	rec := f.request(http.MethodPost, "/users", admin, `{"username":"alice","password":"pw1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"New user alice created"}`, rec.Body.String())

	rec = f.request(http.MethodPost, "/users", admin, `{"username":"ALICE","password":"pw2"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.request(http.MethodPost, "/auth", "", `{"username":"alice","password":"pw1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	alice, err := f.store.Users.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)

	rec = f.request(http.MethodPost, "/notes", body.AccessToken, fmt.Sprintf(`{"user":%q,"title":"Printer","text":"jammed"}`, alice.ID))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.request(http.MethodGet, "/notes", body.AccessToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)
	assert.Contains(t, rec.Body.String(), `"ticket":500`)

	rec = f.request(http.MethodDelete, "/users", admin, fmt.Sprintf(`{"id":%q}`, alice.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"code":"CONFLICT","message":"User has assigned notes"}`, rec.Body.String())
}

func TestLoginIsRateLimited(t *testing.T) {
	f := newAPIFixture(t)

	for i := 0; i < 5; i++ {
		rec := f.request(http.MethodPost, "/auth", "", `{"username":"dave","password":"wrong"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := f.request(http.MethodPost, "/auth", "", `{"username":"dave","password":"s3cret"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestOperationalEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"technotes-api"}`, rec.Body.String())

	f.request(http.MethodGet, "/nowhere", "", "")
	rec = f.request(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "technotes_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="unmatched"`)

	for _, path := range []string{"/", "/index", "/index.html"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html", path)
	}

	rec = f.request(http.MethodGet, "/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"404 Not Found"}`, rec.Body.String())

	data, err := os.ReadFile(filepath.Join(f.logDir, logging.RequestLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "GET\t/healthz\t-")
}

func TestCORSPreflightOnAuth(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/auth", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestUsersWithoutRoleGateAcceptAnyBearer(t *testing.T) {
	cfg := testConfig()
	cfg.UsersRequiredRoles = nil
	f := newEmptyAPIFixture(t, cfg)

	hash, err := f.hasher.Hash("s3cret")
	require.NoError(t, err)
	require.NoError(t, f.store.Users.Create(context.Background(), &users.User{
		Username: "dave", PasswordHash: hash, Roles: []string{users.RoleEmployee}, Active: true,
	}))

	rec := f.request(http.MethodGet, "/users", f.login(t, "dave"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSeedAdminBootstrapsEmptyStore(t *testing.T) {
	cfg := testConfig()
	cfg.SeedAdminUsername = "root"
	cfg.SeedAdminPassword = "s3cret"
	f := newEmptyAPIFixture(t, cfg)
	ctx := context.Background()

	// 初期状態では誰もログインできず、/users にも到達できない
	rec := f.request(http.MethodPost, "/users", "", `{"username":"alice","password":"pw1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	require.NoError(t, seedAdmin(ctx, cfg, f.store, f.hasher, f.logger))

	root, err := f.store.Users.FindByUsername(ctx, "root")
	require.NoError(t, err)
	assert.Contains(t, root.Roles, users.RoleAdmin)
	assert.True(t, root.Active)

	token := f.login(t, "root")
	rec = f.request(http.MethodPost, "/users", token, `{"username":"alice","password":"pw1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"New user alice created"}`, rec.Body.String())
}

func TestSeedAdminSkipsPopulatedStore(t *testing.T) {
	cfg := testConfig()
	cfg.SeedAdminUsername = "root"
	cfg.SeedAdminPassword = "s3cret"
	f := newAPIFixture(t)
	ctx := context.Background()

	require.NoError(t, seedAdmin(ctx, cfg, f.store, f.hasher, f.logger))

	_, err := f.store.Users.FindByUsername(ctx, "root")
	assert.ErrorIs(t, err, users.ErrNotFound)
	list, err := f.store.Users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSeedAdminDisabledWithoutCredentials(t *testing.T) {
	f := newEmptyAPIFixture(t, testConfig())
	ctx := context.Background()

	require.NoError(t, seedAdmin(ctx, testConfig(), f.store, f.hasher, f.logger))

	list, err := f.store.Users.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
