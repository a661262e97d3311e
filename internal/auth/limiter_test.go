package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/technotes/internal/logging"
	"github.com/yourusername/technotes/internal/metrics"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	clock := &testClock{now: testEpoch}
	limiter := NewMemoryLimiter(5, time.Minute)
	limiter.now = clock.Now
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		wait, err := limiter.Allow(ctx, "192.0.2.1")
		require.NoError(t, err)
		assert.Zero(t, wait, "attempt %d", i+1)
	}

	clock.Advance(20 * time.Second)
	wait, err := limiter.Allow(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, wait)

	// 他の IP には影響しない
	wait, err = limiter.Allow(ctx, "192.0.2.2")
	require.NoError(t, err)
	assert.Zero(t, wait)

	clock.Advance(40 * time.Second)
	wait, err = limiter.Allow(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestMemoryLimiterSweepsExpiredWindows(t *testing.T) {
	clock := &testClock{now: testEpoch}
	limiter := NewMemoryLimiter(5, time.Minute)
	limiter.now = clock.Now

	for i := 0; i <= sweepThreshold; i++ {
		_, err := limiter.Allow(context.Background(), fmt.Sprintf("ip-%d", i))
		require.NoError(t, err)
	}
	clock.Advance(2 * time.Minute)
	_, err := limiter.Allow(context.Background(), "fresh")
	require.NoError(t, err)

	assert.Len(t, limiter.attempts, 1)
}

func newTestRedisLimiter(t *testing.T, max int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLimiter(rdb, max, window), mr
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	limiter, mr := newTestRedisLimiter(t, 5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		wait, err := limiter.Allow(ctx, "192.0.2.1")
		require.NoError(t, err)
		assert.Zero(t, wait, "attempt %d", i+1)
	}

	wait, err := limiter.Allow(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, time.Minute)
	assert.True(t, mr.Exists(limiterKeyPrefix+"192.0.2.1"))

	mr.FastForward(time.Minute + time.Second)
	wait, err = limiter.Allow(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestRedisLimiterReportsBackendErrors(t *testing.T) {
	limiter, mr := newTestRedisLimiter(t, 5, time.Minute)
	mr.Close()

	_, err := limiter.Allow(context.Background(), "192.0.2.1")
	assert.Error(t, err)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (time.Duration, error) {
	return 0, errors.New("redis down")
}

func newLimitedRouter(t *testing.T, limiter Limiter) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	logger := logging.NewWithWriter(&bytes.Buffer{}, "error")
	router := gin.New()
	router.POST("/auth", LimitLogin(limiter, logger, logging.NewEventLog(dir, logger), metrics.New()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router, dir
}

func TestLimitLoginMiddleware(t *testing.T) {
	router, dir := newLimitedRouter(t, NewMemoryLimiter(5, time.Minute))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth", nil)
		req.RemoteAddr = "198.51.100.7:40000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, send().Code)
	}

	rec := send()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":"TOO_MANY_ATTEMPTS","message":"`+limitMessage+`"}`, rec.Body.String())

	data, err := os.ReadFile(filepath.Join(dir, logging.ErrorLogFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Too Many Requests")
}

func TestLimitLoginFailsOpen(t *testing.T) {
	router, _ := newLimitedRouter(t, failingLimiter{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
