package auth

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/technotes/internal/logging"
	"github.com/yourusername/technotes/internal/metrics"
	"github.com/yourusername/technotes/internal/web"
)

const (
	limiterKeyPrefix = "login-limit:"
	limitMessage     = "Too many login attempts from this IP, please try again after a 60 second pause"

	// sweepThreshold を超えたらメモリ上の期限切れウィンドウを掃除します。
	sweepThreshold = 1024
)

// Limiter はキー（クライアントIP）単位で試行回数を数えます。
// 上限を超えた場合は再試行までの待ち時間（>0）を返します。
type Limiter interface {
	Allow(ctx context.Context, key string) (time.Duration, error)
}

type attemptWindow struct {
	count int
	start time.Time
}

// MemoryLimiter は単一プロセス用の固定ウィンドウ方式リミッターです。
type MemoryLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	lock     sync.Mutex
	attempts map[string]*attemptWindow
}

// NewMemoryLimiter は window ごとに max 回まで許可する MemoryLimiter を作成します。
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:      max,
		window:   window,
		now:      time.Now,
		attempts: make(map[string]*attemptWindow),
	}
}

// Allow は試行を 1 回記録し、上限超過なら待ち時間を返します。
func (l *MemoryLimiter) Allow(_ context.Context, key string) (time.Duration, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	now := l.now()
	if len(l.attempts) > sweepThreshold {
		l.sweep(now)
	}

	state, ok := l.attempts[key]
	if !ok || now.Sub(state.start) >= l.window {
		state = &attemptWindow{start: now}
		l.attempts[key] = state
	}

	state.count++
	if state.count > l.max {
		return state.start.Add(l.window).Sub(now), nil
	}
	return 0, nil
}

func (l *MemoryLimiter) sweep(now time.Time) {
	for key, state := range l.attempts {
		if now.Sub(state.start) >= l.window {
			delete(l.attempts, key)
		}
	}
}

// RedisLimiter は Redis の INCR + EXPIRE による固定ウィンドウ方式リミッターです。
// 複数プロセスで同じカウンタを共有できます。
type RedisLimiter struct {
	rdb    *redis.Client
	max    int
	window time.Duration
}

// NewRedisLimiter は RedisLimiter を作成します。
func NewRedisLimiter(rdb *redis.Client, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		rdb:    rdb,
		max:    max,
		window: window,
	}
}

// Allow は試行を 1 回記録し、上限超過なら待ち時間を返します。
func (l *RedisLimiter) Allow(ctx context.Context, key string) (time.Duration, error) {
	redisKey := limiterKeyPrefix + key

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("login limiter: %w", err)
	}

	ttl := pttl.Val()
	if ttl < 0 {
		// 新しいウィンドウ（または期限設定に失敗したキー）
		if err := l.rdb.PExpire(ctx, redisKey, l.window).Err(); err != nil {
			return 0, fmt.Errorf("login limiter: %w", err)
		}
		ttl = l.window
	}

	if incr.Val() > int64(l.max) {
		return ttl, nil
	}
	return 0, nil
}

// LimitLogin はログイン試行回数を制限するミドルウェアです。
// リミッター自体のエラー時はログを残してリクエストを通します。
func LimitLogin(limiter Limiter, logger *slog.Logger, events *logging.EventLog, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		retryAfter, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("auth.limiter.unavailable", "err", err)
			c.Next()
			return
		}
		if retryAfter <= 0 {
			c.Next()
			return
		}

		events.Append(fmt.Sprintf("Too Many Requests: %s\t%s\t%s\t%s",
			limitMessage, c.Request.Method, c.Request.URL.RequestURI(), c.GetHeader("Origin")),
			logging.ErrorLogFile,
		)
		m.ObserveLogin(metrics.LoginLimited)

		// Retry-After は秒数で返す（切り上げ）
		seconds := int64(math.Ceil(retryAfter.Seconds()))
		c.Header("Retry-After", strconv.FormatInt(seconds, 10))
		web.Abort(c, http.StatusTooManyRequests, web.CodeTooManyAttempts, limitMessage)
	}
}
