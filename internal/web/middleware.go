package web

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/technotes/internal/logging"
	"github.com/yourusername/technotes/internal/metrics"
)

// ErrorHandler はハンドラーが積んだエラーをまとめて処理する境界です。
// ログとイベントログに記録し、500 を返します（レスポンス済みなら記録のみ）。
// exposeDetails が false の場合、エラー内容はクライアントに返しません。
func ErrorHandler(logger *slog.Logger, events *logging.EventLog, exposeDetails bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		logger.Error("http.error",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"err", err,
		)
		events.Append(fmt.Sprintf("%s: %s\t%s\t%s\t%s",
			errorName(err), err.Error(), c.Request.Method, c.Request.URL.RequestURI(), origin(c)),
			logging.ErrorLogFile,
		)

		if c.Writer.Written() {
			return
		}

		message := http.StatusText(http.StatusInternalServerError)
		if exposeDetails {
			message = err.Error()
		}
		negotiate(c, http.StatusInternalServerError, message, gin.H{"isError": true})
	}
}

// Recovery は panic を 500 に変換します。スタックはログにのみ出力します。
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.Error("http.panic",
			"panic", recovered,
			"path", c.Request.URL.Path,
			"stack", string(debug.Stack()),
		)
		Fail(c, fmt.Errorf("panic: %v", recovered))
	})
}

// RequestLogger はリクエストごとにイベントログと構造化ログ、メトリクスを記録します。
func RequestLogger(logger *slog.Logger, events *logging.EventLog, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		events.Append(fmt.Sprintf("%s\t%s\t%s", c.Request.Method, c.Request.URL.RequestURI(), origin(c)), logging.RequestLogFile)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()

		logger.Info("http.request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"origin", origin(c),
			"client_ip", c.ClientIP(),
		)
		m.ObserveRequest(route, c.Request.Method, status, elapsed)
	}
}

// CORS は許可リストに含まれるオリジンのみ Cookie 付きリクエストを許可します。
// Origin ヘッダーの無いリクエスト（同一オリジン、curl など）はそのまま通します。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		cfg.AllowOrigins = allowedOrigins
	} else {
		cfg.AllowOriginFunc = func(string) bool { return false }
	}
	cfg.AllowCredentials = true
	cfg.AllowMethods = []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	}
	cfg.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	cfg.OptionsResponseStatusCode = http.StatusOK
	return cors.New(cfg)
}

func origin(c *gin.Context) string {
	if o := c.GetHeader("Origin"); o != "" {
		return o
	}
	return "-"
}

func errorName(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	name := fmt.Sprintf("%T", err)
	return strings.TrimPrefix(name, "*")
}
