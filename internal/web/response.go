// Package web は HTTP 層で共通に使うレスポンス整形とミドルウェアを提供します。
package web

import (
	"fmt"
	"html"
	"net/http"

	"github.com/gin-gonic/gin"
)

// エラーレスポンスの code フィールドに入る値です。
const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeTokenExpired    = "TOKEN_EXPIRED"
	CodeTokenInvalid    = "TOKEN_INVALID"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeTooManyAttempts = "TOO_MANY_ATTEMPTS"
	CodeInternal        = "INTERNAL_ERROR"
)

// Abort は {code, message} 形式の JSON を返して後続のハンドラーを止めます。
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

// Fail は想定外のエラーを gin のエラーリストに積み、ErrorHandler に処理を任せます。
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Message は成功時の {message} レスポンスを返します。
func Message(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"message": message})
}

// negotiate は Accept ヘッダーに応じて HTML / JSON / テキストのいずれかで返します。
// Accept が無い場合は HTML を優先します。
func negotiate(c *gin.Context, status int, message string, extra gin.H) {
	switch c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON, gin.MIMEPlain) {
	case gin.MIMEHTML:
		c.Data(status, "text/html; charset=utf-8", renderMessagePage(status, message))
	case gin.MIMEJSON:
		body := gin.H{"message": message}
		for k, v := range extra {
			body[k] = v
		}
		c.JSON(status, body)
	default:
		c.String(status, message)
	}
}

func renderMessagePage(status int, message string) []byte {
	if status == http.StatusNotFound {
		return notFoundPage
	}
	return []byte(fmt.Sprintf(errorPageTemplate, status, html.EscapeString(message)))
}

const errorPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Error</title></head>
<body><h1>%d</h1><p>%s</p></body>
</html>
`
