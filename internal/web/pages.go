package web

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

var (
	//go:embed views/index.html
	indexPage []byte

	//go:embed views/404.html
	notFoundPage []byte
)

// Index は / のトップページを返します。
func Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexPage)
}

// NotFound は未定義ルート用のハンドラーです。
func NotFound(c *gin.Context) {
	negotiate(c, http.StatusNotFound, "404 Not Found", nil)
}
