package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/technotes/internal/web"
)

// ハンドラー間で検証済みの利用者情報を共有するためのキーです。
const (
	ContextUserKey  = "auth.user"
	ContextRolesKey = "auth.roles"
)

// Identity は検証済みアクセストークンから取り出した利用者情報です。
type Identity struct {
	Username string
	Roles    []string
}

// VerifyJWT は Authorization: Bearer のアクセストークンを検証するミドルウェアを返します。
// トークンが無い場合は 401、署名不正・期限切れは 403 です。永続化された状態は変更しません。
func VerifyJWT(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			web.Abort(c, http.StatusUnauthorized, web.CodeUnauthorized, "Unauthorized")
			return
		}

		claims, err := issuer.ParseAccess(token)
		if err != nil {
			web.Abort(c, http.StatusForbidden, tokenErrorCode(err), "Forbidden")
			return
		}

		c.Set(ContextUserKey, claims.UserInfo.Username)
		c.Set(ContextRolesKey, claims.UserInfo.Roles)
		c.Next()
	}
}

// RequireRoles はいずれかのロールを持つ利用者のみ通すミドルウェアを返します。
// roles が空の場合は何もしません。VerifyJWT の後に置く必要があります。
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(roles) == 0 {
			c.Next()
			return
		}
		identity, ok := CurrentUser(c)
		if !ok {
			web.Abort(c, http.StatusUnauthorized, web.CodeUnauthorized, "Unauthorized")
			return
		}
		for _, role := range identity.Roles {
			if slices.Contains(roles, role) {
				c.Next()
				return
			}
		}
		web.Abort(c, http.StatusForbidden, web.CodeForbidden, "Forbidden")
	}
}

// CurrentUser は VerifyJWT が設定した利用者情報を返します。
func CurrentUser(c *gin.Context) (Identity, bool) {
	username := c.GetString(ContextUserKey)
	if username == "" {
		return Identity{}, false
	}
	return Identity{
		Username: username,
		Roles:    c.GetStringSlice(ContextRolesKey),
	}, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}
