package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired は署名は正しいが有効期限を過ぎたトークンに対して返されます。
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid は署名不一致・形式不正などのトークンに対して返されます。
	ErrTokenInvalid = errors.New("token invalid")
	// ErrMissingSecret は署名鍵が設定されていない場合に返されます。
	ErrMissingSecret = errors.New("token secret is not configured")
)

// UserInfo はアクセストークンに埋め込む利用者情報です。
type UserInfo struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// AccessClaims はアクセストークンのクレームです。
type AccessClaims struct {
	UserInfo UserInfo `json:"UserInfo"`
	jwt.RegisteredClaims
}

// RefreshClaims はリフレッシュトークンのクレームです。ロールは含めません。
type RefreshClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// IssuerConfig は Issuer の設定です。
type IssuerConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Now は現在時刻を返す関数です。nil の場合は time.Now を使います。
	Now func() time.Time
}

// Issuer はアクセス/リフレッシュトークンの発行と検証を行います。
// 生成後は不変で、複数のリクエストから同時に利用できます。
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewIssuer は Issuer を作成します。鍵が空の場合は起動時に失敗させるためエラーを返します。
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTL must be positive")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           now,
	}, nil
}

// RefreshTTL はリフレッシュトークンの有効期間を返します（Cookie の MaxAge に使用）。
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// IssueAccess はユーザー名とロールを含むアクセストークンを発行します。
func (i *Issuer) IssueAccess(username string, roles []string) (string, time.Time, error) {
	issuedAt := i.now()
	expiresAt := issuedAt.Add(i.accessTTL)
	claims := AccessClaims{
		UserInfo: UserInfo{Username: username, Roles: roles},
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}

// IssueRefresh はユーザー名のみを含むリフレッシュトークンを発行します。
func (i *Issuer) IssueRefresh(username string) (string, time.Time, error) {
	issuedAt := i.now()
	expiresAt := issuedAt.Add(i.refreshTTL)
	claims := RefreshClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return token, claims.ExpiresAt.Time, nil
}

// ParseAccess はアクセストークンを検証してクレームを返します。
func (i *Issuer) ParseAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(tokenString, claims, i.accessSecret); err != nil {
		return nil, err
	}
	if claims.UserInfo.Username == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// ParseRefresh はリフレッシュトークンを検証してクレームを返します。
func (i *Issuer) ParseRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(tokenString, claims, i.refreshSecret); err != nil {
		return nil, err
	}
	if claims.Username == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// parse は署名を先に検証し、その後で有効期限を判定します。
// 期限切れは ErrTokenExpired、それ以外の失敗は ErrTokenInvalid に正規化します。
func (i *Issuer) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}
